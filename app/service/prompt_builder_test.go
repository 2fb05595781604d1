package service

import (
	"strings"
	"testing"

	"cinemind/app/model"

	"github.com/stretchr/testify/assert"
)

func fullPayload() *model.GeneratePayload {
	return &model.GeneratePayload{
		TaskID:      "2b7525c1-7d1a-4d43-9f63-1f1d6a1a0c55",
		FilmType:    "科幻",
		Environment: "暴雨中的城市",
		MainRole:    "侦探",
		Character:   "独行者",
		Moment:      "对峙",
		Element:     "霓虹灯",
		Camera:      "低角度仰拍",
		Era:         "2080年代",
		Lighting:    "冷色调",
		Ratio:       "16:9",
		Resolution:  "1024x576",
		Keywords: map[string][]string{
			"氛围": {"雾气", "湿润街道"},
			"材质": {"金属光泽"},
		},
	}
}

func TestBuildPromptsFieldOrder(t *testing.T) {
	preset := BuildPrompts(fullPayload())

	zhParts := strings.Split(preset.ZH, "，")
	assert.Equal(t, "科幻", zhParts[0])
	assert.Equal(t, "暴雨中的城市", zhParts[1])
	assert.Equal(t, "侦探", zhParts[2])
	assert.Equal(t, "2080年代", zhParts[7])

	assert.True(t, strings.HasPrefix(preset.EN, "film type: 科幻, environment: 暴雨中的城市"))
	assert.Contains(t, preset.EN, "ratio: 16:9")
	assert.Contains(t, preset.EN, "resolution: 1024x576")
}

func TestBuildPromptsDeterministic(t *testing.T) {
	first := BuildPrompts(fullPayload())
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, BuildPrompts(fullPayload()))
	}
}

func TestBuildPromptsKeywordGroupsSorted(t *testing.T) {
	preset := BuildPrompts(fullPayload())

	// 组名按字典序排列，材质组先于氛围组
	metalIdx := strings.Index(preset.ZH, "金属光泽")
	fogIdx := strings.Index(preset.ZH, "雾气")
	assert.Greater(t, metalIdx, -1)
	assert.Greater(t, fogIdx, metalIdx)
}

func TestBuildPromptsStyleHints(t *testing.T) {
	preset := BuildPrompts(fullPayload())
	assert.Equal(t, []string{"冷色调", "低角度仰拍"}, preset.StyleHints)

	p := fullPayload()
	p.Lighting = ""
	p.Camera = ""
	assert.Empty(t, BuildPrompts(p).StyleHints)
}

func TestBuildPromptsContentLast(t *testing.T) {
	p := fullPayload()
	p.Content = "最后的对白"
	preset := BuildPrompts(p)

	assert.True(t, strings.HasSuffix(preset.ZH, "最后的对白"))
	assert.True(t, strings.HasSuffix(preset.EN, "content: 最后的对白"))
}

func TestBuildPromptsSkipsEmptyFields(t *testing.T) {
	p := &model.GeneratePayload{FilmType: "动作", Environment: "沙漠"}
	preset := BuildPrompts(p)

	assert.Equal(t, "动作，沙漠", preset.ZH)
	assert.Equal(t, "film type: 动作, environment: 沙漠", preset.EN)
}
