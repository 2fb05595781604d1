package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRaw() map[string]any {
	return map[string]any{
		KeyTaskID:      "2b7525c1-7d1a-4d43-9f63-1f1d6a1a0c55",
		KeyFilmType:    "科幻",
		KeyEnvironment: "暴雨中的城市",
		KeyRatio:       "16:9",
		KeyResolution:  "1024x576",
	}
}

func TestNormalizeGeneratePayload(t *testing.T) {
	raw := validRaw()
	raw[KeyMainRole] = "  侦探  "
	raw["关键词_氛围"] = []any{"冷光", "", "雾气"}
	raw["关键词_空组"] = []any{}
	raw["无关键"] = "忽略"

	p := NormalizeGeneratePayload(raw)

	assert.Equal(t, "科幻", p.FilmType)
	assert.Equal(t, "侦探", p.MainRole, "字符串字段应去除首尾空白")
	assert.Equal(t, []string{"冷光", "雾气"}, p.Keywords["氛围"])
	assert.NotContains(t, p.Keywords, "空组")
	assert.Equal(t, raw, p.Raw, "原始请求体应完整保留")
}

func TestNormalizeIgnoresNonStringValues(t *testing.T) {
	raw := validRaw()
	raw[KeyContent] = 42
	raw["关键词_数字"] = []any{1, 2}

	p := NormalizeGeneratePayload(raw)

	assert.Empty(t, p.Content)
	assert.NotContains(t, p.Keywords, "数字")
}

func TestValidateAcceptsBundleOrContent(t *testing.T) {
	p := NormalizeGeneratePayload(validRaw())
	require.NoError(t, p.Validate())

	// 只有自由文本也可以
	raw := validRaw()
	delete(raw, KeyFilmType)
	delete(raw, KeyEnvironment)
	raw[KeyContent] = "霓虹雨夜里的追逐"
	p = NormalizeGeneratePayload(raw)
	require.NoError(t, p.Validate())
}

func TestValidateRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"任务ID不是UUID", func(m map[string]any) { m[KeyTaskID] = "not-a-uuid" }},
		{"任务ID缺失", func(m map[string]any) { delete(m, KeyTaskID) }},
		{"比例格式错误", func(m map[string]any) { m[KeyRatio] = "16x9" }},
		{"分辨率格式错误", func(m map[string]any) { m[KeyResolution] = "1024*576" }},
		{"描述组合与内容都缺失", func(m map[string]any) {
			delete(m, KeyEnvironment)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRaw()
			tc.mutate(raw)
			p := NormalizeGeneratePayload(raw)
			assert.ErrorIs(t, p.Validate(), ErrInvalidPayload)
		})
	}
}

func TestDimensions(t *testing.T) {
	p := NormalizeGeneratePayload(validRaw())
	w, h := p.Dimensions()
	assert.Equal(t, 1024, w)
	assert.Equal(t, 576, h)

	p.Resolution = "bad"
	w, h = p.Dimensions()
	assert.Zero(t, w)
	assert.Zero(t, h)
}
