package service

import (
	"sort"
	"strings"

	"cinemind/app/model"
)

// Preset 提示词种子，由规范化请求确定性拼接而来。
// 外部扩写不可用时直接作为最终提示词使用。
type Preset struct {
	ZH         string   `json:"zh"`
	EN         string   `json:"en"`
	StyleHints []string `json:"styleHints"`
}

// BuildPrompts 把生成请求拼接为中英双语种子文本和风格提示。
// 纯函数，字段拼接顺序固定，相同入参得到字节一致的结果。
func BuildPrompts(p *model.GeneratePayload) Preset {
	var zhParts, enParts []string

	addPair := func(zh, enKey string) {
		if zh != "" {
			zhParts = append(zhParts, zh)
			enParts = append(enParts, enKey+": "+zh)
		}
	}

	addPair(p.FilmType, "film type")
	addPair(p.Environment, "environment")
	addPair(p.MainRole, "main role")
	addPair(p.Character, "character")
	addPair(p.Moment, "moment")
	addPair(p.Element, "element")
	addPair(p.Camera, "camera")
	addPair(p.Era, "era")

	var styleHints []string
	for _, hint := range []string{p.Lighting, p.Camera} {
		if hint != "" {
			styleHints = append(styleHints, hint)
		}
	}

	// 关键词分组按组名排序后追加到中文侧，保证可复现
	groups := make([]string, 0, len(p.Keywords))
	for name := range p.Keywords {
		groups = append(groups, name)
	}
	sort.Strings(groups)
	for _, name := range groups {
		zhParts = append(zhParts, p.Keywords[name]...)
	}

	if p.Ratio != "" {
		enParts = append(enParts, "ratio: "+p.Ratio)
	}
	if p.Resolution != "" {
		enParts = append(enParts, "resolution: "+p.Resolution)
	}
	if p.Content != "" {
		zhParts = append(zhParts, p.Content)
		enParts = append(enParts, "content: "+p.Content)
	}

	return Preset{
		ZH:         strings.Join(zhParts, "，"),
		EN:         strings.Join(enParts, ", "),
		StyleHints: styleHints,
	}
}
