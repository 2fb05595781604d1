package model

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// 生成请求里能识别的中文键
const (
	KeyTaskID        = "任务ID"
	KeyFilmType      = "影片类型"
	KeyEnvironment   = "环境背景"
	KeyMainRole      = "主角类型"
	KeyCharacter     = "角色个体"
	KeyMoment        = "精彩瞬间"
	KeyElement       = "关键元素"
	KeyCamera        = "镜头语言"
	KeyEra           = "年代"
	KeyLighting      = "光照风格"
	KeyRatio         = "图像比例"
	KeyResolution    = "分辨率"
	KeyContent       = "内容"
	keywordKeyPrefix = "关键词_"
)

var (
	ratioPattern      = regexp.MustCompile(`^\d+:\d+$`)
	resolutionPattern = regexp.MustCompile(`^\d+x\d+$`)

	ErrInvalidPayload = errors.New("invalid generate payload")
)

// GeneratePayload 生成请求的规范化内部表示。
// 入站 JSON 是一组松散的中文键值，先统一收敛到该结构再做校验，
// 后续流水线不再关心原始键的形态。
type GeneratePayload struct {
	TaskID      string
	FilmType    string
	Environment string
	MainRole    string
	Character   string
	Moment      string
	Element     string
	Camera      string
	Era         string
	Lighting    string
	Ratio       string
	Resolution  string
	Content     string
	Keywords    map[string][]string // 关键词_* 分组
	Raw         map[string]any      // 用户原始选择快照
}

// NormalizeGeneratePayload 把松散的请求体收敛为规范结构。
// 无法识别的键会被忽略，但完整保留在 Raw 里。
func NormalizeGeneratePayload(raw map[string]any) *GeneratePayload {
	p := &GeneratePayload{
		Keywords: make(map[string][]string),
		Raw:      raw,
	}

	str := func(key string) string {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}

	p.TaskID = str(KeyTaskID)
	p.FilmType = str(KeyFilmType)
	p.Environment = str(KeyEnvironment)
	p.MainRole = str(KeyMainRole)
	p.Character = str(KeyCharacter)
	p.Moment = str(KeyMoment)
	p.Element = str(KeyElement)
	p.Camera = str(KeyCamera)
	p.Era = str(KeyEra)
	p.Lighting = str(KeyLighting)
	p.Ratio = str(KeyRatio)
	p.Resolution = str(KeyResolution)
	p.Content = str(KeyContent)

	for key, value := range raw {
		if !strings.HasPrefix(key, keywordKeyPrefix) {
			continue
		}
		list, ok := value.([]any)
		if !ok {
			continue
		}
		var words []string
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				words = append(words, s)
			}
		}
		if len(words) > 0 {
			p.Keywords[strings.TrimPrefix(key, keywordKeyPrefix)] = words
		}
	}

	return p
}

// Validate 校验规范化后的请求。
// 任务ID 必须是 UUID，比例和分辨率必须匹配固定格式，
// 描述性字段组合（影片类型+环境背景）与自由文本（内容）二者至少其一。
func (p *GeneratePayload) Validate() error {
	if _, err := uuid.Parse(p.TaskID); err != nil {
		return ErrInvalidPayload
	}
	if !ratioPattern.MatchString(p.Ratio) {
		return ErrInvalidPayload
	}
	if !resolutionPattern.MatchString(p.Resolution) {
		return ErrInvalidPayload
	}
	hasBundle := p.FilmType != "" && p.Environment != ""
	if !hasBundle && p.Content == "" {
		return ErrInvalidPayload
	}
	return nil
}

// Dimensions 从分辨率串解析宽高，解析失败时返回 0
func (p *GeneratePayload) Dimensions() (width, height int) {
	parts := strings.SplitN(p.Resolution, "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	width, _ = strconv.Atoi(parts[0])
	height, _ = strconv.Atoi(parts[1])
	return width, height
}
