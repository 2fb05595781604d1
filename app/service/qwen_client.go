package service

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"cinemind/app/config"
	"cinemind/app/logger"

	"github.com/google/uuid"
	"resty.dev/v3"
)

const qwenMaxAttempts = 3

var (
	listSeparators  = regexp.MustCompile(`[，、;；]+`)
	enumPrefix      = regexp.MustCompile(`^\s*[\d一二三四五六七八九十]+[.)、\-:：\s]*`)
	trailingPunct   = regexp.MustCompile(`[\s,，、;；。.!?？]+$`)
	pureHanLine     = regexp.MustCompile(`^\p{Han}+$`)
	hanFragment     = regexp.MustCompile(`\p{Han}{2,}`)
	tokenDelimiters = strings.NewReplacer("，", " ", ",", " ", "、", " ", ";", " ", "；", " ")
)

// ChatMessage 对话消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptOptions 扩写调用的可选覆盖项
type PromptOptions struct {
	Labels           []string
	Text             string
	Top              int
	UserTemplate     string
	RoleOverride     string
	NegativeOverride string
}

// QwenClient 外部文本扩写客户端。
// 未配置 base_url 或 api_key 时全部走本地降级逻辑，调用方无需感知。
type QwenClient struct {
	cfg    config.QwenConfig
	client *resty.Client
	log    *logger.Logger
}

// NewQwenClient 创建文本扩写客户端
func NewQwenClient(cfg config.QwenConfig, log *logger.Logger) *QwenClient {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(time.Duration(cfg.Timeout) * time.Second)
	}
	return &QwenClient{cfg: cfg, client: client, log: log}
}

// Enabled 判断外部扩写是否可用
func (q *QwenClient) Enabled() bool {
	return q.cfg.BaseURL != "" && q.cfg.APIKey != ""
}

// chat 调用外部对话接口，返回首个补全文本。
// 传输失败最多重试三次；收到格式完整的非 200 响应不再重试。
// 任何失败都返回空串，由调用方降级。
func (q *QwenClient) chat(messages []ChatMessage) string {
	if !q.Enabled() {
		q.log.Warnf("qwen 未启用: base_url 或 api_key 缺失")
		return ""
	}

	rid := uuid.NewString()
	body := map[string]any{"model": q.cfg.Model, "messages": messages}

	for attempt := 1; attempt <= qwenMaxAttempts; attempt++ {
		var result map[string]any
		resp, err := q.client.R().
			SetHeader("Authorization", "Bearer "+q.cfg.APIKey).
			SetBody(body).
			SetResult(&result).
			Post(q.cfg.BaseURL)
		if err != nil {
			q.log.Errorf("[qwen:err] id=%s attempt=%d/%d: %v", rid, attempt, qwenMaxAttempts, err)
			continue
		}
		if resp.StatusCode() != 200 {
			q.log.Warnf("[qwen:res] id=%s status=%d body=%s", rid, resp.StatusCode(), truncate(resp.String(), 400))
			return ""
		}
		content := extractChatContent(result)
		q.log.Infof("[qwen:res] id=%s status=200 len=%d", rid, len(content))
		return content
	}
	return ""
}

// extractChatContent 从 OpenAI 兼容响应中取出补全文本
func extractChatContent(result map[string]any) string {
	choices, ok := result["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return ""
	}
	message, ok := choice["message"].(map[string]any)
	if !ok {
		return ""
	}
	content, _ := message["content"].(string)
	return content
}

// GeneratePrompts 把种子文本扩写为成品中英提示词。
// 外部服务不可用或响应无法解析时原样返回种子。
func (q *QwenClient) GeneratePrompts(preset Preset, opt PromptOptions) Preset {
	text := opt.Text
	if text == "" {
		text = strings.TrimSpace(preset.ZH + " " + preset.EN)
	}
	negative := opt.NegativeOverride
	if negative == "" {
		negative = q.cfg.NegativePrompt
	}

	tpl := opt.UserTemplate
	if tpl == "" {
		tpl = fmt.Sprintf(
			"中文要素: %s\nEnglish seed: %s\nStyle hints: %s\nNegative: %s\n请给出中文和英文的成品提示词。",
			preset.ZH, preset.EN, strings.Join(preset.StyleHints, ", "), negative)
	}

	labelsJoined := text
	if len(opt.Labels) > 0 {
		labelsJoined = strings.Join(opt.Labels, " > ")
	}
	top := opt.Top
	if top <= 0 {
		top = 10
	}
	content := fillTemplate(tpl, map[string]string{
		"labels_joined":   labelsJoined,
		"negative_prompt": negative,
		"top":             fmt.Sprint(top),
	})

	role := opt.RoleOverride
	if role == "" {
		role = q.cfg.RolePrompt
	}

	resp := q.chat([]ChatMessage{
		{Role: "system", Content: role},
		{Role: "user", Content: content},
	})
	if resp == "" {
		q.log.Infof("[qwen:fallback_prompts] zh_seed_len=%d en_seed_len=%d", len(preset.ZH), len(preset.EN))
		return preset
	}

	// 按行提取中英提示词，缺失侧回退到种子
	var zh, en string
	for _, line := range strings.Split(resp, "\n") {
		switch {
		case strings.Contains(line, "中文"):
			parts := strings.Split(line, "：")
			zh = strings.TrimSpace(parts[len(parts)-1])
		case strings.Contains(line, "English") || strings.Contains(line, "英文"):
			parts := strings.Split(line, ":")
			en = strings.TrimSpace(parts[len(parts)-1])
		}
	}
	if zh == "" {
		zh = preset.ZH
	}
	if en == "" {
		en = preset.EN
	}
	return Preset{ZH: zh, EN: en, StyleHints: preset.StyleHints}
}

// GenerateKeywords 基于文本生成至多 top 个去重关键词。
// 外部服务不可用时降级为本地分词。
func (q *QwenClient) GenerateKeywords(text string, top int, userTemplate, roleOverride string) []string {
	if top <= 0 {
		top = 10
	}

	tpl := userTemplate
	if tpl == "" {
		tpl = fmt.Sprintf("基于以下节点内容，生成最有可能的Top%d中文关键词，以逗号分隔，仅输出关键词：\n%s", top, text)
	}
	role := roleOverride
	if role == "" {
		role = q.cfg.RolePrompt
	}

	resp := q.chat([]ChatMessage{
		{Role: "system", Content: role},
		{Role: "user", Content: tpl},
	})
	if resp == "" {
		words := FallbackKeywords(text, top)
		q.log.Infof("[qwen:fallback_keywords] text_len=%d count=%d", len(text), len(words))
		return words
	}
	return parseKeywordResponse(resp, top)
}

// parseKeywordResponse 把模型的自由格式回复规范化为关键词列表。
// 列表类标点统一转换行，剥离行首编号，仅保留纯中文行并去重；
// 数量不足时再从原始回复中扫取中文片段补足。
func parseKeywordResponse(resp string, top int) []string {
	s := listSeparators.ReplaceAllString(strings.TrimSpace(resp), "\n")

	seen := make(map[string]bool)
	out := make([]string, 0, top)
	for _, line := range strings.Split(s, "\n") {
		line = enumPrefix.ReplaceAllString(strings.TrimSpace(line), "")
		line = trailingPunct.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" || !pureHanLine.MatchString(line) {
			continue
		}
		if !seen[line] {
			seen[line] = true
			out = append(out, line)
		}
		if len(out) >= top {
			return out
		}
	}

	// 不足 top 时从回复全文中提取中文片段补足
	for _, word := range hanFragment.FindAllString(s, -1) {
		if !seen[word] {
			seen[word] = true
			out = append(out, word)
		}
		if len(out) >= top {
			break
		}
	}
	return out
}

// FallbackKeywords 本地分词降级：按常见分隔符切分，
// 丢弃单字符词，按首次出现顺序去重并截断到 top 个。
func FallbackKeywords(text string, top int) []string {
	if top <= 0 {
		top = 10
	}
	fields := strings.Fields(tokenDelimiters.Replace(text))

	seen := make(map[string]bool)
	out := make([]string, 0, top)
	for _, word := range fields {
		word = strings.TrimSpace(word)
		if utf8.RuneCountInString(word) <= 1 {
			continue
		}
		if seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
		if len(out) >= top {
			break
		}
	}
	return out
}

// fillTemplate 替换模板中的命名占位符
func fillTemplate(tpl string, values map[string]string) string {
	for name, value := range values {
		tpl = strings.ReplaceAll(tpl, "{"+name+"}", value)
	}
	return tpl
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
