package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"cinemind/app/config"
	"cinemind/app/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"message": map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func TestGeneratePromptsDisabledReturnsSeed(t *testing.T) {
	q := NewQwenClient(config.QwenConfig{}, testLogger())
	require.False(t, q.Enabled())

	seed := Preset{ZH: "科幻，夜景", EN: "film type: 科幻", StyleHints: []string{"冷色调"}}
	got := q.GeneratePrompts(seed, PromptOptions{})
	assert.Equal(t, seed, got)
}

func TestGeneratePromptsParsesBilingualResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(chatResponse("中文提示词：霓虹雨夜下的侦探\nEnglish prompt: a detective in neon rain"))
	}))
	defer srv.Close()

	q := NewQwenClient(config.QwenConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "qwen-max"}, testLogger())

	seed := Preset{ZH: "种子中文", EN: "seed en"}
	got := q.GeneratePrompts(seed, PromptOptions{})
	assert.Equal(t, "霓虹雨夜下的侦探", got.ZH)
	assert.Equal(t, "a detective in neon rain", got.EN)
}

func TestGeneratePromptsPartialResponseFallsBackPerSide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse("中文提示词：只有中文这一侧"))
	}))
	defer srv.Close()

	q := NewQwenClient(config.QwenConfig{BaseURL: srv.URL, APIKey: "k"}, testLogger())
	seed := Preset{ZH: "种子中文", EN: "seed en"}
	got := q.GeneratePrompts(seed, PromptOptions{})
	assert.Equal(t, "只有中文这一侧", got.ZH)
	assert.Equal(t, "seed en", got.EN, "缺失的英文侧应回退到种子")
}

func TestChatNon200DoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	q := NewQwenClient(config.QwenConfig{BaseURL: srv.URL, APIKey: "k"}, testLogger())
	seed := Preset{ZH: "种子", EN: "seed"}
	got := q.GeneratePrompts(seed, PromptOptions{})

	assert.Equal(t, seed, got)
	assert.Equal(t, int32(1), calls.Load(), "非 200 响应不应重试")
}

func TestGenerateKeywordsDisabledFallsBack(t *testing.T) {
	q := NewQwenClient(config.QwenConfig{}, testLogger())
	words := q.GenerateKeywords("城市夜景，冷光，远景", 10, "", "")
	assert.Equal(t, []string{"城市夜景", "冷光", "远景"}, words)
}

func TestGenerateKeywordsParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse("1. 霓虹灯\n2、雨夜\n3) 追逐戏\n4. neon\n霓虹灯"))
	}))
	defer srv.Close()

	q := NewQwenClient(config.QwenConfig{BaseURL: srv.URL, APIKey: "k"}, testLogger())
	words := q.GenerateKeywords("无关", 10, "", "")
	assert.Equal(t, []string{"霓虹灯", "雨夜", "追逐戏"}, words, "剥离编号，过滤非中文行，去重")
}

func TestParseKeywordResponse(t *testing.T) {
	t.Run("分隔符统一并截断", func(t *testing.T) {
		words := parseKeywordResponse("夜景、冷光；雾气，街道", 3)
		assert.Equal(t, []string{"夜景", "冷光", "雾气"}, words)
	})

	t.Run("不足时从全文扫取中文片段", func(t *testing.T) {
		words := parseKeywordResponse("关键词: 城市 and 夜景 etc.", 5)
		assert.Contains(t, words, "城市")
		assert.Contains(t, words, "夜景")
	})

	t.Run("空回复", func(t *testing.T) {
		assert.Empty(t, parseKeywordResponse("", 5))
	})
}

func TestFallbackKeywords(t *testing.T) {
	words := FallbackKeywords("城市夜景，冷光，远景", 10)
	assert.Equal(t, []string{"城市夜景", "冷光", "远景"}, words)

	t.Run("丢弃单字符并去重", func(t *testing.T) {
		words := FallbackKeywords("夜，夜景，夜景，a", 10)
		assert.Equal(t, []string{"夜景"}, words)
	})

	t.Run("截断到top", func(t *testing.T) {
		words := FallbackKeywords("一号词，二号词，三号词", 2)
		assert.Len(t, words, 2)
	})
}

func TestFillTemplate(t *testing.T) {
	out := fillTemplate("标签: {labels_joined}, 数量: {top}", map[string]string{
		"labels_joined": "科幻 > 夜景",
		"top":           "5",
	})
	assert.Equal(t, "标签: 科幻 > 夜景, 数量: 5", out)
}
