package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cinemind/app/config"
	"cinemind/app/errcode"
	"cinemind/app/logger"
	"cinemind/app/model"
	"cinemind/app/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// NodeAIHandler 节点的 AI 辅助接口：关键词、扩写、逐级建议
type NodeAIHandler struct {
	db       *gorm.DB
	qwen     *service.QwenClient
	keywords *service.KeywordService
	cfg      *config.Config
	log      *logger.Logger
}

// NewNodeAIHandler 创建 AI 辅助处理器
func NewNodeAIHandler(db *gorm.DB, qwen *service.QwenClient, keywords *service.KeywordService, cfg *config.Config, log *logger.Logger) *NodeAIHandler {
	return &NodeAIHandler{db: db, qwen: qwen, keywords: keywords, cfg: cfg, log: log}
}

// Keywords 返回节点内容的 Top N 关键词
func (h *NodeAIHandler) Keywords(c *gin.Context) {
	nodeID := c.Param("id")
	top, _ := strconv.Atoi(c.DefaultQuery("top", "10"))

	items, source, err := h.keywords.TopKeywords(nodeID, top)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusInternalServerError, errcode.DBError, "query node failed")
		return
	}
	if items == nil {
		items = []string{}
	}
	respondOK(c, gin.H{"node_id": nodeID, "source": source, "items": items}, "")
}

// AIContent 基于节点内容扩写成品提示词
func (h *NodeAIHandler) AIContent(c *gin.Context) {
	var node model.MindNode
	if err := h.db.First(&node, "node_id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, errcode.NotFound, "node not found")
		} else {
			respondError(c, http.StatusInternalServerError, errcode.DBError, "query node failed")
		}
		return
	}

	preset := service.Preset{ZH: node.Content, EN: node.Content}
	prompts := h.qwen.GeneratePrompts(preset, service.PromptOptions{Text: node.Content})
	respondOK(c, gin.H{"node_id": node.NodeID, "prompts": prompts}, "")
}

// AISuggestRequest 标签路径建议请求
type AISuggestRequest struct {
	Labels []string `json:"labels"`
	Top    int      `json:"top"`
}

// AISuggest 基于选中的标签路径给出成品提示词和关键词
func (h *NodeAIHandler) AISuggest(c *gin.Context) {
	var req AISuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusOK, errcode.InvalidParam, "invalid suggest payload")
		return
	}
	if req.Top <= 0 {
		req.Top = 10
	}

	text := strings.Join(req.Labels, " > ")
	preset := service.Preset{ZH: text, EN: text}

	h.log.Infof("[ai-suggest:req] labels=%v top=%d", req.Labels, req.Top)

	prompts := h.qwen.GeneratePrompts(preset, service.PromptOptions{
		Labels:       req.Labels,
		Text:         text,
		Top:          req.Top,
		UserTemplate: h.cfg.Qwen.FlowTemplates["ai_suggest"],
	})
	keywords := h.qwen.GenerateKeywords(text, req.Top, h.cfg.Qwen.FlowTemplates["keywords_from_labels"], "")

	h.log.Infof("[ai-suggest:res] zh_len=%d en_len=%d kw_count=%d", len(prompts.ZH), len(prompts.EN), len(keywords))
	respondOK(c, gin.H{"labels": req.Labels, "prompts": prompts, "keywords": keywords}, "")
}

// StepItem 逐级建议中的已选项
type StepItem struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// StepSuggestRequest 逐级建议请求
type StepSuggestRequest struct {
	Items      []StepItem `json:"items"`
	TargetType string     `json:"target_type"`
	Top        int        `json:"top"`
}

// StepSuggest 基于已选路径为目标类别生成 Top N 关键词。
// 角色指令强制覆盖为每行一词的纯列表格式。
func (h *NodeAIHandler) StepSuggest(c *gin.Context) {
	var req StepSuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TargetType == "" {
		respondError(c, http.StatusOK, errcode.InvalidParam, "invalid step-suggest payload")
		return
	}
	if req.Top <= 0 {
		req.Top = 10
	}

	h.log.Infof("[step-suggest:req] target=%s top=%d items=%d", req.TargetType, req.Top, len(req.Items))

	role := fmt.Sprintf("你是资深影像提示词工程师。仅返回与查询内容最相关的Top%d中文关键提示词，"+
		"输出格式为纯文本列表，每行一个关键词；禁止输出任何解释、问题或说明；行数必须等于%d。", req.Top, req.Top)

	var contextLines []string
	var filmLabels []string
	for _, item := range req.Items {
		contextLines = append(contextLines, item.Type+": "+item.Label)
		if item.Type == model.KeyFilmType {
			filmLabels = append(filmLabels, item.Label)
		}
	}
	filmCombo := "未指定"
	if len(filmLabels) > 0 {
		filmCombo = strings.Join(filmLabels, "、")
	}
	text := fmt.Sprintf("%s\n目标类别: %s\n影片类型组合: %s", strings.Join(contextLines, "\n"), req.TargetType, filmCombo)

	tpl := h.cfg.Qwen.FlowTemplates["step_suggest"]
	if tpl == "" {
		tpl = "请基于影片类型组合「{film_combo}」为目标类别「{target}」生成Top{top}条中文关键提示词。" +
			"严格格式：仅输出纯中文关键词列表，每行恰好一个关键词；禁止任何编号、标点、符号或解释；" +
			"总行数必须为{top}；每个关键词独立且具备检索价值。"
	}
	tpl = strings.NewReplacer(
		"{film_combo}", filmCombo,
		"{target}", req.TargetType,
		"{top}", strconv.Itoa(req.Top),
	).Replace(tpl)

	keywords := h.qwen.GenerateKeywords(text, req.Top, tpl, role)

	h.log.Infof("[step-suggest:res] target=%s count=%d", req.TargetType, len(keywords))
	respondOK(c, gin.H{"target_type": req.TargetType, "items": keywords}, "")
}
