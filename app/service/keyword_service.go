package service

import (
	"fmt"
	"time"

	"cinemind/app/config"
	"cinemind/app/logger"
	"cinemind/app/model"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// KeywordService 节点关键词服务。
// 根据配置走 AI 生成或本地分词，结果短暂缓存。
type KeywordService struct {
	db    *gorm.DB
	qwen  *QwenClient
	cfg   config.QwenConfig
	cache *cache.Cache
	log   *logger.Logger
}

// NewKeywordService 创建关键词服务
func NewKeywordService(db *gorm.DB, qwen *QwenClient, cfg config.QwenConfig, log *logger.Logger) *KeywordService {
	return &KeywordService{
		db:    db,
		qwen:  qwen,
		cfg:   cfg,
		cache: cache.New(5*time.Minute, 10*time.Minute),
		log:   log,
	}
}

// TopKeywords 返回节点内容的至多 top 个关键词及其来源（ai 或 db）
func (k *KeywordService) TopKeywords(nodeID string, top int) ([]string, string, error) {
	if top <= 0 {
		top = 10
	}
	source := "db"
	if k.cfg.FullByAI && k.qwen.Enabled() {
		source = "ai"
	}

	cacheKey := fmt.Sprintf("%s:%d:%s", nodeID, top, source)
	if cached, ok := k.cache.Get(cacheKey); ok {
		return cached.([]string), source, nil
	}

	var node model.MindNode
	if err := k.db.First(&node, "node_id = ?", nodeID).Error; err != nil {
		return nil, source, err
	}

	var words []string
	if source == "ai" {
		tpl := k.cfg.FlowTemplates["keywords_from_labels"]
		words = k.qwen.GenerateKeywords(node.Content, top, tpl, "")
	} else {
		words = FallbackKeywords(node.Content, top)
	}

	k.cache.Set(cacheKey, words, cache.DefaultExpiration)
	return words, source, nil
}
