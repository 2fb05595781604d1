package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cinemind/app/config"
	"cinemind/app/errcode"
	"cinemind/app/logger"
	"cinemind/app/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// NodeHandler 思维节点处理器
type NodeHandler struct {
	db  *gorm.DB
	cfg *config.Config
	log *logger.Logger
}

// NewNodeHandler 创建思维节点处理器
func NewNodeHandler(db *gorm.DB, cfg *config.Config, log *logger.Logger) *NodeHandler {
	return &NodeHandler{db: db, cfg: cfg, log: log}
}

// NodeCreateRequest 创建节点请求
type NodeCreateRequest struct {
	Content string `json:"content"`
	Status  *int   `json:"status"`
}

// NodeUpdateRequest 更新节点请求，version 用作乐观并发控制
type NodeUpdateRequest struct {
	Content *string `json:"content"`
	Status  *int    `json:"status"`
	Version *int64  `json:"version"`
}

// nodeOut 节点响应体
func nodeOut(n *model.MindNode) gin.H {
	return gin.H{
		"node_id":    n.NodeID,
		"content":    n.Content,
		"created_at": n.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": n.UpdatedAt.UTC().Format(time.RFC3339),
		"status":     n.Status,
	}
}

// Create 创建思维节点
func (h *NodeHandler) Create(c *gin.Context) {
	var req NodeCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		respondError(c, http.StatusOK, errcode.InvalidParam, "content invalid")
		return
	}

	status := model.NodeStatusActive
	if req.Status != nil {
		status = *req.Status
	}

	node := model.MindNode{Content: strings.TrimSpace(req.Content), Status: status}
	if err := h.db.Create(&node).Error; err != nil {
		respondError(c, http.StatusInternalServerError, errcode.DBError, "create node failed")
		return
	}
	respondOK(c, nodeOut(&node), "")
}

// Get 查询单个节点，命中 If-None-Match 时返回 304
func (h *NodeHandler) Get(c *gin.Context) {
	node, ok := h.findNode(c)
	if !ok {
		return
	}

	etag := computeETag(node.NodeID + ":" + node.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Header("ETag", etag)
	respondOK(c, nodeOut(node), "")
}

// Update 更新节点内容或状态。
// 请求携带 version 时与当前更新时间比对，不一致返回冲突。
func (h *NodeHandler) Update(c *gin.Context) {
	node, ok := h.findNode(c)
	if !ok {
		return
	}

	var req NodeUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusOK, errcode.InvalidParam, "invalid update payload")
		return
	}

	if req.Version != nil && *req.Version != node.Version() {
		respondError(c, http.StatusConflict, errcode.Conflict, "version conflict")
		return
	}

	if req.Content != nil {
		node.Content = *req.Content
	}
	if req.Status != nil {
		node.Status = *req.Status
	}
	node.UpdatedAt = time.Now()

	if err := h.db.Save(node).Error; err != nil {
		respondError(c, http.StatusInternalServerError, errcode.DBError, "update node failed")
		return
	}
	respondOK(c, nodeOut(node), "")
}

// Delete 软删除节点，置 status 为 0
func (h *NodeHandler) Delete(c *gin.Context) {
	node, ok := h.findNode(c)
	if !ok {
		return
	}

	node.Status = model.NodeStatusDeleted
	node.UpdatedAt = time.Now()
	if err := h.db.Save(node).Error; err != nil {
		respondError(c, http.StatusInternalServerError, errcode.DBError, "delete node failed")
		return
	}
	respondOK(c, gin.H{"deleted": true}, "")
}

// List 分页列出节点，支持按状态过滤和内容模糊搜索
func (h *NodeHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	status, _ := strconv.Atoi(c.DefaultQuery("status", "1"))
	query := c.Query("query")

	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	q := h.db.Model(&model.MindNode{})
	if status == model.NodeStatusActive || status == model.NodeStatusDeleted {
		q = q.Where("status = ?", status)
	}
	if query != "" {
		q = q.Where("content LIKE ?", "%"+query+"%")
	}

	var total int64
	q.Count(&total)

	var nodes []model.MindNode
	if err := q.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&nodes).Error; err != nil {
		respondError(c, http.StatusInternalServerError, errcode.DBError, "list nodes failed")
		return
	}

	items := make([]gin.H, 0, len(nodes))
	for i := range nodes {
		items = append(items, nodeOut(&nodes[i]))
	}
	respondOK(c, gin.H{"page": page, "size": size, "total": total, "items": items}, "")
}

// Tree 返回构图发散树，配置缺省时使用内置树
func (h *NodeHandler) Tree(c *gin.Context) {
	if len(h.cfg.Tree) > 0 {
		respondOK(c, h.cfg.Tree, "")
		return
	}
	respondOK(c, gin.H{
		"label": "起点",
		"desc":  "电影构图发散树的根节点",
		"children": []gin.H{
			{"label": "科幻"},
			{"label": "动作电影"},
			{"label": "浪漫电影"},
		},
	}, "")
}

// findNode 按路径参数查找节点，未找到时写入响应并返回 false
func (h *NodeHandler) findNode(c *gin.Context) (*model.MindNode, bool) {
	var node model.MindNode
	if err := h.db.First(&node, "node_id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, errcode.NotFound, "node not found")
		} else {
			respondError(c, http.StatusInternalServerError, errcode.DBError, "query node failed")
		}
		return nil, false
	}
	return &node, true
}

// computeETag 基于内容哈希生成弱校验标记
func computeETag(s string) string {
	sum := sha256.Sum256([]byte(s))
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}
