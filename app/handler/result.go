package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
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

// ResultHandler 生成结果处理器
type ResultHandler struct {
	db  *gorm.DB
	cfg *config.Config
	log *logger.Logger
}

// NewResultHandler 创建生成结果处理器
func NewResultHandler(db *gorm.DB, cfg *config.Config, log *logger.Logger) *ResultHandler {
	return &ResultHandler{db: db, cfg: cfg, log: log}
}

// Get 查询单个生成结果。
// Accept 头指明图像类型且文件存在时直接回图，否则返回元数据。
func (h *ResultHandler) Get(c *gin.Context) {
	var graph model.GraphResult
	if err := h.db.First(&graph, "graph_id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, errcode.NotFound, "result not found")
		} else {
			respondError(c, http.StatusInternalServerError, errcode.DBError, "query result failed")
		}
		return
	}

	if strings.Contains(c.GetHeader("Accept"), "image/") && graph.StoragePath != "" {
		fp := h.mediaFilePath(graph.StoragePath)
		if _, err := os.Stat(fp); err == nil {
			mime := graph.MimeType
			if mime == "" {
				mime = "image/jpeg"
			}
			c.Header("Content-Type", mime)
			c.File(fp)
			return
		}
	}

	var params map[string]any
	_ = json.Unmarshal([]byte(graph.Params), &params)
	if params == nil {
		params = map[string]any{}
	}

	respondOK(c, gin.H{
		"graph_id":       graph.GraphID,
		"task_id":        graph.TaskID,
		"storage_path":   graph.StoragePath,
		"thumbnail_path": graph.ThumbnailPath,
		"prompts":        gin.H{"zh": graph.PromptZH, "en": graph.PromptEN},
		"params":         params,
		"generated_at":   graph.GeneratedAt.UTC().Format(time.RFC3339),
	}, "")
}

// Gallery 分页列出生成结果，默认按生成时间倒序
func (h *ResultHandler) Gallery(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	sort := c.DefaultQuery("sort", "createTime,desc")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	q := h.db.Model(&model.GraphResult{})
	switch sort {
	case "createTime,asc":
		q = q.Order("generated_at ASC")
	default:
		q = q.Order("generated_at DESC")
	}

	var total int64
	q.Count(&total)

	var results []model.GraphResult
	if err := q.Offset((page - 1) * pageSize).Limit(pageSize).Find(&results).Error; err != nil {
		respondError(c, http.StatusInternalServerError, errcode.DBError, "list results failed")
		return
	}

	items := make([]gin.H, 0, len(results))
	for i := range results {
		items = append(items, galleryItem(&results[i]))
	}

	respondOK(c, gin.H{
		"items":      items,
		"page":       page,
		"pageSize":   pageSize,
		"total":      total,
		"totalPages": (total + int64(pageSize) - 1) / int64(pageSize),
	}, "")
}

// galleryItem 组装画廊条目，参数里合并用户原始选择快照
func galleryItem(graph *model.GraphResult) gin.H {
	params := map[string]any{}
	_ = json.Unmarshal([]byte(graph.Params), &params)

	dimensions := "Unknown"
	if w, wok := params["width"]; wok {
		if h, hok := params["height"]; hok {
			dimensions = trimNumber(w) + "x" + trimNumber(h)
		}
	} else if res, ok := params["resolution"].(string); ok {
		dimensions = res
	}

	if graph.UserSelection != "" {
		var selection map[string]any
		if err := json.Unmarshal([]byte(graph.UserSelection), &selection); err == nil {
			for k, v := range selection {
				params[k] = v
			}
		}
	}

	thumbURL := graph.ThumbnailPath
	if thumbURL == "" {
		thumbURL = graph.StoragePath
	}

	return gin.H{
		"id":         graph.GraphID,
		"thumbUrl":   thumbURL,
		"url":        graph.StoragePath,
		"createTime": graph.GeneratedAt.UTC().Format(time.RFC3339),
		"dimensions": dimensions,
		"prompt":     graph.PromptZH,
		"params":     params,
	}
}

// trimNumber 把 JSON 数值格式化为不带小数位的字符串
func trimNumber(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.Itoa(int(n))
	case string:
		return n
	default:
		return ""
	}
}

// mediaFilePath 把 /media 前缀的公开地址换算回落盘路径
func (h *ResultHandler) mediaFilePath(publicURL string) string {
	rel := strings.TrimPrefix(publicURL, "/media/")
	return filepath.Join(h.cfg.Media.Root, filepath.FromSlash(rel))
}
