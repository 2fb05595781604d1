package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cinemind/app/config"
	"cinemind/app/errcode"
	"cinemind/app/logger"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// MediaHandler 媒体目录处理器，只读文件系统视图
type MediaHandler struct {
	cfg       *config.Config
	log       *logger.Logger
	metaCache *cache.Cache
}

// NewMediaHandler 创建媒体目录处理器
func NewMediaHandler(cfg *config.Config, log *logger.Logger) *MediaHandler {
	return &MediaHandler{
		cfg:       cfg,
		log:       log,
		metaCache: cache.New(time.Minute, 5*time.Minute),
	}
}

// Tree 返回媒体目录结构
func (h *MediaHandler) Tree(c *gin.Context) {
	mediaType := c.Query("type")
	date := c.Query("date")

	if mediaType == "" {
		respondOK(c, gin.H{
			"name": "media",
			"path": "/media",
			"type": "dir",
			"children": []gin.H{
				{"name": "images", "path": "/media/images", "type": "dir"},
				{"name": "thumbs", "path": "/media/thumbs", "type": "dir"},
			},
		}, "")
		return
	}

	if mediaType != "images" && mediaType != "thumbs" {
		respondOK(c, gin.H{"name": mediaType, "path": "/media/" + mediaType, "type": "dir", "children": []gin.H{}}, "")
		return
	}

	publicPath := "/media/" + mediaType
	if date != "" {
		if dt, err := time.Parse("2006-01-02", date); err == nil {
			publicPath += "/" + dt.Format("2006/01/02")
		}
	}
	respondOK(c, gin.H{"name": filepath.Base(publicPath), "path": publicPath, "type": "dir"}, "")
}

// Files 列出目录下的媒体文件
func (h *MediaHandler) Files(c *gin.Context) {
	dir := c.Query("dir")
	if dir == "" {
		respondError(c, http.StatusOK, errcode.InvalidParam, "dir required")
		return
	}

	rel := strings.TrimPrefix(dir, "/media/")
	// 拒绝越出媒体根目录的路径
	rel = filepath.Clean(filepath.FromSlash(rel))
	if strings.HasPrefix(rel, "..") {
		respondError(c, http.StatusOK, errcode.InvalidParam, "invalid dir")
		return
	}
	base := filepath.Join(h.cfg.Media.Root, rel)

	items := []gin.H{}
	entries, err := os.ReadDir(base)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			publicPath := "/media/" + filepath.ToSlash(filepath.Join(rel, entry.Name()))
			items = append(items, gin.H{
				"name":      entry.Name(),
				"path":      publicPath,
				"url":       publicPath,
				"mimeType":  "image/jpeg",
				"sizeBytes": info.Size(),
				"createdAt": info.ModTime().UTC().Format(time.RFC3339),
			})
		}
	}
	respondOK(c, items, "")
}

// FileMeta 按图像标识查找文件元数据，结果短暂缓存
func (h *MediaHandler) FileMeta(c *gin.Context) {
	imageID := c.Param("id")

	if cached, ok := h.metaCache.Get(imageID); ok {
		respondOK(c, cached, "")
		return
	}

	root := h.cfg.Media.Root
	var meta gin.H
	for _, sub := range []string{"images", "thumbs"} {
		_ = filepath.WalkDir(filepath.Join(root, sub), func(path string, d os.DirEntry, err error) error {
			if err != nil || meta != nil || d.IsDir() {
				return nil
			}
			if !strings.HasPrefix(d.Name(), imageID) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			meta = gin.H{
				"name":      d.Name(),
				"path":      "/media/" + filepath.ToSlash(rel),
				"mimeType":  "image/jpeg",
				"sizeBytes": info.Size(),
				"createdAt": info.ModTime().UTC().Format(time.RFC3339),
			}
			return filepath.SkipAll
		})
		if meta != nil {
			break
		}
	}

	if meta == nil {
		respondOK(c, gin.H{}, "")
		return
	}
	h.metaCache.Set(imageID, meta, cache.DefaultExpiration)
	respondOK(c, meta, "")
}
