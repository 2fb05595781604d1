package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cinemind/app/config"
	"cinemind/app/errcode"
	"cinemind/app/logger"
	"cinemind/app/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.MindNode{}, &model.Task{}, &model.GraphResult{}, &model.AppConfig{}))
	return db
}

func testLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
}

func newNodeRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewNodeHandler(db, &config.Config{}, testLogger())

	r := gin.New()
	r.POST("/nodes", h.Create)
	r.GET("/nodes", h.List)
	r.GET("/nodes/tree", h.Tree)
	r.GET("/nodes/:id", h.Get)
	r.PUT("/nodes/:id", h.Update)
	r.DELETE("/nodes/:id", h.Delete)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, ApiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp ApiResponse
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func createNode(t *testing.T, r *gin.Engine, content string) string {
	t.Helper()
	w, resp := doJSON(t, r, http.MethodPost, "/nodes", gin.H{"content": content}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, resp.Code)
	data := resp.Data.(map[string]any)
	return data["node_id"].(string)
}

func TestNodeCreateAndGet(t *testing.T) {
	r := newNodeRouter(t, newTestDB(t))

	id := createNode(t, r, "科幻夜景")

	w, resp := doJSON(t, r, http.MethodGet, "/nodes/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "科幻夜景", data["content"])
	assert.Equal(t, float64(model.NodeStatusActive), data["status"])
	assert.NotEmpty(t, w.Header().Get("ETag"))
}

func TestNodeCreateRejectsEmptyContent(t *testing.T) {
	r := newNodeRouter(t, newTestDB(t))

	w, resp := doJSON(t, r, http.MethodPost, "/nodes", gin.H{"content": "   "}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, errcode.InvalidParam, resp.Code)
}

func TestNodeGetNotModified(t *testing.T) {
	r := newNodeRouter(t, newTestDB(t))
	id := createNode(t, r, "内容")

	w, _ := doJSON(t, r, http.MethodGet, "/nodes/"+id, nil, nil)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w, _ = doJSON(t, r, http.MethodGet, "/nodes/"+id, nil, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestNodeGetNotFound(t *testing.T) {
	r := newNodeRouter(t, newTestDB(t))

	w, resp := doJSON(t, r, http.MethodGet, "/nodes/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errcode.NotFound, resp.Code)
}

func TestNodeUpdateVersionConflict(t *testing.T) {
	db := newTestDB(t)
	r := newNodeRouter(t, db)
	id := createNode(t, r, "初始内容")

	var node model.MindNode
	require.NoError(t, db.First(&node, "node_id = ?", id).Error)

	// 版本一致时更新成功
	w, resp := doJSON(t, r, http.MethodPut, "/nodes/"+id,
		gin.H{"content": "更新后", "version": node.Version()}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, resp.Code)

	// 携带过期版本被拒绝
	w, resp = doJSON(t, r, http.MethodPut, "/nodes/"+id,
		gin.H{"content": "再次更新", "version": node.Version() - 100}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errcode.Conflict, resp.Code)

	require.NoError(t, db.First(&node, "node_id = ?", id).Error)
	assert.Equal(t, "更新后", node.Content)
}

func TestNodeSoftDelete(t *testing.T) {
	db := newTestDB(t)
	r := newNodeRouter(t, db)
	id := createNode(t, r, "待删除")

	w, resp := doJSON(t, r, http.MethodDelete, "/nodes/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, resp.Code)

	// 行仍然存在，只是状态置 0
	var node model.MindNode
	require.NoError(t, db.First(&node, "node_id = ?", id).Error)
	assert.Equal(t, model.NodeStatusDeleted, node.Status)
}

func TestNodeListFiltersByStatusAndQuery(t *testing.T) {
	db := newTestDB(t)
	r := newNodeRouter(t, db)

	for i := 0; i < 3; i++ {
		createNode(t, r, fmt.Sprintf("夜景素材%d", i))
	}
	deleted := createNode(t, r, "已删除素材")
	_, _ = doJSON(t, r, http.MethodDelete, "/nodes/"+deleted, nil, nil)

	w, resp := doJSON(t, r, http.MethodGet, "/nodes?status=1&query=夜景", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(3), data["total"])
	assert.Len(t, data["items"], 3)
}

func TestNodeTreeFallsBackToBuiltin(t *testing.T) {
	r := newNodeRouter(t, newTestDB(t))

	w, resp := doJSON(t, r, http.MethodGet, "/nodes/tree", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "起点", data["label"])
	assert.NotEmpty(t, data["children"])
}
