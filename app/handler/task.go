package handler

import (
	"errors"
	"net/http"
	"time"

	"cinemind/app/errcode"
	"cinemind/app/logger"
	"cinemind/app/model"
	"cinemind/app/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// TaskHandler 生成任务处理器
type TaskHandler struct {
	svc *service.TaskService
	db  *gorm.DB
	log *logger.Logger
}

// NewTaskHandler 创建生成任务处理器
func NewTaskHandler(svc *service.TaskService, db *gorm.DB, log *logger.Logger) *TaskHandler {
	return &TaskHandler{svc: svc, db: db, log: log}
}

// Generate 接收生成请求，校验通过后入队并立即返回任务标识
func (h *TaskHandler) Generate(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		respondError(c, http.StatusOK, errcode.InvalidParam, "invalid generate payload")
		return
	}

	payload := model.NormalizeGeneratePayload(raw)
	if err := payload.Validate(); err != nil {
		respondError(c, http.StatusOK, errcode.InvalidParam, "invalid generate payload")
		return
	}

	task, err := h.svc.Submit(payload)
	if err != nil {
		respondError(c, http.StatusInternalServerError, errcode.DBError, "enqueue task failed")
		return
	}

	respondOK(c, gin.H{
		"task_id":   task.TaskID,
		"queued_at": time.Now().UTC().Format(time.RFC3339),
	}, "accepted")
}

// Status 查询任务当前状态和进度
func (h *TaskHandler) Status(c *gin.Context) {
	taskID := c.Param("id")

	var task model.Task
	if err := h.db.First(&task, "task_id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, errcode.NotFound, "task not found")
			return
		}
		respondError(c, http.StatusInternalServerError, errcode.DBError, "query task failed")
		return
	}

	respondOK(c, gin.H{
		"status":        task.Status,
		"progress":      task.Progress,
		"error_code":    task.ErrorCode,
		"error_message": task.ErrorMessage,
	}, "")
}
