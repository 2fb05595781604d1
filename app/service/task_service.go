package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cinemind/app/errcode"
	"cinemind/app/logger"
	"cinemind/app/model"

	"gorm.io/gorm"
)

// TaskEvent 任务生命周期事件，经通知器推送给订阅连接
type TaskEvent struct {
	Type         string      `json:"type"`
	TaskID       string      `json:"task_id"`
	Progress     float64     `json:"progress"`
	Position     int         `json:"position,omitempty"`
	ImageID      string      `json:"image_id,omitempty"`
	ImageURL     string      `json:"image_url,omitempty"`
	ThumbnailURL string      `json:"thumbnail_url,omitempty"`
	Error        *EventError `json:"error,omitempty"`
}

// EventError 失败事件携带的结构化错误
type EventError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Notifier 按任务标识把事件广播给订阅者
type Notifier interface {
	Broadcast(taskID string, event TaskEvent)
}

// TaskService 任务编排器。
// Submit 只落库并调度，流水线在后台独立于请求运行；
// 每次提交恰好调度一次后台执行。
type TaskService struct {
	db       *gorm.DB
	log      *logger.Logger
	qwen     *QwenClient
	zimg     *ZImageClient
	notifier Notifier
}

// NewTaskService 创建任务编排器
func NewTaskService(db *gorm.DB, log *logger.Logger, qwen *QwenClient, zimg *ZImageClient, notifier Notifier) *TaskService {
	return &TaskService{db: db, log: log, qwen: qwen, zimg: zimg, notifier: notifier}
}

// Submit 创建 queued 任务行并调度一次后台执行，立即返回
func (s *TaskService) Submit(payload *model.GeneratePayload) (*model.Task, error) {
	task := &model.Task{
		ExternalRef: payload.TaskID,
		Status:      model.TaskStatusQueued,
	}
	if err := s.db.Create(task).Error; err != nil {
		s.log.Errorf("创建任务失败: %v", err)
		return nil, err
	}

	s.log.Infof("任务已入队: TaskID=%s", task.TaskID)
	go s.Run(task.TaskID, payload)

	return task, nil
}

// Run 驱动一次任务的完整流水线：拼接 → 扩写 → 生成 → 落库。
// 每个阶段前后提交行变更并广播进度事件；
// 任何未吸收的错误把任务置为 failed 并广播一次 failed 事件。
func (s *TaskService) Run(taskID string, payload *model.GeneratePayload) {
	var task model.Task
	if err := s.db.First(&task, "task_id = ?", taskID).Error; err != nil {
		// 任务行在调度与执行之间被删除时静默中止，不广播
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warnf("任务不存在，跳过执行: TaskID=%s", taskID)
		} else {
			s.log.Errorf("读取任务失败: TaskID=%s, 错误: %v", taskID, err)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("任务执行崩溃: TaskID=%s, panic: %v", taskID, r)
			s.markFailed(&task, errcode.DBError, fmt.Errorf("internal error: %v", r))
		}
	}()

	// 入队事件携带当前排队位置
	var position int64
	s.db.Model(&model.Task{}).
		Where("status = ? AND created_at <= ?", model.TaskStatusQueued, task.CreatedAt).
		Count(&position)
	s.broadcast(task.TaskID, TaskEvent{Type: "queued", TaskID: task.TaskID, Position: int(position)})

	s.setProgress(&task, 5)

	preset := BuildPrompts(payload)
	s.setProgress(&task, 20)

	// 扩写失败在客户端内部降级为种子文本，不会使任务失败
	prompts := s.qwen.GeneratePrompts(preset, PromptOptions{})
	s.setProgress(&task, 40)

	params := GenerationParams{Ratio: payload.Ratio, Resolution: payload.Resolution}
	params.Width, params.Height = payload.Dimensions()
	s.setProgress(&task, 50)

	// 图像生成失败总是致命
	result, err := s.zimg.GenerateImage(prompts, params)
	if err != nil {
		s.log.Errorf("图像生成失败: TaskID=%s, 错误: %v", task.TaskID, err)
		s.markFailed(&task, errcode.ExternalService, err)
		return
	}
	s.setProgress(&task, 90)

	graph, err := s.saveResult(&task, payload, prompts, params, result)
	if err != nil {
		s.log.Errorf("保存生成结果失败: TaskID=%s, 错误: %v", task.TaskID, err)
		s.markFailed(&task, errcode.DBError, err)
		return
	}

	now := time.Now()
	task.Status = model.TaskStatusCompleted
	task.Progress = 100
	task.UpdatedAt = now
	if err := s.db.Model(&task).Updates(map[string]any{
		"status":     model.TaskStatusCompleted,
		"progress":   100,
		"updated_at": now,
	}).Error; err != nil {
		s.log.Errorf("更新任务终态失败: TaskID=%s, 错误: %v", task.TaskID, err)
	}

	s.broadcast(task.TaskID, TaskEvent{
		Type:         "completed",
		TaskID:       task.TaskID,
		Progress:     100,
		ImageID:      result.ImageID,
		ImageURL:     result.ImageURL,
		ThumbnailURL: result.ThumbnailURL,
	})
	s.log.Infof("任务完成: TaskID=%s, GraphID=%s, ImageID=%s", task.TaskID, graph.GraphID, result.ImageID)
}

// saveResult 写入生成结果行，结果通过 task_id 关联到任务
func (s *TaskService) saveResult(task *model.Task, payload *model.GeneratePayload, prompts Preset, params GenerationParams, result *ImageResult) (*model.GraphResult, error) {
	paramsJSON, err := json.Marshal(map[string]any{
		"ratio":      params.Ratio,
		"resolution": ResolveResolution(params),
		"width":      params.Width,
		"height":     params.Height,
	})
	if err != nil {
		return nil, err
	}

	selection := ""
	if payload.Raw != nil {
		if raw, err := json.Marshal(payload.Raw); err == nil {
			selection = string(raw)
		}
	}

	graph := &model.GraphResult{
		TaskID:         task.TaskID,
		RelatedNodes:   "[]",
		Params:         string(paramsJSON),
		UserSelection:  selection,
		PromptZH:       prompts.ZH,
		PromptEN:       prompts.EN,
		StoragePath:    result.ImageURL,
		ThumbnailPath:  result.ThumbnailURL,
		MimeType:       result.MimeType,
		SizeBytes:      result.SizeBytes,
		ChecksumSHA256: result.ChecksumSHA256,
		GeneratedAt:    time.Now().UTC(),
	}
	if err := s.db.Create(graph).Error; err != nil {
		return nil, err
	}
	return graph, nil
}

// setProgress 提交进度检查点并广播 running 事件。
// 进度在单次运行内只增不减。
func (s *TaskService) setProgress(task *model.Task, progress float64) {
	if progress <= task.Progress {
		return
	}
	task.Status = model.TaskStatusRunning
	task.Progress = progress
	if err := s.db.Model(&model.Task{}).Where("task_id = ?", task.TaskID).Updates(map[string]any{
		"status":   model.TaskStatusRunning,
		"progress": progress,
	}).Error; err != nil {
		s.log.Errorf("更新任务进度失败: TaskID=%s, 错误: %v", task.TaskID, err)
	}
	s.broadcast(task.TaskID, TaskEvent{Type: "running", TaskID: task.TaskID, Progress: progress})
}

// markFailed 把任务置为失败终态并广播一次 failed 事件
func (s *TaskService) markFailed(task *model.Task, code int, cause error) {
	if task.Status.IsTerminal() {
		return
	}
	task.Status = model.TaskStatusFailed
	if err := s.db.Model(&model.Task{}).Where("task_id = ?", task.TaskID).Updates(map[string]any{
		"status":        model.TaskStatusFailed,
		"error_code":    fmt.Sprint(code),
		"error_message": cause.Error(),
	}).Error; err != nil {
		s.log.Errorf("更新任务失败状态出错: TaskID=%s, 错误: %v", task.TaskID, err)
	}
	s.broadcast(task.TaskID, TaskEvent{
		Type:     "failed",
		TaskID:   task.TaskID,
		Progress: task.Progress,
		Error:    &EventError{Code: code, Message: cause.Error()},
	})
}

func (s *TaskService) broadcast(taskID string, event TaskEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Broadcast(taskID, event)
}
