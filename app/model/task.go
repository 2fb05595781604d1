package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal 判断是否为终态，终态之后任务不再变更
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task 图像生成任务
type Task struct {
	TaskID       string     `gorm:"primaryKey;size:36" json:"task_id"`
	ExternalRef  string     `gorm:"type:text" json:"external_ref,omitempty"`
	Status       TaskStatus `gorm:"size:16;not null;default:'queued';index" json:"status"`
	Progress     float64    `gorm:"not null;default:0" json:"progress"`
	ErrorCode    string     `gorm:"size:32" json:"error_code,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.TaskID == "" {
		t.TaskID = uuid.NewString()
	}
	return nil
}
