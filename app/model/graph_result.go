package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GraphResult 一次成功生成任务的产物，创建后不再变更
type GraphResult struct {
	GraphID        string    `gorm:"primaryKey;size:36" json:"graph_id"`
	TaskID         string    `gorm:"size:36;index" json:"task_id"`
	RelatedNodes   string    `gorm:"type:text;not null" json:"related_nodes"`
	Params         string    `gorm:"type:text;not null" json:"params"`
	UserSelection  string    `gorm:"type:text" json:"user_selection,omitempty"`
	PromptZH       string    `gorm:"type:text" json:"prompt_zh"`
	PromptEN       string    `gorm:"type:text" json:"prompt_en"`
	StoragePath    string    `gorm:"type:text;not null" json:"storage_path"`
	ThumbnailPath  string    `gorm:"type:text" json:"thumbnail_path"`
	MimeType       string    `gorm:"size:32" json:"mime_type"`
	SizeBytes      int64     `json:"size_bytes"`
	ChecksumSHA256 string    `gorm:"size:64" json:"checksum_sha256,omitempty"`
	GeneratedAt    time.Time `gorm:"not null" json:"generated_at"`
}

func (g *GraphResult) BeforeCreate(tx *gorm.DB) error {
	if g.GraphID == "" {
		g.GraphID = uuid.NewString()
	}
	return nil
}
