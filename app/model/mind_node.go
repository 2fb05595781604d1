package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	NodeStatusDeleted = 0 // 软删除
	NodeStatusActive  = 1
)

// MindNode 思维节点，短文本片段
type MindNode struct {
	NodeID    string    `gorm:"primaryKey;size:36" json:"node_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Status    int       `gorm:"not null;default:1;index" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *MindNode) BeforeCreate(tx *gorm.DB) error {
	if n.NodeID == "" {
		n.NodeID = uuid.NewString()
	}
	return nil
}

// Version 基于更新时间的乐观版本号
func (n *MindNode) Version() int64 {
	return n.UpdatedAt.Unix()
}
