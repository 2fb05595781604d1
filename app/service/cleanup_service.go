package service

import (
	"time"

	"cinemind/app/config"
	"cinemind/app/logger"
	"cinemind/app/model"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// CleanupService 定期清理历史任务行。
// 已完成任务保留 7 天，失败任务保留 30 天。
type CleanupService struct {
	db   *gorm.DB
	cfg  config.CleanupConfig
	log  *logger.Logger
	cron *cron.Cron
}

// NewCleanupService 创建清理服务
func NewCleanupService(db *gorm.DB, cfg config.CleanupConfig, log *logger.Logger) *CleanupService {
	return &CleanupService{db: db, cfg: cfg, log: log, cron: cron.New()}
}

// Start 注册定时任务并启动调度器
func (c *CleanupService) Start() error {
	if !c.cfg.Enabled {
		c.log.Infof("任务清理已禁用")
		return nil
	}
	if _, err := c.cron.AddFunc(c.cfg.Schedule, c.CleanupOldTasks); err != nil {
		return err
	}
	c.cron.Start()
	c.log.Infof("任务清理已启动: schedule=%s", c.cfg.Schedule)
	return nil
}

// Stop 停止调度器
func (c *CleanupService) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// CleanupOldTasks 删除超期的终态任务行
func (c *CleanupService) CleanupOldTasks() {
	completedCutoff := time.Now().AddDate(0, 0, -7)
	result := c.db.Where("status = ? AND updated_at < ?", model.TaskStatusCompleted, completedCutoff).
		Delete(&model.Task{})
	if result.Error != nil {
		c.log.Errorf("清理已完成任务失败: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		c.log.Infof("清理了 %d 个已完成的任务（超过7天）", result.RowsAffected)
	}

	failedCutoff := time.Now().AddDate(0, 0, -30)
	result = c.db.Where("status = ? AND updated_at < ?", model.TaskStatusFailed, failedCutoff).
		Delete(&model.Task{})
	if result.Error != nil {
		c.log.Errorf("清理失败任务失败: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		c.log.Infof("清理了 %d 个失败的任务（超过30天）", result.RowsAffected)
	}
}
