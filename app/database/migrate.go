package database

import "cinemind/app/model"

func AutoMigrate() error {
	// 自动迁移表结构
	return DB.AutoMigrate(
		&model.MindNode{},
		&model.Task{},
		&model.GraphResult{},
		&model.AppConfig{},
	)
}
