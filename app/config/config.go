package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Qwen     QwenConfig     `mapstructure:"qwen"`
	ZImage   ZImageConfig   `mapstructure:"zimage"`
	Media    MediaConfig    `mapstructure:"media"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Tree     map[string]any `mapstructure:"cinematic_tree"` // 构图发散树，缺省时使用内置树
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

// QwenConfig 文本扩写服务配置，BaseURL 或 APIKey 为空时走本地降级逻辑
type QwenConfig struct {
	BaseURL        string            `mapstructure:"base_url"`
	APIKey         string            `mapstructure:"api_key"`
	Model          string            `mapstructure:"model"`
	RolePrompt     string            `mapstructure:"role_prompt"`
	NegativePrompt string            `mapstructure:"negative_prompt"`
	Timeout        int               `mapstructure:"timeout"`    // 秒
	FullByAI       bool              `mapstructure:"full_by_ai"` // 关键词是否由 AI 生成
	FlowTemplates  map[string]string `mapstructure:"flow_templates"`
}

// ZImageConfig 图像生成服务配置，未配置时本地合成占位图
type ZImageConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // 秒
}

type MediaConfig struct {
	Root string `mapstructure:"root"` // 媒体文件根目录
}

type CleanupConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // cron 表达式
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

func Load() *Config {
	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "3002")

	viper.SetDefault("database.path", "data/cinemind.db")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// 文本扩写默认配置
	viper.SetDefault("qwen.model", "qwen-max")
	viper.SetDefault("qwen.role_prompt",
		"You are an expert AI image generation prompt engineer. Produce Chinese and English prompts and top keywords.")
	viper.SetDefault("qwen.negative_prompt", "文字，水印，签名，模糊，重影，低对比度，畸形肢体")
	viper.SetDefault("qwen.timeout", 30)
	viper.SetDefault("qwen.full_by_ai", false)

	// 图像生成默认配置
	viper.SetDefault("zimage.timeout", 30)

	viper.SetDefault("media.root", "data/media")

	viper.SetDefault("cleanup.enabled", true)
	viper.SetDefault("cleanup.schedule", "0 3 * * *")
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.Media.Root == "" {
		return fmt.Errorf("媒体根目录未设置")
	}
	return nil
}
