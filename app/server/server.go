package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"cinemind/app/config"
	"cinemind/app/database"
	"cinemind/app/handler"
	"cinemind/app/logger"
	"cinemind/app/service"
	"cinemind/app/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config *config.Config
	Logger *logger.Logger

	gin  *gin.Engine
	http *http.Server

	hub            *ws.Hub
	taskService    *service.TaskService
	cleanupService *service.CleanupService
}

// New 创建一个新的 Server 实例
func New(cfg *config.Config, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "If-None-Match"}
	corsConfig.AllowWebSockets = true
	router.Use(cors.New(corsConfig))

	db := database.GetDB()
	hub := ws.NewHub(log)
	qwen := service.NewQwenClient(cfg.Qwen, log)
	zimg := service.NewZImageClient(cfg.ZImage, cfg.Media.Root, log)
	taskService := service.NewTaskService(db, log, qwen, zimg, hub)
	keywordService := service.NewKeywordService(db, qwen, cfg.Qwen, log)
	cleanupService := service.NewCleanupService(db, cfg.Cleanup, log)

	s := &Server{
		Config: cfg,
		Logger: log,
		gin:    router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		hub:            hub,
		taskService:    taskService,
		cleanupService: cleanupService,
	}

	s.setupRoutes(qwen, keywordService)

	return s
}

// Start 启动服务器
func (s *Server) Start() error {
	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)

	// 确保媒体根目录存在后再挂载静态服务
	if err := os.MkdirAll(s.Config.Media.Root, 0755); err != nil {
		return err
	}

	if err := s.cleanupService.Start(); err != nil {
		return err
	}

	return s.http.ListenAndServe()
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown(ctx context.Context) error {
	s.cleanupService.Stop()

	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes(qwen *service.QwenClient, keywordService *service.KeywordService) {
	db := database.GetDB()

	nodeHandler := handler.NewNodeHandler(db, s.Config, s.Logger)
	nodeAIHandler := handler.NewNodeAIHandler(db, qwen, keywordService, s.Config, s.Logger)
	taskHandler := handler.NewTaskHandler(s.taskService, db, s.Logger)
	resultHandler := handler.NewResultHandler(db, s.Config, s.Logger)
	mediaHandler := handler.NewMediaHandler(s.Config, s.Logger)
	healthHandler := handler.NewHealthHandler()
	wsHandler := handler.NewWSHandler(s.hub, s.Logger)

	// 思维节点
	nodes := s.gin.Group("/nodes")
	{
		nodes.POST("", nodeHandler.Create)
		nodes.GET("", nodeHandler.List)
		nodes.GET("/tree", nodeHandler.Tree)
		nodes.POST("/ai-suggest", nodeAIHandler.AISuggest)
		nodes.POST("/actions/step-suggest", nodeAIHandler.StepSuggest)
		nodes.GET("/:id", nodeHandler.Get)
		nodes.PUT("/:id", nodeHandler.Update)
		nodes.DELETE("/:id", nodeHandler.Delete)
		nodes.GET("/:id/keywords", nodeAIHandler.Keywords)
		nodes.GET("/:id/ai-content", nodeAIHandler.AIContent)
	}

	// 生成任务
	tasks := s.gin.Group("/tasks")
	{
		tasks.POST("/generate", taskHandler.Generate)
		tasks.GET("/:id", taskHandler.Status)
	}
	// 历史前端使用的别名路由
	s.gin.POST("/generate", taskHandler.Generate)

	// 生成结果
	results := s.gin.Group("/results")
	{
		results.GET("/:id", resultHandler.Get)
	}
	s.gin.GET("/api/media", resultHandler.Gallery)

	// 媒体目录
	media := s.gin.Group("/media")
	{
		media.GET("/tree", mediaHandler.Tree)
		media.GET("/files", mediaHandler.Files)
		media.GET("/file-meta/:id", mediaHandler.FileMeta)
	}
	// 静态媒体文件
	s.gin.Static("/media/images", s.Config.Media.Root+"/images")
	s.gin.Static("/media/thumbs", s.Config.Media.Root+"/thumbs")

	s.gin.GET("/health", healthHandler.Health)

	// 任务事件长连接
	s.gin.GET("/ws/tasks", wsHandler.Tasks)
}

// requestLogger 请求日志中间件
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Infof("[REQ] %s %s %d %v", c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
