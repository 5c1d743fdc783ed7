package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"pybaq-backend/internal/config"
	"pybaq-backend/internal/handler"
	"pybaq-backend/internal/llm"
	"pybaq-backend/internal/queue"
	"pybaq-backend/internal/service"
	"pybaq-backend/internal/storage"
	"pybaq-backend/internal/task"
	"pybaq-backend/pkg/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// 初始化流存储
	store, err := storage.NewRedisStreamStore(cfg.Redis.URL)
	if err != nil {
		logger.Fatalf("流存储初始化失败: %v", err)
	}

	// 初始化任务队列和 worker
	jobQueue, err := queue.New(cfg.Queue.BrokerURL, cfg.Queue.Name)
	if err != nil {
		logger.Fatalf("任务队列初始化失败: %v", err)
	}

	generator := task.NewGenerator(
		store,
		llm.NewClient(cfg.OpenRouter),
		cfg.Cache.InFlightTTL,
		cfg.Cache.TTL,
		cfg.Stream.ClaimTTL,
	)

	worker := queue.NewWorker(jobQueue, cfg.Queue.Concurrency)
	worker.Register(task.JobGenerateResponse, generator.Handle)
	worker.Start()

	// 初始化服务
	chatService := service.NewChatService(cfg.OpenRouter)
	streamService := service.NewStreamService(store, jobQueue, service.StreamOptions{
		BlockTimeout:      cfg.Stream.BlockTimeout,
		InactivityTimeout: cfg.Stream.InactivityTimeout,
		RetryBackoff:      cfg.Stream.RetryBackoff,
	})

	// 初始化处理器
	chatHandler := handler.NewChatHandler(chatService, streamService)

	// 创建路由
	router := setupRouter(cfg, chatHandler)

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// 启动服务器
	go func() {
		logger.Infof("服务器启动在端口 %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待信号优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务器正在关闭...")
	if err := server.Close(); err != nil {
		logger.Errorf("服务器关闭失败: %v", err)
	}
	worker.Stop()
	jobQueue.Close()
	store.Close()
	logger.Info("服务器已关闭")
}

func setupRouter(cfg *config.Config, chatHandler *handler.ChatHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS配置
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// API路由
	chat := router.Group("/chat")
	{
		chat.POST("", chatHandler.Chat)
		chat.POST("/stream", chatHandler.StreamChat)
	}

	return router
}
