package main

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pactlog/internal/config"
	"github.com/pactlog/internal/db"
	"github.com/pactlog/internal/event"
	"github.com/pactlog/internal/handler"
	"github.com/pactlog/internal/logging"
	"github.com/pactlog/internal/realtime"
	"github.com/pactlog/internal/router"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		logger.Fatalw("failed to initialize database", "error", err)
	}

	// 事件发布：配置了 Redis 时走频道，否则仅写日志
	var events event.Publisher = event.NewLogPublisher(logger)
	if cfg.RedisAddr != "" {
		redisPub, err := event.NewRedisPublisher(cfg.RedisAddr, cfg.RedisChannel, logger)
		if err != nil {
			logger.Warnw("redis unavailable, falling back to log publisher",
				"addr", cfg.RedisAddr, "error", err)
		} else {
			defer redisPub.Close()
			events = redisPub
		}
	}

	hub := realtime.NewHub(logger)
	deadline := time.Duration(cfg.ApprovalDeadlineHours) * time.Hour
	api := handler.NewAPI(db.DB, logger, events, hub, deadline)

	// 设置并运行 Gin 服务器
	gin.SetMode(cfg.GinMode)
	r := router.SetupRouter(api, cfg.SessionSecret)
	logger.Infow("server starting", "addr", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		logger.Fatalw("failed to run server", "error", err)
	}
}
