package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AppConfig 汇总运行目标引擎所需的基础配置。
type AppConfig struct {
	ListenAddr            string
	Port                  string
	DatabasePath          string
	SessionSecret         string
	GinMode               string
	LogMode               string
	RedisAddr             string
	RedisChannel          string
	ApprovalDeadlineHours int
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	databasePath := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if databasePath == "" {
		databasePath = "pactlog.db"
	}

	sessionSecret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if sessionSecret == "" {
		sessionSecret = "pactlog-dev-secret"
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))
	if ginMode == "" {
		ginMode = "release"
	}

	logMode := strings.TrimSpace(os.Getenv("LOG_MODE"))
	if logMode == "" {
		logMode = "dev"
	}

	redisAddr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))

	redisChannel := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if redisChannel == "" {
		redisChannel = "goal-events"
	}

	// 审批截止时长，超时后由下一次读取触发自动通过
	deadlineHours := 72
	if raw := strings.TrimSpace(os.Getenv("APPROVAL_DEADLINE_HOURS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			deadlineHours = parsed
		}
	}

	return AppConfig{
		ListenAddr:            listenAddr,
		Port:                  port,
		DatabasePath:          databasePath,
		SessionSecret:         sessionSecret,
		GinMode:               ginMode,
		LogMode:               logMode,
		RedisAddr:             redisAddr,
		RedisChannel:          redisChannel,
		ApprovalDeadlineHours: deadlineHours,
	}
}
