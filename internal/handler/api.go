package handler

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pactlog/internal/event"
	"github.com/pactlog/internal/realtime"
	"github.com/pactlog/internal/service"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db        *gorm.DB
	goals     *service.GoalService
	approvals *service.ApprovalService
	partners  *service.PartnerService
	rewards   *service.RewardService
	stats     *service.ProgressStatsService
	settings  *service.SystemSettingService
	hub       *realtime.Hub
	log       *zap.SugaredLogger
}

// NewAPI constructs a handler set with shared services. The hub is
// optional; when present it receives a snapshot after every committed
// goal mutation.
func NewAPI(gdb *gorm.DB, log *zap.SugaredLogger, events event.Publisher, hub *realtime.Hub, approvalDeadline time.Duration) *API {
	settings := service.NewSystemSettingService(gdb)
	goals := service.NewGoalService(gdb, settings, events, log, approvalDeadline)
	approvals := service.NewApprovalService(gdb, events, log)
	partners := service.NewPartnerService(gdb, log)

	if hub != nil {
		goals.SetNotifier(hub)
		approvals.SetNotifier(hub)
		partners.SetNotifier(hub)
	}

	return &API{
		db:        gdb,
		goals:     goals,
		approvals: approvals,
		partners:  partners,
		rewards:   service.NewRewardService(gdb, log),
		stats:     service.NewProgressStatsService(gdb),
		settings:  settings,
		hub:       hub,
		log:       log,
	}
}

// DB exposes the underlying gorm instance for test seeding.
func (a *API) DB() *gorm.DB {
	return a.db
}
