package main

import (
	"fmt"
	"log"
	"time"

	"github.com/pactlog/internal/config"
	"github.com/pactlog/internal/db"
	"github.com/pactlog/internal/event"
	"github.com/pactlog/internal/logging"
	"github.com/pactlog/internal/service"
)

// 演示数据生成器
func main() {
	cfg := config.Load()
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	logger, err := logging.New("dev")
	if err != nil {
		log.Fatal("日志初始化失败:", err)
	}
	defer logger.Sync()

	var count int64
	db.DB.Model(&db.Goal{}).Count(&count)
	if count > 0 {
		fmt.Println("目标已存在，跳过创建")
		return
	}

	fmt.Println("开始生成演示数据...")

	events := event.NewLogPublisher(logger)
	settings := service.NewSystemSettingService(db.DB)
	goals := service.NewGoalService(db.DB, settings, events, logger, 72*time.Hour)
	approvals := service.NewApprovalService(db.DB, events, logger)
	partners := service.NewPartnerService(db.DB, logger)

	now := time.Now()

	// 自由目标：创建即生效，直接打一次卡
	free, err := goals.Create(service.GoalInput{
		UserID:          "alice",
		Title:           "每周晨跑",
		TargetCount:     3,
		SessionsPerWeek: 2,
	}, now)
	if err != nil {
		log.Fatal("创建自由目标失败:", err)
	}
	if _, err := goals.TickSession(service.TickInput{
		GoalID: free.ID, ActorID: "alice", Source: "seed",
	}, now); err != nil {
		log.Fatal("打卡失败:", err)
	}

	// 赞助目标：等待确认，由赞助人直接通过
	sponsored, err := goals.Create(service.GoalInput{
		UserID:          "bob",
		Title:           "背单词",
		SponsorID:       "carol",
		CategoryID:      "bookstore",
		TargetCount:     4,
		SessionsPerWeek: 3,
	}, now)
	if err != nil {
		log.Fatal("创建赞助目标失败:", err)
	}
	if _, err := approvals.Approve(sponsored.ID, "carol", "加油", now); err != nil {
		log.Fatal("确认目标失败:", err)
	}

	// 伙伴目标对：互链演示
	pairA, err := goals.Create(service.GoalInput{
		UserID:          "dave",
		Title:           "一起健身",
		TargetCount:     2,
		SessionsPerWeek: 2,
	}, now)
	if err != nil {
		log.Fatal("创建伙伴目标失败:", err)
	}
	pairB, err := goals.Create(service.GoalInput{
		UserID:          "erin",
		Title:           "一起健身",
		TargetCount:     2,
		SessionsPerWeek: 2,
	}, now)
	if err != nil {
		log.Fatal("创建伙伴目标失败:", err)
	}
	if err := partners.Link(pairA.ID, pairB.ID); err != nil {
		log.Fatal("互链失败:", err)
	}

	fmt.Println("演示数据生成完成！")
	fmt.Println("alice: 自由目标（已打卡一次）")
	fmt.Println("bob: 赞助目标（carol 已确认）")
	fmt.Println("dave/erin: 伙伴目标对（已互链）")
}
