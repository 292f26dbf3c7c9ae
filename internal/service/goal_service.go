package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pactlog/internal/cadence"
	"github.com/pactlog/internal/db"
	"github.com/pactlog/internal/event"
)

var (
	// ErrGoalNotFound 在指定目标不存在时返回
	ErrGoalNotFound = errors.New("goal not found")
	// ErrInvalidState 表示命令在当前目标状态下不可用，调用方应刷新视图
	ErrInvalidState = errors.New("command not valid in current goal state")
	// ErrValidation 表示调用方提供的数值违反政策上下限
	ErrValidation = errors.New("validation failed")
	// ErrWeekAlreadyComplete 表示本窗口目标次数已满，客户端不应再提供该操作
	ErrWeekAlreadyComplete = errors.New("week target already complete")
	// ErrApprovalRequired 表示审批未通过前仅允许首个窗口的第一次打卡
	ErrApprovalRequired = errors.New("sponsor approval required before further sessions")
)

// 条款硬性上限：周期数不超过 5，每周次数不超过 7
const (
	MaxTargetCount     = 5
	MaxSessionsPerWeek = 7
)

// GoalNotifier 在目标状态落库后接收快照推送（实时订阅通道）。
type GoalNotifier interface {
	GoalUpdated(goal *db.Goal)
}

// GoalService 负责目标的创建、读取与打卡推进。
// 周滚动与审批超时都在读写路径上惰性收敛，不依赖任何后台调度。
type GoalService struct {
	db               *gorm.DB
	settings         *SystemSettingService
	events           event.Publisher
	notifier         GoalNotifier
	log              *zap.SugaredLogger
	approvalDeadline time.Duration
}

// GoalInput 定义创建目标时可配置字段。
type GoalInput struct {
	UserID          string
	Title           string
	SponsorID       string
	CategoryID      string
	TargetCount     int
	SessionsPerWeek int
}

// GoalFilter 描述列表过滤条件。
type GoalFilter struct {
	UserID     string
	Status     string
	ActiveOnly bool
}

// TickInput 定义打卡命令的输入对象。
type TickInput struct {
	GoalID  string
	ActorID string
	Source  string
	Note    string
}

// NewGoalService 构造 GoalService。
func NewGoalService(gdb *gorm.DB, settings *SystemSettingService, events event.Publisher, log *zap.SugaredLogger, approvalDeadline time.Duration) *GoalService {
	return &GoalService{
		db:               gdb,
		settings:         settings,
		events:           events,
		log:              log,
		approvalDeadline: approvalDeadline,
	}
}

// SetNotifier 挂载实时推送通道，nil 表示关闭推送。
func (s *GoalService) SetNotifier(n GoalNotifier) {
	s.notifier = n
}

// Create 新建目标。带赞助人的目标进入 pending 并记录审批截止时间，
// 自主目标直接视为已通过。
func (s *GoalService) Create(input GoalInput, now time.Time) (*db.Goal, error) {
	if err := validateGoalInput(input); err != nil {
		return nil, err
	}

	isFree := strings.TrimSpace(input.SponsorID) == ""
	status := db.ApprovalPending
	var deadline *time.Time
	if isFree {
		status = db.ApprovalApproved
	} else {
		d := now.Add(s.approvalDeadline)
		deadline = &d
	}

	goal := db.Goal{
		UserID:                 strings.TrimSpace(input.UserID),
		Title:                  strings.TrimSpace(input.Title),
		SponsorID:              strings.TrimSpace(input.SponsorID),
		CategoryID:             strings.TrimSpace(input.CategoryID),
		StartDate:              now,
		EndDate:                goalEndDate(now, input.TargetCount),
		TargetCount:            input.TargetCount,
		SessionsPerWeek:        input.SessionsPerWeek,
		InitialTargetCount:     input.TargetCount,
		InitialSessionsPerWeek: input.SessionsPerWeek,
		ApprovalStatus:         status,
		ApprovalDeadline:       deadline,
		IsActive:               true,
		IsFreeGoal:             isFree,
	}

	if err := s.db.Create(&goal).Error; err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	return &goal, nil
}

// Get 读取目标，读路径上先惰性执行自动审批与周滚动。
func (s *GoalService) Get(goalID string, now time.Time) (*db.Goal, error) {
	var goal db.Goal
	var pending []event.Event
	mutated := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadGoal(tx, goalID, &goal); err != nil {
			return err
		}

		changed, evts, err := refreshGoal(tx, &goal, now)
		if err != nil {
			return err
		}
		pending = evts
		mutated = changed
		if changed {
			if err := tx.Save(&goal).Error; err != nil {
				return fmt.Errorf("persist refreshed goal: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(pending)
	if mutated {
		s.notify(&goal)
	}
	return &goal, nil
}

// List 返回满足过滤条件的目标集合，每个目标同样先惰性收敛。
func (s *GoalService) List(filter GoalFilter, now time.Time) ([]db.Goal, error) {
	var goals []db.Goal

	query := s.db.Model(&db.Goal{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("approval_status = ?", filter.Status)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	if err := query.Order("created_at DESC").Find(&goals).Error; err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}

	for i := range goals {
		refreshed, err := s.Get(goals[i].ID, now)
		if err != nil {
			return nil, err
		}
		goals[i] = *refreshed
	}

	return goals, nil
}

// TickSession 将一次“完成打卡”事件应用到目标上。
// 事务内先折叠过期窗口，再做当日去重与周目标校验，保证打卡永远落在
// 正确的窗口里，且同一天重复提交是无副作用的 no-op。
func (s *GoalService) TickSession(input TickInput, now time.Time) (*db.Goal, error) {
	var goal db.Goal
	var pending []event.Event
	mutated := false
	completedBySweep := false

	allowRepeat := s.allowMultipleSessionsPerDay()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadGoal(tx, input.GoalID, &goal); err != nil {
			return err
		}

		if goal.IsCompleted {
			return fmt.Errorf("%w: goal already completed", ErrInvalidState)
		}
		if !goal.IsActive {
			return fmt.Errorf("%w: goal inactive", ErrInvalidState)
		}

		// 首次打卡确定窗口锚点
		if goal.WeekStart == nil {
			anchor := cadence.StartOfDay(now)
			goal.WeekStart = &anchor
			goal.WeeklyCount = 0
			goal.WeeklyLogDates = nil
			goal.IsWeekCompleted = false
		}

		changed, evts, err := refreshGoal(tx, &goal, now)
		if err != nil {
			return err
		}
		pending = evts
		mutated = changed
		if goal.IsCompleted {
			// 滚动过程中已记满全部周期：先提交收敛结果，
			// 事务外再按已完成目标拒绝本次打卡
			completedBySweep = true
			if changed {
				if err := tx.Save(&goal).Error; err != nil {
					return fmt.Errorf("persist refreshed goal: %w", err)
				}
			}
			return nil
		}

		today := cadence.DayKey(now)
		if containsDay(goal.WeeklyLogDates, today) && !allowRepeat {
			// 当日已计入：保持幂等，不视为错误
			if changed {
				if err := tx.Save(&goal).Error; err != nil {
					return fmt.Errorf("persist refreshed goal: %w", err)
				}
			}
			return nil
		}

		var logged int64
		if err := tx.Model(&db.GoalSessionLog{}).Where("goal_id = ?", goal.ID).Count(&logged).Error; err != nil {
			return fmt.Errorf("count session logs: %w", err)
		}

		// 审批通过前只放行最初的一次打卡。以日志条数为准：
		// 窗口滚动会清零周内计数，日志不会
		if goal.ApprovalStatus != db.ApprovalApproved && logged > 0 {
			return ErrApprovalRequired
		}

		if goal.WeeklyCount >= goal.SessionsPerWeek {
			return ErrWeekAlreadyComplete
		}

		goal.WeeklyCount++
		goal.WeeklyLogDates = append(goal.WeeklyLogDates, today)

		sessionNumber := int(logged) + 1

		kind := event.TypeSessionLogged
		if goal.WeeklyCount == goal.SessionsPerWeek {
			goal.IsWeekCompleted = true
			kind = event.TypeWeekCompleted
			// 末个窗口在本周记满时直接完成，无需等下一次滚动
			if goal.CurrentCount+1 == goal.TargetCount {
				goal.IsCompleted = true
				kind = event.TypeGoalCompleted
				if err := propagateFinish(tx, &goal); err != nil {
					return err
				}
			}
		}

		logTime := now
		record := db.GoalSessionLog{
			GoalID:        goal.ID,
			LogDate:       cadence.StartOfDay(now),
			LogTime:       &logTime,
			Source:        strings.TrimSpace(input.Source),
			Note:          strings.TrimSpace(input.Note),
			SessionNumber: sessionNumber,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("create session log: %w", err)
		}

		if err := tx.Save(&goal).Error; err != nil {
			return fmt.Errorf("persist goal: %w", err)
		}
		mutated = true

		pending = append(pending, event.Event{
			Type:          kind,
			GoalID:        goal.ID,
			UserID:        goal.UserID,
			ActorID:       strings.TrimSpace(input.ActorID),
			SessionNumber: sessionNumber,
			OccurredAt:    now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(pending)
	if mutated {
		s.notify(&goal)
	}
	if completedBySweep {
		return nil, fmt.Errorf("%w: goal already completed", ErrInvalidState)
	}
	return &goal, nil
}

// sweepRollover 把所有已过期的窗口折叠进整体进度。
// 只有记满的窗口获得计数；空窗口一次性跳过，保证有界且收敛，
// 对已收敛状态重复执行是 no-op。
func sweepRollover(goal *db.Goal, now time.Time) bool {
	if goal.WeekStart == nil || goal.IsCompleted {
		return false
	}

	window := cadence.CurrentWindow(*goal.WeekStart, now)
	if !window.Expired {
		return false
	}

	if goal.IsWeekCompleted || goal.WeeklyCount >= goal.SessionsPerWeek {
		if goal.CurrentCount < goal.TargetCount {
			goal.CurrentCount++
		}
		if goal.CurrentCount >= goal.TargetCount {
			goal.IsCompleted = true
		}
	}

	// 中间不可能存在带计数的窗口，直接跳到首个未过期窗口
	weeks := cadence.ElapsedWindows(*goal.WeekStart, now)
	if weeks < 1 {
		weeks = 1
	}
	next := goal.WeekStart.Add(time.Duration(weeks) * cadence.WindowDuration)
	goal.WeekStart = &next
	goal.WeeklyCount = 0
	goal.WeeklyLogDates = nil
	goal.IsWeekCompleted = false

	return true
}

// refreshGoal 在事务内执行读路径上的全部惰性收敛：
// 审批超时自动通过、周滚动、以及滚动触发的完成/解锁传播。
// 返回值依次为状态是否变化、提交后待发布的事件。
func refreshGoal(tx *gorm.DB, goal *db.Goal, now time.Time) (bool, []event.Event, error) {
	var pending []event.Event
	changed := false

	if autoApprove(goal, now) {
		changed = true
		pending = append(pending, event.Event{
			Type:       event.TypeGoalApproved,
			GoalID:     goal.ID,
			UserID:     goal.UserID,
			Message:    "auto-approved after deadline",
			OccurredAt: now,
		})
	}

	wasCompleted := goal.IsCompleted
	if sweepRollover(goal, now) {
		changed = true
		if goal.IsCompleted && !wasCompleted {
			if err := propagateFinish(tx, goal); err != nil {
				return false, nil, err
			}
			pending = append(pending, event.Event{
				Type:       event.TypeGoalCompleted,
				GoalID:     goal.ID,
				UserID:     goal.UserID,
				OccurredAt: now,
			})
		}
	}

	return changed, pending, nil
}

// autoApprove 在截止时间已过且赞助人从未响应时强制通过，条款不变。
func autoApprove(goal *db.Goal, now time.Time) bool {
	if goal.ApprovalStatus != db.ApprovalPending {
		return false
	}
	if goal.ApprovalDeadline == nil || goal.GiverActionTaken {
		return false
	}
	if now.Before(*goal.ApprovalDeadline) {
		return false
	}

	goal.ApprovalStatus = db.ApprovalApproved
	return true
}

func (s *GoalService) allowMultipleSessionsPerDay() bool {
	if s.settings == nil {
		return false
	}
	allowed, err := s.settings.AllowMultipleSessionsPerDay()
	if err != nil {
		s.log.Debugw("read multi-session setting", "error", err)
		return false
	}
	return allowed
}

func (s *GoalService) publish(evts []event.Event) {
	if s.events == nil {
		return
	}
	for _, evt := range evts {
		if err := s.events.Publish(context.Background(), evt); err != nil {
			// 通知投递不在一致性边界内，失败只记录
			s.log.Warnw("publish event", "type", evt.Type, "goal_id", evt.GoalID, "error", err)
		}
	}
}

func (s *GoalService) notify(goal *db.Goal) {
	if s.notifier != nil {
		s.notifier.GoalUpdated(goal)
	}
}

func loadGoal(tx *gorm.DB, goalID string, dst *db.Goal) error {
	if err := tx.First(dst, "id = ?", goalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGoalNotFound
		}
		return fmt.Errorf("load goal: %w", err)
	}
	return nil
}

func containsDay(dates []string, day string) bool {
	for _, d := range dates {
		if d == day {
			return true
		}
	}
	return false
}

func validateGoalInput(input GoalInput) error {
	if strings.TrimSpace(input.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(input.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if input.TargetCount < 1 || input.TargetCount > MaxTargetCount {
		return fmt.Errorf("%w: target count must be between 1 and %d", ErrValidation, MaxTargetCount)
	}
	if input.SessionsPerWeek < 1 || input.SessionsPerWeek > MaxSessionsPerWeek {
		return fmt.Errorf("%w: sessions per week must be between 1 and %d", ErrValidation, MaxSessionsPerWeek)
	}
	return nil
}

func goalEndDate(start time.Time, targetCount int) time.Time {
	return start.Add(time.Duration(targetCount) * cadence.WindowDuration)
}
