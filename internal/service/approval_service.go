package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pactlog/internal/db"
	"github.com/pactlog/internal/event"
)

// ApprovalService 实现赞助人审批状态机：
// pending → approved，或 pending → suggested_change → approved。
// approved 为终态，之后不再接受任何审批写入。
type ApprovalService struct {
	db       *gorm.DB
	events   event.Publisher
	notifier GoalNotifier
	log      *zap.SugaredLogger
}

// SuggestionInput 定义修改建议/回应建议的输入对象。
type SuggestionInput struct {
	GoalID          string
	ActorID         string
	TargetCount     int
	SessionsPerWeek int
	Message         string
}

// NewApprovalService 构造 ApprovalService。
func NewApprovalService(gdb *gorm.DB, events event.Publisher, log *zap.SugaredLogger) *ApprovalService {
	return &ApprovalService{db: gdb, events: events, log: log}
}

// SetNotifier 挂载实时推送通道。
func (s *ApprovalService) SetNotifier(n GoalNotifier) {
	s.notifier = n
}

// Approve 由赞助人通过当前条款。若存在修改建议则采纳为最终条款，
// 并以原始起始日期重新计算结束日期。
func (s *ApprovalService) Approve(goalID, actorID, message string, now time.Time) (*db.Goal, error) {
	var goal db.Goal

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadGoal(tx, goalID, &goal); err != nil {
			return err
		}

		if goal.ApprovalStatus != db.ApprovalPending && goal.ApprovalStatus != db.ApprovalSuggestedChange {
			return fmt.Errorf("%w: approve from %s", ErrInvalidState, goal.ApprovalStatus)
		}

		if goal.SuggestedTargetCount != nil && goal.SuggestedSessionsPerWeek != nil {
			if err := validateFloors(&goal, *goal.SuggestedTargetCount, *goal.SuggestedSessionsPerWeek); err != nil {
				return err
			}
			goal.TargetCount = *goal.SuggestedTargetCount
			goal.SessionsPerWeek = *goal.SuggestedSessionsPerWeek
			goal.EndDate = goalEndDate(goal.StartDate, goal.TargetCount)
		}

		goal.ApprovalStatus = db.ApprovalApproved
		goal.GiverActionTaken = true

		if err := tx.Save(&goal).Error; err != nil {
			return fmt.Errorf("persist goal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(event.TypeGoalApproved, &goal, actorID, message, now)
	return &goal, nil
}

// SuggestChange 由赞助人提出替代条款。只改建议字段，
// 正式条款要等受益人回应后才变更。
func (s *ApprovalService) SuggestChange(input SuggestionInput, now time.Time) (*db.Goal, error) {
	if err := validateTerms(input.TargetCount, input.SessionsPerWeek); err != nil {
		return nil, err
	}

	var goal db.Goal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadGoal(tx, input.GoalID, &goal); err != nil {
			return err
		}

		if goal.ApprovalStatus != db.ApprovalPending {
			return fmt.Errorf("%w: suggest from %s", ErrInvalidState, goal.ApprovalStatus)
		}

		if err := validateFloors(&goal, input.TargetCount, input.SessionsPerWeek); err != nil {
			return err
		}

		target := input.TargetCount
		sessions := input.SessionsPerWeek
		goal.SuggestedTargetCount = &target
		goal.SuggestedSessionsPerWeek = &sessions
		goal.ApprovalStatus = db.ApprovalSuggestedChange
		goal.GiverActionTaken = true

		if err := tx.Save(&goal).Error; err != nil {
			return fmt.Errorf("persist goal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(event.TypeGoalChangeSuggested, &goal, input.ActorID, input.Message, now)
	return &goal, nil
}

// RespondToSuggestion 由受益人确定最终条款并完成审批。
// 最终条款不得低于原始承诺（下限）也不得超过政策上限。
func (s *ApprovalService) RespondToSuggestion(input SuggestionInput, now time.Time) (*db.Goal, error) {
	if err := validateTerms(input.TargetCount, input.SessionsPerWeek); err != nil {
		return nil, err
	}

	var goal db.Goal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadGoal(tx, input.GoalID, &goal); err != nil {
			return err
		}

		if goal.ApprovalStatus != db.ApprovalSuggestedChange {
			return fmt.Errorf("%w: respond from %s", ErrInvalidState, goal.ApprovalStatus)
		}

		if err := validateFloors(&goal, input.TargetCount, input.SessionsPerWeek); err != nil {
			return err
		}

		goal.TargetCount = input.TargetCount
		goal.SessionsPerWeek = input.SessionsPerWeek
		goal.EndDate = goalEndDate(goal.StartDate, goal.TargetCount)
		goal.ApprovalStatus = db.ApprovalApproved

		if err := tx.Save(&goal).Error; err != nil {
			return fmt.Errorf("persist goal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(event.TypeGoalApproved, &goal, input.ActorID, input.Message, now)
	return &goal, nil
}

// CheckAndAutoApprove 对单个目标执行截止检查。
// 只有 pending、已过截止且赞助人从未响应时才强制通过；
// 否则返回 nil 表示 no-op。读路径会机会性地调用它，无需后台调度。
func (s *ApprovalService) CheckAndAutoApprove(goalID string, now time.Time) (*db.Goal, error) {
	var goal db.Goal
	approved := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadGoal(tx, goalID, &goal); err != nil {
			return err
		}
		if !autoApprove(&goal, now) {
			return nil
		}
		approved = true
		if err := tx.Save(&goal).Error; err != nil {
			return fmt.Errorf("persist goal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, nil
	}

	s.emit(event.TypeGoalApproved, &goal, "", "auto-approved after deadline", now)
	return &goal, nil
}

func (s *ApprovalService) emit(kind event.Type, goal *db.Goal, actorID, message string, now time.Time) {
	if s.events != nil {
		evt := event.Event{
			Type:       kind,
			GoalID:     goal.ID,
			UserID:     goal.UserID,
			ActorID:    strings.TrimSpace(actorID),
			Message:    strings.TrimSpace(message),
			OccurredAt: now,
		}
		if err := s.events.Publish(context.Background(), evt); err != nil {
			s.log.Warnw("publish event", "type", kind, "goal_id", goal.ID, "error", err)
		}
	}
	if s.notifier != nil {
		s.notifier.GoalUpdated(goal)
	}
}

func validateTerms(targetCount, sessionsPerWeek int) error {
	if targetCount < 1 || targetCount > MaxTargetCount {
		return fmt.Errorf("%w: target count must be between 1 and %d", ErrValidation, MaxTargetCount)
	}
	if sessionsPerWeek < 1 || sessionsPerWeek > MaxSessionsPerWeek {
		return fmt.Errorf("%w: sessions per week must be between 1 and %d", ErrValidation, MaxSessionsPerWeek)
	}
	return nil
}

// validateFloors 校验条款不低于原始承诺。任何最终生效的条款
// 都必须经过它，包括建议录入和采纳两个时机。
func validateFloors(goal *db.Goal, targetCount, sessionsPerWeek int) error {
	if targetCount < goal.InitialTargetCount {
		return fmt.Errorf("%w: target count below original commitment %d", ErrValidation, goal.InitialTargetCount)
	}
	if sessionsPerWeek < goal.InitialSessionsPerWeek {
		return fmt.Errorf("%w: sessions per week below original commitment %d", ErrValidation, goal.InitialSessionsPerWeek)
	}
	return nil
}
