package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pactlog/internal/db"
)

// ErrAlreadyLinked 表示任一方已绑定伙伴，互链不可部分生效或重复生效。
var ErrAlreadyLinked = errors.New("goal already linked to a partner")

// PartnerService 维护协作目标的双向互链与解锁传播。
// 解锁只在 MarkFinished 的事务内建立；订阅推送仅是通知机制，
// 不存在第二条推导解锁的代码路径。
type PartnerService struct {
	db       *gorm.DB
	notifier GoalNotifier
	log      *zap.SugaredLogger
}

// NewPartnerService 构造 PartnerService。
func NewPartnerService(gdb *gorm.DB, log *zap.SugaredLogger) *PartnerService {
	return &PartnerService{db: gdb, log: log}
}

// SetNotifier 挂载实时推送通道。
func (s *PartnerService) SetNotifier(n GoalNotifier) {
	s.notifier = n
}

// Link 在单个事务内读取双方并原子建立互相引用。
// 任一方已有伙伴即失败，保证链接不会被拆成两半或重复应用。
func (s *PartnerService) Link(goalIDA, goalIDB string) error {
	if goalIDA == goalIDB {
		return fmt.Errorf("%w: cannot link a goal to itself", ErrValidation)
	}

	var a, b db.Goal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadGoal(tx, goalIDA, &a); err != nil {
			return err
		}
		if err := loadGoal(tx, goalIDB, &b); err != nil {
			return err
		}

		if a.PartnerGoalID != nil || b.PartnerGoalID != nil {
			return ErrAlreadyLinked
		}

		a.PartnerGoalID = &b.ID
		b.PartnerGoalID = &a.ID

		if err := tx.Save(&a).Error; err != nil {
			return fmt.Errorf("link goal %s: %w", a.ID, err)
		}
		if err := tx.Save(&b).Error; err != nil {
			return fmt.Errorf("link goal %s: %w", b.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyBoth(&a, &b)
	return nil
}

// MarkFinished 标记一侧完成；若对方也已完成，则在同一事务内把双方
// 置为已解锁，外部观察者不可能看到只解锁一半的状态。
func (s *PartnerService) MarkFinished(goalID string) (*db.Goal, error) {
	var goal db.Goal
	var partner *db.Goal

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadGoal(tx, goalID, &goal); err != nil {
			return err
		}

		if err := propagateFinish(tx, &goal); err != nil {
			return err
		}
		if err := tx.Save(&goal).Error; err != nil {
			return fmt.Errorf("persist goal: %w", err)
		}

		if goal.PartnerGoalID != nil && goal.IsUnlocked {
			var p db.Goal
			if err := loadGoal(tx, *goal.PartnerGoalID, &p); err != nil {
				return err
			}
			partner = &p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyBoth(&goal, partner)
	return &goal, nil
}

// AcknowledgeUnlock 记录界面已向用户展示过解锁（一次性闩锁）。
func (s *PartnerService) AcknowledgeUnlock(goalID string) (*db.Goal, error) {
	var goal db.Goal

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadGoal(tx, goalID, &goal); err != nil {
			return err
		}
		if !goal.IsUnlocked {
			return fmt.Errorf("%w: goal not unlocked", ErrInvalidState)
		}
		if goal.UnlockShown {
			return nil
		}
		goal.UnlockShown = true
		if err := tx.Save(&goal).Error; err != nil {
			return fmt.Errorf("persist goal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &goal, nil
}

// propagateFinish 在调用方事务内标记完成并检查伙伴侧。
// 双方都完成时同时写入两条解锁，伙伴行在此处落库，本方行由调用方保存。
// 这是引擎里唯一允许写入非命令目标文档的位置。
func propagateFinish(tx *gorm.DB, goal *db.Goal) error {
	goal.IsFinished = true
	if goal.PartnerGoalID == nil || goal.IsUnlocked {
		return nil
	}

	var partner db.Goal
	if err := loadGoal(tx, *goal.PartnerGoalID, &partner); err != nil {
		return err
	}

	if !partner.IsFinished {
		return nil
	}

	goal.IsUnlocked = true
	partner.IsUnlocked = true
	if err := tx.Save(&partner).Error; err != nil {
		return fmt.Errorf("unlock partner goal %s: %w", partner.ID, err)
	}
	return nil
}

func (s *PartnerService) notifyBoth(goal, partner *db.Goal) {
	if s.notifier == nil {
		return
	}
	if goal != nil {
		s.notifier.GoalUpdated(goal)
	}
	if partner != nil {
		s.notifier.GoalUpdated(partner)
	}
}
