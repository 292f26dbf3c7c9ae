package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pactlog/internal/db"
)

var (
	// ErrRewardPrecondition 表示目标缺少签发兑换码所需的命名空间信息
	ErrRewardPrecondition = errors.New("goal is missing the reward namespace reference")
	// ErrRewardExhausted 表示签发重试预算耗尽，调用方可退避后重试
	ErrRewardExhausted = errors.New("reward code retry budget exhausted")

	// errCodeCollision 为内部重试信号：候选码在命名空间内已被占用
	errCodeCollision = errors.New("reward code collision")
)

const (
	couponLength    = 12
	couponAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxIssueRetries = 5
	couponValidity  = 180 * 24 * time.Hour
)

// RewardService 负责每个已完成目标的一次性兑换码签发。
// 事务内的短路读保证了幂等：一旦某个调用者写入成功，
// 其余并发调用者重试后都会读到同一个码。
type RewardService struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// NewRewardService 构造 RewardService。
func NewRewardService(gdb *gorm.DB, log *zap.SugaredLogger) *RewardService {
	return &RewardService{db: gdb, log: log}
}

// Issue 为目标签发兑换码，N 个并发调用者最终观察到同一个码。
// 候选码碰撞与事务提交冲突都触发整个过程重试，重试次数有上界。
func (s *RewardService) Issue(goalID string, now time.Time) (string, error) {
	for attempt := 0; attempt < maxIssueRetries; attempt++ {
		code, err := s.tryIssue(goalID, now)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, errCodeCollision) || isRetryableConflict(err) {
			s.log.Debugw("reward issue retry", "goal_id", goalID, "attempt", attempt+1, "error", err)
			continue
		}
		return "", err
	}
	return "", ErrRewardExhausted
}

func (s *RewardService) tryIssue(goalID string, now time.Time) (string, error) {
	var issued string

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var goal db.Goal
		if err := loadGoal(tx, goalID, &goal); err != nil {
			return err
		}

		// 事务内短路：已有码直接返回，绝不生成第二个
		if goal.CouponCode != nil {
			issued = *goal.CouponCode
			return nil
		}

		if goal.PartnerGoalID != nil {
			if !goal.IsUnlocked {
				return fmt.Errorf("%w: cooperative goal not unlocked", ErrInvalidState)
			}
		} else if !goal.IsCompleted {
			return fmt.Errorf("%w: goal not completed", ErrInvalidState)
		}

		if strings.TrimSpace(goal.CategoryID) == "" {
			return ErrRewardPrecondition
		}

		candidate, err := generateCouponCode()
		if err != nil {
			return fmt.Errorf("generate coupon code: %w", err)
		}

		// 同一事务内检查命名空间占用，占用即整体重试
		var occupied int64
		if err := tx.Model(&db.RewardCode{}).
			Where("category_id = ? AND code = ?", goal.CategoryID, candidate).
			Count(&occupied).Error; err != nil {
			return fmt.Errorf("check code namespace: %w", err)
		}
		if occupied > 0 {
			return errCodeCollision
		}

		record := db.RewardCode{
			Code:       candidate,
			CategoryID: goal.CategoryID,
			UserID:     goal.UserID,
			GoalID:     goal.ID,
			Status:     db.RewardCodeStatusIssued,
			ValidFrom:  now,
			ValidUntil: now.Add(couponValidity),
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("create reward code: %w", err)
		}

		goal.CouponCode = &candidate
		goal.CouponGeneratedAt = &now
		if err := tx.Save(&goal).Error; err != nil {
			return fmt.Errorf("persist goal coupon: %w", err)
		}

		issued = candidate
		return nil
	})
	if err != nil {
		return "", err
	}
	return issued, nil
}

func generateCouponCode() (string, error) {
	buf := make([]byte, couponLength)
	alphabetSize := big.NewInt(int64(len(couponAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		buf[i] = couponAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// isRetryableConflict 识别并发写入导致的冲突：唯一索引竞争或
// 存储层的写锁竞争。两者都通过整体重试解决，重试后的短路读
// 会发现对方已写入的码。
func isRetryableConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
