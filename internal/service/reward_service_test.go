package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pactlog/internal/db"
	"github.com/pactlog/internal/event"
	"github.com/pactlog/internal/logging"
)

func completedGoal(t *testing.T, svc *GoalService, now time.Time) *db.Goal {
	t.Helper()
	goal := mustCreateGoal(t, svc, freeGoalInput(1, 1), now)
	done, err := svc.TickSession(TickInput{GoalID: goal.ID}, now)
	if err != nil {
		t.Fatalf("complete goal: %v", err)
	}
	if !done.IsCompleted {
		t.Fatalf("goal should be completed: %+v", done)
	}
	return done
}

func TestIssueRewardCodeOnce(t *testing.T) {
	gdb := setupTestDB(t)
	goals := newTestGoalService(gdb, event.NewRecorder())
	rewards := NewRewardService(gdb, logging.NewNop())
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.Local)

	goal := completedGoal(t, goals, now)

	code, err := rewards.Issue(goal.ID, now)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if len(code) != couponLength {
		t.Fatalf("unexpected code length: %q", code)
	}

	// 再次请求走事务内短路，返回同一个码
	again, err := rewards.Issue(goal.ID, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second Issue returned error: %v", err)
	}
	if again != code {
		t.Fatalf("coupon code must be write-once: %q vs %q", code, again)
	}

	var records []db.RewardCode
	if err := gdb.Where("goal_id = ?", goal.ID).Find(&records).Error; err != nil {
		t.Fatalf("load reward codes: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one reward code record, got %d", len(records))
	}
	if records[0].Code != code || records[0].CategoryID != goal.CategoryID {
		t.Fatalf("record mismatch: %+v", records[0])
	}
	if records[0].Status != db.RewardCodeStatusIssued {
		t.Fatalf("unexpected status: %s", records[0].Status)
	}

	var reloaded db.Goal
	if err := gdb.First(&reloaded, "id = ?", goal.ID).Error; err != nil {
		t.Fatalf("reload goal: %v", err)
	}
	if reloaded.CouponCode == nil || *reloaded.CouponCode != code {
		t.Fatal("goal coupon field and reward record must be written together")
	}
	if reloaded.CouponGeneratedAt == nil {
		t.Fatal("coupon generation timestamp should be set")
	}
}

func TestIssueRewardCodeConcurrentCallersObserveOneCode(t *testing.T) {
	gdb := setupTestDB(t)
	goals := newTestGoalService(gdb, event.NewRecorder())
	rewards := NewRewardService(gdb, logging.NewNop())
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.Local)

	goal := completedGoal(t, goals, now)

	const callers = 50
	codes := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			codes[idx], errs[idx] = rewards.Issue(goal.ID, now)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if codes[i] != codes[0] {
			t.Fatalf("caller %d observed a different code: %q vs %q", i, codes[i], codes[0])
		}
	}

	var count int64
	if err := gdb.Model(&db.RewardCode{}).Where("goal_id = ?", goal.ID).Count(&count).Error; err != nil {
		t.Fatalf("count reward codes: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one reward code record, got %d", count)
	}
}

func TestIssueRewardCodePreconditions(t *testing.T) {
	gdb := setupTestDB(t)
	goals := newTestGoalService(gdb, event.NewRecorder())
	rewards := NewRewardService(gdb, logging.NewNop())
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.Local)

	// 未完成的目标不能签发
	pending := mustCreateGoal(t, goals, freeGoalInput(2, 3), now)
	if _, err := rewards.Issue(pending.ID, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for unfinished goal, got %v", err)
	}

	// 缺少命名空间信息的目标快速失败
	input := freeGoalInput(1, 1)
	input.CategoryID = ""
	goal := mustCreateGoal(t, goals, input, now)
	if _, err := goals.TickSession(TickInput{GoalID: goal.ID}, now); err != nil {
		t.Fatalf("complete goal: %v", err)
	}
	if _, err := rewards.Issue(goal.ID, now); !errors.Is(err, ErrRewardPrecondition) {
		t.Fatalf("expected ErrRewardPrecondition, got %v", err)
	}

	if _, err := rewards.Issue("missing", now); !errors.Is(err, ErrGoalNotFound) {
		t.Fatalf("expected ErrGoalNotFound, got %v", err)
	}
}

func TestIssueRewardCodeCooperativeGoalNeedsUnlock(t *testing.T) {
	gdb := setupTestDB(t)
	goals := newTestGoalService(gdb, event.NewRecorder())
	partners := NewPartnerService(gdb, logging.NewNop())
	rewards := NewRewardService(gdb, logging.NewNop())
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.Local)

	a := mustCreateGoal(t, goals, freeGoalInput(1, 1), now)
	b := mustCreateGoal(t, goals, freeGoalInput(1, 1), now)
	if err := partners.Link(a.ID, b.ID); err != nil {
		t.Fatalf("Link: %v", err)
	}

	if _, err := goals.TickSession(TickInput{GoalID: a.ID}, now); err != nil {
		t.Fatalf("complete a: %v", err)
	}

	// 协作目标一侧完成但未解锁，兑换码仍不可签发
	if _, err := rewards.Issue(a.ID, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState before unlock, got %v", err)
	}

	if _, err := goals.TickSession(TickInput{GoalID: b.ID}, now); err != nil {
		t.Fatalf("complete b: %v", err)
	}

	code, err := rewards.Issue(a.ID, now)
	if err != nil {
		t.Fatalf("Issue after unlock: %v", err)
	}
	if code == "" {
		t.Fatal("expected a coupon code")
	}
}

func TestGenerateCouponCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		code, err := generateCouponCode()
		if err != nil {
			t.Fatalf("generateCouponCode: %v", err)
		}
		if len(code) != couponLength {
			t.Fatalf("unexpected length: %q", code)
		}
		for _, ch := range code {
			if !((ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')) {
				t.Fatalf("unexpected character %q in %q", ch, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatal("codes should not be constant")
	}
}
