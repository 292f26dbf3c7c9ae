package e2e

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pactlog/internal/db"
	"github.com/pactlog/internal/event"
	"github.com/pactlog/internal/handler"
	"github.com/pactlog/internal/logging"
	"github.com/pactlog/internal/router"
)

type e2eSuite struct {
	gdb     *gorm.DB
	client  *localClient
	baseURL string
}

type localClient struct {
	handler http.Handler
	jar     http.CookieJar
}

func newLocalClient(h http.Handler) *localClient {
	jar, _ := cookiejar.New(nil)
	return &localClient{handler: h, jar: jar}
}

func (c *localClient) Do(req *http.Request) (*http.Response, error) {
	if c.jar != nil {
		for _, cookie := range c.jar.Cookies(req.URL) {
			req.AddCookie(cookie)
		}
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	resp := w.Result()
	if c.jar != nil {
		c.jar.SetCookies(req.URL, resp.Cookies())
	}
	return resp, nil
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to access database pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	api := handler.NewAPI(gdb, logging.NewNop(), event.NewRecorder(), nil, 72*time.Hour)
	engine := router.SetupRouter(api, "test-session-secret")

	return &e2eSuite{
		gdb:     gdb,
		client:  newLocalClient(engine),
		baseURL: "http://example.test",
	}
}

func (s *e2eSuite) bindSession(t *testing.T, userID string) {
	t.Helper()
	s.postJSON(t, "/session", map[string]any{"user_id": userID}, http.StatusOK)
}

func (s *e2eSuite) postJSON(t *testing.T, path string, payload any, wantStatus int) map[string]any {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(http.MethodPost, s.baseURL+path, body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.do(t, req, wantStatus)
}

func (s *e2eSuite) getJSON(t *testing.T, path string, wantStatus int) map[string]any {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	return s.do(t, req, wantStatus)
}

func (s *e2eSuite) do(t *testing.T, req *http.Request, wantStatus int) map[string]any {
	t.Helper()
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d: %s",
			req.Method, req.URL.Path, wantStatus, resp.StatusCode, string(raw))
	}
	if len(raw) == 0 {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("failed to decode response %q: %v", string(raw), err)
	}
	return decoded
}

// backdateWeekStart 把目标的周起点向过去平移，用于在测试里触发周滚动。
func (s *e2eSuite) backdateWeekStart(t *testing.T, goalID string, days int) {
	t.Helper()
	var goal db.Goal
	if err := s.gdb.First(&goal, "id = ?", goalID).Error; err != nil {
		t.Fatalf("failed to load goal: %v", err)
	}
	if goal.WeekStart == nil {
		t.Fatal("expected goal to carry a week start")
	}
	moved := goal.WeekStart.AddDate(0, 0, -days)
	if err := s.gdb.Model(&db.Goal{}).Where("id = ?", goalID).
		Update("week_start", moved).Error; err != nil {
		t.Fatalf("failed to backdate week start: %v", err)
	}
}

func TestE2E_SponsoredGoalLifecycle(t *testing.T) {
	s := newE2ESuite(t)

	// 受益人创建赞助目标：进入待确认状态
	s.bindSession(t, "bob")
	created := s.postJSON(t, "/api/goals", map[string]any{
		"title":             "背单词",
		"sponsor_id":        "carol",
		"category_id":       "bookstore",
		"target_count":      2,
		"sessions_per_week": 1,
	}, http.StatusCreated)
	goalID := created["id"].(string)
	if created["approval_status"] != db.ApprovalPending {
		t.Fatalf("expected pending goal, got %v", created["approval_status"])
	}

	// 确认前允许第一次打卡
	ticked := s.postJSON(t, "/api/goals/"+goalID+"/sessions", nil, http.StatusOK)
	if got := ticked["weekly_count"].(float64); got != 1 {
		t.Fatalf("expected weekly count 1, got %v", got)
	}

	// 赞助人提出替代条款，受益人接受后生效
	s.bindSession(t, "carol")
	suggested := s.postJSON(t, "/api/goals/"+goalID+"/suggest", map[string]any{
		"target_count":      2,
		"sessions_per_week": 2,
		"message":           "每周两次更稳",
	}, http.StatusOK)
	if suggested["approval_status"] != db.ApprovalSuggestedChange {
		t.Fatalf("expected suggested_change, got %v", suggested["approval_status"])
	}

	s.bindSession(t, "bob")
	approved := s.postJSON(t, "/api/goals/"+goalID+"/respond", map[string]any{
		"target_count":      2,
		"sessions_per_week": 2,
	}, http.StatusOK)
	if approved["approval_status"] != db.ApprovalApproved {
		t.Fatalf("expected approved, got %v", approved["approval_status"])
	}
	if got := approved["sessions_per_week"].(float64); got != 2 {
		t.Fatalf("expected sessions per week 2, got %v", got)
	}

	// 打开调试开关，允许同一天多次打卡
	req, _ := http.NewRequest(http.MethodPut, s.baseURL+"/api/settings",
		bytes.NewReader([]byte(`{"allow_multiple_sessions_per_day":true}`)))
	req.Header.Set("Content-Type", "application/json")
	s.do(t, req, http.StatusOK)

	// 补足本周第二次，本周完成；再打一次被拒绝
	ticked = s.postJSON(t, "/api/goals/"+goalID+"/sessions", nil, http.StatusOK)
	if ticked["is_week_completed"] != true {
		t.Fatalf("expected completed week, got %v", ticked)
	}
	s.postJSON(t, "/api/goals/"+goalID+"/sessions", nil, http.StatusConflict)

	// 周起点平移到过去，下一次打卡先结算上周（记入一周），再落入新周
	s.backdateWeekStart(t, goalID, 8)
	ticked = s.postJSON(t, "/api/goals/"+goalID+"/sessions", nil, http.StatusOK)
	if got := ticked["current_count"].(float64); got != 1 {
		t.Fatalf("expected one credited week, got %v", got)
	}
	if got := ticked["weekly_count"].(float64); got != 1 {
		t.Fatalf("expected fresh week count 1, got %v", got)
	}

	// 第二周补满，目标完成
	final := s.postJSON(t, "/api/goals/"+goalID+"/sessions", nil, http.StatusOK)
	if final["is_completed"] != true || final["is_finished"] != true {
		t.Fatalf("expected finished goal, got %v", final)
	}

	// 奖励码：首次签发，再次请求返回同一个码
	issued := s.postJSON(t, "/api/goals/"+goalID+"/coupon", nil, http.StatusOK)
	code := issued["code"].(string)
	if len(code) != 12 {
		t.Fatalf("expected 12 character code, got %q", code)
	}
	again := s.postJSON(t, "/api/goals/"+goalID+"/coupon", nil, http.StatusOK)
	if again["code"] != code {
		t.Fatalf("expected stable code %q, got %v", code, again["code"])
	}

	// 二维码渲染为合法 PNG
	qrReq, _ := http.NewRequest(http.MethodGet, s.baseURL+"/api/goals/"+goalID+"/coupon/qr", nil)
	resp, err := s.client.Do(qrReq)
	if err != nil {
		t.Fatalf("qr request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected qr status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected png content type, got %q", ct)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Fatalf("expected decodable png: %v", err)
	}
}

func TestE2E_PartnerPairUnlocks(t *testing.T) {
	s := newE2ESuite(t)
	s.bindSession(t, "dave")

	// 调试开关：一天内多次打卡
	req, _ := http.NewRequest(http.MethodPut, s.baseURL+"/api/settings",
		bytes.NewReader([]byte(`{"allow_multiple_sessions_per_day":true}`)))
	req.Header.Set("Content-Type", "application/json")
	s.do(t, req, http.StatusOK)

	makeGoal := func(owner string) string {
		s.bindSession(t, owner)
		created := s.postJSON(t, "/api/goals", map[string]any{
			"title":             "一起健身",
			"target_count":      1,
			"sessions_per_week": 1,
		}, http.StatusCreated)
		return created["id"].(string)
	}
	goalA := makeGoal("dave")
	goalB := makeGoal("erin")

	s.postJSON(t, "/api/goals/link", map[string]any{
		"goal_a": goalA,
		"goal_b": goalB,
	}, http.StatusNoContent)

	linked := s.getJSON(t, "/api/goals/"+goalA, http.StatusOK)
	if linked["partner_goal_id"] != goalB {
		t.Fatalf("expected partner link to %s, got %v", goalB, linked["partner_goal_id"])
	}

	// 只有一侧完成：已完成但未解锁
	s.bindSession(t, "dave")
	doneA := s.postJSON(t, "/api/goals/"+goalA+"/sessions", nil, http.StatusOK)
	if doneA["is_finished"] != true {
		t.Fatalf("expected finished goal, got %v", doneA)
	}
	if doneA["is_unlocked"] == true {
		t.Fatal("expected no unlock while partner is unfinished")
	}

	// 伙伴完成后双方解锁
	s.bindSession(t, "erin")
	doneB := s.postJSON(t, "/api/goals/"+goalB+"/sessions", nil, http.StatusOK)
	if doneB["is_unlocked"] != true {
		t.Fatalf("expected unlocked goal, got %v", doneB)
	}
	refreshedA := s.getJSON(t, "/api/goals/"+goalA, http.StatusOK)
	if refreshedA["is_unlocked"] != true {
		t.Fatalf("expected partner unlock to propagate, got %v", refreshedA)
	}

	// 解锁提示确认是幂等的
	s.bindSession(t, "dave")
	acked := s.postJSON(t, "/api/goals/"+goalA+"/unlock-shown", nil, http.StatusOK)
	if acked["unlock_shown"] != true {
		t.Fatalf("expected unlock_shown latch, got %v", acked)
	}
}
