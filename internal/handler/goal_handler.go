package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pactlog/internal/cadence"
	"github.com/pactlog/internal/db"
	"github.com/pactlog/internal/service"
)

const dateFormat = "2006-01-02"

type goalPayload struct {
	Title           string `json:"title"`
	SponsorID       string `json:"sponsor_id"`
	CategoryID      string `json:"category_id"`
	TargetCount     int    `json:"target_count"`
	SessionsPerWeek int    `json:"sessions_per_week"`
}

type tickPayload struct {
	Source string `json:"source"`
	Note   string `json:"note"`
}

type linkPayload struct {
	GoalA string `json:"goal_a"`
	GoalB string `json:"goal_b"`
}

func goalJSON(goal *db.Goal) gin.H {
	return gin.H{
		"id":                          goal.ID,
		"user_id":                     goal.UserID,
		"title":                       goal.Title,
		"sponsor_id":                  goal.SponsorID,
		"category_id":                 goal.CategoryID,
		"start_date":                  goal.StartDate,
		"end_date":                    goal.EndDate,
		"week_start":                  goal.WeekStart,
		"weekly_count":                goal.WeeklyCount,
		"weekly_log_dates":            []string(goal.WeeklyLogDates),
		"is_week_completed":           goal.IsWeekCompleted,
		"current_count":               goal.CurrentCount,
		"target_count":                goal.TargetCount,
		"sessions_per_week":           goal.SessionsPerWeek,
		"is_active":                   goal.IsActive,
		"is_completed":                goal.IsCompleted,
		"is_free_goal":                goal.IsFreeGoal,
		"approval_status":             goal.ApprovalStatus,
		"initial_target_count":        goal.InitialTargetCount,
		"initial_sessions_per_week":   goal.InitialSessionsPerWeek,
		"suggested_target_count":      goal.SuggestedTargetCount,
		"suggested_sessions_per_week": goal.SuggestedSessionsPerWeek,
		"approval_deadline":           goal.ApprovalDeadline,
		"giver_action_taken":          goal.GiverActionTaken,
		"partner_goal_id":             goal.PartnerGoalID,
		"is_finished":                 goal.IsFinished,
		"is_unlocked":                 goal.IsUnlocked,
		"unlock_shown":                goal.UnlockShown,
		"coupon_code":                 goal.CouponCode,
		"coupon_generated_at":         goal.CouponGeneratedAt,
		"created_at":                  goal.CreatedAt,
		"updated_at":                  goal.UpdatedAt,
	}
}

// CreateGoal 创建目标，受益人取自会话。
func (a *API) CreateGoal(c *gin.Context) {
	var payload goalPayload
	if !bindJSON(c, &payload, "invalid goal payload") {
		return
	}

	goal, err := a.goals.Create(service.GoalInput{
		UserID:          actorID(c),
		Title:           payload.Title,
		SponsorID:       payload.SponsorID,
		CategoryID:      payload.CategoryID,
		TargetCount:     payload.TargetCount,
		SessionsPerWeek: payload.SessionsPerWeek,
	}, time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, goalJSON(goal))
}

// GetGoal 返回单个目标，读取路径上完成惰性收敛。
func (a *API) GetGoal(c *gin.Context) {
	goal, err := a.goals.Get(c.Param("id"), time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, goalJSON(goal))
}

// ListGoals 返回目标列表 JSON。
func (a *API) ListGoals(c *gin.Context) {
	filter := service.GoalFilter{
		UserID:     c.Query("user_id"),
		Status:     c.Query("status"),
		ActiveOnly: c.Query("active") == "true",
	}
	if filter.UserID == "" {
		filter.UserID = actorID(c)
	}

	goals, err := a.goals.List(filter, time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(goals))
	for i := range goals {
		items = append(items, goalJSON(&goals[i]))
	}
	c.JSON(http.StatusOK, gin.H{"goals": items})
}

// TickSession 记录一次完成打卡。
func (a *API) TickSession(c *gin.Context) {
	var payload tickPayload
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &payload, "invalid tick payload") {
			return
		}
	}
	if payload.Source == "" {
		payload.Source = "manual"
	}

	goal, err := a.goals.TickSession(service.TickInput{
		GoalID:  c.Param("id"),
		ActorID: actorID(c),
		Source:  payload.Source,
		Note:    payload.Note,
	}, time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, goalJSON(goal))
}

// LinkPartners 原子建立两个目标的互链。
func (a *API) LinkPartners(c *gin.Context) {
	var payload linkPayload
	if !bindJSON(c, &payload, "invalid link payload") {
		return
	}

	if err := a.partners.Link(payload.GoalA, payload.GoalB); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AcknowledgeUnlock 记录解锁提示已经展示。
func (a *API) AcknowledgeUnlock(c *gin.Context) {
	goal, err := a.partners.AcknowledgeUnlock(c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, goalJSON(goal))
}

// GetGoalStats 返回区间统计。
func (a *API) GetGoalStats(c *gin.Context) {
	goal, err := a.goals.Get(c.Param("id"), time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	stats, err := a.stats.StatsBetween(service.SessionLogFilter{
		GoalID: goal.ID,
		Start:  start,
		End:    end,
	}, *goal)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"range_start":     stats.RangeStart.Format(dateFormat),
		"range_end":       stats.RangeEnd.Format(dateFormat),
		"completed_count": stats.CompletedCount,
		"target_count":    stats.TargetCount,
		"completion_rate": stats.CompletionRate,
		"current_streak":  stats.CurrentStreak,
		"longest_streak":  stats.LongestStreak,
	})
}

// GetHeatmap 返回用户所有目标的打卡热力数据。
func (a *API) GetHeatmap(c *gin.Context) {
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	userID := c.Query("user_id")
	if userID == "" {
		userID = actorID(c)
	}

	rows, err := a.stats.HeatmapRange(userID, start, end)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		items = append(items, gin.H{
			"date":       row.LogDate.Format(dateFormat),
			"goal_id":    row.GoalID,
			"goal_title": row.GoalTitle,
		})
	}
	c.JSON(http.StatusOK, gin.H{"days": items})
}

// ListGoalSessions 返回区间内的打卡历史。
func (a *API) ListGoalSessions(c *gin.Context) {
	goal, err := a.goals.Get(c.Param("id"), time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	logs, err := a.stats.ListBetween(service.SessionLogFilter{
		GoalID: goal.ID,
		Start:  start,
		End:    end,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(logs))
	for _, entry := range logs {
		items = append(items, gin.H{
			"log_date":       entry.LogDate.Format(dateFormat),
			"session_number": entry.SessionNumber,
			"source":         entry.Source,
			"note":           entry.Note,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": items})
}

func parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now()
	start := cadence.StartOfDay(now.Add(-27 * 24 * time.Hour))
	end := cadence.StartOfDay(now)

	if raw := c.Query("start"); raw != "" {
		parsed, err := time.ParseInLocation(dateFormat, raw, time.Local)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid start date")
			return start, end, false
		}
		start = parsed
	}
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.ParseInLocation(dateFormat, raw, time.Local)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid end date")
			return start, end, false
		}
		end = parsed
	}
	return start, end, true
}
