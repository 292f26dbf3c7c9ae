package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pactlog/internal/service"
)

type approvePayload struct {
	Message string `json:"message"`
}

type suggestionPayload struct {
	TargetCount     int    `json:"target_count"`
	SessionsPerWeek int    `json:"sessions_per_week"`
	Message         string `json:"message"`
}

// ApproveGoal 由赞助人确认条款（存在建议时采纳建议值）。
func (a *API) ApproveGoal(c *gin.Context) {
	var payload approvePayload
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &payload, "invalid approve payload") {
			return
		}
	}

	goal, err := a.approvals.Approve(c.Param("id"), actorID(c), payload.Message, time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, goalJSON(goal))
}

// SuggestGoalChange 由赞助人提出替代条款。
func (a *API) SuggestGoalChange(c *gin.Context) {
	var payload suggestionPayload
	if !bindJSON(c, &payload, "invalid suggestion payload") {
		return
	}

	goal, err := a.approvals.SuggestChange(service.SuggestionInput{
		GoalID:          c.Param("id"),
		ActorID:         actorID(c),
		TargetCount:     payload.TargetCount,
		SessionsPerWeek: payload.SessionsPerWeek,
		Message:         payload.Message,
	}, time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, goalJSON(goal))
}

// RespondToGoalSuggestion 由受益人确定最终条款。
func (a *API) RespondToGoalSuggestion(c *gin.Context) {
	var payload suggestionPayload
	if !bindJSON(c, &payload, "invalid response payload") {
		return
	}

	goal, err := a.approvals.RespondToSuggestion(service.SuggestionInput{
		GoalID:          c.Param("id"),
		ActorID:         actorID(c),
		TargetCount:     payload.TargetCount,
		SessionsPerWeek: payload.SessionsPerWeek,
		Message:         payload.Message,
	}, time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, goalJSON(goal))
}

// AutoApproveGoal 手动触发截止检查；未触及截止条件时返回 204。
func (a *API) AutoApproveGoal(c *gin.Context) {
	goal, err := a.approvals.CheckAndAutoApprove(c.Param("id"), time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if goal == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, goalJSON(goal))
}
