package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pactlog/internal/service"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// respondServiceError maps engine errors onto HTTP statuses. Validation
// details are caller-correctable and safe to echo back.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrGoalNotFound):
		respondError(c, http.StatusNotFound, "goal not found")
	case errors.Is(err, service.ErrAlreadyLinked):
		respondError(c, http.StatusConflict, "goal already linked to a partner")
	case errors.Is(err, service.ErrWeekAlreadyComplete):
		respondError(c, http.StatusConflict, "week target already complete")
	case errors.Is(err, service.ErrApprovalRequired):
		respondError(c, http.StatusForbidden, "sponsor approval required before further sessions")
	case errors.Is(err, service.ErrInvalidState):
		respondError(c, http.StatusConflict, "command not valid in current goal state")
	case errors.Is(err, service.ErrValidation):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRewardPrecondition):
		respondError(c, http.StatusPreconditionFailed, "goal cannot scope a reward code")
	case errors.Is(err, service.ErrRewardExhausted):
		respondError(c, http.StatusServiceUnavailable, "reward code retry budget exhausted, retry later")
	default:
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}
