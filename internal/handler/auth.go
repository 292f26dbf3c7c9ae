package handler

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const sessionActorKey = "actor_id"

type sessionPayload struct {
	UserID string `json:"user_id"`
}

// StartSession binds an opaque actor id to the caller's cookie session.
// Identity verification lives in an upstream collaborator; the engine
// only records who issued each command.
func (a *API) StartSession(c *gin.Context) {
	var payload sessionPayload
	if !bindJSON(c, &payload, "invalid session payload") {
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		respondError(c, http.StatusBadRequest, "user_id is required")
		return
	}

	session := sessions.Default(c)
	session.Set(sessionActorKey, userID)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID})
}

// EndSession clears the actor binding.
func (a *API) EndSession(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete(sessionActorKey)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}
	c.Status(http.StatusNoContent)
}

// ActorRequired rejects command requests that carry no actor binding.
func ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorID(c) == "" {
			respondError(c, http.StatusUnauthorized, "session required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func actorID(c *gin.Context) string {
	session := sessions.Default(c)
	if value, ok := session.Get(sessionActorKey).(string); ok {
		return value
	}
	return ""
}
