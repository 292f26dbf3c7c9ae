package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pactlog/internal/service"
)

// GetSettings returns the engine-wide toggles.
func (a *API) GetSettings(c *gin.Context) {
	settings, err := a.settings.GetSettings()
	if err != nil {
		a.log.Errorw("load settings failed", "error", err)
		respondError(c, http.StatusInternalServerError, "failed to load settings")
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings overwrites the engine-wide toggles.
func (a *API) UpdateSettings(c *gin.Context) {
	var payload service.EngineSettings
	if !bindJSON(c, &payload, "invalid settings payload") {
		return
	}
	if err := a.settings.UpdateSettings(payload); err != nil {
		a.log.Errorw("update settings failed", "error", err)
		respondError(c, http.StatusInternalServerError, "failed to update settings")
		return
	}
	c.JSON(http.StatusOK, payload)
}
