package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
)

// IssueRewardCode 为已完成目标签发奖励码；重复调用返回同一个码。
func (a *API) IssueRewardCode(c *gin.Context) {
	code, err := a.rewards.Issue(c.Param("id"), time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}

// RewardCodeQR 以 PNG 形式返回奖励码的二维码；尚未签发时返回 404。
func (a *API) RewardCodeQR(c *gin.Context) {
	goal, err := a.goals.Get(c.Param("id"), time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if goal.CouponCode == nil {
		respondError(c, http.StatusNotFound, "no reward code issued")
		return
	}

	png, err := qrcode.Encode(*goal.CouponCode, qrcode.Medium, 256)
	if err != nil {
		a.log.Errorw("encode reward code qr failed", "goal_id", goal.ID, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to render qr code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
