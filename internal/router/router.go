package router

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/pactlog/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件。显式覆盖 cookie 属性：
	// 默认的 Secure+SameSite=None 会让纯 HTTP 部署丢会话
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("pactlog_session", store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	r.POST("/session", api.StartSession)
	r.DELETE("/session", api.EndSession)

	apiGroup := r.Group("/api")
	{
		// 读取接口不要求会话
		apiGroup.GET("/goals", api.ListGoals)
		apiGroup.GET("/goals/:id", api.GetGoal)
		apiGroup.GET("/goals/:id/stats", api.GetGoalStats)
		apiGroup.GET("/goals/:id/sessions", api.ListGoalSessions)
		apiGroup.GET("/goals/:id/coupon/qr", api.RewardCodeQR)
		apiGroup.GET("/goals/:id/subscribe", api.SubscribeGoal)
		apiGroup.GET("/heatmap", api.GetHeatmap)
		apiGroup.GET("/settings", api.GetSettings)

		// 写入接口要求已绑定操作者会话
		auth := apiGroup.Group("")
		auth.Use(handler.ActorRequired())
		{
			auth.POST("/goals", api.CreateGoal)
			auth.POST("/goals/link", api.LinkPartners)
			auth.POST("/goals/:id/sessions", api.TickSession)
			auth.POST("/goals/:id/approve", api.ApproveGoal)
			auth.POST("/goals/:id/suggest", api.SuggestGoalChange)
			auth.POST("/goals/:id/respond", api.RespondToGoalSuggestion)
			auth.POST("/goals/:id/auto-approve", api.AutoApproveGoal)
			auth.POST("/goals/:id/unlock-shown", api.AcknowledgeUnlock)
			auth.POST("/goals/:id/coupon", api.IssueRewardCode)
			auth.PUT("/settings", api.UpdateSettings)
		}
	}

	return r
}
