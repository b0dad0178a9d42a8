package routes

import (
	"bumpcontrol/internal/handlers"
	"bumpcontrol/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupBumpRoutes configures the bump engine routes
func SetupBumpRoutes(r *gin.Engine, deps Deps) {
	h := handlers.NewBumpHandler(deps.Service)

	limit := deps.WriteLimit
	if limit.RequestsPerSecond <= 0 {
		limit = middleware.RateLimiterConfig{RequestsPerSecond: 2, Burst: 5}
	}
	writeLimit := middleware.RateLimiterMiddleware(limit)

	bumpGroup := r.Group("/bump")
	{
		bumpGroup.POST("/wallets/:owner", writeLimit, h.EnsureWallets)
		bumpGroup.POST("/deposit", writeLimit, h.Deposit)
		bumpGroup.POST("/fund", writeLimit, h.Fund)
		bumpGroup.GET("/credit/:owner", h.GetCredit)

		bumpGroup.POST("/session/start", writeLimit, h.StartSession)
		bumpGroup.POST("/session/stop", h.StopSession)
		bumpGroup.GET("/session/:owner", h.GetSession)

		if deps.Hub != nil {
			bumpGroup.GET("/activity/ws", gin.WrapF(deps.Hub.ServeWS))
		}
		bumpGroup.GET("/activity/:owner", h.ListActivity)

		bumpGroup.GET("/rpc-status", middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
			RequestsPerSecond: 0.2,
			Burst:             1,
		}), handlers.RPCStatusHandler(deps.RPCEndpoints))
	}
}
