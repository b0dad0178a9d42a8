package routes

import (
	"net/http"

	"bumpcontrol/internal/activity"
	"bumpcontrol/internal/bump"
	"bumpcontrol/internal/middleware"
	"bumpcontrol/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the HTTP surface needs
type Deps struct {
	Service        *bump.Service
	Hub            *activity.Hub
	AllowedOrigins []string
	RPCEndpoints   []string
	// WriteLimit throttles calls that move credit or touch the chain
	WriteLimit middleware.RateLimiterConfig
}

// SetupRouter initializes and returns the Gin router with all routes configured
func SetupRouter(deps Deps) *gin.Engine {
	r := gin.Default()

	r.Any("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	r.Use(corsMiddleware(deps.AllowedOrigins))

	r.GET("/metrics", metrics.Handler())

	SetupBumpRoutes(r, deps)

	return r
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
