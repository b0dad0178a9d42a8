package handlers

import (
	"net/http"
	"time"

	"bumpcontrol/pkg/solana"

	"github.com/gin-gonic/gin"
)

// RPCStatusHandler reports getHealth of every configured Solana endpoint
func RPCStatusHandler(endpoints []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(endpoints) == 0 {
			c.JSON(http.StatusOK, gin.H{"endpoints": []solana.RPCCheckResult{}})
			return
		}
		results := solana.CheckRPCList(c.Request.Context(), endpoints, 3*time.Second)
		status := http.StatusOK
		for _, r := range results {
			if !r.OK {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{"endpoints": results})
	}
}
