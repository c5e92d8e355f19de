package httpapi

import (
	"database/sql"
	"net/http"
	"time"

	"call-pipeline/pkg/logger"
	"call-pipeline/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Health reports readiness. db is nil for non-SQL store backends.
func Health(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
				logger.FromGin(c).Warn("health check failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "down"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
