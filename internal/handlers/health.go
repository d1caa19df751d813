package handlers

import (
	"net/http"

	"github.com/commongroundz/backend/internal/cache"
	"github.com/commongroundz/backend/internal/database"
	"github.com/gin-gonic/gin"
)

// Health reports component status. Degraded Redis is reported but does
// not fail the check; a dead database does.
func (h *Handlers) Health(c *gin.Context) {
	status := http.StatusOK
	components := gin.H{"database": "ok", "redis": "ok"}

	if err := database.Health(); err != nil {
		components["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	if redisClient := cache.GetRedisClient(); redisClient != nil {
		if err := redisClient.Ping(c.Request.Context()); err != nil {
			components["redis"] = err.Error()
		}
	} else {
		components["redis"] = "not configured"
	}

	c.JSON(status, gin.H{
		"status":     http.StatusText(status),
		"components": components,
	})
}
