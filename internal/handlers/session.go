package handlers

import (
	"net/http"

	"github.com/commongroundz/backend/internal/events"
	"github.com/gin-gonic/gin"
)

// ReportVisibility lets a client report foreground visibility changes.
// Regaining visibility triggers an eager refetch of stale cached queries
// so the session resumes on current data.
func (h *Handlers) ReportVisibility(c *gin.Context) {
	var req struct {
		Visible *bool `json:"visible" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.bus.Publish(events.VisibilityChanged{Visible: *req.Visible})
	c.JSON(http.StatusOK, gin.H{"visible": *req.Visible})
}
