package handlers

import (
	"net/http"

	apierrors "github.com/commongroundz/backend/internal/errors"
	"github.com/commongroundz/backend/internal/logger"
	"github.com/commongroundz/backend/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FollowUser makes the caller follow the target user. Following someone
// you already follow is a no-op success.
func (h *Handlers) FollowUser(c *gin.Context) {
	userID := c.GetString("user_id")
	targetID := c.Param("id")

	if err := h.requireUser(c, targetID); err != nil {
		return
	}

	created, err := h.social.Follow(c.Request.Context(), userID, targetID)
	if err != nil {
		logger.Error("Follow failed", logger.WithUserID(userID), zap.Error(err))
		apiErr := apierrors.BadRequest(err.Error())
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"following": true,
		"created":   created,
	})
}

// UnfollowUser removes the caller's follow edge to the target user
func (h *Handlers) UnfollowUser(c *gin.Context) {
	userID := c.GetString("user_id")
	targetID := c.Param("id")

	if err := h.requireUser(c, targetID); err != nil {
		return
	}

	removed, err := h.social.Unfollow(c.Request.Context(), userID, targetID)
	if err != nil {
		logger.Error("Unfollow failed", logger.WithUserID(userID), zap.Error(err))
		apiErr := apierrors.InternalError("failed to unfollow")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"following": false,
		"removed":   removed,
	})
}

// GetFollowCounts returns a user's follower/following counts through the
// query cache. Right after a follow action this may serve the optimistic
// value; the next refetch reconciles it.
func (h *Handlers) GetFollowCounts(c *gin.Context) {
	targetID := c.Param("id")

	if err := h.requireUser(c, targetID); err != nil {
		return
	}

	counts, err := h.social.FollowCounts(c.Request.Context(), targetID)
	if err != nil {
		apiErr := apierrors.InternalError("failed to load follow counts")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":   targetID,
		"followers": counts.Followers,
		"following": counts.Following,
	})
}

// requireUser 404s when the target user does not exist
func (h *Handlers) requireUser(c *gin.Context, userID string) error {
	var user models.User
	if err := h.db.WithContext(c.Request.Context()).Select("id").First(&user, "id = ?", userID).Error; err != nil {
		apiErr := apierrors.NotFound("user")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return err
	}
	return nil
}
