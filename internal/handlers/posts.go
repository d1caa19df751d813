package handlers

import (
	"net/http"

	apierrors "github.com/commongroundz/backend/internal/errors"
	"github.com/commongroundz/backend/internal/events"
	"github.com/commongroundz/backend/internal/logger"
	"github.com/commongroundz/backend/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreatePost creates a post, runs its text through the hashtag pipeline,
// and notifies entity caches when the post is about an entity. A hashtag
// persistence failure never fails the post itself.
func (h *Handlers) CreatePost(c *gin.Context) {
	userID := c.GetString("user_id")

	var req struct {
		Title    string  `json:"title"`
		Content  string  `json:"content" binding:"required"`
		EntityID *string `json:"entity_id,omitempty"`
		Rating   *int    `json:"rating,omitempty"`
		IsPublic *bool   `json:"is_public,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		apiErr := apierrors.ValidationError("rating", "rating must be between 1 and 5")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code, "field": apiErr.Field})
		return
	}
	if req.EntityID != nil {
		var entity models.Entity
		if err := h.db.First(&entity, "id = ?", *req.EntityID).Error; err != nil {
			apiErr := apierrors.NotFound("entity")
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
			return
		}
	}

	post := models.Post{
		UserID:   userID,
		EntityID: req.EntityID,
		Title:    req.Title,
		Content:  req.Content,
		Rating:   req.Rating,
		IsPublic: true,
	}
	if req.IsPublic != nil {
		post.IsPublic = *req.IsPublic
	}

	if err := h.db.Create(&post).Error; err != nil {
		logger.Error("Failed to create post", logger.WithUserID(userID), zap.Error(err))
		apiErr := apierrors.InternalError("failed to create post")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	tagsOK := h.tags.ProcessPostContent(c.Request.Context(), post.ID, post.Title, post.Content)

	if post.EntityID != nil {
		h.bus.Publish(events.EntityUpdated{EntityID: *post.EntityID})
	}

	c.JSON(http.StatusCreated, gin.H{
		"post":           post,
		"tags_persisted": tagsOK,
	})
}

// UpdatePost edits a post the caller owns and re-runs the hashtag
// pipeline, pruning associations for tags edited out of the text.
func (h *Handlers) UpdatePost(c *gin.Context) {
	userID := c.GetString("user_id")
	postID := c.Param("id")

	var req struct {
		Title   *string `json:"title,omitempty"`
		Content *string `json:"content,omitempty"`
		Rating  *int    `json:"rating,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		apiErr := apierrors.ValidationError("rating", "rating must be between 1 and 5")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code, "field": apiErr.Field})
		return
	}

	var post models.Post
	if err := h.db.First(&post, "id = ?", postID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			apiErr := apierrors.NotFound("post")
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
			return
		}
		apiErr := apierrors.InternalError("failed to load post")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}
	if post.UserID != userID {
		apiErr := apierrors.Forbidden("you can only edit your own posts")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	if req.Title != nil {
		post.Title = *req.Title
	}
	if req.Content != nil {
		post.Content = *req.Content
	}
	if req.Rating != nil {
		post.Rating = req.Rating
	}

	if err := h.db.Save(&post).Error; err != nil {
		logger.Error("Failed to update post", logger.WithPostID(postID), zap.Error(err))
		apiErr := apierrors.InternalError("failed to update post")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	tagsOK := h.tags.ProcessPostContent(c.Request.Context(), post.ID, post.Title, post.Content)

	if post.EntityID != nil {
		h.bus.Publish(events.EntityUpdated{EntityID: *post.EntityID})
	}

	c.JSON(http.StatusOK, gin.H{
		"post":           post,
		"tags_persisted": tagsOK,
	})
}
