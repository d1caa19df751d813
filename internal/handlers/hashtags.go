package handlers

import (
	"net/http"

	apierrors "github.com/commongroundz/backend/internal/errors"
	"github.com/commongroundz/backend/internal/hashtag"
	"github.com/commongroundz/backend/internal/models"
	"github.com/gin-gonic/gin"
)

// GetTrendingTags returns the globally most-used hashtags
func (h *Handlers) GetTrendingTags(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 10, 50)

	trending := h.ranker.Trending(c.Request.Context(), limit)
	c.JSON(http.StatusOK, gin.H{"tags": trending})
}

// GetRelatedTags returns discovery suggestions around one hashtag:
// co-occurring tags first, trending as backfill.
func (h *Handlers) GetRelatedTags(c *gin.Context) {
	raw := c.Param("tag")
	limit := parseLimit(c.Query("limit"), 10, 50)

	key := hashtag.Normalize(raw)
	if !hashtag.IsValidKey(key) {
		apiErr := apierrors.ValidationError("tag", "not a valid hashtag")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code, "field": apiErr.Field})
		return
	}

	related := h.ranker.RelatedOrTrending(c.Request.Context(), raw, limit)
	c.JSON(http.StatusOK, gin.H{"tag": key, "related": related})
}

// GetPostsByTag lists public posts carrying the given hashtag, newest
// first.
func (h *Handlers) GetPostsByTag(c *gin.Context) {
	raw := c.Param("tag")
	limit := parseLimit(c.Query("limit"), 20, 100)

	key := hashtag.Normalize(raw)
	if !hashtag.IsValidKey(key) {
		apiErr := apierrors.ValidationError("tag", "not a valid hashtag")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code, "field": apiErr.Field})
		return
	}

	var posts []models.Post
	err := h.db.WithContext(c.Request.Context()).
		Joins("JOIN post_tags pt ON pt.post_id = posts.id").
		Joins("JOIN tags ON tags.id = pt.tag_id").
		Where("tags.normalized_key = ?", key).
		Where("posts.is_public = ?", true).
		Order("posts.created_at DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		apiErr := apierrors.InternalError("failed to load posts")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tag": key, "posts": posts})
}
