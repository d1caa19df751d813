package handlers

import (
	"context"
	"net/http"

	apierrors "github.com/commongroundz/backend/internal/errors"
	"github.com/commongroundz/backend/internal/models"
	"github.com/commongroundz/backend/internal/querycache"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// EntityStats is the cached aggregate view of one entity
type EntityStats struct {
	ReviewCount   int     `json:"review_count"`
	AverageRating float64 `json:"average_rating"`
	PostCount     int     `json:"post_count"`
}

// resolveEntityID maps a slug to the entity's ID. Cache keys use the ID
// so event-driven invalidation, which only knows IDs, can find them.
func (h *Handlers) resolveEntityID(ctx context.Context, slug string) (string, error) {
	var entity models.Entity
	err := h.db.WithContext(ctx).Select("id").First(&entity, "slug = ?", slug).Error
	if err != nil {
		return "", err
	}
	return entity.ID, nil
}

// GetEntity serves one entity through the query cache: stale data is
// served immediately while a background refetch refreshes it.
func (h *Handlers) GetEntity(c *gin.Context) {
	entityID, err := h.resolveEntityID(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			apiErr := apierrors.NotFound("entity")
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
			return
		}
		apiErr := apierrors.InternalError("failed to load entity")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	key := querycache.Key{Namespace: querycache.NamespaceEntity, ID: entityID}
	data, err := h.qc.GetOrFetch(c.Request.Context(), key, func(ctx context.Context) (interface{}, error) {
		var entity models.Entity
		if err := h.db.WithContext(ctx).First(&entity, "id = ?", entityID).Error; err != nil {
			return nil, err
		}
		return entity, nil
	})
	if err != nil {
		apiErr := apierrors.InternalError("failed to load entity")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entity": data})
}

// GetEntityStats serves the entity's aggregate counters through the
// query cache.
func (h *Handlers) GetEntityStats(c *gin.Context) {
	entityID, err := h.resolveEntityID(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			apiErr := apierrors.NotFound("entity")
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
			return
		}
		apiErr := apierrors.InternalError("failed to load entity")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	key := querycache.Key{Namespace: querycache.NamespaceEntityStats, ID: entityID}
	data, err := h.qc.GetOrFetch(c.Request.Context(), key, func(ctx context.Context) (interface{}, error) {
		return h.statsFromStore(ctx, entityID)
	})
	if err != nil {
		apiErr := apierrors.InternalError("failed to load entity stats")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": data})
}

func (h *Handlers) statsFromStore(ctx context.Context, entityID string) (EntityStats, error) {
	var stats EntityStats

	var reviewCount int64
	var avgRating *float64
	row := h.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COUNT(*), AVG(rating)").
		Where("entity_id = ?", entityID).
		Row()
	if err := row.Scan(&reviewCount, &avgRating); err != nil {
		return stats, err
	}

	var postCount int64
	if err := h.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("entity_id = ?", entityID).
		Count(&postCount).Error; err != nil {
		return stats, err
	}

	stats.ReviewCount = int(reviewCount)
	stats.PostCount = int(postCount)
	if avgRating != nil {
		stats.AverageRating = *avgRating
	}
	return stats, nil
}

// ListEntities returns entities filtered by type and category. The
// category filter uses the PostgreSQL array-overlap operator on the
// categories column.
func (h *Handlers) ListEntities(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 20, 100)

	q := h.db.WithContext(c.Request.Context()).Model(&models.Entity{})
	if entityType := c.Query("type"); entityType != "" {
		q = q.Where("type = ?", entityType)
	}
	if categories := c.QueryArray("category"); len(categories) > 0 {
		q = q.Where("categories && ?", pq.Array(categories))
	}

	var entities []models.Entity
	if err := q.Order("review_count DESC").Limit(limit).Find(&entities).Error; err != nil {
		apiErr := apierrors.InternalError("failed to load entities")
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entities": entities})
}
