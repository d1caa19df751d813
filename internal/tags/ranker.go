package tags

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/commongroundz/backend/internal/cache"
	"github.com/commongroundz/backend/internal/hashtag"
	"github.com/commongroundz/backend/internal/logger"
	"github.com/commongroundz/backend/internal/metrics"
	"github.com/commongroundz/backend/internal/models"
	"go.uber.org/zap"
)

// trendingCacheTTL is short: trending shifts by the minute and staleness
// is cheap here.
const trendingCacheTTL = 5 * time.Minute

// Ranker serves the discovery read path: tags related to a current tag,
// backfilled from global trending. All failures degrade to fewer or no
// suggestions; the caller never sees an error.
type Ranker struct {
	store Store
	redis *cache.RedisClient
}

// NewRanker creates a ranker. redis may be nil; trending is then fetched
// from the store on every call.
func NewRanker(store Store, redis *cache.RedisClient) *Ranker {
	return &Ranker{store: store, redis: redis}
}

// RelatedOrTrending returns up to limit tags for discovery around the
// current tag: related (co-occurrence) first, trending as backfill, no
// duplicates, never the current tag itself.
func (r *Ranker) RelatedOrTrending(ctx context.Context, currentTag string, limit int) []models.Tag {
	if limit <= 0 {
		return nil
	}
	currentKey := hashtag.Normalize(currentTag)

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// Overfetch so filtering the current tag and duplicates still
	// leaves enough candidates.
	related, err := r.store.QueryRelatedTags(opCtx, currentKey, 2*limit)
	if err != nil {
		logger.Warn("Related tags fetch failed, degrading to trending only",
			logger.WithTagKey(currentKey),
			zap.Error(err),
		)
		related = nil
	}

	seen := map[string]bool{currentKey: true}
	results := make([]models.Tag, 0, limit)
	for _, tag := range related {
		if seen[tag.NormalizedKey] {
			continue
		}
		seen[tag.NormalizedKey] = true
		results = append(results, tag)
	}

	if len(results) < limit {
		metrics.Get().RankerBackfills.Inc()
		for _, tag := range r.Trending(ctx, 2*limit) {
			if len(results) >= limit {
				break
			}
			if seen[tag.NormalizedKey] {
				continue
			}
			seen[tag.NormalizedKey] = true
			results = append(results, tag)
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Trending returns the globally most-used tags, redis-cached. A fetch
// failure yields an empty slice, not an error.
func (r *Ranker) Trending(ctx context.Context, limit int) []models.Tag {
	cacheKey := fmt.Sprintf("tags:trending:%d", limit)

	if r.redis != nil {
		if raw, err := r.redis.Get(ctx, cacheKey); err == nil {
			var cached []models.Tag
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				metrics.Get().CacheHitsTotal.WithLabelValues("trending_tags").Inc()
				return cached
			}
		} else if !cache.IsNil(err) {
			logger.DebugWithFields("Trending cache read failed", zap.Error(err))
		}
		metrics.Get().CacheMissesTotal.WithLabelValues("trending_tags").Inc()
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	trending, err := r.store.QueryTrendingTags(opCtx, limit)
	if err != nil {
		logger.Warn("Trending tags fetch failed", zap.Error(err))
		return nil
	}

	if r.redis != nil && len(trending) > 0 {
		if raw, err := json.Marshal(trending); err == nil {
			if err := r.redis.SetEx(ctx, cacheKey, raw, trendingCacheTTL); err != nil {
				logger.DebugWithFields("Trending cache write failed", zap.Error(err))
			}
		}
	}

	return trending
}
