package tags

import (
	"context"
	"time"

	"github.com/commongroundz/backend/internal/events"
	"github.com/commongroundz/backend/internal/hashtag"
	"github.com/commongroundz/backend/internal/logger"
	"github.com/commongroundz/backend/internal/metrics"
	"go.uber.org/zap"
)

// opTimeout bounds every store round-trip. The platform default would be
// no timeout at all.
const opTimeout = 5 * time.Second

// Service runs the hashtag write path: extract, normalize, persist.
type Service struct {
	store Store
	bus   *events.Bus
}

// NewService creates the tag processing service. bus may be nil when no
// subscriber cares about tag events (CLI tools).
func NewService(store Store, bus *events.Bus) *Service {
	return &Service{store: store, bus: bus}
}

// ProcessPostContent extracts hashtags from the post's text, ensures a
// Tag and association exist for each, and prunes associations for tags no
// longer present. Re-processing identical content is idempotent: counts
// and rows are unchanged.
//
// A failure on one tag is logged and the batch continues; the return
// value reports whether every tag persisted cleanly. Partial failure is
// never surfaced to the posting user.
func (s *Service) ProcessPostContent(ctx context.Context, postID, title, content string) bool {
	raws := hashtag.ExtractForStorage(title + " " + content)
	pairs := hashtag.NormalizePairs(raws)

	ok := true
	keepTagIDs := make([]string, 0, len(pairs))
	keys := make([]string, 0, len(pairs))

	// Tags are independent of each other, but for a single tag the
	// association write happens-before the usage-count decision.
	for _, pair := range pairs {
		tagID, err := s.processOne(ctx, postID, pair)
		if err != nil {
			logger.Error("Failed to persist hashtag",
				logger.WithPostID(postID),
				logger.WithTagKey(pair.Normalized),
				zap.Error(err),
			)
			metrics.Get().TagWriteFailures.WithLabelValues("persist").Inc()
			ok = false
			continue
		}
		keepTagIDs = append(keepTagIDs, tagID)
		keys = append(keys, pair.Normalized)
	}

	// Associations for tags edited out of the text are pruned. The
	// usage counter stays monotonic; it counts uses, not current links.
	if ok {
		pruneCtx, cancel := context.WithTimeout(ctx, opTimeout)
		if err := s.store.PruneAssociations(pruneCtx, postID, keepTagIDs); err != nil {
			logger.Error("Failed to prune stale associations",
				logger.WithPostID(postID),
				zap.Error(err),
			)
			metrics.Get().TagWriteFailures.WithLabelValues("prune").Inc()
			ok = false
		}
		cancel()
	}

	metrics.Get().TagsProcessed.Add(float64(len(pairs)))

	if s.bus != nil {
		s.bus.Publish(events.PostTagged{PostID: postID, Keys: keys})
	}

	return ok
}

// processOne ensures one tag and its association exist, incrementing the
// usage counter only when the association is newly created.
func (s *Service) processOne(ctx context.Context, postID string, pair hashtag.Pair) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tag, err := s.store.FindTagByNormalizedKey(opCtx, pair.Normalized)
	if err != nil {
		return "", err
	}
	if tag == nil {
		tag, err = s.store.CreateTag(opCtx, pair.Original, pair.Normalized)
		if err != nil {
			return "", err
		}
	}

	created, err := s.store.UpsertAssociation(opCtx, postID, tag.ID)
	if err != nil {
		return "", err
	}
	if created {
		if err := s.store.IncrementUsageCount(opCtx, tag.ID); err != nil {
			return "", err
		}
	}

	return tag.ID, nil
}
