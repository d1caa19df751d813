// Package social manages the follow graph and follower/following counts.
// Counts are served through the query cache; follow mutations apply an
// optimistic local delta tagged as pending, which the next authoritative
// read replaces wholesale.
package social

import (
	"context"
	"fmt"

	"github.com/commongroundz/backend/internal/events"
	"github.com/commongroundz/backend/internal/logger"
	"github.com/commongroundz/backend/internal/models"
	"github.com/commongroundz/backend/internal/querycache"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowCounts is the cached count pair for one user
type FollowCounts struct {
	Followers int  `json:"followers"`
	Following int  `json:"following"`
	Pending   bool `json:"-"` // provisional optimistic value, awaiting reconciliation
}

// Service handles follow mutations and count reads
type Service struct {
	db  *gorm.DB
	qc  *querycache.Cache
	bus *events.Bus
}

// NewService creates the social service
func NewService(db *gorm.DB, qc *querycache.Cache, bus *events.Bus) *Service {
	return &Service{db: db, qc: qc, bus: bus}
}

// Follow makes follower follow followee. Following someone already
// followed is a no-op success (created=false), not an error.
func (s *Service) Follow(ctx context.Context, followerID, followeeID string) (bool, error) {
	if followerID == followeeID {
		return false, fmt.Errorf("cannot follow yourself")
	}

	follow := models.Follow{
		FollowerID: followerID,
		FolloweeID: followeeID,
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "follower_id"}, {Name: "followee_id"}},
			DoNothing: true,
		}).
		Create(&follow)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	s.adjustUserCounters(ctx, followerID, followeeID, +1)
	s.applyOptimisticDelta(followerID, 0, +1)
	s.applyOptimisticDelta(followeeID, +1, 0)

	s.bus.Publish(events.FollowChanged{
		FollowerID: followerID,
		FolloweeID: followeeID,
		Following:  true,
	})
	return true, nil
}

// Unfollow removes the follow edge. Unfollowing someone not followed is a
// no-op success (removed=false).
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&models.Follow{})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	s.adjustUserCounters(ctx, followerID, followeeID, -1)
	s.applyOptimisticDelta(followerID, 0, -1)
	s.applyOptimisticDelta(followeeID, -1, 0)

	s.bus.Publish(events.FollowChanged{
		FollowerID: followerID,
		FolloweeID: followeeID,
		Following:  false,
	})
	return true, nil
}

// FollowCounts returns the user's counts via the query cache. The fetch
// recomputes from the follows table, so any pending optimistic value is
// replaced by authoritative data when the refetch lands.
func (s *Service) FollowCounts(ctx context.Context, userID string) (FollowCounts, error) {
	key := querycache.Key{Namespace: querycache.NamespaceFollowCounts, ID: userID}

	data, err := s.qc.GetOrFetch(ctx, key, func(ctx context.Context) (interface{}, error) {
		return s.countFromStore(ctx, userID)
	})
	if err != nil {
		return FollowCounts{}, err
	}
	counts, ok := data.(FollowCounts)
	if !ok {
		return FollowCounts{}, fmt.Errorf("unexpected cached type %T for follow counts", data)
	}
	return counts, nil
}

// countFromStore is the authoritative count query
func (s *Service) countFromStore(ctx context.Context, userID string) (FollowCounts, error) {
	var followers, following int64
	if err := s.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("followee_id = ?", userID).
		Count(&followers).Error; err != nil {
		return FollowCounts{}, err
	}
	if err := s.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Count(&following).Error; err != nil {
		return FollowCounts{}, err
	}
	return FollowCounts{Followers: int(followers), Following: int(following)}, nil
}

// applyOptimisticDelta adjusts the cached counts for userID before the
// store round-trip confirms. The adjusted value is stored provisional: it
// serves immediately but the next read refetches and replaces it
// wholesale. A value already pending is left alone; stacking deltas on an
// adjusted value is how drift compounds.
func (s *Service) applyOptimisticDelta(userID string, dFollowers, dFollowing int) {
	key := querycache.Key{Namespace: querycache.NamespaceFollowCounts, ID: userID}

	cached, ok := s.qc.Peek(key)
	if !ok {
		return // nothing cached to adjust; next read is authoritative anyway
	}
	counts, ok := cached.(FollowCounts)
	if !ok || counts.Pending {
		return
	}

	counts.Followers += dFollowers
	counts.Following += dFollowing
	counts.Pending = true
	s.qc.PutProvisional(key, counts)
}

// adjustUserCounters keeps the denormalized columns on the users table in
// step. These are display caches, not the source of truth; a failure is
// logged and ignored.
func (s *Service) adjustUserCounters(ctx context.Context, followerID, followeeID string, delta int) {
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", followerID).
		UpdateColumn("following_count", gorm.Expr("following_count + ?", delta)).Error; err != nil {
		logger.Warn("Failed to adjust following_count",
			logger.WithUserID(followerID),
			zap.Error(err),
		)
	}
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", followeeID).
		UpdateColumn("follower_count", gorm.Expr("follower_count + ?", delta)).Error; err != nil {
		logger.Warn("Failed to adjust follower_count",
			logger.WithUserID(followeeID),
			zap.Error(err),
		)
	}
}

// IsFollowing reports whether follower follows followee
func (s *Service) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error
	return count > 0, err
}
