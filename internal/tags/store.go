package tags

import (
	"context"
	"time"

	"github.com/commongroundz/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence boundary for tags. The backing database is
// treated as an opaque service. UpsertAssociation makes the idempotency
// contract explicit: inserting an association that already exists is a
// success path that reports created=false, never an error.
type Store interface {
	// FindTagByNormalizedKey returns (nil, nil) when no tag matches.
	FindTagByNormalizedKey(ctx context.Context, key string) (*models.Tag, error)
	CreateTag(ctx context.Context, displayText, normalizedKey string) (*models.Tag, error)
	UpsertAssociation(ctx context.Context, postID, tagID string) (created bool, err error)
	IncrementUsageCount(ctx context.Context, tagID string) error
	// PruneAssociations removes associations for the post whose tag is
	// not in keepTagIDs. An empty keepTagIDs removes them all.
	PruneAssociations(ctx context.Context, postID string, keepTagIDs []string) error
	QueryRelatedTags(ctx context.Context, normalizedKey string, limit int) ([]models.Tag, error)
	QueryTrendingTags(ctx context.Context, limit int) ([]models.Tag, error)
}

// GormStore implements Store against the GORM connection
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a tag store backed by the given database handle
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindTagByNormalizedKey(ctx context.Context, key string) (*models.Tag, error) {
	var tag models.Tag
	err := s.db.WithContext(ctx).First(&tag, "normalized_key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// CreateTag inserts a new tag with usage_count 0. Two concurrent creates
// for the same key can race on the unique index; the loser re-reads and
// returns the winner's row.
func (s *GormStore) CreateTag(ctx context.Context, displayText, normalizedKey string) (*models.Tag, error) {
	tag := models.Tag{
		DisplayText:   displayText,
		NormalizedKey: normalizedKey,
		UsageCount:    0,
		LastUsedAt:    time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&tag).Error; err != nil {
		// Likely a unique violation from a concurrent create - the
		// existing row is the canonical tag either way
		if existing, findErr := s.FindTagByNormalizedKey(ctx, normalizedKey); findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return &tag, nil
}

// UpsertAssociation is an insert-if-absent on (post_id, tag_id)
func (s *GormStore) UpsertAssociation(ctx context.Context, postID, tagID string) (bool, error) {
	assoc := models.PostTag{
		PostID: postID,
		TagID:  tagID,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "tag_id"}},
			DoNothing: true,
		}).
		Create(&assoc)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) IncrementUsageCount(ctx context.Context, tagID string) error {
	return s.db.WithContext(ctx).
		Model(&models.Tag{}).
		Where("id = ?", tagID).
		UpdateColumns(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": time.Now().UTC(),
		}).Error
}

func (s *GormStore) PruneAssociations(ctx context.Context, postID string, keepTagIDs []string) error {
	q := s.db.WithContext(ctx).Where("post_id = ?", postID)
	if len(keepTagIDs) > 0 {
		q = q.Where("tag_id NOT IN ?", keepTagIDs)
	}
	return q.Delete(&models.PostTag{}).Error
}

// QueryRelatedTags finds tags co-occurring on posts that carry the given
// tag, most frequent co-occurrence first.
func (s *GormStore) QueryRelatedTags(ctx context.Context, normalizedKey string, limit int) ([]models.Tag, error) {
	var related []models.Tag
	err := s.db.WithContext(ctx).
		Model(&models.Tag{}).
		Select("tags.*, COUNT(*) AS co_count").
		Joins("JOIN post_tags pt ON pt.tag_id = tags.id").
		Where("pt.post_id IN (?)",
			s.db.Model(&models.PostTag{}).
				Select("post_tags.post_id").
				Joins("JOIN tags t2 ON t2.id = post_tags.tag_id").
				Where("t2.normalized_key = ?", normalizedKey),
		).
		Where("tags.normalized_key != ?", normalizedKey).
		Group("tags.id").
		Order("co_count DESC").
		Limit(limit).
		Find(&related).Error
	if err != nil {
		return nil, err
	}
	return related, nil
}

// QueryTrendingTags returns the globally most-used tags. Ties break on
// recency, then key, so results are deterministic.
func (s *GormStore) QueryTrendingTags(ctx context.Context, limit int) ([]models.Tag, error) {
	var trending []models.Tag
	err := s.db.WithContext(ctx).
		Model(&models.Tag{}).
		Where("usage_count > 0").
		Order("usage_count DESC, last_used_at DESC, normalized_key ASC").
		Limit(limit).
		Find(&trending).Error
	if err != nil {
		return nil, err
	}
	return trending, nil
}
