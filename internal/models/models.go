package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// StringArray is a custom type for PostgreSQL text[] that implements Scanner and Valuer.
// Backed by pq so quoted elements (spaces, commas) round-trip intact.
type StringArray []string

// Scan implements the sql.Scanner interface for reading from database
func (a *StringArray) Scan(value interface{}) error {
	return pq.Array((*[]string)(a)).Scan(value)
}

// Value implements the driver.Valuer interface for writing to database
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return pq.Array([]string(a)).Value()
}

// User represents a Common Groundz account
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `gorm:"not null" json:"display_name"`
	Bio         string `gorm:"type:text" json:"bio"`
	AvatarURL   string `json:"avatar_url"`

	// Social stats (cached values, not source of truth - see social.Service)
	FollowerCount  int `gorm:"default:0" json:"follower_count"`
	FollowingCount int `gorm:"default:0" json:"following_count"`
	PostCount      int `gorm:"default:0" json:"post_count"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// EntityType categorizes the things users review
type EntityType string

const (
	EntityTypeBook    EntityType = "book"
	EntityTypeMovie   EntityType = "movie"
	EntityTypePlace   EntityType = "place"
	EntityTypeFood    EntityType = "food"
	EntityTypeProduct EntityType = "product"
)

// Entity represents a reviewable thing (book, movie, place, food, product)
type Entity struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	Slug        string     `gorm:"uniqueIndex;not null" json:"slug"`
	Type        EntityType `gorm:"not null;index" json:"type"`
	Description string     `gorm:"type:text" json:"description"`
	ImageURL    string     `json:"image_url"`
	Venue       string     `json:"venue,omitempty"` // For places/food: address or venue name

	Categories StringArray `gorm:"type:text[]" json:"categories"`

	// Aggregate stats (cached from reviews)
	ReviewCount   int     `gorm:"default:0" json:"review_count"`
	AverageRating float64 `gorm:"default:0" json:"average_rating"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Post represents user content about an entity (recommendation, story, free text)
type Post struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`

	EntityID *string `gorm:"type:uuid;index" json:"entity_id,omitempty"`
	Entity   *Entity `gorm:"foreignKey:EntityID" json:"entity,omitempty"`

	Title   string `json:"title"`
	Content string `gorm:"type:text;not null" json:"content"`

	Rating   *int `json:"rating,omitempty"` // 1-5, nil for non-review posts
	IsPublic bool `gorm:"default:true" json:"is_public"`

	// Engagement metrics (cached)
	LikeCount    int `gorm:"default:0" json:"like_count"`
	CommentCount int `gorm:"default:0" json:"comment_count"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Review represents a structured review of an entity
type Review struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string `gorm:"not null;index" json:"user_id"`
	User     User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	EntityID string `gorm:"not null;index;type:uuid" json:"entity_id"`
	Entity   Entity `gorm:"foreignKey:EntityID" json:"entity,omitempty"`

	Rating  int    `gorm:"not null" json:"rating"` // 1-5
	Title   string `json:"title"`
	Content string `gorm:"type:text" json:"content"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Tag represents a canonical hashtag, keyed by its normalized text
type Tag struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	DisplayText   string    `gorm:"not null" json:"display_text"`              // Original casing as first seen
	NormalizedKey string    `gorm:"uniqueIndex;not null" json:"normalized_key"` // Canonical lookup key
	UsageCount    int       `gorm:"default:0" json:"usage_count"`               // Monotonically non-decreasing
	LastUsedAt    time.Time `json:"last_used_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PostTag links posts to tags (many-to-many)
type PostTag struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	PostID    string    `gorm:"not null;index;uniqueIndex:idx_post_tags_unique" json:"post_id"`
	Post      Post      `gorm:"foreignKey:PostID" json:"post,omitempty"`
	TagID     string    `gorm:"not null;index;uniqueIndex:idx_post_tags_unique" json:"tag_id"`
	Tag       Tag       `gorm:"foreignKey:TagID" json:"tag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Follow represents one user following another
type Follow struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	FollowerID string `gorm:"not null;index;uniqueIndex:idx_follows_unique" json:"follower_id"`
	Follower   User   `gorm:"foreignKey:FollowerID" json:"follower,omitempty"`
	FolloweeID string `gorm:"not null;index;uniqueIndex:idx_follows_unique" json:"followee_id"`
	Followee   User   `gorm:"foreignKey:FolloweeID" json:"followee,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate hooks for GORM

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = generateUUID()
	}
	return nil
}

func (e *Entity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = generateUUID()
	}
	return nil
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

func (r *Review) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateUUID()
	}
	return nil
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = generateUUID()
	}
	if t.LastUsedAt.IsZero() {
		t.LastUsedAt = time.Now().UTC()
	}
	return nil
}

func (pt *PostTag) BeforeCreate(tx *gorm.DB) error {
	if pt.ID == "" {
		pt.ID = generateUUID()
	}
	return nil
}

func (f *Follow) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = generateUUID()
	}
	return nil
}

// Helper function for UUID generation
func generateUUID() string {
	return uuid.New().String()
}
