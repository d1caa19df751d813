package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/commongroundz/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the database connection
var DB *gorm.DB

// Initialize creates and configures the database connection
func Initialize(databaseURL string) error {
	// Configure GORM logger
	gormLogger := logger.Default
	if os.Getenv("ENVIRONMENT") == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db
	log.Println("✅ Database connected successfully")

	return nil
}

// Migrate runs auto-migration for all models
func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	// Enable UUID extension for PostgreSQL
	err := DB.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
	if err != nil {
		log.Printf("Warning: Could not create uuid-ossp extension: %v", err)
	}

	err = DB.AutoMigrate(
		&models.User{},
		&models.Entity{},
		&models.Post{},
		&models.Review{},
		&models.Tag{},
		&models.PostTag{},
		&models.Follow{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("✅ Database migrations completed")
	return nil
}

// createIndexes creates performance indexes
func createIndexes() error {
	// User indexes
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))")

	// Entity indexes for lookup and stats queries
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_entities_slug ON entities (slug)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_entities_type ON entities (type)")

	// Post indexes for feed queries
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_posts_user_created ON posts (user_id, created_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_posts_entity_created ON posts (entity_id, created_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_posts_public_created ON posts (is_public, created_at DESC)")

	// Review indexes for entity stats
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_reviews_entity_created ON reviews (entity_id, created_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_reviews_user ON reviews (user_id)")

	// Tag indexes for normalized lookup and trending queries
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_tags_normalized_key ON tags (normalized_key)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_tags_usage_count ON tags (usage_count DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_post_tags_post ON post_tags (post_id)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_post_tags_tag ON post_tags (tag_id)")
	DB.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_post_tags_unique ON post_tags (post_id, tag_id)")

	// Follow indexes for count queries in both directions
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_follows_follower ON follows (follower_id)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_follows_followee ON follows (followee_id)")
	DB.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_follows_unique ON follows (follower_id, followee_id)")

	return nil
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Health checks database connectivity
func Health() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}
