package database

import (
	"fmt"
	"time"

	"github.com/blastsocial/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the database connection
var DB *gorm.DB

// Initialize creates and configures the database connection.
// The handle is returned so callers can inject it into services; the
// package variable exists for the CLI and migrations.
func Initialize(dsn string, environment string) (*gorm.DB, error) {
	gormLogger := logger.Default
	if environment == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db
	return db, nil
}

// Migrate runs auto-migration for all models
func Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	err := db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.PostVote{},
		&models.Follower{},
		&models.Tag{},
		&models.PostTag{},
		&models.PostComment{},
		&models.Notification{},
		&models.UserSettings{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createIndexes creates performance indexes
func createIndexes(db *gorm.DB) error {
	// User indexes
	db.Exec("CREATE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_users_popularity ON users (popularity DESC)")

	// Post indexes for ranking rebuilds and the expiry sweep
	db.Exec("CREATE INDEX IF NOT EXISTS idx_posts_user_expires ON posts (user_id, expires_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_posts_expires ON posts (expires_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_posts_popularity ON posts ((voted_count - downvoted_count) DESC, id DESC)")

	// Vote and follow edges
	db.Exec("CREATE INDEX IF NOT EXISTS idx_post_votes_post ON post_votes (post_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_followers_follower ON followers (follower_id)")

	// Tag joins
	db.Exec("CREATE INDEX IF NOT EXISTS idx_post_tags_tag ON post_tags (tag_title)")

	// Notifications
	db.Exec("CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications (user_id, created_at DESC)")

	return nil
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Health checks database connectivity
func Health(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}
