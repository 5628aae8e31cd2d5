package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tandemhq/tandem-api/internal/entity"
)

// OpenTestDB opens an in-memory SQLite database with all tables migrated.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	// Single connection: every :memory: connection is its own database, and
	// it also serializes concurrent writers the way the production store does
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&entity.User{},
		&entity.GamificationRecord{},
		&entity.UserBadge{},
		&entity.PointEntry{},
		&entity.StreakEntry{},
		&entity.Journey{},
		&entity.JourneyProgress{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}
