package bootstrap

import (
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tandemhq/tandem-api/internal/entity"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.GamificationRecord{},
		&entity.UserBadge{},
		&entity.PointEntry{},
		&entity.StreakEntry{},
		&entity.Journey{},
		&entity.JourneyProgress{},
	)
}

// SeedJourneys installs the journey catalog. Idempotent on slug.
func SeedJourneys(db *gorm.DB) error {
	catalog := []entity.Journey{
		{Slug: "communication-reset", Title: "7-Day Communication Reset", DurationDays: 7},
		{Slug: "gratitude-sprint", Title: "5-Day Gratitude Sprint", DurationDays: 5},
		{Slug: "deeper-together", Title: "30 Days Deeper Together", DurationDays: 30},
	}

	for _, journey := range catalog {
		var count int64
		if err := db.Model(&entity.Journey{}).
			Where("slug = ?", journey.Slug).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			if err := db.Create(&journey).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

// SeedDemoCouple creates two linked partner accounts for local development.
func SeedDemoCouple(db *gorm.DB) error {
	var count int64
	if err := db.Model(&entity.User{}).
		Where("username IN ?", []string{"demo_ana", "demo_ben"}).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	ana := entity.User{ID: uuid.New(), Username: "demo_ana"}
	ben := entity.User{ID: uuid.New(), Username: "demo_ben"}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ana).Error; err != nil {
			return err
		}
		if err := tx.Create(&ben).Error; err != nil {
			return err
		}
		if err := tx.Model(&entity.User{}).Where("id = ?", ana.ID).
			Update("partner_id", ben.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(&entity.User{}).Where("id = ?", ben.ID).
			Update("partner_id", ana.ID).Error; err != nil {
			return err
		}
		log.Printf("Seeded demo couple: %s <-> %s", ana.ID, ben.ID)
		return nil
	})
}
