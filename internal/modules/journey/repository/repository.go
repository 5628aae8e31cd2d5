package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tandemhq/tandem-api/internal/entity"
	"github.com/tandemhq/tandem-api/pkg/apperror"
)

type JourneyRepository interface {
	GetJourney(ctx context.Context, journeyID uuid.UUID) (*entity.Journey, error)
	// PartnerOf reads the caller's partner link from the identity row.
	PartnerOf(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)
	// GetOrCreateProgress creates the (user, journey) record on first start.
	// The conditional create keeps the record unique under concurrent
	// first-time starts.
	GetOrCreateProgress(ctx context.Context, userID, journeyID uuid.UUID, partnerID *uuid.UUID) (*entity.JourneyProgress, error)
	GetProgress(ctx context.Context, userID, journeyID uuid.UUID) (*entity.JourneyProgress, error)
	// AdvanceDay commits the reflection, the day increment and, when a
	// partner record exists, the companion sync flag in ONE transaction.
	// Either everything lands or nothing does. The returned bool reports
	// whether the companion write landed.
	AdvanceDay(ctx context.Context, userID, journeyID uuid.UUID, dayNumber int, reflection string, now time.Time) (*entity.JourneyProgress, bool, error)
	AcknowledgeSync(ctx context.Context, userID, journeyID uuid.UUID) (*entity.JourneyProgress, error)
}

type journeyRepository struct {
	db *gorm.DB
}

func NewJourneyRepository(db *gorm.DB) JourneyRepository {
	return &journeyRepository{db: db}
}

func (r *journeyRepository) GetJourney(ctx context.Context, journeyID uuid.UUID) (*entity.Journey, error) {
	var journey entity.Journey
	err := r.db.WithContext(ctx).First(&journey, "id = ?", journeyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &journey, nil
}

func (r *journeyRepository) PartnerOf(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	var user entity.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user.PartnerID, nil
}

func (r *journeyRepository) GetOrCreateProgress(ctx context.Context, userID, journeyID uuid.UUID, partnerID *uuid.UUID) (*entity.JourneyProgress, error) {
	progress, err := r.GetProgress(ctx, userID, journeyID)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	fresh := &entity.JourneyProgress{
		UserID:      userID,
		JourneyID:   journeyID,
		CurrentDay:  1,
		Reflections: entity.ReflectionMap{},
		PartnerID:   partnerID,
		StartedAt:   time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(fresh).Error; err != nil {
		return nil, err
	}

	return r.GetProgress(ctx, userID, journeyID)
}

func (r *journeyRepository) GetProgress(ctx context.Context, userID, journeyID uuid.UUID) (*entity.JourneyProgress, error) {
	var progress entity.JourneyProgress
	err := r.db.WithContext(ctx).
		First(&progress, "user_id = ? AND journey_id = ?", userID, journeyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

func (r *journeyRepository) AdvanceDay(ctx context.Context, userID, journeyID uuid.UUID, dayNumber int, reflection string, now time.Time) (*entity.JourneyProgress, bool, error) {
	var (
		result          *entity.JourneyProgress
		partnerNotified bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var journey entity.Journey
		if err := tx.First(&journey, "id = ?", journeyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.ErrNotFound
			}
			return err
		}

		var progress entity.JourneyProgress
		if err := tx.First(&progress, "user_id = ? AND journey_id = ?", userID, journeyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.ErrNotFound
			}
			return err
		}

		if dayNumber != progress.CurrentDay {
			return fmt.Errorf("%w: submitted day %d, expected day %d",
				apperror.ErrInvalidDayTransition, dayNumber, progress.CurrentDay)
		}

		reflections := entity.ReflectionMap{}
		for day, ref := range progress.Reflections {
			reflections[day] = ref
		}
		reflections[dayNumber] = entity.Reflection{Content: reflection, CompletedAt: now}

		nextDay := progress.CurrentDay + 1
		updates := map[string]interface{}{
			"current_day": nextDay,
			"reflections": reflections,
			"version":     progress.Version + 1,
		}
		if nextDay > journey.DurationDays && progress.CompletedAt == nil {
			updates["completed_at"] = now
		}

		res := tx.Model(&entity.JourneyProgress{}).
			Where("user_id = ? AND journey_id = ? AND version = ?", userID, journeyID, progress.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Out-of-band writer slipped past the keyed lock
			return apperror.ErrConcurrencyExhausted
		}

		// Companion write, same batch. A missing partner record is not an
		// error: the partner simply has not started this journey yet.
		if progress.PartnerID != nil {
			res := tx.Model(&entity.JourneyProgress{}).
				Where("user_id = ? AND journey_id = ?", *progress.PartnerID, journeyID).
				Updates(map[string]interface{}{
					"partner_sync_status":   entity.SyncStatusPending,
					"last_partner_activity": now,
					"version":               gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			partnerNotified = res.RowsAffected > 0
		}

		progress.CurrentDay = nextDay
		progress.Reflections = reflections
		progress.Version++
		if completedAt, ok := updates["completed_at"].(time.Time); ok {
			progress.CompletedAt = &completedAt
		}
		result = &progress
		return nil
	})
	if err != nil {
		return nil, false, wrapCommitErr(err)
	}

	return result, partnerNotified, nil
}

func (r *journeyRepository) AcknowledgeSync(ctx context.Context, userID, journeyID uuid.UUID) (*entity.JourneyProgress, error) {
	progress, err := r.GetProgress(ctx, userID, journeyID)
	if err != nil {
		return nil, err
	}
	if progress.PartnerSyncStatus != entity.SyncStatusPending {
		return progress, nil
	}

	res := r.db.WithContext(ctx).Model(&entity.JourneyProgress{}).
		Where("user_id = ? AND journey_id = ? AND version = ?", userID, journeyID, progress.Version).
		Updates(map[string]interface{}{
			"partner_sync_status": entity.SyncStatusSynced,
			"version":             progress.Version + 1,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperror.ErrConcurrencyExhausted
	}

	progress.PartnerSyncStatus = entity.SyncStatusSynced
	progress.Version++
	return progress, nil
}

// wrapCommitErr keeps typed failures intact and folds everything else,
// including partial failures rolled back by the store, into ErrSyncFailed.
// ErrSyncFailed tells the caller nothing was retained and the request is
// safe to retry.
func wrapCommitErr(err error) error {
	switch {
	case errors.Is(err, apperror.ErrNotFound),
		errors.Is(err, apperror.ErrInvalidDayTransition),
		errors.Is(err, apperror.ErrConcurrencyExhausted),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", apperror.ErrSyncFailed, err)
	}
}
