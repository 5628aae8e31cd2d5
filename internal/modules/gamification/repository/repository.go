package repository

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tandemhq/tandem-api/internal/entity"
	"github.com/tandemhq/tandem-api/pkg/apperror"
)

const (
	maxApplyAttempts = 5
	baseBackoff      = 10 * time.Millisecond
)

var errVersionConflict = errors.New("version conflict")

// Change carries the append-only rows a mutation produced. They commit in
// the same transaction as the record update, so history order matches commit
// order.
type Change struct {
	PointEntries  []entity.PointEntry
	StreakEntries []entity.StreakEntry
	NewBadges     []entity.UserBadge
}

// MutateFunc maps the current record to its next state. It must be pure: it
// may be re-invoked against a fresh snapshot on version conflict.
type MutateFunc func(rec *entity.GamificationRecord) (*Change, error)

type GamificationRepository interface {
	// Apply performs an atomic read-modify-write of one user's record.
	// Concurrent calls for the same user never interleave: conflicting
	// writes are detected on the version column, re-read and re-applied,
	// bounded to maxApplyAttempts before ErrConcurrencyExhausted.
	Apply(ctx context.Context, userID uuid.UUID, mutate MutateFunc) (*entity.GamificationRecord, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*entity.GamificationRecord, error)
	GetBadges(ctx context.Context, userID uuid.UUID) ([]entity.UserBadge, error)
	// StaleStreakUsers lists users with a live streak and no qualifying
	// activity since the cutoff. Feeds the scheduled streak sweep.
	StaleStreakUsers(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

type gamificationRepository struct {
	db *gorm.DB
}

func NewGamificationRepository(db *gorm.DB) GamificationRepository {
	return &gamificationRepository{db: db}
}

func (r *gamificationRepository) Apply(ctx context.Context, userID uuid.UUID, mutate MutateFunc) (*entity.GamificationRecord, error) {
	for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
		rec, err := r.getOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}

		change, err := mutate(rec)
		if err != nil {
			return nil, err
		}

		// Invariant holds after every write, regardless of what the
		// mutation did
		if rec.CurrentStreak > rec.LongestStreak {
			rec.LongestStreak = rec.CurrentStreak
		}
		if rec.Points < 0 {
			rec.Points = 0
		}

		err = r.commit(ctx, rec, change)
		if err == nil {
			rec.Version++
			if change != nil {
				rec.Badges = append(rec.Badges, change.NewBadges...)
			}
			return rec, nil
		}
		if !errors.Is(err, errVersionConflict) {
			return nil, err
		}

		// Conflict: back off with jitter, then re-read and re-apply
		backoff := time.Duration(rand.Int63n(int64(baseBackoff) * int64(attempt)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, apperror.ErrConcurrencyExhausted
}

func (r *gamificationRepository) commit(ctx context.Context, rec *entity.GamificationRecord, change *Change) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.GamificationRecord{}).
			Where("user_id = ? AND version = ?", rec.UserID, rec.Version).
			Updates(map[string]interface{}{
				"points":                  rec.Points,
				"current_streak":          rec.CurrentStreak,
				"longest_streak":          rec.LongestStreak,
				"daily_responses":         rec.DailyResponses,
				"total_quizzes_completed": rec.TotalQuizzesCompleted,
				"perfect_scores":          rec.PerfectScores,
				"mood_entries":            rec.MoodEntries,
				"quiz_categories":         rec.QuizCategories,
				"last_activity_at":        rec.LastActivityAt,
				"version":                 rec.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errVersionConflict
		}

		if change == nil {
			return nil
		}
		if len(change.PointEntries) > 0 {
			if err := tx.Create(&change.PointEntries).Error; err != nil {
				return err
			}
		}
		if len(change.StreakEntries) > 0 {
			if err := tx.Create(&change.StreakEntries).Error; err != nil {
				return err
			}
		}
		if len(change.NewBadges) > 0 {
			if err := tx.Create(&change.NewBadges).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// getOrCreate lazily creates the record with zeroed counters on a user's
// first gamification-relevant event. The conditional create keeps it unique
// under concurrent first events.
func (r *gamificationRepository) getOrCreate(ctx context.Context, userID uuid.UUID) (*entity.GamificationRecord, error) {
	rec, err := r.fetch(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &entity.GamificationRecord{
		UserID:         userID,
		QuizCategories: entity.StringList{},
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(fresh).Error; err != nil {
		return nil, err
	}

	return r.fetch(ctx, userID)
}

func (r *gamificationRepository) fetch(ctx context.Context, userID uuid.UUID) (*entity.GamificationRecord, error) {
	var rec entity.GamificationRecord
	err := r.db.WithContext(ctx).
		Preload("Badges").
		First(&rec, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gamificationRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*entity.GamificationRecord, error) {
	rec, err := r.fetch(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	return rec, err
}

func (r *gamificationRepository) GetBadges(ctx context.Context, userID uuid.UUID) ([]entity.UserBadge, error) {
	var badges []entity.UserBadge
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("earned_at ASC").
		Find(&badges).Error
	return badges, err
}

func (r *gamificationRepository) StaleStreakUsers(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&entity.GamificationRecord{}).
		Where("current_streak > 0 AND last_activity_at < ?", cutoff).
		Pluck("user_id", &ids).Error
	return ids, err
}
