package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tandemhq/tandem-api/internal/entity"
	"github.com/tandemhq/tandem-api/internal/modules/broadcast"
	"github.com/tandemhq/tandem-api/internal/modules/gamification/repository"
	"github.com/tandemhq/tandem-api/pkg/apperror"
)

const (
	KindPointsAward   = "points_award"
	KindQuizCompleted = "quiz_completed"
	KindDailyResponse = "daily_response"
	KindMoodTracked   = "mood_tracked"

	PointsDailyResponse = 10
	PointsQuizCompleted = 20
	PointsMoodTracked   = 5
	PointsStreakBonus   = 5
	PointsBadgeBonus    = 25
)

// Activity is one qualifying event entering the engine. The CRUD layer has
// already authenticated the caller and translated the transport call into
// this shape.
type Activity struct {
	Kind         string
	Points       int
	QuizCategory string
	PerfectScore bool
}

type ActivityResult struct {
	Record        *entity.GamificationRecord `json:"record"`
	NewBadges     []entity.BadgeType         `json:"new_badges"`
	PointsAwarded int                        `json:"points_awarded"`
}

type GamificationService interface {
	// RecordActivity runs the full award pipeline: validate, mutate stats,
	// advance streak, evaluate badges, persist, broadcast. The broadcast is
	// best-effort and never fails the request.
	RecordActivity(ctx context.Context, userID uuid.UUID, act Activity) (*ActivityResult, error)
	GetStats(ctx context.Context, userID uuid.UUID) (*entity.GamificationRecord, error)
	GetBadges(ctx context.Context, userID uuid.UUID) ([]entity.UserBadge, error)
	// ResetStreak is the entry point for the scheduled sweep; it zeroes the
	// streak without touching points or counters.
	ResetStreak(ctx context.Context, userID uuid.UUID) error
	SweepStaleStreaks(ctx context.Context) (int, error)
}

type gamificationService struct {
	repo         repository.GamificationRepository
	broadcaster  broadcast.Broadcaster
	storeTimeout time.Duration
}

func NewGamificationService(repo repository.GamificationRepository, broadcaster broadcast.Broadcaster, storeTimeout time.Duration) GamificationService {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &gamificationService{
		repo:         repo,
		broadcaster:  broadcaster,
		storeTimeout: storeTimeout,
	}
}

func defaultPoints(kind string) int {
	switch kind {
	case KindDailyResponse:
		return PointsDailyResponse
	case KindQuizCompleted:
		return PointsQuizCompleted
	case KindMoodTracked:
		return PointsMoodTracked
	default:
		return 0
	}
}

func sourceForKind(kind string) entity.PointSource {
	if kind == KindQuizCompleted {
		return entity.SourceQuizCompletion
	}
	return entity.SourcePromptResponse
}

func (s *gamificationService) RecordActivity(ctx context.Context, userID uuid.UUID, act Activity) (*ActivityResult, error) {
	switch act.Kind {
	case KindPointsAward, KindQuizCompleted, KindDailyResponse, KindMoodTracked:
	default:
		return nil, fmt.Errorf("%w: unknown activity kind %q", apperror.ErrValidation, act.Kind)
	}
	if act.Points < 0 {
		return nil, fmt.Errorf("%w: points must not be negative", apperror.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var (
		newBadges     []entity.BadgeType
		pointsAwarded int
	)

	rec, err := s.repo.Apply(ctx, userID, func(rec *entity.GamificationRecord) (*repository.Change, error) {
		// Reset captured state: the mutation reruns on version conflict
		newBadges = nil
		pointsAwarded = 0

		now := time.Now().UTC()
		change := &repository.Change{}

		award := func(delta int, source entity.PointSource) {
			if delta == 0 {
				return
			}
			rec.Points += delta
			pointsAwarded += delta
			change.PointEntries = append(change.PointEntries, entity.PointEntry{
				UserID:    userID,
				Delta:     delta,
				Source:    source,
				CreatedAt: now,
			})
		}

		newStreak := AdvanceStreak(rec.LastActivityAt, now, rec.CurrentStreak)
		streakExtended := newStreak > rec.CurrentStreak

		switch act.Kind {
		case KindDailyResponse:
			rec.DailyResponses++
		case KindQuizCompleted:
			rec.TotalQuizzesCompleted++
			if act.PerfectScore {
				rec.PerfectScores++
			}
			rec.AddQuizCategory(act.QuizCategory)
		case KindMoodTracked:
			rec.MoodEntries++
		}

		base := act.Points
		if base == 0 {
			base = defaultPoints(act.Kind)
		}
		award(base, sourceForKind(act.Kind))

		if streakExtended && newStreak > 1 {
			award(PointsStreakBonus, entity.SourceStreakBonus)
		}

		if newStreak != rec.CurrentStreak {
			change.StreakEntries = append(change.StreakEntries, entity.StreakEntry{
				UserID:      userID,
				StreakValue: newStreak,
				CreatedAt:   now,
			})
		}
		rec.CurrentStreak = newStreak
		rec.LastActivityAt = &now

		for _, badgeType := range EvaluateBadges(rec) {
			newBadges = append(newBadges, badgeType)
			change.NewBadges = append(change.NewBadges, entity.UserBadge{
				UserID:   userID,
				Type:     badgeType,
				EarnedAt: now,
			})
			award(PointsBadgeBonus, entity.SourceBadgeEarned)
		}

		return change, nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	result := &ActivityResult{
		Record:        rec,
		NewBadges:     newBadges,
		PointsAwarded: pointsAwarded,
	}

	// Terminal step, after commit, outside any lock and off the request
	// deadline
	go s.broadcaster.Publish(context.Background(), userID, broadcast.Update{
		Type: broadcast.TypeGamificationUpdate,
		Body: result,
	})

	return result, nil
}

func (s *gamificationService) GetStats(ctx context.Context, userID uuid.UUID) (*entity.GamificationRecord, error) {
	return s.repo.GetByUserID(ctx, userID)
}

func (s *gamificationService) GetBadges(ctx context.Context, userID uuid.UUID) ([]entity.UserBadge, error) {
	return s.repo.GetBadges(ctx, userID)
}

func (s *gamificationService) ResetStreak(ctx context.Context, userID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	rec, err := s.repo.Apply(ctx, userID, func(rec *entity.GamificationRecord) (*repository.Change, error) {
		if rec.CurrentStreak == 0 {
			return nil, nil
		}
		rec.CurrentStreak = 0
		return &repository.Change{
			StreakEntries: []entity.StreakEntry{{
				UserID:      userID,
				StreakValue: 0,
				CreatedAt:   time.Now().UTC(),
			}},
		}, nil
	})
	if err != nil {
		return mapStoreErr(err)
	}

	go s.broadcaster.Publish(context.Background(), userID, broadcast.Update{
		Type: broadcast.TypeGamificationUpdate,
		Body: &ActivityResult{Record: rec},
	})

	return nil
}

// SweepStaleStreaks resets every streak whose owner had no qualifying
// activity in the prior UTC day window. Invoked from the server's background
// ticker.
func (s *gamificationService) SweepStaleStreaks(ctx context.Context) (int, error) {
	cutoff := StartOfPreviousUTCDay(time.Now())
	userIDs, err := s.repo.StaleStreakUsers(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, userID := range userIDs {
		if err := s.ResetStreak(ctx, userID); err != nil {
			log.Printf("streak sweep: failed to reset user %s: %v", userID, err)
			continue
		}
		reset++
	}
	return reset, nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.ErrTimeout
	}
	return err
}
