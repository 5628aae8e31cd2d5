package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tandemhq/tandem-api/internal/entity"
	"github.com/tandemhq/tandem-api/internal/keylock"
	"github.com/tandemhq/tandem-api/internal/modules/broadcast"
	"github.com/tandemhq/tandem-api/internal/modules/journey/repository"
	"github.com/tandemhq/tandem-api/pkg/apperror"
)

type JourneyService interface {
	// Start is get-or-create: a (user, journey) progress record is never
	// duplicated, even under concurrent first-time starts.
	Start(ctx context.Context, userID, journeyID uuid.UUID) (*entity.JourneyProgress, error)
	Get(ctx context.Context, userID, journeyID uuid.UUID) (*entity.JourneyProgress, error)
	// AdvanceDay completes the caller's current day with a reflection and,
	// when a partner link exists, flags the partner's record in the same
	// atomic batch. Broadcasts to both sides after commit.
	AdvanceDay(ctx context.Context, userID, journeyID uuid.UUID, dayNumber int, reflection string) (*entity.JourneyProgress, error)
	// AcknowledgeSync clears the pending partner flag once the caller has
	// seen the partner's activity.
	AcknowledgeSync(ctx context.Context, userID, journeyID uuid.UUID) (*entity.JourneyProgress, error)
}

type journeyService struct {
	repo         repository.JourneyRepository
	broadcaster  broadcast.Broadcaster
	locks        *keylock.KeyedMutex
	storeTimeout time.Duration
}

func NewJourneyService(repo repository.JourneyRepository, broadcaster broadcast.Broadcaster, storeTimeout time.Duration) JourneyService {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &journeyService{
		repo:         repo,
		broadcaster:  broadcaster,
		locks:        keylock.New(),
		storeTimeout: storeTimeout,
	}
}

func progressKey(userID, journeyID uuid.UUID) string {
	return userID.String() + ":" + journeyID.String()
}

func (s *journeyService) Start(ctx context.Context, userID, journeyID uuid.UUID) (*entity.JourneyProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if _, err := s.repo.GetJourney(ctx, journeyID); err != nil {
		return nil, mapStoreErr(err)
	}

	partnerID, err := s.repo.PartnerOf(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	progress, err := s.repo.GetOrCreateProgress(ctx, userID, journeyID, partnerID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return progress, nil
}

func (s *journeyService) Get(ctx context.Context, userID, journeyID uuid.UUID) (*entity.JourneyProgress, error) {
	return s.repo.GetProgress(ctx, userID, journeyID)
}

func (s *journeyService) AdvanceDay(ctx context.Context, userID, journeyID uuid.UUID, dayNumber int, reflection string) (*entity.JourneyProgress, error) {
	if strings.TrimSpace(reflection) == "" {
		return nil, fmt.Errorf("%w: reflection must not be empty", apperror.ErrValidation)
	}
	if dayNumber < 1 {
		return nil, fmt.Errorf("%w: day number must be positive", apperror.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	now := time.Now().UTC()

	// Serialize per (user, journey); unlock before broadcasting so a slow
	// subscriber cannot stall the next advance
	unlock := s.locks.Lock(progressKey(userID, journeyID))
	progress, partnerNotified, err := s.repo.AdvanceDay(ctx, userID, journeyID, dayNumber, reflection, now)
	unlock()
	if err != nil {
		return nil, mapStoreErr(err)
	}

	go s.broadcaster.Publish(context.Background(), userID, broadcast.Update{
		Type: broadcast.TypeJourneyUpdate,
		Body: progress,
	})
	if partnerNotified && progress.PartnerID != nil {
		go s.broadcaster.Publish(context.Background(), *progress.PartnerID, broadcast.Update{
			Type: broadcast.TypeJourneyUpdate,
			Body: map[string]interface{}{
				"journey_id":            journeyID,
				"partner_sync_status":   entity.SyncStatusPending,
				"last_partner_activity": now,
			},
		})
	}

	return progress, nil
}

func (s *journeyService) AcknowledgeSync(ctx context.Context, userID, journeyID uuid.UUID) (*entity.JourneyProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	unlock := s.locks.Lock(progressKey(userID, journeyID))
	progress, err := s.repo.AcknowledgeSync(ctx, userID, journeyID)
	unlock()
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return progress, nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.ErrTimeout
	}
	return err
}
