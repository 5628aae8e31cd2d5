package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tandemhq/tandem-api/internal/entity"
	"github.com/tandemhq/tandem-api/internal/modules/broadcast"
	"github.com/tandemhq/tandem-api/internal/modules/journey/repository"
	"github.com/tandemhq/tandem-api/internal/testutil"
	"github.com/tandemhq/tandem-api/pkg/apperror"
)

type fixture struct {
	svc       JourneyService
	db        *gorm.DB
	fake      *testutil.FakeBroadcaster
	journeyID uuid.UUID
	userA     uuid.UUID
	userB     uuid.UUID
}

// newFixture seeds a 7-day journey and two linked partners.
func newFixture(t *testing.T) *fixture {
	db := testutil.OpenTestDB(t)
	fake := testutil.NewFakeBroadcaster()

	journey := entity.Journey{ID: uuid.New(), Slug: "test-journey", Title: "Test Journey", DurationDays: 7}
	require.NoError(t, db.Create(&journey).Error)

	userA := entity.User{ID: uuid.New(), Username: "ana"}
	userB := entity.User{ID: uuid.New(), Username: "ben"}
	require.NoError(t, db.Create(&userA).Error)
	require.NoError(t, db.Create(&userB).Error)
	require.NoError(t, db.Model(&entity.User{}).Where("id = ?", userA.ID).Update("partner_id", userB.ID).Error)
	require.NoError(t, db.Model(&entity.User{}).Where("id = ?", userB.ID).Update("partner_id", userA.ID).Error)

	return &fixture{
		svc:       NewJourneyService(repository.NewJourneyRepository(db), fake, 3*time.Second),
		db:        db,
		fake:      fake,
		journeyID: journey.ID,
		userA:     userA.ID,
		userB:     userB.ID,
	}
}

func (f *fixture) seedProgress(t *testing.T, userID uuid.UUID, partnerID *uuid.UUID, currentDay int) {
	t.Helper()
	reflections := entity.ReflectionMap{}
	for day := 1; day < currentDay; day++ {
		reflections[day] = entity.Reflection{Content: "done", CompletedAt: time.Now().UTC()}
	}
	require.NoError(t, f.db.Create(&entity.JourneyProgress{
		UserID:      userID,
		JourneyID:   f.journeyID,
		CurrentDay:  currentDay,
		Reflections: reflections,
		PartnerID:   partnerID,
		StartedAt:   time.Now().UTC(),
	}).Error)
}

func (f *fixture) loadProgress(t *testing.T, userID uuid.UUID) *entity.JourneyProgress {
	t.Helper()
	var progress entity.JourneyProgress
	require.NoError(t, f.db.First(&progress, "user_id = ? AND journey_id = ?", userID, f.journeyID).Error)
	return &progress
}

func TestStartCreatesProgressWithPartnerLink(t *testing.T) {
	f := newFixture(t)

	progress, err := f.svc.Start(context.Background(), f.userA, f.journeyID)
	require.NoError(t, err)

	assert.Equal(t, 1, progress.CurrentDay)
	require.NotNil(t, progress.PartnerID)
	assert.Equal(t, f.userB, *progress.PartnerID)
	assert.Empty(t, progress.Reflections)
}

func TestStartIsIdempotentUnderConcurrency(t *testing.T) {
	f := newFixture(t)

	const starters = 10
	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Start(context.Background(), f.userA, f.journeyID)
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, f.db.Model(&entity.JourneyProgress{}).
		Where("user_id = ? AND journey_id = ?", f.userA, f.journeyID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestStartUnknownJourney(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), f.userA, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAdvanceDayRejectsEmptyReflection(t *testing.T) {
	f := newFixture(t)
	f.seedProgress(t, f.userA, nil, 1)

	_, err := f.svc.AdvanceDay(context.Background(), f.userA, f.journeyID, 1, "   ")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	assert.Equal(t, 1, f.loadProgress(t, f.userA).CurrentDay)
}

// A advances day 3: A's record moves on and B's record carries the pending
// sync flag, committed in the same batch.
func TestAdvanceDayWithPartnerSync(t *testing.T) {
	f := newFixture(t)
	f.seedProgress(t, f.userA, &f.userB, 3)
	f.seedProgress(t, f.userB, &f.userA, 1)

	progress, err := f.svc.AdvanceDay(context.Background(), f.userA, f.journeyID, 3, "today we listened")
	require.NoError(t, err)

	assert.Equal(t, 4, progress.CurrentDay)
	assert.Equal(t, "today we listened", progress.Reflections[3].Content)
	assert.Nil(t, progress.CompletedAt)

	partner := f.loadProgress(t, f.userB)
	assert.Equal(t, entity.SyncStatusPending, partner.PartnerSyncStatus)
	assert.NotNil(t, partner.LastPartnerActivity)
	assert.Equal(t, 1, partner.CurrentDay) // untouched

	// Both sides get a live update
	first := f.fake.Wait(t, time.Second)
	second := f.fake.Wait(t, time.Second)
	recipients := []uuid.UUID{first.RecipientID, second.RecipientID}
	assert.ElementsMatch(t, []uuid.UUID{f.userA, f.userB}, recipients)
	assert.Equal(t, broadcast.TypeJourneyUpdate, first.Update.Type)
}

func TestAdvanceDayWithoutPartnerRecord(t *testing.T) {
	f := newFixture(t)
	// Partner linked, but B never started this journey
	f.seedProgress(t, f.userA, &f.userB, 1)

	progress, err := f.svc.AdvanceDay(context.Background(), f.userA, f.journeyID, 1, "first step")
	require.NoError(t, err)
	assert.Equal(t, 2, progress.CurrentDay)

	recorded := f.fake.Wait(t, time.Second)
	assert.Equal(t, f.userA, recorded.RecipientID)

	var count int64
	require.NoError(t, f.db.Model(&entity.JourneyProgress{}).
		Where("user_id = ?", f.userB).Count(&count).Error)
	assert.Zero(t, count)
}

// Stale client: submitting day 3 when the record already sits at day 5 fails
// and changes nothing.
func TestAdvanceDayStaleClient(t *testing.T) {
	f := newFixture(t)
	f.seedProgress(t, f.userA, nil, 5)

	_, err := f.svc.AdvanceDay(context.Background(), f.userA, f.journeyID, 3, "late reflection")
	assert.ErrorIs(t, err, apperror.ErrInvalidDayTransition)

	progress := f.loadProgress(t, f.userA)
	assert.Equal(t, 5, progress.CurrentDay)
	assert.NotContains(t, progress.Reflections, 3)
}

func TestAdvanceDaySetsCompletedAtOnce(t *testing.T) {
	f := newFixture(t)
	f.seedProgress(t, f.userA, nil, 7)

	progress, err := f.svc.AdvanceDay(context.Background(), f.userA, f.journeyID, 7, "we made it")
	require.NoError(t, err)

	assert.Equal(t, 8, progress.CurrentDay)
	require.NotNil(t, progress.CompletedAt)
}

type failSecondUpdateKey struct{}

// If the batch fails after the primary write is staged, nothing may be
// retained: the caller's record must not have advanced.
func TestAdvanceDayPartnerBatchIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.seedProgress(t, f.userA, &f.userB, 3)
	f.seedProgress(t, f.userB, &f.userA, 1)

	// Fail the second UPDATE of the batch (the companion partner write)
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").
		Register("test_forced_failure", func(tx *gorm.DB) {
			if counter, ok := tx.Statement.Context.Value(failSecondUpdateKey{}).(*int32); ok {
				if atomic.AddInt32(counter, 1) == 2 {
					tx.AddError(errors.New("forced batch failure"))
				}
			}
		}))

	var counter int32
	ctx := context.WithValue(context.Background(), failSecondUpdateKey{}, &counter)

	_, err := f.svc.AdvanceDay(ctx, f.userA, f.journeyID, 3, "should not land")
	assert.ErrorIs(t, err, apperror.ErrSyncFailed)

	own := f.loadProgress(t, f.userA)
	assert.Equal(t, 3, own.CurrentDay)
	assert.NotContains(t, own.Reflections, 3)

	partner := f.loadProgress(t, f.userB)
	assert.Empty(t, partner.PartnerSyncStatus)
}

// Two concurrent advances for the same day: exactly one is accepted, the
// other sees the stale-day failure. Never two increments.
func TestConcurrentAdvancesSerialize(t *testing.T) {
	f := newFixture(t)
	f.seedProgress(t, f.userA, nil, 2)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.AdvanceDay(context.Background(), f.userA, f.journeyID, 2, "racing")
		}(i)
	}
	wg.Wait()

	successes, staleDays := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, apperror.ErrInvalidDayTransition):
			staleDays++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, staleDays)

	assert.Equal(t, 3, f.loadProgress(t, f.userA).CurrentDay)
}

func TestAcknowledgeSync(t *testing.T) {
	f := newFixture(t)
	f.seedProgress(t, f.userB, &f.userA, 2)
	now := time.Now().UTC()
	require.NoError(t, f.db.Model(&entity.JourneyProgress{}).
		Where("user_id = ?", f.userB).
		Updates(map[string]interface{}{
			"partner_sync_status":   entity.SyncStatusPending,
			"last_partner_activity": now,
		}).Error)

	progress, err := f.svc.AcknowledgeSync(context.Background(), f.userB, f.journeyID)
	require.NoError(t, err)
	assert.Equal(t, entity.SyncStatusSynced, progress.PartnerSyncStatus)

	// Acknowledging again is a no-op
	progress, err = f.svc.AcknowledgeSync(context.Background(), f.userB, f.journeyID)
	require.NoError(t, err)
	assert.Equal(t, entity.SyncStatusSynced, progress.PartnerSyncStatus)
}
