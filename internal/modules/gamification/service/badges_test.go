package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/tandemhq/tandem-api/internal/entity"
)

func TestEvaluateBadgesFirstSteps(t *testing.T) {
	rec := &entity.GamificationRecord{DailyResponses: 1}

	newly := EvaluateBadges(rec)

	assert.Equal(t, []entity.BadgeType{entity.BadgeFirstSteps}, newly)
}

func TestEvaluateBadgesSkipsAlreadyEarned(t *testing.T) {
	rec := &entity.GamificationRecord{
		DailyResponses: 5,
		Badges:         []entity.UserBadge{{Type: entity.BadgeFirstSteps, EarnedAt: time.Now()}},
	}

	assert.Empty(t, EvaluateBadges(rec))
}

func TestEvaluateBadgesIdempotent(t *testing.T) {
	rec := &entity.GamificationRecord{
		UserID:                uuid.New(),
		Points:                1500,
		CurrentStreak:         9,
		DailyResponses:        3,
		TotalQuizzesCompleted: 12,
		PerfectScores:         6,
	}

	first := EvaluateBadges(rec)
	assert.NotEmpty(t, first)

	// Apply the returned badges, then re-evaluate: nothing new may appear
	for _, badgeType := range first {
		rec.Badges = append(rec.Badges, entity.UserBadge{Type: badgeType, EarnedAt: time.Now()})
	}
	assert.Empty(t, EvaluateBadges(rec))
}

func TestEvaluateBadgesThresholds(t *testing.T) {
	cases := []struct {
		name string
		rec  entity.GamificationRecord
		want entity.BadgeType
	}{
		{"streak 7", entity.GamificationRecord{CurrentStreak: 7}, entity.BadgeStreak7},
		{"streak 30", entity.GamificationRecord{CurrentStreak: 30}, entity.BadgeStreak30},
		{"quiz master", entity.GamificationRecord{TotalQuizzesCompleted: 10}, entity.BadgeQuizMaster},
		{"perfectionist", entity.GamificationRecord{PerfectScores: 5}, entity.BadgePerfectionist},
		{"mood observer", entity.GamificationRecord{MoodEntries: 10}, entity.BadgeMoodObserver},
		{"category explorer", entity.GamificationRecord{QuizCategories: entity.StringList{"a", "b", "c", "d", "e"}}, entity.BadgeCategoryExplorer},
		{"point collector", entity.GamificationRecord{Points: 1000}, entity.BadgePointCollector},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Contains(t, EvaluateBadges(&tc.rec), tc.want)
		})
	}
}

func TestCompletionistRequiresAllOthers(t *testing.T) {
	catalog := BadgeCatalog()

	rec := &entity.GamificationRecord{}
	for _, def := range catalog {
		if def.Type == entity.BadgeCompletionist || def.Type == entity.BadgePointCollector {
			continue
		}
		rec.Badges = append(rec.Badges, entity.UserBadge{Type: def.Type, EarnedAt: time.Now()})
	}

	// One regular badge still missing: the meta-badge must not fire
	assert.Empty(t, EvaluateBadges(rec))

	// Earning the last regular badge unlocks the meta-badge in the same pass
	rec.Points = 1000
	newly := EvaluateBadges(rec)
	assert.ElementsMatch(t, []entity.BadgeType{entity.BadgePointCollector, entity.BadgeCompletionist}, newly)
}

func TestCompletionistIsEvaluatedLast(t *testing.T) {
	catalog := BadgeCatalog()
	assert.Equal(t, entity.BadgeCompletionist, catalog[len(catalog)-1].Type)
}
