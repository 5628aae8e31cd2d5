package service

import (
	"github.com/tandemhq/tandem-api/internal/entity"
)

// BadgeDefinition is static configuration: a badge type and the pure
// predicate that decides whether a stats snapshot qualifies for it.
type BadgeDefinition struct {
	Type      entity.BadgeType
	Predicate func(rec *entity.GamificationRecord) bool
}

// BadgeCatalog returns the closed badge set in its fixed evaluation order.
// BadgeCompletionist has no predicate here: it is the "all other badges"
// meta-badge and is special-cased last in EvaluateBadges to avoid a
// self-referential predicate.
func BadgeCatalog() []BadgeDefinition {
	return []BadgeDefinition{
		{
			Type:      entity.BadgeFirstSteps,
			Predicate: func(r *entity.GamificationRecord) bool { return r.DailyResponses >= 1 },
		},
		{
			Type:      entity.BadgeStreak7,
			Predicate: func(r *entity.GamificationRecord) bool { return r.CurrentStreak >= 7 },
		},
		{
			Type:      entity.BadgeStreak30,
			Predicate: func(r *entity.GamificationRecord) bool { return r.CurrentStreak >= 30 },
		},
		{
			Type:      entity.BadgeQuizMaster,
			Predicate: func(r *entity.GamificationRecord) bool { return r.TotalQuizzesCompleted >= 10 },
		},
		{
			Type:      entity.BadgePerfectionist,
			Predicate: func(r *entity.GamificationRecord) bool { return r.PerfectScores >= 5 },
		},
		{
			Type:      entity.BadgeMoodObserver,
			Predicate: func(r *entity.GamificationRecord) bool { return r.MoodEntries >= 10 },
		},
		{
			Type:      entity.BadgeCategoryExplorer,
			Predicate: func(r *entity.GamificationRecord) bool { return len(r.QuizCategories) >= 5 },
		},
		{
			Type:      entity.BadgePointCollector,
			Predicate: func(r *entity.GamificationRecord) bool { return r.Points >= 1000 },
		},
		{
			Type: entity.BadgeCompletionist,
		},
	}
}

// EvaluateBadges returns exactly the badge types whose predicate holds on
// the snapshot and which the record has not earned yet. Pure and idempotent:
// re-running it after the returned badges are applied yields nothing new.
func EvaluateBadges(rec *entity.GamificationRecord) []entity.BadgeType {
	catalog := BadgeCatalog()

	var newly []entity.BadgeType
	for _, def := range catalog {
		if rec.HasBadge(def.Type) {
			continue
		}

		if def.Type == entity.BadgeCompletionist {
			// Earned once every other badge is held; badges unlocked
			// earlier in this same pass count
			if len(rec.Badges)+len(newly) >= len(catalog)-1 {
				newly = append(newly, def.Type)
			}
			continue
		}

		if def.Predicate(rec) {
			newly = append(newly, def.Type)
		}
	}

	return newly
}
