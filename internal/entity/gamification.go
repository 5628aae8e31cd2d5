package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PointSource string

const (
	SourcePromptResponse PointSource = "prompt_response"
	SourceQuizCompletion PointSource = "quiz_completion"
	SourceStreakBonus    PointSource = "streak_bonus"
	SourceBadgeEarned    PointSource = "badge_earned"
)

type BadgeType string

const (
	BadgeFirstSteps       BadgeType = "FIRST_STEPS"
	BadgeStreak7          BadgeType = "STREAK_7"
	BadgeStreak30         BadgeType = "STREAK_30"
	BadgeQuizMaster       BadgeType = "QUIZ_MASTER"
	BadgePerfectionist    BadgeType = "PERFECTIONIST"
	BadgeMoodObserver     BadgeType = "MOOD_OBSERVER"
	BadgeCategoryExplorer BadgeType = "CATEGORY_EXPLORER"
	BadgePointCollector   BadgeType = "POINT_COLLECTOR"
	BadgeCompletionist    BadgeType = "COMPLETIONIST"
)

// StringList is stored as a JSON array in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = StringList{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type for StringList: %T", src)
	}
}

func (l StringList) Contains(s string) bool {
	for _, item := range l {
		if item == s {
			return true
		}
	}
	return false
}

// GamificationRecord is the per-user stats document. Created lazily on the
// first gamification-relevant event, never hard-deleted. All mutations go
// through the gamification repository, which enforces the Version check and
// the LongestStreak >= CurrentStreak invariant.
type GamificationRecord struct {
	UserID                uuid.UUID   `gorm:"type:uuid;primaryKey" json:"user_id"`
	Points                int         `gorm:"not null;default:0" json:"points"`
	CurrentStreak         int         `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak         int         `gorm:"not null;default:0" json:"longest_streak"`
	DailyResponses        int         `gorm:"not null;default:0" json:"daily_responses"`
	TotalQuizzesCompleted int         `gorm:"not null;default:0" json:"total_quizzes_completed"`
	PerfectScores         int         `gorm:"not null;default:0" json:"perfect_scores"`
	MoodEntries           int         `gorm:"not null;default:0" json:"mood_entries"`
	QuizCategories        StringList  `gorm:"type:text" json:"quiz_categories_completed"`
	LastActivityAt        *time.Time  `json:"last_activity_at,omitempty"`
	Badges                []UserBadge `gorm:"foreignKey:UserID" json:"badges"`
	Version               int64       `gorm:"not null;default:0" json:"-"`
	CreatedAt             time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *GamificationRecord) HasBadge(t BadgeType) bool {
	for _, b := range r.Badges {
		if b.Type == t {
			return true
		}
	}
	return false
}

// AddQuizCategory records a completed quiz category. Returns false if the
// category was already counted.
func (r *GamificationRecord) AddQuizCategory(category string) bool {
	if category == "" || r.QuizCategories.Contains(category) {
		return false
	}
	r.QuizCategories = append(r.QuizCategories, category)
	return true
}

// UserBadge: composite primary key, so a badge type is earned at most once.
type UserBadge struct {
	UserID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	Type     BadgeType `gorm:"size:50;primaryKey" json:"type"`
	EarnedAt time.Time `gorm:"not null" json:"earned_at"`
}

// PointEntry is an append-only points history row.
type PointEntry struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	UserID    uuid.UUID   `gorm:"type:uuid;index:idx_point_user_date,priority:1;not null" json:"user_id"`
	Delta     int         `gorm:"not null" json:"delta"`
	Source    PointSource `gorm:"size:30;not null" json:"source"`
	CreatedAt time.Time   `gorm:"index:idx_point_user_date,priority:2" json:"created_at"`
}

// StreakEntry is an append-only streak history row.
type StreakEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	StreakValue int       `gorm:"not null" json:"streak_value"`
	CreatedAt   time.Time `json:"created_at"`
}
