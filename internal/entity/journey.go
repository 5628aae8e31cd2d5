package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
)

// Journey is a catalog row for a multi-day guided sequence. Read-only at
// runtime, seeded at startup.
type Journey struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Slug         string    `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Title        string    `gorm:"size:200;not null" json:"title"`
	DurationDays int       `gorm:"not null" json:"duration_days"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (j *Journey) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

type Reflection struct {
	Content     string    `json:"content"`
	CompletedAt time.Time `json:"completed_at"`
}

// ReflectionMap maps day number to a reflection. Stored as a JSON object in a
// text column. Past days are never rewritten.
type ReflectionMap map[int]Reflection

func (m ReflectionMap) Value() (driver.Value, error) {
	if m == nil {
		m = ReflectionMap{}
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *ReflectionMap) Scan(src interface{}) error {
	if src == nil {
		*m = ReflectionMap{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type for ReflectionMap: %T", src)
	}
}

// JourneyProgress is one user's progress on one journey. Unique per
// (user_id, journey_id); the partner reference is a back-reference only,
// never an ownership relation.
type JourneyProgress struct {
	ID                  uint          `gorm:"primaryKey" json:"-"`
	UserID              uuid.UUID     `gorm:"type:uuid;uniqueIndex:idx_user_journey,priority:1;not null" json:"user_id"`
	JourneyID           uuid.UUID     `gorm:"type:uuid;uniqueIndex:idx_user_journey,priority:2;not null" json:"journey_id"`
	CurrentDay          int           `gorm:"not null;default:1" json:"current_day"`
	Reflections         ReflectionMap `gorm:"type:text" json:"reflections"`
	PartnerID           *uuid.UUID    `gorm:"type:uuid" json:"partner_id,omitempty"`
	PartnerSyncStatus   string        `gorm:"size:20" json:"partner_sync_status,omitempty"`
	LastPartnerActivity *time.Time    `json:"last_partner_activity,omitempty"`
	StartedAt           time.Time     `gorm:"not null" json:"started_at"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
	Version             int64         `gorm:"not null;default:0" json:"-"`
	CreatedAt           time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}
