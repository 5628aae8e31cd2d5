package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the minimal identity row the engine needs: auth middleware resolves
// the caller against it and journey starts read the partner link from it.
// Account management lives in a separate service.
type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Username  string     `gorm:"size:50;uniqueIndex;not null" json:"username"`
	PartnerID *uuid.UUID `gorm:"type:uuid" json:"partner_id,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
