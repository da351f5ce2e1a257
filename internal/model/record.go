package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record is the envelope every persisted entity embeds: a UUID primary key
// plus bookkeeping timestamps. The timestamps are populated by the persistence
// layer on write and must not drive application logic.
type Record struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// BeforeCreate assigns the primary key when the caller has not set one.
func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
