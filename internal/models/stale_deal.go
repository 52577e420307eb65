package models

import (
	"time"

	"gorm.io/gorm"
)

// StaleDeal is one entry of the most recent stale-deal listing pulled from
// the CRM workflow. The whole table is replaced on every successful pull.
// DealID usually equals DealName: the workflow output carries no stable id.
type StaleDeal struct {
	ID           string    `gorm:"primaryKey;size:36" json:"-"`
	DealID       string    `gorm:"size:255;not null" json:"id"`
	DealName     string    `gorm:"size:255;not null" json:"name"`
	IdentifiedAt time.Time `gorm:"autoCreateTime;index" json:"identified_at"`
}

// TableName implements the gorm tabler interface.
func (StaleDeal) TableName() string { return "latest_stale_deals" }

// BeforeCreate assigns a surrogate key.
func (d *StaleDeal) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = newID()
	}
	return nil
}
