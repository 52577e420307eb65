package models

import (
	"time"

	"gorm.io/gorm"
)

// Deal status labels used by resolutions.
const (
	StatusStalled     = "Stalled"
	StatusActive      = "Active"
	StatusNegotiation = "Negotiation"
	StatusClosedWon   = "Closed Won"
)

// DealResolution is an append-only status transition for a deal, optionally
// attributed to the stakeholder whose reply triggered it.
type DealResolution struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	DealID         string    `gorm:"size:255;not null;index" json:"deal_id"`
	PreviousStatus string    `gorm:"size:32;not null" json:"previous_status"`
	NewStatus      string    `gorm:"size:32;not null" json:"new_status"`
	ResolvedBy     *string   `gorm:"size:32;index" json:"resolved_by,omitempty"`
	ResolvedAt     time.Time `gorm:"autoCreateTime" json:"resolved_at"`
}

// TableName implements the gorm tabler interface.
func (DealResolution) TableName() string { return "deal_resolutions" }

// BeforeCreate assigns a generated id.
func (r *DealResolution) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newID()
	}
	return nil
}
