package models

import (
	"time"

	"gorm.io/gorm"
)

// StakeholderNotification records one message sent to a stakeholder about a
// deal. MessageTS equals the thread id replies are correlated against.
type StakeholderNotification struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	StakeholderID   string    `gorm:"size:32;not null;index" json:"stakeholder_id"`
	StakeholderRole string    `gorm:"size:64;not null" json:"stakeholder_role"`
	DealID          string    `gorm:"size:255;not null;index" json:"deal_id"`
	MessageTS       string    `gorm:"size:32;not null;index" json:"message_ts"`
	SentAt          time.Time `gorm:"autoCreateTime" json:"sent_at"`
}

// TableName implements the gorm tabler interface.
func (StakeholderNotification) TableName() string { return "stakeholder_notifications" }

// BeforeCreate assigns a generated id.
func (n *StakeholderNotification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = newID()
	}
	return nil
}

// StakeholderResponse is a threaded reply tied to the notification it answers.
type StakeholderResponse struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	NotificationID string    `gorm:"size:36;not null;index" json:"notification_id"`
	ResponseText   string    `gorm:"type:text;not null" json:"response_text"`
	ResponseTS     string    `gorm:"size:32;not null" json:"response_ts"`
	RespondedAt    time.Time `gorm:"autoCreateTime" json:"responded_at"`

	Notification *StakeholderNotification `gorm:"foreignKey:NotificationID" json:"-"`
}

// TableName implements the gorm tabler interface.
func (StakeholderResponse) TableName() string { return "stakeholder_responses" }

// BeforeCreate assigns a generated id.
func (r *StakeholderResponse) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newID()
	}
	return nil
}
