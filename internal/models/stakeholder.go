package models

import "time"

// StakeholderMapping binds a role (e.g. "PM", "SalesRep1") to the Slack user
// who holds it. Role is unique; a role without a row is not notified.
type StakeholderMapping struct {
	Role        string    `gorm:"primaryKey;size:64" json:"role"`
	SlackUserID string    `gorm:"size:32;not null" json:"slack_user_id"`
	FullName    *string   `gorm:"size:256" json:"full_name,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName implements the gorm tabler interface.
func (StakeholderMapping) TableName() string { return "stakeholder_mapping" }
