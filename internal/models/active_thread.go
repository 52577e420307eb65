package models

import "time"

// ActiveThread binds the Slack thread rooted at a notification message to the
// deal it was about. ThreadTS is the root message timestamp returned by Slack.
type ActiveThread struct {
	ThreadTS  string    `gorm:"primaryKey;size:32" json:"thread_ts"`
	DealID    string    `gorm:"size:255;not null;index" json:"deal_id"`
	DealName  string    `gorm:"size:255;not null" json:"deal_name"`
	ChannelID string    `gorm:"size:32;not null" json:"channel_id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName implements the gorm tabler interface.
func (ActiveThread) TableName() string { return "active_slack_threads" }
