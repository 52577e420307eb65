// Package crm talks to Salesforce: it lists open opportunities, runs the
// autolaunched flow that reports cold deals, and classifies deals as cold.
package crm

import (
	"context"
	"time"
)

// Opportunity is an open CRM deal.
type Opportunity struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	StageName        string     `json:"stage_name"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
	LastModifiedDate time.Time  `json:"last_modified_date"`
	OwnerID          string     `json:"owner_id"`
}

// Source is the narrow CRM contract consumed by the notifier and the CLI.
type Source interface {
	// FetchActiveRecords returns all open opportunities.
	FetchActiveRecords(ctx context.Context) ([]Opportunity, error)
	// InvokeFlow runs the named flow and returns its configured text
	// output. A nil result without error means the flow produced nothing.
	InvokeFlow(ctx context.Context, name string) (*string, error)
}
