// Package notifier finds stale deals and nudges every mapped stakeholder
// about each of them over chat.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/youneslaaroussi/dealwhisperer/internal/logger"
	"github.com/youneslaaroussi/dealwhisperer/internal/models"
	"github.com/youneslaaroussi/dealwhisperer/internal/telemetry"
)

// Store is the persistence the notifier reads and refreshes.
type Store interface {
	ListMappings(ctx context.Context) ([]models.StakeholderMapping, error)
	ReplaceStaleDeals(ctx context.Context, deals []models.StaleDeal) error
	ListStaleDeals(ctx context.Context) ([]models.StaleDeal, error)
}

// FlowRunner runs the CRM workflow that reports stale deals.
type FlowRunner interface {
	InvokeFlow(ctx context.Context, name string) (*string, error)
}

// Sender delivers one notification.
type Sender interface {
	SendToStakeholder(ctx context.Context, userID, text, dealID, dealName string) (string, error)
}

var errNoFlowOutput = errors.New("notifier: flow returned no output")

// RunSummary reports what a run did.
type RunSummary struct {
	Stakeholders int  `json:"stakeholders"`
	Deals        int  `json:"deals"`
	Sent         int  `json:"sent"`
	Failed       int  `json:"failed"`
	FromCache    bool `json:"from_cache"`
}

// Notifier runs the stale-deal notification workflow.
type Notifier struct {
	store    Store
	crm      FlowRunner
	sender   Sender
	flowName string
	metrics  *telemetry.Metrics
	log      logrus.FieldLogger
}

// Opts holds parameters for creating a Notifier.
type Opts struct {
	Store    Store
	CRM      FlowRunner // nil serves every run from the cached listing
	Sender   Sender
	FlowName string
	Metrics  *telemetry.Metrics
	Log      logrus.FieldLogger
}

// New creates a Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("notifier: store is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("notifier: sender is required")
	}
	flow := opts.FlowName
	if flow == "" {
		flow = "GetColdOpportunities"
	}
	return &Notifier{
		store:    opts.Store,
		crm:      opts.CRM,
		sender:   opts.Sender,
		flowName: flow,
		metrics:  opts.Metrics,
		log:      logger.Component(opts.Log, "notifier"),
	}, nil
}

// Run notifies every mapped stakeholder about every stale deal. Individual
// send failures are logged and counted; only failing to learn who to notify
// or what to notify about fails the run.
func (n *Notifier) Run(ctx context.Context) (RunSummary, error) {
	var sum RunSummary
	n.log.Info("starting stale deal notification run")

	stakeholders, err := n.stakeholders(ctx)
	if err != nil {
		return sum, err
	}
	if len(stakeholders) == 0 {
		n.log.Warn("no stakeholder mappings, skipping notification run")
		return sum, nil
	}
	sum.Stakeholders = len(stakeholders)

	deals, fromCache, err := n.loadDeals(ctx)
	if err != nil {
		return sum, err
	}
	sum.Deals = len(deals)
	sum.FromCache = fromCache
	if fromCache {
		n.metrics.NotifierRun("cache")
	} else {
		n.metrics.NotifierRun("crm")
	}

	if len(deals) == 0 {
		n.log.Info("no stale deals to process")
		return sum, nil
	}
	n.log.Infof("processing %d stale deals for %d stakeholders", len(deals), len(stakeholders))

	roles := make([]string, 0, len(stakeholders))
	for role := range stakeholders {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		userID := stakeholders[role]
		for _, deal := range deals {
			if err := ctx.Err(); err != nil {
				return sum, fmt.Errorf("notifier: run interrupted: %w", err)
			}
			text := MessageForRole(role, deal.Name)
			log := n.log.WithFields(logrus.Fields{"role": role, "user": userID, "deal": deal.Name})
			if _, err := n.sender.SendToStakeholder(ctx, userID, text, deal.ID, deal.Name); err != nil {
				sum.Failed++
				log.WithError(err).Error("failed to notify stakeholder")
				continue
			}
			sum.Sent++
			log.Info("notified stakeholder")
		}
	}

	n.log.WithFields(logrus.Fields{"sent": sum.Sent, "failed": sum.Failed}).Info("finished stale deal notification run")
	return sum, nil
}

// stakeholders loads the role→user map, skipping incomplete rows.
func (n *Notifier) stakeholders(ctx context.Context) (map[string]string, error) {
	rows, err := n.store.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("notifier: load stakeholders: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, m := range rows {
		if m.Role == "" || m.SlackUserID == "" {
			n.log.WithField("role", m.Role).Warn("skipping incomplete stakeholder mapping")
			continue
		}
		out[m.Role] = m.SlackUserID
	}
	return out, nil
}

// loadDeals pulls a fresh listing from the CRM and caches it, falling back
// to the cached listing when the pull or the cache refresh fails.
func (n *Notifier) loadDeals(ctx context.Context) ([]Deal, bool, error) {
	deals, err := n.fetchFresh(ctx)
	if err == nil {
		return deals, false, nil
	}
	n.log.WithError(err).Warn("fresh stale deal listing unavailable, falling back to cache")

	cached, cacheErr := n.store.ListStaleDeals(ctx)
	if cacheErr != nil {
		return nil, true, fmt.Errorf("notifier: load cached stale deals: %w", cacheErr)
	}
	out := make([]Deal, len(cached))
	for i, d := range cached {
		out[i] = Deal{ID: d.DealID, Name: d.DealName}
	}
	n.log.Warnf("proceeding with %d cached stale deals", len(out))
	return out, true, nil
}

func (n *Notifier) fetchFresh(ctx context.Context) ([]Deal, error) {
	if n.crm == nil {
		return nil, fmt.Errorf("notifier: crm not configured")
	}
	output, err := n.crm.InvokeFlow(ctx, n.flowName)
	if err != nil {
		return nil, err
	}
	if output == nil {
		return nil, errNoFlowOutput
	}
	deals := ParseFlowOutput(*output, n.log)

	rows := make([]models.StaleDeal, len(deals))
	for i, d := range deals {
		rows[i] = models.StaleDeal{DealID: d.ID, DealName: d.Name}
	}
	if err := n.store.ReplaceStaleDeals(ctx, rows); err != nil {
		return nil, err
	}
	return deals, nil
}
