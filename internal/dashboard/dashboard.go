// Package dashboard composes the read models shown on the sales-ops
// dashboard and streams them to browsers.
package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/youneslaaroussi/dealwhisperer/internal/models"
)

// Store is the persistence the dashboard reads.
type Store interface {
	ListStaleDeals(ctx context.Context) ([]models.StaleDeal, error)
	ListActiveThreads(ctx context.Context) ([]models.ActiveThread, error)
	CountActiveThreads(ctx context.Context) (int64, error)
}

// Snapshot is the full dashboard payload.
type Snapshot struct {
	LatestStaleDeals   []models.StaleDeal    `json:"latestStaleDeals"`
	ActiveThreads      []models.ActiveThread `json:"activeThreads"`
	ActiveThreadsCount int64                 `json:"activeThreadsCount"`
}

// Service reads dashboard data from the store.
type Service struct {
	store Store
}

// NewService creates a Service.
func NewService(s Store) (*Service, error) {
	if s == nil {
		return nil, fmt.Errorf("dashboard: store is required")
	}
	return &Service{store: s}, nil
}

// Get fetches all three parts concurrently. Any failed part fails the call.
func (s *Service) Get(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.LatestStaleDeals, err = s.LatestStaleDeals(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.ActiveThreads, err = s.ActiveThreads(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.ActiveThreadsCount, err = s.ActiveThreadsCount(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("dashboard: %w", err)
	}
	return snap, nil
}

// LatestStaleDeals returns the cached stale-deal listing, never nil.
func (s *Service) LatestStaleDeals(ctx context.Context) ([]models.StaleDeal, error) {
	deals, err := s.store.ListStaleDeals(ctx)
	if err != nil {
		return nil, err
	}
	if deals == nil {
		deals = []models.StaleDeal{}
	}
	return deals, nil
}

// ActiveThreads returns notification threads newest first, never nil.
func (s *Service) ActiveThreads(ctx context.Context) ([]models.ActiveThread, error) {
	threads, err := s.store.ListActiveThreads(ctx)
	if err != nil {
		return nil, err
	}
	if threads == nil {
		threads = []models.ActiveThread{}
	}
	return threads, nil
}

// ActiveThreadsCount returns the number of notification threads.
func (s *Service) ActiveThreadsCount(ctx context.Context) (int64, error) {
	return s.store.CountActiveThreads(ctx)
}
