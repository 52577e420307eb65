// Package metrics derives stakeholder engagement figures from the recorded
// notifications, responses and deal resolutions.
package metrics

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/youneslaaroussi/dealwhisperer/internal/models"
)

// ResponseRate is how often a stakeholder answered notifications.
type ResponseRate struct {
	StakeholderID   string  `json:"stakeholder_id"`
	StakeholderRole string  `json:"stakeholder_role"`
	Sent            int     `json:"sent"`
	Responded       int     `json:"responded"`
	Rate            float64 `json:"rate"`
}

// DealPerformance is how a stakeholder's deals moved after notification.
type DealPerformance struct {
	StakeholderID   string  `json:"stakeholder_id"`
	StakeholderRole string  `json:"stakeholder_role"`
	TotalDeals      int     `json:"total_deals"`
	DealsResponded  int     `json:"deals_responded"`
	DealsClosed     int     `json:"deals_closed"`
	DealsRevived    int     `json:"deals_revived"`
	ConversionRate  float64 `json:"conversion_rate"`
}

// Round2 rounds v half-up to two decimal places.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return Round2(100 * float64(part) / float64(whole))
}

// ResponseRates computes per-stakeholder response rates. A notification
// counts as answered when at least one response references it. The role is
// taken from the stakeholder's first notification.
func ResponseRates(notifications []models.StakeholderNotification, responses []models.StakeholderResponse) map[string]ResponseRate {
	answered := make(map[string]bool, len(responses))
	for _, r := range responses {
		answered[r.NotificationID] = true
	}

	out := make(map[string]ResponseRate)
	sentIDs := make(map[string]map[string]bool)
	for _, n := range notifications {
		rr, ok := out[n.StakeholderID]
		if !ok {
			rr = ResponseRate{StakeholderID: n.StakeholderID, StakeholderRole: n.StakeholderRole}
			sentIDs[n.StakeholderID] = make(map[string]bool)
		}
		if !sentIDs[n.StakeholderID][n.ID] {
			sentIDs[n.StakeholderID][n.ID] = true
			rr.Sent++
			if answered[n.ID] {
				rr.Responded++
			}
		}
		out[n.StakeholderID] = rr
	}
	for id, rr := range out {
		rr.Rate = percent(rr.Responded, rr.Sent)
		out[id] = rr
	}
	return out
}

// DealPerformances computes per-stakeholder deal outcomes. Only resolutions
// attributed to the stakeholder count towards their figures.
func DealPerformances(notifications []models.StakeholderNotification, resolutions []models.DealResolution) map[string]DealPerformance {
	byDeal := make(map[string][]models.DealResolution)
	for _, r := range resolutions {
		byDeal[r.DealID] = append(byDeal[r.DealID], r)
	}

	roles := make(map[string]string)
	deals := make(map[string]map[string]bool)
	for _, n := range notifications {
		if _, ok := deals[n.StakeholderID]; !ok {
			deals[n.StakeholderID] = make(map[string]bool)
			roles[n.StakeholderID] = n.StakeholderRole
		}
		deals[n.StakeholderID][n.DealID] = true
	}

	out := make(map[string]DealPerformance, len(deals))
	for stakeholder, dealIDs := range deals {
		dp := DealPerformance{
			StakeholderID:   stakeholder,
			StakeholderRole: roles[stakeholder],
			TotalDeals:      len(dealIDs),
		}
		for dealID := range dealIDs {
			responded := false
			for _, r := range byDeal[dealID] {
				if r.ResolvedBy == nil || *r.ResolvedBy != stakeholder {
					continue
				}
				responded = true
				if r.NewStatus == models.StatusClosedWon {
					dp.DealsClosed++
				}
				if revived(r) {
					dp.DealsRevived++
				}
			}
			if responded {
				dp.DealsResponded++
			}
		}
		dp.ConversionRate = percent(dp.DealsClosed, dp.TotalDeals)
		out[stakeholder] = dp
	}
	return out
}

func revived(r models.DealResolution) bool {
	return r.PreviousStatus == models.StatusStalled &&
		(r.NewStatus == models.StatusActive || r.NewStatus == models.StatusNegotiation)
}

// Store is the persistence the metrics are read from.
type Store interface {
	ListNotifications(ctx context.Context) ([]models.StakeholderNotification, error)
	ListResponses(ctx context.Context) ([]models.StakeholderResponse, error)
	ListResolutions(ctx context.Context) ([]models.DealResolution, error)
}

// Service serves metrics computed from the store.
type Service struct {
	store Store
}

// NewService creates a Service.
func NewService(s Store) (*Service, error) {
	if s == nil {
		return nil, fmt.Errorf("metrics: store is required")
	}
	return &Service{store: s}, nil
}

// ResponseRates reads notifications and responses and computes rates.
func (s *Service) ResponseRates(ctx context.Context) (map[string]ResponseRate, error) {
	var (
		notifications []models.StakeholderNotification
		responses     []models.StakeholderResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		notifications, err = s.store.ListNotifications(gctx)
		return err
	})
	g.Go(func() (err error) {
		responses, err = s.store.ListResponses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("metrics: response rates: %w", err)
	}
	return ResponseRates(notifications, responses), nil
}

// DealPerformance reads notifications and resolutions and computes outcomes.
func (s *Service) DealPerformance(ctx context.Context) (map[string]DealPerformance, error) {
	var (
		notifications []models.StakeholderNotification
		resolutions   []models.DealResolution
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		notifications, err = s.store.ListNotifications(gctx)
		return err
	})
	g.Go(func() (err error) {
		resolutions, err = s.store.ListResolutions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("metrics: deal performance: %w", err)
	}
	return DealPerformances(notifications, resolutions), nil
}
