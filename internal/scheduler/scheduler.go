// Package scheduler runs the stale-deal notifier on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/youneslaaroussi/dealwhisperer/internal/crm"
	"github.com/youneslaaroussi/dealwhisperer/internal/logger"
	"github.com/youneslaaroussi/dealwhisperer/internal/notifier"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Runner runs one notification pass.
type Runner interface {
	Run(ctx context.Context) (notifier.RunSummary, error)
}

// RecordFetcher lists open CRM opportunities for the cold-deal scan.
type RecordFetcher interface {
	FetchActiveRecords(ctx context.Context) ([]crm.Opportunity, error)
}

// Scheduler fires a Runner at each cron tick.
type Scheduler struct {
	schedule    cron.Schedule
	spec        string
	runner      Runner
	crm         RecordFetcher
	coldDays    int
	stalledDays int
	timeout     time.Duration
	log         logrus.FieldLogger
	now         func() time.Time
}

// Opts holds parameters for creating a Scheduler.
type Opts struct {
	Spec        string // 5-field cron expression
	Runner      Runner
	CRM         RecordFetcher // optional; enables the cold-deal scan
	ColdDays    int
	StalledDays int
	RunTimeout  time.Duration
	Log         logrus.FieldLogger
}

// New creates a Scheduler.
func New(opts Opts) (*Scheduler, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	sched, err := cronParser.Parse(opts.Spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", opts.Spec, err)
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 10 * time.Minute
	}
	return &Scheduler{
		schedule:    sched,
		spec:        opts.Spec,
		runner:      opts.Runner,
		crm:         opts.CRM,
		coldDays:    opts.ColdDays,
		stalledDays: opts.StalledDays,
		timeout:     opts.RunTimeout,
		log:         logger.Component(opts.Log, "scheduler"),
		now:         time.Now,
	}, nil
}

// Next returns the first fire time after from.
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Run fires Tick on schedule until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	next := s.Next(s.now())
	s.log.WithFields(logrus.Fields{"schedule": s.spec, "next": next.Format(time.RFC3339)}).Info("notifier schedule armed")
	timer := time.NewTimer(next.Sub(s.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			s.Tick(ctx)
			d := s.Next(s.now()).Sub(s.now())
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
		}
	}
}

// Tick runs one scheduled pass: a cold-deal scan when a CRM is configured,
// then the notifier. Failures are logged.
func (s *Scheduler) Tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.WithField("panic", rec).Error("scheduled run panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.crm != nil {
		s.scanCold(ctx)
	}

	sum, err := s.runner.Run(ctx)
	if err != nil {
		s.log.WithError(err).Error("scheduled notification run failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"deals":      sum.Deals,
		"sent":       sum.Sent,
		"failed":     sum.Failed,
		"from_cache": sum.FromCache,
	}).Info("scheduled notification run finished")
}

func (s *Scheduler) scanCold(ctx context.Context) {
	records, err := s.crm.FetchActiveRecords(ctx)
	if err != nil {
		s.log.WithError(err).Warn("cold deal scan failed")
		return
	}
	cold := crm.DetectCold(records, s.now(), s.coldDays, s.stalledDays)
	s.log.Infof("cold deal scan: %d of %d open opportunities are cold", len(cold), len(records))
	for _, d := range cold {
		s.log.WithFields(logrus.Fields{
			"deal_id": d.ID,
			"deal":    d.Name,
			"reason":  d.Reason,
		}).Info("cold deal")
	}
}
