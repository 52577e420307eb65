package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/youneslaaroussi/dealwhisperer/internal/api"
	"github.com/youneslaaroussi/dealwhisperer/internal/chat/slack"
	"github.com/youneslaaroussi/dealwhisperer/internal/config"
	"github.com/youneslaaroussi/dealwhisperer/internal/dashboard"
	"github.com/youneslaaroussi/dealwhisperer/internal/inbound"
	"github.com/youneslaaroussi/dealwhisperer/internal/metrics"
	"github.com/youneslaaroussi/dealwhisperer/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, webhook workers and notification schedule",
		Long: "Starts the HTTP API (dashboard, metrics, Slack webhook, uploads), the " +
			"thread-reply workers, the scheduled stale-deal notifier and, when " +
			"enabled, the Slack Socket Mode listener.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, log := a.cfg, a.log
	if port > 0 {
		cfg.Server.Port = port
	}

	if _, err := a.chat.AuthCheck(ctx); err != nil {
		log.WithError(err).Warn("slack auth check failed; continuing")
	}

	dedup, closeDedup, err := newDeduper(cfg)
	if err != nil {
		return err
	}
	defer closeDedup()

	proc, err := inbound.NewProcessor(inbound.ProcessorOpts{
		Store:      a.store,
		Replier:    a.replier,
		Chat:       a.chat,
		Dedup:      dedup,
		Metrics:    a.metrics,
		Log:        log,
		Workers:    cfg.Inbound.Workers,
		QueueSize:  cfg.Inbound.QueueSize,
		JobTimeout: time.Duration(cfg.Inbound.JobTimeoutSec) * time.Second,
	})
	if err != nil {
		return err
	}
	proc.Start(ctx)
	defer proc.Stop()

	dash, err := dashboard.NewService(a.store)
	if err != nil {
		return err
	}
	stats, err := metrics.NewService(a.store)
	if err != nil {
		return err
	}

	runTimeout := time.Duration(cfg.Notifier.RunTimeoutSec) * time.Second
	deps := api.Deps{
		Store:         a.store,
		Notifier:      a.notifier,
		Dashboard:     dash,
		Metrics:       stats,
		Events:        proc,
		SigningSecret: cfg.Slack.SigningSecret,
		Users:         a.chat,
		Uploader:      a.uploader,
		KeyPeople:     a.people,
		Telemetry:     a.metrics,
		RunTimeout:    runTimeout,
		Log:           log,
	}
	if a.crm != nil {
		deps.CRM = a.crm
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Notifier.ScheduleEnabled() {
		opts := scheduler.Opts{
			Spec:        cfg.Notifier.Schedule,
			Runner:      a.notifier,
			ColdDays:    cfg.Salesforce.ColdDays,
			StalledDays: cfg.Salesforce.StalledDays,
			RunTimeout:  runTimeout,
			Log:         log,
		}
		if a.crm != nil {
			opts.CRM = a.crm
		}
		sched, err := scheduler.New(opts)
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(gctx) })
	} else {
		log.Info("notifier schedule is off; runs only on request")
	}

	if cfg.Slack.SocketMode {
		listener, err := slack.NewListener(slack.ListenerOpts{
			AppToken: cfg.Slack.AppToken,
			BotToken: cfg.Slack.BotToken,
			Handler: func(ctx context.Context, payload []byte) {
				if _, err := proc.Dispatch(ctx, payload); err != nil {
					log.WithError(err).Warn("socket mode event rejected")
				}
			},
			Log: log,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			listener.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		return api.Start(gctx, api.StartOpts{
			Deps:            deps,
			Port:            cfg.Server.Port,
			ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second,
			Log:             log,
		})
	})

	return g.Wait()
}

// newDeduper shares event de-duplication through Redis when configured and
// falls back to process memory otherwise.
func newDeduper(cfg *config.Config) (inbound.Deduper, func(), error) {
	ttl := time.Duration(cfg.Redis.EventTTLSec) * time.Second
	if cfg.Redis.URL == "" {
		return inbound.NewMemoryDeduper(ttl), func() {}, nil
	}
	d, client, err := inbound.NewRedisDeduper(cfg.Redis.URL, ttl)
	if err != nil {
		return nil, nil, err
	}
	return d, func() { client.Close() }, nil
}
