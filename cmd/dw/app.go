package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/youneslaaroussi/dealwhisperer/internal/agent"
	"github.com/youneslaaroussi/dealwhisperer/internal/chat/slack"
	"github.com/youneslaaroussi/dealwhisperer/internal/config"
	"github.com/youneslaaroussi/dealwhisperer/internal/crm"
	"github.com/youneslaaroussi/dealwhisperer/internal/db"
	"github.com/youneslaaroussi/dealwhisperer/internal/logger"
	"github.com/youneslaaroussi/dealwhisperer/internal/notifier"
	"github.com/youneslaaroussi/dealwhisperer/internal/storage"
	"github.com/youneslaaroussi/dealwhisperer/internal/store"
	"github.com/youneslaaroussi/dealwhisperer/internal/telemetry"
)

var errAgentNotConfigured = errors.New("agent: not configured")

// unconfiguredReplier stands in when no agent credentials are set, so
// replies still get the apology rather than silence.
type unconfiguredReplier struct{}

func (unconfiguredReplier) GenerateReply(context.Context, string, string, string, string) (string, error) {
	return "", errAgentNotConfigured
}

// app holds the collaborators shared by the long-running server and the
// one-shot commands. Optional integrations are nil interfaces when their
// settings are absent.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	db       *gorm.DB
	store    *store.Store
	metrics  *telemetry.Metrics
	chat     *slack.Client
	crm      *crm.Client
	replier  agent.Replier
	people   agent.KeyPeopleFinder
	uploader storage.Uploader
	notifier *notifier.Notifier
}

// connectDB opens the configured database, migrating when asked to or when
// running on the default local sqlite file.
func connectDB(cfg *config.Config) (*gorm.DB, error) {
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate || cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(gormDB); err != nil {
			closeDB(gormDB)
			return nil, err
		}
	}
	return gormDB, nil
}

func closeDB(gormDB *gorm.DB) {
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}
}

// loadApp reads configuration and builds every collaborator. Logs go to
// logOut (stdout when nil).
func loadApp(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log, logOut)

	gormDB, err := connectDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: gormDB, metrics: telemetry.New(), replier: unconfiguredReplier{}}
	if a.store, err = store.New(gormDB); err != nil {
		a.Close()
		return nil, err
	}
	if a.chat, err = slack.New(slack.ClientOpts{BotToken: cfg.Slack.BotToken, Log: log}); err != nil {
		a.Close()
		return nil, err
	}

	var flow notifier.FlowRunner
	if cfg.Salesforce.Configured() {
		if a.crm, err = crm.New(crm.ClientOpts{Config: cfg.Salesforce}); err != nil {
			a.Close()
			return nil, err
		}
		flow = a.crm
	} else {
		log.Warn("salesforce is not configured; notifier runs use the cached stale deal listing")
	}

	if cfg.Salesforce.ClientSecret != "" && cfg.Salesforce.InstanceURL != "" {
		client, err := agent.New(agent.ClientOpts{
			Agent:      cfg.Agent,
			Salesforce: cfg.Salesforce,
			Bucket:     cfg.S3.Bucket,
			Log:        log,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.replier, a.people = client, client
	} else {
		log.Warn("agent is not configured; thread replies will receive an apology")
	}

	if cfg.S3.Configured() {
		s3, err := storage.New(ctx, cfg.S3)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.uploader = s3
	}

	dispatcher, err := notifier.NewDispatcher(notifier.DispatcherOpts{
		Chat:    a.chat,
		Store:   a.store,
		Metrics: a.metrics,
		Log:     log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.notifier, err = notifier.New(notifier.Opts{
		Store:    a.store,
		CRM:      flow,
		Sender:   dispatcher,
		FlowName: cfg.Salesforce.FlowName,
		Metrics:  a.metrics,
		Log:      log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the database connection.
func (a *app) Close() {
	if a.db != nil {
		closeDB(a.db)
	}
}
