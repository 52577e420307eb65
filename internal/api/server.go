// Package api serves the dealwhisperer HTTP interface: stakeholder admin,
// the notification trigger, dashboard and metrics reads, the chat webhook,
// document upload and agent lookups.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/youneslaaroussi/dealwhisperer/internal/logger"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Deps            Deps
	Port            int
	ShutdownTimeout time.Duration
	Log             logrus.FieldLogger
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully and waits for background notifier runs.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 3000
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	log := logger.Component(opts.Log, "api")
	if opts.Deps.Log == nil {
		opts.Deps.Log = opts.Log
	}
	if opts.Deps.Background == nil {
		opts.Deps.Background = ctx
	}

	gin.SetMode(gin.ReleaseMode)
	srvHandlers, router, err := newRouter(opts.Deps)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("server shutdown")
		}
	}()

	log.Infof("API listening on :%d", opts.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	srvHandlers.wait()
	log.Info("API stopped")
	return nil
}
