package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/youneslaaroussi/dealwhisperer/internal/agent"
	"github.com/youneslaaroussi/dealwhisperer/internal/chat"
	"github.com/youneslaaroussi/dealwhisperer/internal/crm"
	"github.com/youneslaaroussi/dealwhisperer/internal/dashboard"
	"github.com/youneslaaroussi/dealwhisperer/internal/inbound"
	"github.com/youneslaaroussi/dealwhisperer/internal/logger"
	"github.com/youneslaaroussi/dealwhisperer/internal/metrics"
	"github.com/youneslaaroussi/dealwhisperer/internal/models"
	"github.com/youneslaaroussi/dealwhisperer/internal/notifier"
	"github.com/youneslaaroussi/dealwhisperer/internal/storage"
	"github.com/youneslaaroussi/dealwhisperer/internal/telemetry"
)

// NotifyRunner runs one stale-deal notification pass.
type NotifyRunner interface {
	Run(ctx context.Context) (notifier.RunSummary, error)
}

// MappingStore reads and writes stakeholder mappings.
type MappingStore interface {
	ListMappings(ctx context.Context) ([]models.StakeholderMapping, error)
	UpsertMappings(ctx context.Context, mappings []models.StakeholderMapping) error
	Ping(ctx context.Context) error
}

// DashboardReader serves dashboard data.
type DashboardReader interface {
	dashboard.Snapshotter
	LatestStaleDeals(ctx context.Context) ([]models.StaleDeal, error)
	ActiveThreads(ctx context.Context) ([]models.ActiveThread, error)
	ActiveThreadsCount(ctx context.Context) (int64, error)
}

// MetricsReader serves stakeholder engagement metrics.
type MetricsReader interface {
	ResponseRates(ctx context.Context) (map[string]metrics.ResponseRate, error)
	DealPerformance(ctx context.Context) (map[string]metrics.DealPerformance, error)
}

// EventDispatcher accepts verified webhook payloads.
type EventDispatcher interface {
	Dispatch(ctx context.Context, body []byte) (inbound.Event, error)
}

// UserSearcher looks up chat users by name.
type UserSearcher interface {
	SearchUsers(ctx context.Context, query string) ([]chat.User, error)
}

// RecordFetcher lists open CRM opportunities.
type RecordFetcher interface {
	FetchActiveRecords(ctx context.Context) ([]crm.Opportunity, error)
}

// Deps are the collaborators behind the routes. Optional collaborators that
// are nil make their routes answer 503.
type Deps struct {
	Store         MappingStore
	Notifier      NotifyRunner
	Dashboard     DashboardReader
	Metrics       MetricsReader
	Events        EventDispatcher
	SigningSecret string
	Users         UserSearcher
	Uploader      storage.Uploader      // optional
	KeyPeople     agent.KeyPeopleFinder // optional
	CRM           RecordFetcher         // optional
	Telemetry     *telemetry.Metrics    // optional
	Stream        dashboard.StreamOpts
	RunTimeout    time.Duration // bound on background notifier runs
	Background    context.Context
	Log           logrus.FieldLogger
}

// handlers holds route state shared across requests.
type handlers struct {
	Deps
	log logrus.FieldLogger
	bg  sync.WaitGroup
}

// NewRouter builds the gin engine serving every route.
func NewRouter(deps Deps) (*gin.Engine, error) {
	_, r, err := newRouter(deps)
	return r, err
}

func newRouter(deps Deps) (*handlers, *gin.Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, nil, fmt.Errorf("api: store is required")
	case deps.Notifier == nil:
		return nil, nil, fmt.Errorf("api: notifier is required")
	case deps.Dashboard == nil:
		return nil, nil, fmt.Errorf("api: dashboard is required")
	case deps.Metrics == nil:
		return nil, nil, fmt.Errorf("api: metrics is required")
	case deps.Events == nil:
		return nil, nil, fmt.Errorf("api: event dispatcher is required")
	case deps.Users == nil:
		return nil, nil, fmt.Errorf("api: user searcher is required")
	case deps.SigningSecret == "":
		return nil, nil, fmt.Errorf("api: signing secret is required")
	}
	if deps.Background == nil {
		deps.Background = context.Background()
	}
	if deps.RunTimeout <= 0 {
		deps.RunTimeout = 10 * time.Minute
	}
	h := &handlers{Deps: deps, log: logger.Component(deps.Log, "api")}
	if deps.Stream.Log == nil {
		h.Stream.Log = h.log
	}

	router := gin.New()
	router.Use(gin.Recovery(), deps.Telemetry.Instrument(), h.requestLog())
	registerRoutes(router, h)
	return h, router, nil
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", h.health)
	if h.Telemetry != nil {
		router.GET("/metrics", gin.WrapH(h.Telemetry.Handler()))
	}

	deals := router.Group("/deals")
	deals.POST("/notify-stale", h.notifyStale)
	deals.GET("/stakeholders", h.listStakeholders)
	deals.POST("/stakeholders/assign", h.assignStakeholders)

	dash := router.Group("/dashboard")
	dash.GET("", h.dashboard)
	dash.GET("/latest-stale-deals", h.latestStaleDeals)
	dash.GET("/active-threads", h.activeThreads)
	dash.GET("/active-threads/count", h.activeThreadsCount)
	dash.GET("/events", dashboard.StreamHandler(h.Dashboard, h.Stream))

	m := router.Group("/metrics/stakeholders")
	m.GET("/response-rates", h.responseRates)
	m.GET("/deal-performance", h.dealPerformance)

	sl := router.Group("/slack")
	sl.POST("/webhook", h.slackWebhook)
	sl.GET("/search-user", h.searchUser)

	router.POST("/files/upload-rag", h.uploadRAG)
	router.POST("/agent/get-key-people", h.getKeyPeople)
	router.GET("/debug/run-once", h.runOnce)
}

// requestLog logs each request at debug level.
func (h *handlers) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}

// wait blocks until background notifier runs have finished.
func (h *handlers) wait() {
	h.bg.Wait()
}

func (h *handlers) health(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail logs err and answers with a JSON error body.
func (h *handlers) fail(c *gin.Context, status int, msg string, err error) {
	entry := h.log.WithField("path", c.FullPath())
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
	c.JSON(status, gin.H{"error": msg})
}
