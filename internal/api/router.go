// Package api exposes event ingestion, analytics queries, health, metrics and
// the dashboard websocket over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/visitorpulse/pulse/internal/session"
	"github.com/visitorpulse/pulse/internal/storage"
)

const (
	defaultSessionLimit = 50
	defaultEventLimit   = 20
)

// Processor ingests one event.
type Processor interface {
	Process(ctx context.Context, e session.VisitorEvent) (*session.Session, error)
}

// Dashboards reports the number of connected dashboards.
type Dashboards interface {
	ClientCount() int
}

type Options struct {
	Processor  Processor
	Aggregator *session.Aggregator
	// Store answers history queries and session lookups that miss memory.
	// Nil uses storage.Nop.
	Store      storage.Store
	Dashboards Dashboards
	// WS serves /ws. Nil leaves the route unregistered.
	WS             http.Handler
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Logger         *zap.Logger
}

type handler struct {
	proc       Processor
	agg        *session.Aggregator
	store      storage.Store
	dashboards Dashboards
	logger     *zap.Logger
	now        func() time.Time
	process    processSampler
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Store == nil {
		opts.Store = storage.Nop{}
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	logger := opts.Logger.With(zap.String("component", "api"))

	h := &handler{
		proc:       opts.Processor,
		agg:        opts.Aggregator,
		store:      opts.Store,
		dashboards: opts.Dashboards,
		logger:     logger,
		now:        time.Now,
		process:    newProcessSampler(),
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), securityHeaders(), cors(opts.AllowedOrigins))

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	if opts.WS != nil {
		router.GET("/ws", gin.WrapH(opts.WS))
	}

	api := router.Group("/api")
	api.POST("/events", h.ingestEvent)

	analytics := api.Group("/analytics")
	analytics.GET("/summary", h.summary)
	analytics.GET("/sessions", h.sessions)
	analytics.GET("/sessions/:id", h.session)
	analytics.GET("/events", h.events)
	analytics.GET("/history", h.history)
	analytics.GET("/history/:dimension", h.historyCounts)

	return router
}
