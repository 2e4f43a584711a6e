// Package pipeline is the ingestion boundary: it validates incoming events,
// folds them into the aggregator, writes them through to storage and fans
// the result out to dashboards.
package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/visitorpulse/pulse/internal/session"
	"github.com/visitorpulse/pulse/internal/storage"
)

// Broadcaster receives the outcome of each accepted event.
type Broadcaster interface {
	BroadcastVisitorUpdate(r session.Recorded)
	BroadcastSessionActivity(s *session.Session)
}

const (
	MetricEventsProcessed = "pulse_events_processed_total"
	MetricEventsRejected  = "pulse_events_rejected_total"
	MetricStoreErrors     = "pulse_store_errors_total"
	MetricSessionsSwept   = "pulse_sessions_swept_total"
)

// Metrics counts pipeline outcomes.
type Metrics struct {
	processed *prometheus.CounterVec
	rejected  prometheus.Counter
	storeErrs *prometheus.CounterVec
	swept     prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEventsProcessed,
			Help: "Visitor events accepted by type",
		}, []string{"type"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsRejected,
			Help: "Visitor events rejected by validation",
		}),
		storeErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricStoreErrors,
			Help: "Write-through failures by operation",
		}, []string{"op"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSessionsSwept,
			Help: "Sessions marked inactive by the inactivity sweep",
		}),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.processed, m.rejected, m.storeErrs, m.swept} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Pipeline wires the ingestion path together.
type Pipeline struct {
	agg     *session.Aggregator
	store   storage.Store
	hub     Broadcaster
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// New returns a pipeline. A nil store discards writes and a nil metrics
// value uses unregistered collectors.
func New(agg *session.Aggregator, store storage.Store, hub Broadcaster, logger *zap.Logger, metrics *Metrics) *Pipeline {
	if store == nil {
		store = storage.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Pipeline{
		agg:     agg,
		store:   store,
		hub:     hub,
		logger:  logger.With(zap.String("component", "pipeline")),
		metrics: metrics,
		now:     time.Now,
	}
}

// Process ingests one event and returns the updated session. Validation
// errors are returned unchanged; storage failures are logged and do not
// fail the event.
func (p *Pipeline) Process(ctx context.Context, e session.VisitorEvent) (*session.Session, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = p.now()
	}

	r, err := p.agg.Record(e)
	if err != nil {
		p.metrics.rejected.Inc()
		return nil, err
	}
	s := r.Session
	p.metrics.processed.WithLabelValues(string(e.Type)).Inc()
	if r.Created {
		p.logger.Debug("session started", zap.String("session_id", s.SessionID), zap.String("country", s.Country))
	}

	if err := p.store.SaveEvent(ctx, e); err != nil {
		p.metrics.storeErrs.WithLabelValues("save_event").Inc()
		p.logger.Warn("save event failed", zap.String("session_id", e.SessionID), zap.Error(err))
	}
	if err := p.store.UpsertSession(ctx, s); err != nil {
		p.metrics.storeErrs.WithLabelValues("upsert_session").Inc()
		p.logger.Warn("upsert session failed", zap.String("session_id", s.SessionID), zap.Error(err))
	}

	if p.hub != nil {
		p.hub.BroadcastVisitorUpdate(r)
		p.hub.BroadcastSessionActivity(s)
	}
	return s, nil
}

// Sweep marks idle sessions inactive.
func (p *Pipeline) Sweep(threshold time.Duration) int {
	n := p.agg.SweepInactive(threshold)
	if n > 0 {
		p.metrics.swept.Add(float64(n))
		p.logger.Info("swept inactive sessions", zap.Int("count", n), zap.Duration("threshold", threshold))
	}
	return n
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (p *Pipeline) RunSweeper(ctx context.Context, interval, threshold time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(threshold)
		}
	}
}
