// Package mock produces synthetic visitor traffic for demo mode.
package mock

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visitorpulse/pulse/internal/session"
)

// Processor is the ingestion path the generator feeds.
type Processor interface {
	Process(ctx context.Context, e session.VisitorEvent) (*session.Session, error)
}

var (
	landingPages = []string{"/", "/home", "/pricing", "/blog"}
	pages        = []string{"/", "/home", "/pricing", "/features", "/blog", "/docs", "/signup", "/checkout"}
	countries    = []string{"UK", "India", "USA", "Germany", "Brazil", "Japan"}
	devices      = []string{"desktop", "mobile", "tablet"}
	referrers    = []string{"google", "twitter", "newsletter", "direct"}
)

const (
	DefaultInterval  = 500 * time.Millisecond
	DefaultPoolSize  = 12
	maxPagesPerVisit = 6
)

type visitor struct {
	id        string
	country   string
	device    string
	referrer  string
	page      string
	pagesLeft int
}

type Generator struct {
	proc     Processor
	logger   *zap.Logger
	interval time.Duration
	poolSize int
	rng      *rand.Rand
	now      func() time.Time

	visitors []*visitor
}

type Option func(*Generator)

func WithInterval(d time.Duration) Option { return func(g *Generator) { g.interval = d } }

func WithPoolSize(n int) Option { return func(g *Generator) { g.poolSize = n } }

// WithSeed makes the traffic reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

func WithLogger(l *zap.Logger) Option { return func(g *Generator) { g.logger = l } }

func NewGenerator(proc Processor, opts ...Option) *Generator {
	g := &Generator{
		proc:     proc,
		logger:   zap.NewNop(),
		interval: DefaultInterval,
		poolSize: DefaultPoolSize,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("component", "mock"))
	return g
}

// Run emits traffic every interval until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) {
	g.logger.Info("mock traffic started", zap.Duration("interval", g.interval), zap.Int("pool", g.poolSize))
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("mock traffic stopped")
			return
		case <-ticker.C:
			g.tick(ctx)
		}
	}
}

// tick admits a new visitor while the pool has room, then advances one
// existing visitor.
func (g *Generator) tick(ctx context.Context) {
	if len(g.visitors) < g.poolSize {
		v := g.arrive()
		g.emit(ctx, v, session.EventPageview)
	}
	if len(g.visitors) == 0 {
		return
	}

	i := g.rng.Intn(len(g.visitors))
	v := g.visitors[i]
	switch {
	case v.pagesLeft == 0:
		g.emit(ctx, v, session.EventSessionEnd)
		g.visitors = append(g.visitors[:i], g.visitors[i+1:]...)
	case g.rng.Float64() < 0.3:
		g.emit(ctx, v, session.EventClick)
	default:
		v.page = pick(g.rng, pages)
		v.pagesLeft--
		g.emit(ctx, v, session.EventPageview)
	}
}

func (g *Generator) arrive() *visitor {
	v := &visitor{
		id:        "mock-" + uuid.NewString()[:8],
		country:   pick(g.rng, countries),
		device:    pick(g.rng, devices),
		referrer:  pick(g.rng, referrers),
		page:      pick(g.rng, landingPages),
		pagesLeft: 1 + g.rng.Intn(maxPagesPerVisit),
	}
	g.visitors = append(g.visitors, v)
	return v
}

func (g *Generator) emit(ctx context.Context, v *visitor, t session.EventType) {
	e := session.VisitorEvent{
		SessionID: v.id,
		Type:      t,
		Page:      v.page,
		Country:   v.country,
		Timestamp: g.now(),
		Metadata: &session.Metadata{
			Device:    v.device,
			Referrer:  v.referrer,
			UserAgent: "pulse-mock/1.0",
		},
	}
	if _, err := g.proc.Process(ctx, e); err != nil {
		g.logger.Warn("mock event rejected", zap.String("session_id", v.id), zap.Error(err))
	}
}

func pick(rng *rand.Rand, s []string) string {
	return s[rng.Intn(len(s))]
}
