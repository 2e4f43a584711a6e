package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/visitorpulse/pulse/internal/alert"
	"github.com/visitorpulse/pulse/internal/session"
)

// ErrProtocol wraps every rejected inbound message.
var ErrProtocol = errors.New("ws: protocol error")

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultSendBuffer        = 64
	DefaultRecentEvents      = 50
	DefaultSessionLimit      = 50
)

// Options tunes a Hub. Zero values select the defaults.
type Options struct {
	HeartbeatInterval time.Duration
	SendBuffer        int
	RecentEvents      int
	SessionLimit      int
	MaxConnections    int

	Logger  *zap.Logger
	Metrics *Metrics
	Now     func() time.Time
}

func (o *Options) withDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.RecentEvents <= 0 {
		o.RecentEvents = DefaultRecentEvents
	}
	if o.SessionLimit <= 0 {
		o.SessionLimit = DefaultSessionLimit
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Hub fans aggregated views out to every connected dashboard.
type Hub struct {
	agg      *session.Aggregator
	alerts   *alert.Engine
	registry *Registry
	opts     Options
	logger   *zap.Logger
	metrics  *Metrics
}

// NewHub wires a hub to its aggregator and alert engine.
func NewHub(agg *session.Aggregator, alerts *alert.Engine, opts Options) *Hub {
	opts.withDefaults()
	return &Hub{
		agg:      agg,
		alerts:   alerts,
		registry: NewRegistry(opts.MaxConnections),
		opts:     opts,
		logger:   opts.Logger.With(zap.String("component", "hub")),
		metrics:  opts.Metrics,
	}
}

// Registry exposes the connection set.
func (h *Hub) Registry() *Registry { return h.registry }

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int { return h.registry.Size() }

// Connect registers a new dashboard, greets it and tells the others. On
// ErrTooManyConnections nothing is started and the caller owns t.
func (h *Hub) Connect(t Transport) (string, error) {
	c := newClient(t, h.opts.SendBuffer)
	id, err := h.registry.Register(c)
	if err != nil {
		return "", err
	}
	c.onWriteError = func(err error) {
		h.logger.Debug("write failed", zap.String("conn_id", id), zap.Error(err))
		h.metrics.incSendFailures()
		h.Disconnect(id)
	}
	c.start()

	total := h.registry.Size()
	h.metrics.setConnections(total)
	h.logger.Info("dashboard connected", zap.String("conn_id", id), zap.Int("total", total))

	payload := ConnectedPayload{TotalDashboards: total, ConnectedAt: h.opts.Now().UTC()}
	if p, ok := h.registry.Get(id); ok {
		h.send(p, MsgUserConnected, payload)
	}
	h.broadcast(MsgUserConnected, payload, id)
	return id, nil
}

// Disconnect unregisters a dashboard and announces the new count. It is safe
// to call more than once; only the first call has any effect.
func (h *Hub) Disconnect(id string) {
	c, ok := h.registry.Unregister(id)
	if !ok {
		return
	}
	c.close()

	total := h.registry.Size()
	h.metrics.setConnections(total)
	h.logger.Info("dashboard disconnected", zap.String("conn_id", id), zap.Int("total", total))
	h.broadcast(MsgUserDisconnected, DisconnectedPayload{TotalDashboards: total}, "")
}

// MarkAlive records a pong from the dashboard.
func (h *Hub) MarkAlive(id string) {
	h.registry.MarkAlive(id)
}

// HandleMessage processes one inbound frame. Malformed frames get an error
// reply and the connection stays open.
func (h *Hub) HandleMessage(id string, data []byte) error {
	peer, ok := h.registry.Get(id)
	if !ok {
		return nil
	}

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return h.protocolError(peer, err)
	}

	switch msg.Type {
	case MsgRequestDetailedStats:
		var req StatsRequest
		if hasData(msg.Data) {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				return h.protocolError(peer, err)
			}
		}
		filter := req.Filter.Normalize()
		if filter == nil {
			filter = peer.Filter
		}
		h.sendDetails(peer, filter)

	case MsgApplyFilters:
		var f session.Filter
		if hasData(msg.Data) {
			if err := json.Unmarshal(msg.Data, &f); err != nil {
				return h.protocolError(peer, err)
			}
		}
		h.registry.SetFilter(id, &f)
		h.logger.Debug("filters applied", zap.String("conn_id", id),
			zap.String("country", f.Country), zap.String("page", f.Page), zap.String("device", f.Device))
		h.sendDetails(peer, f.Normalize())

	case MsgClearFilters:
		h.registry.SetFilter(id, nil)
		h.logger.Debug("filters cleared", zap.String("conn_id", id))
		h.sendDetails(peer, nil)

	default:
		h.logger.Debug("unknown message type", zap.String("conn_id", id), zap.String("type", string(msg.Type)))
	}
	return nil
}

func (h *Hub) protocolError(p Peer, err error) error {
	h.metrics.incProtocolErrors()
	h.send(p, MsgError, ErrorPayload{Message: "Invalid message format"})
	return fmt.Errorf("%w: %v", ErrProtocol, err)
}

// sendDetails replies with the scoped stats, sessions and recent events.
func (h *Hub) sendDetails(p Peer, f *session.Filter) {
	h.send(p, MsgDetailedStatsResponse, h.agg.Summarize(f))
	h.send(p, MsgFilteredSessions, h.agg.ActiveSessions(f, h.opts.SessionLimit))
	h.send(p, MsgFilteredEvents, h.agg.RecentEvents(f, h.opts.RecentEvents))
}

// BroadcastVisitorUpdate sends every dashboard its filtered stats, with the
// event attached where the filter matches, then evaluates alerts on the
// global stats as of this event.
func (h *Hub) BroadcastVisitorUpdate(r session.Recorded) {
	e := r.Event
	scoped := make(map[session.Filter]session.SummaryStats)
	h.registry.ForEach(func(p Peer) {
		var key session.Filter
		if p.Filter != nil {
			key = *p.Filter
		}
		stats, ok := scoped[key]
		if !ok {
			stats = h.agg.Summarize(p.Filter)
			scoped[key] = stats
		}

		payload := VisitorUpdatePayload{Stats: stats}
		if p.Filter.MatchEvent(e) {
			ev := e
			payload.Event = &ev
		}
		h.send(p, MsgVisitorUpdate, payload)
	})

	global := h.agg.Summarize(nil)
	global.Day, global.TotalToday = r.Day, r.TotalToday
	for _, a := range h.alerts.Evaluate(global) {
		h.metrics.incAlert(string(a.Level))
		h.logger.Info("alert", zap.String("level", string(a.Level)), zap.String("message", a.Message))
		h.broadcast(MsgAlert, a, "")
	}
}

// BroadcastSessionActivity tells matching dashboards about an active
// session's progress.
func (h *Hub) BroadcastSessionActivity(s *session.Session) {
	if s == nil || !s.IsActive {
		return
	}
	data, err := encode(MsgSessionActivity, SessionActivityPayload{
		SessionID:   s.SessionID,
		CurrentPage: s.CurrentPage,
		Journey:     s.Journey,
		Duration:    s.Duration,
	})
	if err != nil {
		h.logger.Error("marshal session activity", zap.Error(err))
		return
	}
	h.registry.ForEach(func(p Peer) {
		if p.Filter.MatchSession(s) {
			h.deliver(p, MsgSessionActivity, data)
		}
	})
}

// Heartbeat runs one liveness round: connections that missed the previous
// probe are terminated, the rest are probed again.
func (h *Hub) Heartbeat() {
	dead, probe := h.registry.reap()

	for _, p := range dead {
		h.logger.Info("terminating unresponsive dashboard", zap.String("conn_id", p.ID))
		h.metrics.incHeartbeatTerminations()
		p.client.close()
	}
	if len(dead) > 0 {
		total := h.registry.Size()
		h.metrics.setConnections(total)
		h.broadcast(MsgUserDisconnected, DisconnectedPayload{TotalDashboards: total}, "")
	}

	for _, p := range probe {
		if err := p.client.ping(); err != nil {
			h.logger.Debug("ping failed", zap.String("conn_id", p.ID), zap.Error(err))
		}
	}
}

// Run drives the heartbeat until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Heartbeat()
		}
	}
}

// Close terminates every connection without announcements.
func (h *Hub) Close() {
	h.registry.ForEach(func(p Peer) {
		if c, ok := h.registry.Unregister(p.ID); ok {
			c.close()
		}
	})
	h.metrics.setConnections(0)
}

func (h *Hub) broadcast(t MessageType, payload interface{}, excludeID string) {
	data, err := encode(t, payload)
	if err != nil {
		h.logger.Error("broadcast marshal error", zap.String("type", string(t)), zap.Error(err))
		return
	}
	h.registry.ForEach(func(p Peer) {
		if p.ID != excludeID {
			h.deliver(p, t, data)
		}
	})
}

func (h *Hub) send(p Peer, t MessageType, payload interface{}) {
	data, err := encode(t, payload)
	if err != nil {
		h.logger.Error("marshal error", zap.String("type", string(t)), zap.Error(err))
		return
	}
	h.deliver(p, t, data)
}

// deliver queues data for one dashboard. A dashboard that cannot take it is
// dropped and the caller carries on with the rest.
func (h *Hub) deliver(p Peer, t MessageType, data []byte) {
	if err := p.client.enqueue(data); err != nil {
		if errors.Is(err, ErrClientClosed) {
			return
		}
		h.logger.Warn("dashboard too slow, disconnecting", zap.String("conn_id", p.ID), zap.Error(err))
		h.metrics.incSendFailures()
		h.Disconnect(p.ID)
		return
	}
	h.metrics.incSent(t)
}
