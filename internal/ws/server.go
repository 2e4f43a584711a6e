package ws

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxMessageSize = 64 << 10

// Server upgrades dashboard requests and pumps inbound frames into the hub.
type Server struct {
	hub            *Hub
	logger         *zap.Logger
	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
}

// NewServer returns a handler for the dashboard websocket endpoint. With no
// allowed origins, same-host and loopback origins are accepted.
func NewServer(hub *Hub, allowedOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		hub:            hub,
		logger:         logger.With(zap.String("component", "ws")),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	id, err := s.hub.Connect(newConnTransport(conn))
	if err != nil {
		if errors.Is(err, ErrTooManyConnections) {
			s.logger.Warn("rejecting dashboard", zap.String("remote", r.RemoteAddr), zap.Error(err))
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
		conn.Close()
		return
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		s.hub.MarkAlive(id)
		return nil
	})

	go s.readPump(id, conn, r.RemoteAddr)
}

// readPump has no read deadline. Dead peers are found by the heartbeat.
func (s *Server) readPump(id string, conn *websocket.Conn, remote string) {
	defer s.hub.Disconnect(id)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("ws read error", zap.String("conn_id", id), zap.String("remote", remote), zap.Error(err))
			}
			return
		}
		if err := s.hub.HandleMessage(id, data); err != nil {
			s.logger.Debug("bad message", zap.String("conn_id", id), zap.Error(err))
		}
	}
}

// checkOrigin accepts requests without an Origin header, origins on the
// allow list (by exact value or host), and otherwise same-host or loopback
// origins when no allow list is configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.allowedOrigins[origin] {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if len(s.allowedOrigins) > 0 {
		return s.allowedHosts[u.Host]
	}
	return u.Host == r.Host || isLoopback(u.Hostname())
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
