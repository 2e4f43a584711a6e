package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/visitorpulse/pulse/internal/session"
)

const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

// PoolOptions configures the connection pool. Zero values select defaults.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, url string, opts PoolOptions) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = DefaultMaxOpenConns
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = DefaultMaxIdleConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Postgres stores events in visitor_events and session snapshots in
// sessions. The schema lives in migrations/.
type Postgres struct {
	db *sqlx.DB
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

const insertEventSQL = `INSERT INTO visitor_events
	(session_id, type, page, country, device, referrer, user_agent, ip, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (p *Postgres) SaveEvent(ctx context.Context, e session.VisitorEvent) error {
	var ua, ip string
	if e.Metadata != nil {
		ua, ip = e.Metadata.UserAgent, e.Metadata.IP
	}
	_, err := p.db.ExecContext(ctx, insertEventSQL,
		e.SessionID, string(e.Type), e.Page, e.Country, e.Device(), e.Referrer(), ua, ip, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

const upsertSessionSQL = `INSERT INTO sessions
	(session_id, current_page, journey, start_time, last_activity, country, device, referrer, is_active, duration_seconds)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (session_id) DO UPDATE SET
		current_page = EXCLUDED.current_page,
		journey = EXCLUDED.journey,
		last_activity = EXCLUDED.last_activity,
		device = EXCLUDED.device,
		referrer = EXCLUDED.referrer,
		is_active = EXCLUDED.is_active,
		duration_seconds = EXCLUDED.duration_seconds,
		updated_at = NOW()
	WHERE sessions.last_activity <= EXCLUDED.last_activity`

// UpsertSession writes the snapshot unless the stored row is newer, so a
// late write cannot roll a session back.
func (p *Postgres) UpsertSession(ctx context.Context, s *session.Session) error {
	_, err := p.db.ExecContext(ctx, upsertSessionSQL,
		s.SessionID, s.CurrentPage, pq.StringArray(s.Journey), s.StartTime, s.LastActivity,
		s.Country, s.Device, s.Referrer, s.IsActive, s.Duration)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.SessionID, err)
	}
	return nil
}

type sessionRow struct {
	SessionID    string         `db:"session_id"`
	CurrentPage  string         `db:"current_page"`
	Journey      pq.StringArray `db:"journey"`
	StartTime    time.Time      `db:"start_time"`
	LastActivity time.Time      `db:"last_activity"`
	Country      string         `db:"country"`
	Device       string         `db:"device"`
	Referrer     string         `db:"referrer"`
	IsActive     bool           `db:"is_active"`
	Duration     int64          `db:"duration_seconds"`
}

func (r sessionRow) toSession() *session.Session {
	return &session.Session{
		SessionID:    r.SessionID,
		CurrentPage:  r.CurrentPage,
		Journey:      []string(r.Journey),
		StartTime:    r.StartTime,
		LastActivity: r.LastActivity,
		Country:      r.Country,
		Device:       r.Device,
		Referrer:     r.Referrer,
		IsActive:     r.IsActive,
		Duration:     r.Duration,
	}
}

const findSessionSQL = `SELECT session_id, current_page, journey, start_time, last_activity,
	country, device, referrer, is_active, duration_seconds
	FROM sessions WHERE session_id = $1`

func (p *Postgres) FindSession(ctx context.Context, id string) (*session.Session, error) {
	var row sessionRow
	if err := p.db.GetContext(ctx, &row, findSessionSQL, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find session %s: %w", id, err)
	}
	return row.toSession(), nil
}

func (p *Postgres) CountSessions(ctx context.Context, q Query) (int, error) {
	where, args := q.where(sessionColumns)
	var n int
	if err := p.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM sessions"+where, args...); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

type countRow struct {
	Value string `db:"value"`
	Count int    `db:"count"`
}

func (p *Postgres) AggregateCounts(ctx context.Context, d Dimension, q Query) (map[string]int, error) {
	col, ok := eventColumns.byDimension(d)
	if !ok {
		return nil, fmt.Errorf("aggregate counts: unknown dimension %q", d)
	}
	where, args := q.where(eventColumns)
	stmt := fmt.Sprintf("SELECT %s AS value, COUNT(*) AS count FROM visitor_events%s GROUP BY %s", col, where, col)

	var rows []countRow
	if err := p.db.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("aggregate %s counts: %w", d, err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		if r.Value == "" {
			continue
		}
		counts[r.Value] = r.Count
	}
	return counts, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// columns maps query fields onto one table's column names.
type columns struct {
	country, page, device string
	time                  string
	active                string
}

var (
	sessionColumns = columns{
		country: "country",
		page:    "current_page",
		device:  "device",
		time:    "last_activity",
		active:  "is_active",
	}
	eventColumns = columns{
		country: "country",
		page:    "page",
		device:  "device",
		time:    "occurred_at",
		active:  "session_id IN (SELECT session_id FROM sessions WHERE is_active)",
	}
)

func (c columns) byDimension(d Dimension) (string, bool) {
	switch d {
	case DimensionPage:
		return c.page, true
	case DimensionCountry:
		return c.country, true
	case DimensionDevice:
		return c.device, true
	}
	return "", false
}

// where renders q as a WHERE clause with positional arguments.
func (q Query) where(c columns) (string, []any) {
	var conds []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if f := q.Filter; !f.IsEmpty() {
		if f.Country != "" {
			add(c.country, f.Country)
		}
		if f.Page != "" {
			add(c.page, f.Page)
		}
		if f.Device != "" {
			add(c.device, f.Device)
		}
	}
	if q.ActiveOnly {
		conds = append(conds, c.active)
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		conds = append(conds, fmt.Sprintf("%s >= $%d", c.time, len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
