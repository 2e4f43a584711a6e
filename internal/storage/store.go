// Package storage is the durable counterpart of the in-memory aggregator.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/visitorpulse/pulse/internal/session"
)

// ErrNotFound is returned when a session is not stored.
var ErrNotFound = errors.New("storage: not found")

// Dimension is a category that AggregateCounts can group by.
type Dimension string

const (
	DimensionPage    Dimension = "page"
	DimensionCountry Dimension = "country"
	DimensionDevice  Dimension = "device"
)

// ParseDimension validates a dimension name.
func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(s); d {
	case DimensionPage, DimensionCountry, DimensionDevice:
		return d, nil
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

// Query narrows CountSessions and AggregateCounts.
type Query struct {
	Filter     *session.Filter
	ActiveOnly bool
	// Since excludes activity before it when non-zero.
	Since time.Time
}

// Store persists events and session snapshots.
type Store interface {
	SaveEvent(ctx context.Context, e session.VisitorEvent) error
	UpsertSession(ctx context.Context, s *session.Session) error
	FindSession(ctx context.Context, id string) (*session.Session, error)
	CountSessions(ctx context.Context, q Query) (int, error)
	AggregateCounts(ctx context.Context, d Dimension, q Query) (map[string]int, error)
	Close() error
}

// Nop discards writes and answers every query as empty. It is used when no
// database is configured.
type Nop struct{}

var _ Store = Nop{}

func (Nop) SaveEvent(context.Context, session.VisitorEvent) error  { return nil }
func (Nop) UpsertSession(context.Context, *session.Session) error { return nil }

func (Nop) FindSession(context.Context, string) (*session.Session, error) {
	return nil, ErrNotFound
}

func (Nop) CountSessions(context.Context, Query) (int, error) { return 0, nil }

func (Nop) AggregateCounts(context.Context, Dimension, Query) (map[string]int, error) {
	return map[string]int{}, nil
}

func (Nop) Close() error { return nil }
