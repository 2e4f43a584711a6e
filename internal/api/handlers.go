package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/visitorpulse/pulse/internal/session"
	"github.com/visitorpulse/pulse/internal/storage"
)

func fail(c *gin.Context, status int, message string, err error) {
	body := gin.H{"success": false, "message": message}
	if err != nil {
		body["error"] = err.Error()
		_ = c.Error(err)
	}
	c.JSON(status, body)
}

// filterFromQuery returns nil when no filter parameter is set.
func filterFromQuery(c *gin.Context) *session.Filter {
	f := &session.Filter{
		Country: c.Query("country"),
		Page:    c.Query("page"),
		Device:  c.Query("device"),
	}
	return f.Normalize()
}

func limitFromQuery(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	return n, nil
}

// historyQuery reads the filter and the optional RFC 3339 since bound.
func historyQuery(c *gin.Context) (storage.Query, error) {
	q := storage.Query{Filter: filterFromQuery(c)}
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, fmt.Errorf("since must be an RFC 3339 timestamp, got %q", raw)
		}
		q.Since = t
	}
	return q, nil
}

// POST /api/events
func (h *handler) ingestEvent(c *gin.Context) {
	var e session.VisitorEvent
	if err := c.ShouldBindJSON(&e); err != nil {
		fail(c, http.StatusBadRequest, "Invalid event", err)
		return
	}

	md := session.Metadata{}
	if e.Metadata != nil {
		md = *e.Metadata
	}
	md.IP = c.ClientIP()
	md.UserAgent = c.Request.UserAgent()
	e.Metadata = &md

	if _, err := h.proc.Process(c.Request.Context(), e); err != nil {
		if errors.Is(err, session.ErrInvalidEvent) {
			fail(c, http.StatusBadRequest, "Invalid event", err)
			return
		}
		h.logger.Error("process event failed", zap.String("session_id", e.SessionID), zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to process event", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Event processed successfully"})
}

// GET /api/analytics/summary
func (h *handler) summary(c *gin.Context) {
	c.JSON(http.StatusOK, h.agg.Summarize(filterFromQuery(c)))
}

// GET /api/analytics/sessions
func (h *handler) sessions(c *gin.Context) {
	limit, err := limitFromQuery(c, defaultSessionLimit)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	c.JSON(http.StatusOK, h.agg.ActiveSessions(filterFromQuery(c), limit))
}

// GET /api/analytics/sessions/:id
func (h *handler) session(c *gin.Context) {
	id := c.Param("id")
	if s, ok := h.agg.Get(id); ok {
		c.JSON(http.StatusOK, s)
		return
	}

	s, err := h.store.FindSession(c.Request.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, "Session not found", nil)
	case err != nil:
		fail(c, http.StatusInternalServerError, "Failed to load session", err)
	default:
		c.JSON(http.StatusOK, s)
	}
}

// GET /api/analytics/events
func (h *handler) events(c *gin.Context) {
	limit, err := limitFromQuery(c, defaultEventLimit)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	c.JSON(http.StatusOK, h.agg.RecentEvents(filterFromQuery(c), limit))
}

type historyResponse struct {
	Sessions         int            `json:"sessions"`
	ActiveSessions   int            `json:"activeSessions"`
	PagesVisited     map[string]int `json:"pagesVisited"`
	CountriesVisited map[string]int `json:"countriesVisited"`
	DevicesUsed      map[string]int `json:"devicesUsed"`
}

// GET /api/analytics/history
func (h *handler) history(c *gin.Context) {
	ctx := c.Request.Context()
	q, err := historyQuery(c)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid since", err)
		return
	}

	var resp historyResponse
	if resp.Sessions, err = h.store.CountSessions(ctx, q); err != nil {
		fail(c, http.StatusInternalServerError, "Failed to load history", err)
		return
	}
	active := q
	active.ActiveOnly = true
	if resp.ActiveSessions, err = h.store.CountSessions(ctx, active); err != nil {
		fail(c, http.StatusInternalServerError, "Failed to load history", err)
		return
	}

	dims := []struct {
		d   storage.Dimension
		dst *map[string]int
	}{
		{storage.DimensionPage, &resp.PagesVisited},
		{storage.DimensionCountry, &resp.CountriesVisited},
		{storage.DimensionDevice, &resp.DevicesUsed},
	}
	for _, dim := range dims {
		counts, err := h.store.AggregateCounts(ctx, dim.d, q)
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to load history", err)
			return
		}
		if counts == nil {
			counts = map[string]int{}
		}
		*dim.dst = counts
	}

	c.JSON(http.StatusOK, resp)
}

// GET /api/analytics/history/:dimension
func (h *handler) historyCounts(c *gin.Context) {
	d, err := storage.ParseDimension(c.Param("dimension"))
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid dimension", err)
		return
	}

	q, err := historyQuery(c)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid since", err)
		return
	}
	q.ActiveOnly = c.Query("active") == "true"
	counts, err := h.store.AggregateCounts(c.Request.Context(), d, q)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to load history", err)
		return
	}
	if counts == nil {
		counts = map[string]int{}
	}
	c.JSON(http.StatusOK, counts)
}
