// Package server exposes the rendering surface and the toolkit over HTTP.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"perfkit/internal/chart"
	"perfkit/internal/monitor"
	"perfkit/internal/refresh"
	"perfkit/internal/surface"
	"perfkit/internal/table"
	"perfkit/internal/timing"
)

// settleDelay is the quiet period after which a burst of surface updates is logged.
const settleDelay = time.Second

// TableRenderer schedules table renders.
type TableRenderer interface {
	Render(rows []table.Row, containerID string)
	VisibleRows() int
}

// ChartUpdater schedules chart updates.
type ChartUpdater interface {
	Update(series []chart.Series, chartID string)
}

// SpanSource reports performance monitor spans.
type SpanSource interface {
	Metrics() []monitor.Metric
}

// SourceRefresher lists and triggers configured sources.
type SourceRefresher interface {
	Sources() []refresh.Source
	Trigger(id string) error
}

// Deps are the toolkit components served over HTTP. Refresher may be nil.
type Deps struct {
	Document  *surface.Document
	Tables    TableRenderer
	Charts    ChartUpdater
	Spans     SpanSource
	Refresher SourceRefresher
	Logger    *slog.Logger
}

// Handler holds the HTTP handlers
type Handler struct {
	deps    Deps
	updates atomic.Int64
	settled func(string)
}

// NewHandler creates a new handler with the given dependencies
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &Handler{deps: deps}
	h.settled = timing.Debounce(func(last string) {
		deps.Logger.Info("surface updates settled", "updates", h.updates.Swap(0), "last_container", last)
	}, settleDelay)
	return h
}

func (h *Handler) noteUpdate(id string) {
	h.updates.Add(1)
	h.settled(id)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Spans handles GET /v1/spans
func (h *Handler) Spans(c echo.Context) error {
	metrics := []monitor.Metric{}
	if h.deps.Spans != nil {
		metrics = append(metrics, h.deps.Spans.Metrics()...)
	}
	return c.JSON(http.StatusOK, map[string]any{"spans": metrics})
}

type sourceView struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Interval string `json:"interval"`
}

// Sources handles GET /v1/sources
func (h *Handler) Sources(c echo.Context) error {
	views := []sourceView{}
	if h.deps.Refresher != nil {
		for _, src := range h.deps.Refresher.Sources() {
			views = append(views, sourceView{ID: src.ID, URL: src.URL, Kind: src.Kind, Interval: src.Interval.String()})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"sources": views})
}

// RenderTable handles POST /v1/tables/:id
func (h *Handler) RenderTable(c echo.Context) error {
	id := c.Param("id")
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, invalidRequest("failed to read request body", err))
	}
	rows, err := table.RowsFromJSON(body)
	if err != nil {
		return writeError(c, invalidRequest("invalid table rows", err))
	}

	h.deps.Document.Mount(id)
	h.deps.Tables.Render(rows, id)
	h.noteUpdate(id)

	return c.JSON(http.StatusAccepted, map[string]any{
		"container": id,
		"total":     len(rows),
		"shown":     min(len(rows), h.deps.Tables.VisibleRows()),
	})
}

// UpdateChart handles POST /v1/charts/:id
func (h *Handler) UpdateChart(c echo.Context) error {
	id := c.Param("id")
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, invalidRequest("failed to read request body", err))
	}
	series, err := chart.SeriesFromJSON(body)
	if err != nil {
		return writeError(c, invalidRequest("invalid chart series", err))
	}

	h.deps.Document.Mount(id)
	h.deps.Charts.Update(series, id)
	h.noteUpdate(id)

	return c.JSON(http.StatusAccepted, map[string]any{
		"container": id,
		"series":    len(series),
	})
}

// RefreshSource handles POST /v1/sources/:id/refresh
func (h *Handler) RefreshSource(c echo.Context) error {
	id := c.Param("id")
	if h.deps.Refresher == nil {
		return writeError(c, notFound("unknown source: "+id))
	}
	if err := h.deps.Refresher.Trigger(id); err != nil {
		if errors.Is(err, refresh.ErrUnknownSource) {
			return writeError(c, notFound("unknown source: "+id))
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"source": id})
}

// Surface handles GET /surface/:id. With ?since=N it answers 304 until the
// container version moves past N.
func (h *Handler) Surface(c echo.Context) error {
	id := c.Param("id")
	container, ok := h.deps.Document.Lookup(id)
	if !ok {
		return writeError(c, notFound("unknown container: "+id))
	}

	version := container.Version()
	header := c.Response().Header()
	header.Set("X-Surface-Version", strconv.FormatUint(version, 10))
	header.Set("Cache-Control", "no-cache")

	if since := c.QueryParam("since"); since != "" {
		n, err := strconv.ParseUint(since, 10, 64)
		if err != nil {
			return writeError(c, invalidRequest("invalid since parameter", err))
		}
		if version <= n {
			return c.NoContent(http.StatusNotModified)
		}
	}
	return c.HTML(http.StatusOK, string(container.HTML()))
}
