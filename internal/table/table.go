// Package table renders rows into an HTML table inside a surface container.
//
// This is a truncated render, not a virtualized one: only the first
// VisibleRows rows are rendered, followed by a note with the total count.
package table

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"

	"perfkit/internal/surface"
)

// DefaultVisibleRows is the number of rows rendered per table.
const DefaultVisibleRows = 50

//go:embed templates/table.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/table.html"))

// Enqueuer defers an update action to the next frame.
type Enqueuer interface {
	Enqueue(action func())
}

// Renderer renders tables into surface containers through the update batcher.
type Renderer struct {
	doc         surface.Resolver
	batcher     Enqueuer
	visibleRows int
	logger      *slog.Logger
}

// NewRenderer creates a Renderer. A non-positive visibleRows uses
// DefaultVisibleRows; a nil logger uses slog.Default().
func NewRenderer(doc surface.Resolver, batcher Enqueuer, visibleRows int, logger *slog.Logger) *Renderer {
	if visibleRows <= 0 {
		visibleRows = DefaultVisibleRows
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		doc:         doc,
		batcher:     batcher,
		visibleRows: visibleRows,
		logger:      logger.With("component", "table"),
	}
}

// VisibleRows returns the render cap.
func (r *Renderer) VisibleRows() int {
	return r.visibleRows
}

// Render schedules rows to be rendered into containerID on the next frame.
// An unknown container is skipped silently.
func (r *Renderer) Render(rows []Row, containerID string) {
	container, ok := r.doc.Lookup(containerID)
	if !ok {
		r.logger.Debug("container not found, skipping render", "container", containerID)
		return
	}

	total := len(rows)
	shown := rows[:min(total, r.visibleRows)]
	// The caller may reuse its slice before the frame runs.
	shown = append([]Row(nil), shown...)

	r.batcher.Enqueue(func() {
		html, err := TableHTML(shown)
		if err != nil {
			r.logger.Error("failed to render table", "container", containerID, "error", err)
			return
		}
		if total > r.visibleRows {
			note, err := PaginationHTML(r.visibleRows, total)
			if err != nil {
				r.logger.Error("failed to render pagination note", "container", containerID, "error", err)
				return
			}
			// One SetHTML so pollers never see the table without its note.
			html += note
		}
		container.SetHTML(html)
	})
}

type tableView struct {
	Empty   bool
	Headers []string
	Rows    [][]string
}

// TableHTML renders rows as a table. Headers come from the first row; cells
// of other rows are matched by key, missing or nil values render empty and
// extra keys are ignored. No rows renders a "no data" placeholder.
func TableHTML(rows []Row) (template.HTML, error) {
	view := tableView{Empty: len(rows) == 0}
	if !view.Empty {
		view.Headers = rows[0].Keys()
		view.Rows = make([][]string, len(rows))
		for i, row := range rows {
			cells := make([]string, len(view.Headers))
			for j, h := range view.Headers {
				if v, ok := row.Get(h); ok && v != nil {
					cells[j] = fmt.Sprint(v)
				}
			}
			view.Rows[i] = cells
		}
	}
	return execute("table", view)
}

// PaginationHTML renders the "shown of total" note.
func PaginationHTML(shown, total int) (template.HTML, error) {
	return execute("pagination", struct{ Shown, Total int }{shown, total})
}

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}
