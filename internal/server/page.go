package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	pageTitle  = "性能面板"
	pollMillis = 1000
)

//go:embed templates/page.html
var pageFS embed.FS

var pageTemplate = template.Must(template.ParseFS(pageFS, "templates/page.html"))

type containerView struct {
	ID      string
	Version uint64
	HTML    template.HTML
}

type pageView struct {
	Title      string
	PollMillis int
	Containers []containerView
}

// Page handles GET / with every mounted container.
func (h *Handler) Page(c echo.Context) error {
	view := pageView{Title: pageTitle, PollMillis: pollMillis}
	for _, container := range h.deps.Document.Containers() {
		view.Containers = append(view.Containers, containerView{
			ID:      container.ID(),
			Version: container.Version(),
			HTML:    container.HTML(),
		})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		return writeError(c, err)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
