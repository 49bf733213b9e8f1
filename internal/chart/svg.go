package chart

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"html/template"
	"sync"
	"time"

	"github.com/google/uuid"
	gochart "github.com/wcharczuk/go-chart/v2"

	"perfkit/internal/surface"
)

// ErrDisposed is returned by SetOption on a disposed instance.
var ErrDisposed = errors.New("chart instance is disposed")

const placeholderHTML = `<div class="chart-empty">暂无数据</div>`

// singleSampleSpan pads the time axis on each side of a lone sample.
const singleSampleSpan = time.Minute

// SVGEngine renders charts to inline SVG with go-chart.
type SVGEngine struct {
	Width  int
	Height int
}

// NewSVGEngine returns an engine producing charts of the given size.
func NewSVGEngine(width, height int) *SVGEngine {
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 400
	}
	return &SVGEngine{Width: width, Height: height}
}

// Init binds a new instance to container.
func (e *SVGEngine) Init(container *surface.Container) Instance {
	return &svgInstance{
		id:        uuid.NewString(),
		container: container,
		width:     e.Width,
		height:    e.Height,
	}
}

type svgInstance struct {
	id        string
	container *surface.Container
	width     int
	height    int

	mu       sync.Mutex
	disposed bool
}

func (i *svgInstance) ID() string { return i.id }

// SetOption renders opt into the container. On a render error the container
// shows a placeholder and the error is returned.
func (i *svgInstance) SetOption(opt Option) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.disposed {
		return ErrDisposed
	}

	if !hasPoints(opt.Series) {
		i.container.SetHTML(template.HTML(placeholderHTML))
		return nil
	}

	svg, err := i.render(opt)
	if err != nil {
		i.container.SetHTML(template.HTML(placeholderHTML))
		return err
	}
	i.container.SetHTML(template.HTML(fmt.Sprintf(
		`<div class="chart" data-chart-instance="%s" data-tooltip="%s">%s</div>`,
		i.id, html.EscapeString(opt.TooltipTrigger), svg,
	)))
	return nil
}

func (i *svgInstance) render(opt Option) ([]byte, error) {
	series := make([]gochart.Series, 0, len(opt.Series))
	var minX, maxX time.Time
	for _, s := range opt.Series {
		if len(s.Points) == 0 {
			continue
		}
		ts := gochart.TimeSeries{
			// go-chart writes text into the SVG verbatim.
			Name:    html.EscapeString(s.Name),
			XValues: make([]time.Time, len(s.Points)),
			YValues: make([]float64, len(s.Points)),
		}
		for j, p := range s.Points {
			ts.XValues[j] = p.Time
			ts.YValues[j] = p.Value
			if minX.IsZero() || p.Time.Before(minX) {
				minX = p.Time
			}
			if maxX.IsZero() || p.Time.After(maxX) {
				maxX = p.Time
			}
		}
		series = append(series, ts)
	}

	ch := gochart.Chart{
		Title:      html.EscapeString(opt.Title),
		Width:      i.width,
		Height:     i.height,
		Background: gochart.Style{Padding: gochart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      gochart.XAxis{ValueFormatter: gochart.TimeValueFormatter},
		YAxis:      gochart.YAxis{},
		Series:     series,
	}
	if minX.Equal(maxX) {
		// go-chart rejects a zero x-range, so a single sample gets a window around it.
		ch.XAxis.Range = &gochart.ContinuousRange{
			Min: gochart.TimeToFloat64(minX.Add(-singleSampleSpan)),
			Max: gochart.TimeToFloat64(maxX.Add(singleSampleSpan)),
		}
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(gochart.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// Dispose clears the container and releases the instance.
func (i *svgInstance) Dispose() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.disposed {
		return
	}
	i.disposed = true
	i.container.Clear()
}

func hasPoints(series []Series) bool {
	for _, s := range series {
		if len(s.Points) > 0 {
			return true
		}
	}
	return false
}
