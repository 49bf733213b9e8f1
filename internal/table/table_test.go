package table

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"perfkit/internal/batcher"
	"perfkit/internal/surface"
)

func setup(t *testing.T) (*Renderer, *surface.Document, *batcher.ManualScheduler) {
	t.Helper()
	doc := surface.NewDocument()
	sched := &batcher.ManualScheduler{}
	r := NewRenderer(doc, batcher.New(sched, nil), 0, nil)
	return r, doc, sched
}

func TestRender_TwoRows(t *testing.T) {
	r, doc, sched := setup(t)
	c := doc.Mount("perf-table")

	rows, err := RowsFromJSON([]byte(`[{"a":1,"b":2},{"a":3,"b":4}]`))
	require.NoError(t, err)

	r.Render(rows, "perf-table")
	require.Empty(t, c.HTML(), "render must wait for the next frame")

	sched.Tick()
	html := string(c.HTML())

	require.Contains(t, html, `<table class="data-table">`)
	require.Contains(t, html, "<thead><tr><th>a</th><th>b</th></tr></thead>")
	require.Contains(t, html, "<tr><td>1</td><td>2</td></tr>")
	require.Contains(t, html, "<tr><td>3</td><td>4</td></tr>")
	require.Equal(t, 3, strings.Count(html, "<tr>"))
	require.NotContains(t, html, "pagination-info")
}

func TestRender_TruncatesAndAddsNote(t *testing.T) {
	r, doc, sched := setup(t)
	c := doc.Mount("big")

	rows := make([]Row, 51)
	for i := range rows {
		rows[i] = Row{{Key: "id", Value: i}}
	}

	r.Render(rows, "big")
	sched.Tick()
	html := string(c.HTML())

	require.Equal(t, 51, strings.Count(html, "<tr>"), "header row plus 50 body rows")
	require.Contains(t, html, "<td>49</td>")
	require.NotContains(t, html, "<td>50</td>")
	require.Contains(t, html, `<div class="pagination-info">显示前 50 条，共 51 条记录</div>`)
}

func TestRender_TruncatedTableIsOneUpdate(t *testing.T) {
	r, doc, sched := setup(t)
	c := doc.Mount("big")
	before := c.Version()

	rows := make([]Row, 60)
	for i := range rows {
		rows[i] = Row{{Key: "id", Value: i}}
	}

	r.Render(rows, "big")
	sched.Tick()

	require.Equal(t, before+1, c.Version())
	require.Contains(t, string(c.HTML()), "显示前 50 条，共 60 条记录")
}

func TestRender_Empty(t *testing.T) {
	r, doc, sched := setup(t)
	c := doc.Mount("empty")

	r.Render(nil, "empty")
	sched.Tick()

	require.Equal(t, `<div class="no-data">暂无数据</div>`, string(c.HTML()))
}

func TestRender_MissingContainerIsNoOp(t *testing.T) {
	r, _, sched := setup(t)

	r.Render([]Row{{{Key: "a", Value: 1}}}, "nowhere")
	require.Zero(t, sched.Len(), "nothing should be enqueued")
}

func TestRender_ReplacesPreviousContent(t *testing.T) {
	r, doc, sched := setup(t)
	c := doc.Mount("t")

	big := make([]Row, 60)
	for i := range big {
		big[i] = Row{{Key: "n", Value: i}}
	}
	r.Render(big, "t")
	sched.Tick()
	require.Contains(t, string(c.HTML()), "pagination-info")

	r.Render([]Row{{{Key: "n", Value: 1}}}, "t")
	sched.Tick()
	require.NotContains(t, string(c.HTML()), "pagination-info")
}

func TestTableHTML_ColumnsFromFirstRow(t *testing.T) {
	rows, err := RowsFromJSON([]byte(`[
		{"name":"cpu","value":1.5,"unit":null},
		{"value":2,"extra":"ignored"}
	]`))
	require.NoError(t, err)

	html, err := TableHTML(rows)
	require.NoError(t, err)
	s := string(html)

	require.Contains(t, s, "<th>name</th><th>value</th><th>unit</th>")
	require.Contains(t, s, "<tr><td>cpu</td><td>1.5</td><td></td></tr>")
	require.Contains(t, s, "<tr><td></td><td>2</td><td></td></tr>")
	require.NotContains(t, s, "ignored")
}

func TestTableHTML_EscapesValues(t *testing.T) {
	rows := []Row{{
		{Key: "<b>key</b>", Value: `<script>alert("x")</script>`},
	}}

	html, err := TableHTML(rows)
	require.NoError(t, err)
	s := string(html)

	require.NotContains(t, s, "<script>")
	require.NotContains(t, s, "<b>")
	require.Contains(t, s, "&lt;script&gt;")
}

func TestRowsFromJSON(t *testing.T) {
	rows, err := RowsFromJSON([]byte(`[{"z":1,"a":"x","m":true,"o":{"k":[1]}}]`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, []string{"z", "a", "m", "o"}, rows[0].Keys())

	v, ok := rows[0].Get("o")
	require.True(t, ok)
	require.Equal(t, `{"k":[1]}`, v)

	v, _ = rows[0].Get("m")
	require.Equal(t, true, v)

	for _, bad := range []string{`{"a":1}`, `[1,2]`, `nope`} {
		_, err := RowsFromJSON([]byte(bad))
		require.Error(t, err, fmt.Sprintf("input %s", bad))
	}
}
