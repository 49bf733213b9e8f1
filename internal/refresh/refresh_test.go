package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"perfkit/internal/cache"
	"perfkit/internal/chart"
	"perfkit/internal/table"
)

type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string]string
	err      error
	calls    []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ *cache.Options) (cache.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	return cache.ParsePayload([]byte(f.payloads[url]))
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recorder struct {
	mu     sync.Mutex
	tables map[string][]table.Row
	charts map[string][]chart.Series
	spans  []string
}

func newRecorder() *recorder {
	return &recorder{tables: map[string][]table.Row{}, charts: map[string][]chart.Series{}}
}

func (r *recorder) Render(rows []table.Row, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[id] = rows
}

func (r *recorder) Update(series []chart.Series, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.charts[id] = series
}

func (r *recorder) Start(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, "start "+name)
}

func (r *recorder) End(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, "end "+name)
}

func newTestRefresher(t *testing.T, f *fakeFetcher, rec *recorder, sources ...Source) *Refresher {
	t.Helper()
	r, err := New(sources, Config{Fetcher: f, Tables: rec, Charts: rec, Tracker: rec})
	require.NoError(t, err)
	t.Cleanup(r.Stop)
	return r
}

func TestRefresh_Table(t *testing.T) {
	f := &fakeFetcher{payloads: map[string]string{"http://x/users": `[{"name":"ada","age":36}]`}}
	rec := newRecorder()
	r := newTestRefresher(t, f, rec, Source{ID: "users", URL: "http://x/users", Kind: KindTable})

	require.NoError(t, r.Refresh(context.Background(), "users"))

	rows := rec.tables["users"]
	require.Len(t, rows, 1)
	require.Equal(t, []string{"name", "age"}, rows[0].Keys())
	require.Equal(t, []string{"start refresh:users", "end refresh:users"}, rec.spans)
}

func TestRefresh_Chart(t *testing.T) {
	f := &fakeFetcher{payloads: map[string]string{"http://x/latency": `{"p50":[[0,1]],"p99":[[0,9]]}`}}
	rec := newRecorder()
	r := newTestRefresher(t, f, rec, Source{ID: "latency", URL: "http://x/latency", Kind: KindChart})

	require.NoError(t, r.Refresh(context.Background(), "latency"))

	series := rec.charts["latency"]
	require.Len(t, series, 2)
	require.Equal(t, "p50", series[0].Name)
	require.Equal(t, "p99", series[1].Name)
}

func TestRefresh_Errors(t *testing.T) {
	rec := newRecorder()
	f := &fakeFetcher{err: errors.New("boom")}
	r := newTestRefresher(t, f, rec, Source{ID: "users", URL: "http://x/users", Kind: KindTable})

	err := r.Refresh(context.Background(), "users")
	require.ErrorContains(t, err, "boom")
	require.Empty(t, rec.tables)
	require.Equal(t, []string{"start refresh:users", "end refresh:users"}, rec.spans)

	require.ErrorIs(t, r.Refresh(context.Background(), "nope"), ErrUnknownSource)
	require.ErrorIs(t, r.Trigger("nope"), ErrUnknownSource)
}

func TestRefresh_WrongShape(t *testing.T) {
	f := &fakeFetcher{payloads: map[string]string{"http://x/users": `{"total": 3}`}}
	rec := newRecorder()
	r := newTestRefresher(t, f, rec, Source{ID: "users", URL: "http://x/users", Kind: KindTable})

	require.Error(t, r.Refresh(context.Background(), "users"))
	require.Empty(t, rec.tables)
}

func TestNew_ValidatesSources(t *testing.T) {
	f := &fakeFetcher{}
	rec := newRecorder()
	cases := [][]Source{
		{{ID: "", URL: "http://x", Kind: KindTable}},
		{{ID: "a", URL: "http://x", Kind: "pie"}},
		{{ID: "a", URL: "http://x", Kind: KindTable}, {ID: "a", URL: "http://y", Kind: KindChart}},
	}
	for _, sources := range cases {
		_, err := New(sources, Config{Fetcher: f, Tables: rec, Charts: rec})
		require.Error(t, err)
	}

	_, err := New([]Source{{ID: "a", URL: "http://x", Kind: KindChart}}, Config{Fetcher: f, Tables: rec})
	require.Error(t, err)

	_, err = New(nil, Config{})
	require.Error(t, err)

	r, err := New([]Source{{ID: "a", URL: "http://x", Kind: KindTable}}, Config{Fetcher: f, Tables: rec})
	require.NoError(t, err)
	require.Equal(t, DefaultInterval, r.Sources()[0].Interval)
	r.Stop()
}

func TestTrigger_Throttled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := &fakeFetcher{payloads: map[string]string{"http://x/users": `[]`}}
		rec := newRecorder()
		r, err := New([]Source{{ID: "users", URL: "http://x/users", Kind: KindTable}},
			Config{Fetcher: f, Tables: rec, TriggerLimit: time.Second})
		require.NoError(t, err)
		defer r.Stop()

		for range 5 {
			require.NoError(t, r.Trigger("users"))
		}
		synctest.Wait()
		require.Equal(t, 1, f.callCount())

		time.Sleep(time.Second)
		require.NoError(t, r.Trigger("users"))
		synctest.Wait()
		require.Equal(t, 2, f.callCount())
	})
}

func TestTrigger_AfterStopIsIgnored(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := &fakeFetcher{payloads: map[string]string{"http://x/users": `[]`}}
		r, err := New([]Source{{ID: "users", URL: "http://x/users", Kind: KindTable}},
			Config{Fetcher: f, Tables: newRecorder()})
		require.NoError(t, err)

		r.Stop()
		require.NoError(t, r.Trigger("users"))
		r.Start()
		synctest.Wait()
		require.Zero(t, f.callCount())
	})
}

func TestTrigger_ConcurrentWithStop(t *testing.T) {
	f := &fakeFetcher{payloads: map[string]string{"http://x/users": `[]`}}
	r, err := New([]Source{{ID: "users", URL: "http://x/users", Kind: KindTable}},
		Config{Fetcher: f, Tables: newRecorder(), TriggerLimit: time.Nanosecond})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				_ = r.Trigger("users")
			}
		})
	}
	r.Stop()
	wg.Wait()

	calls := f.callCount()
	require.NoError(t, r.Trigger("users"))
	require.Equal(t, calls, f.callCount())
}

func TestStart_RefreshesOnInterval(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := &fakeFetcher{payloads: map[string]string{"http://x/users": `[]`}}
		rec := newRecorder()
		r, err := New([]Source{{ID: "users", URL: "http://x/users", Kind: KindTable, Interval: 10 * time.Second}},
			Config{Fetcher: f, Tables: rec})
		require.NoError(t, err)

		r.Start()
		synctest.Wait()
		require.Equal(t, 1, f.callCount())

		time.Sleep(25 * time.Second)
		synctest.Wait()
		require.Equal(t, 3, f.callCount())

		r.Stop()
		time.Sleep(time.Minute)
		require.Equal(t, 3, f.callCount())
	})
}
