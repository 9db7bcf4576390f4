package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chanlun/internal/analysis"
	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/config"
	"chanlun/internal/engine"
	"chanlun/internal/errors"
	"chanlun/internal/metrics"
	"chanlun/internal/models"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func testView() *engine.View {
	bars := make([]models.Candle, 4)
	for i := range bars {
		p := 10 + float64(i)
		bars[i] = models.Candle{Timestamp: day(i + 1), Open: p, High: p + 1, Low: p - 1, Close: p + 0.5}
	}
	return &engine.View{
		Symbol:   "AAPL",
		Interval: "1d",
		Bars:     bars,
		Tables: map[analysis.Layer]chanlun.Table{
			analysis.LayerStick: {
				{Timestamp: day(1), High: chanlun.Price(11), Low: chanlun.Price(9)},
				{Timestamp: day(3), High: chanlun.Price(13), Low: chanlun.Price(10)},
			},
			analysis.LayerFractal: {
				{Timestamp: day(1), Low: chanlun.Price(9)},
				{Timestamp: day(3), High: chanlun.Price(13)},
			},
			analysis.LayerStroke: {
				{Timestamp: day(1), Low: chanlun.Price(9)},
				{Timestamp: day(3), High: chanlun.Price(13)},
			},
			analysis.LayerStrokePivot: chanlun.PivotTable([]chanlun.Pivot{
				{Start: day(2), End: day(4), ZoneLow: 10, ZoneHigh: 12},
			}),
		},
	}
}

type fakeLoader struct {
	views     map[string]*engine.View
	refreshed []string
	onRefresh func(symbol string)
	err       error
}

func (f *fakeLoader) Load(ctx context.Context, symbol string, interval models.Interval) (*engine.View, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.views[symbol+"/"+string(interval)]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", errors.ErrDataNotFound, symbol, interval)
	}
	return v, nil
}

func (f *fakeLoader) Refresh(ctx context.Context, symbol string) ([]models.Run, error) {
	f.refreshed = append(f.refreshed, symbol)
	if f.onRefresh != nil {
		f.onRefresh(symbol)
	}
	return nil, nil
}

func (f *fakeLoader) Symbols(ctx context.Context) ([]string, error) {
	return []string{"AAPL", "TSLA"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Analysis:  config.AnalysisConfig{Intervals: []string{"1d", "30m"}},
		Intervals: config.DefaultIntervals(),
		Symbols:   []models.Symbol{{Symbol: "AAPL", Name: "Apple"}},
		Server:    config.ServerConfig{Addr: "127.0.0.1:0"},
	}
}

func newTestServer(loader Loader) (*Server, *metrics.Metrics) {
	m := metrics.New()
	return NewServer(testConfig(), loader, m, zerolog.Nop()), m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Stocks(t *testing.T) {
	s, _ := newTestServer(&fakeLoader{})

	rec := get(t, s.Handler(), "/api/stocks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var stocks []Stock
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stocks))
	assert.Equal(t, []Stock{{Symbol: "AAPL", Name: "Apple"}, {Symbol: "TSLA"}}, stocks)
}

func TestServer_Periods(t *testing.T) {
	s, _ := newTestServer(&fakeLoader{})

	rec := get(t, s.Handler(), "/api/periods")
	require.Equal(t, http.StatusOK, rec.Code)

	var periods []Period
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &periods))
	assert.Equal(t, []Period{{ID: "1d", Name: "1 day"}, {ID: "30m", Name: "30 minutes"}}, periods)
}

func TestServer_Data(t *testing.T) {
	loader := &fakeLoader{views: map[string]*engine.View{"AAPL/1d": testView()}}
	s, m := newTestServer(loader)

	rec := get(t, s.Handler(), "/api/aapl/1d")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload map[string][][]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))

	for _, key := range []string{"source", "stick", "fractal", "stroke", "stroke_pivot", "segment", "segment_pivot"} {
		assert.Contains(t, payload, key)
	}

	require.Len(t, payload["source"], 4)
	first := payload["source"][0]
	require.Len(t, first, 8)
	assert.Equal(t, "2024-01-01", first[0])
	assert.Equal(t, 10.0, first[1])
	assert.Equal(t, 10.5, first[2])
	assert.Equal(t, 9.0, first[3])
	assert.Equal(t, 11.0, first[4])

	assert.Equal(t, [][]interface{}{
		{"2024-01-01", 9.0, 11.0},
		{"2024-01-02", nil, nil},
		{"2024-01-03", 10.0, 13.0},
		{"2024-01-04", nil, nil},
	}, payload["stick"])

	assert.Equal(t, [][]interface{}{
		{"2024-01-01", 9.0, nil},
		{"2024-01-03", nil, 13.0},
	}, payload["stroke"])

	assert.Equal(t, [][]interface{}{
		{"2024-01-02", "2024-01-04", 10.0, 12.0},
	}, payload["stroke_pivot"])
	assert.Empty(t, payload["segment"])
	assert.Empty(t, payload["segment_pivot"])

	rec = get(t, m.Handler(), "/metrics")
	assert.Contains(t, rec.Body.String(), `chanlun_http_requests_total{code="200",route="GET /api/{symbol}/{interval}"} 1`)
}

func TestServer_DataRefreshesOnDemand(t *testing.T) {
	loader := &fakeLoader{views: map[string]*engine.View{}}
	loader.onRefresh = func(symbol string) {
		loader.views[symbol+"/1d"] = testView()
	}
	s, _ := newTestServer(loader)

	rec := get(t, s.Handler(), "/api/AAPL/1d")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAPL"}, loader.refreshed)
}

func TestServer_DataErrors(t *testing.T) {
	tests := []struct {
		name   string
		loader *fakeLoader
		path   string
		status int
	}{
		{"unconfigured interval", &fakeLoader{}, "/api/AAPL/1wk", http.StatusBadRequest},
		{"no data after refresh", &fakeLoader{views: map[string]*engine.View{}}, "/api/ZZZ/1d", http.StatusNotFound},
		{"fetch failure", &fakeLoader{err: errors.NewFetchError("stub", "AAPL", "1d", 502, fmt.Errorf("bad gateway"))}, "/api/AAPL/1d", http.StatusBadGateway},
		{"internal", &fakeLoader{err: fmt.Errorf("disk on fire")}, "/api/AAPL/1d", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(tt.loader)
			rec := get(t, s.Handler(), tt.path)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestServer_Chart(t *testing.T) {
	loader := &fakeLoader{views: map[string]*engine.View{"AAPL/1d": testView()}}
	s, _ := newTestServer(loader)

	rec := get(t, s.Handler(), "/chart/AAPL/1d")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, rec.Body.String(), "2024-01-03")
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(&fakeLoader{})

	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	rec = get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chanlun_http_requests_total")

	rec = get(t, s.Handler(), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Start(t *testing.T) {
	s, _ := newTestServer(&fakeLoader{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
