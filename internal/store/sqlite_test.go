package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chanlun/internal/analysis"
	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/errors"
	"chanlun/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chanlun.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testBars(n int, start time.Time) []models.Candle {
	bars := make([]models.Candle, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      p,
			High:      p + 2,
			Low:       p - 2,
			Close:     p + 1,
			Volume:    int64(1000 * (i + 1)),
		}
	}
	return bars
}

var _ DataStore = (*SQLiteStore)(nil)

func TestSQLiteStore_BarsUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveBars(ctx, "AAPL", "1d", testBars(5, start)))

	// Re-fetching overlaps the last two bars and adds one more.
	update := testBars(8, start)[3:]
	update[0].Close = 999
	require.NoError(t, s.SaveBars(ctx, "AAPL", "1d", update))

	got, err := s.GetBars(ctx, "AAPL", "1d")
	require.NoError(t, err)
	require.Len(t, got, 8)
	assert.Equal(t, 999.0, got[3].Close)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
	}
	assert.True(t, got[0].Timestamp.Equal(start))

	latest, err := s.GetBarsFreshness(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.True(t, latest.Equal(start.AddDate(0, 0, 7)), "got %s", latest)

	other, err := s.GetBars(ctx, "AAPL", "30m")
	require.NoError(t, err)
	assert.Empty(t, other)

	none, err := s.GetBarsFreshness(ctx, "MSFT", "1d")
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestSQLiteStore_SaveLayerReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	first := chanlun.Table{
		{Timestamp: ts, High: chanlun.Price(10)},
		{Timestamp: ts.AddDate(0, 0, 1), Low: chanlun.Price(5)},
		{Timestamp: ts.AddDate(0, 0, 2), High: chanlun.Price(12)},
	}
	require.NoError(t, s.SaveLayer(ctx, "AAPL", "1d", analysis.LayerStroke, first))

	second := chanlun.Table{{Timestamp: ts.AddDate(0, 0, 5), Low: chanlun.Price(4)}}
	require.NoError(t, s.SaveLayer(ctx, "AAPL", "1d", analysis.LayerStroke, second))

	got, err := s.GetLayer(ctx, "AAPL", "1d", analysis.LayerStroke)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chanlun.Price(4), got[0].Low)
	assert.False(t, got[0].High.Valid)

	empty, err := s.GetLayer(ctx, "AAPL", "1d", analysis.LayerSegment)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.DeleteLayers(ctx, "AAPL", "1d"))
	got, err = s.GetLayer(ctx, "AAPL", "1d", analysis.LayerStroke)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_Runs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.LastRun(ctx, "AAPL", "1d")
	assert.ErrorIs(t, err, errors.ErrDataNotFound)

	runs := []models.Run{
		{ID: "a", Symbol: "AAPL", Interval: "1d", Source: "yahoo", StartedAt: base, Duration: 1500 * time.Millisecond, Bars: 100, Strokes: 7},
		{ID: "b", Symbol: "AAPL", Interval: "1d", Source: "yahoo", StartedAt: base.Add(time.Hour), Bars: 101, Strokes: 8, Segments: 2, Pivots: 1},
		{ID: "c", Symbol: "AAPL", Interval: "30m", Source: "csv", StartedAt: base.Add(2 * time.Hour), Error: "boom"},
	}
	for i := range runs {
		require.NoError(t, s.SaveRun(ctx, &runs[i]))
	}

	last, err := s.LastRun(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, "b", last.ID)
	assert.Equal(t, 8, last.Strokes)
	assert.Equal(t, 1, last.Pivots)
	assert.Empty(t, last.Error)

	all, err := s.ListRuns(ctx, RunFilter{Symbol: "AAPL"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "boom", all[0].Error)
	assert.Equal(t, 1500*time.Millisecond, all[2].Duration)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 2, StartDate: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteStore_Symbols(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveBars(ctx, "MSFT", "1d", testBars(2, start)))
	require.NoError(t, s.SaveBars(ctx, "AAPL", "1d", testBars(2, start)))
	require.NoError(t, s.SaveBars(ctx, "AAPL", "30m", testBars(2, start)))

	symbols, err := s.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2024-01-09 00:00:00+00:00",
		"2024-01-09T00:00:00Z",
		"2024-01-09 00:00:00",
		"2024-01-09",
	} {
		got, err := parseTimestamp(s)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(want), s)
	}

	_, err := parseTimestamp("yesterday")
	assert.Error(t, err)
}
