package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"

	"chanlun/internal/errors"
	"chanlun/internal/models"
)

// csvBar is one row of a bar history file.
type csvBar struct {
	Date   string  `csv:"Date"`
	Open   float64 `csv:"Open"`
	High   float64 `csv:"High"`
	Low    float64 `csv:"Low"`
	Close  float64 `csv:"Close"`
	Volume float64 `csv:"Volume"`
}

// CSVFetcher reads bars from local history files laid out as
// <dir>/<symbol>/history_<interval>.csv.
type CSVFetcher struct {
	dir string
}

// NewCSVFetcher creates a fetcher rooted at dir.
func NewCSVFetcher(dir string) *CSVFetcher {
	return &CSVFetcher{dir: dir}
}

func (f *CSVFetcher) Name() string { return "csv" }

// HistoryPath returns the file holding bars for a symbol and interval.
func HistoryPath(dir, symbol string, interval models.Interval) string {
	return filepath.Join(dir, symbol, fmt.Sprintf("history_%s.csv", interval))
}

// FetchBars loads and sorts the history file.
func (f *CSVFetcher) FetchBars(ctx context.Context, symbol string, interval models.Interval) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := HistoryPath(f.dir, symbol, interval)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFetchError(f.Name(), symbol, string(interval), 0, errors.ErrDataNotFound)
		}
		return nil, errors.NewFetchError(f.Name(), symbol, string(interval), 0, err)
	}
	defer file.Close()

	var rows []*csvBar
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, errors.NewFetchError(f.Name(), symbol, string(interval), 0, fmt.Errorf("parse %s: %w", path, err))
	}

	bars := make([]models.Candle, 0, len(rows))
	for i, r := range rows {
		ts, err := parseBarTime(r.Date)
		if err != nil {
			return nil, errors.NewFetchError(f.Name(), symbol, string(interval), 0, fmt.Errorf("row %d: %w", i+1, err))
		}
		bars = append(bars, models.Candle{
			Timestamp: ts.UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    int64(r.Volume),
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}
