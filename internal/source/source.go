// Package source acquires OHLCV bars from market data providers.
package source

import (
	"context"
	"fmt"
	"time"

	"chanlun/internal/config"
	"chanlun/internal/errors"
	"chanlun/internal/models"
	"chanlun/pkg/utils"
)

// Fetcher defines the interface for fetching bars.
type Fetcher interface {
	// FetchBars returns bars for the symbol in ascending time order.
	FetchBars(ctx context.Context, symbol string, interval models.Interval) ([]models.Candle, error)
	Name() string
}

// New builds the fetcher selected by configuration.
func New(cfg *config.Config) (Fetcher, error) {
	var f Fetcher
	switch cfg.Source.Provider {
	case "yahoo":
		ranges := make(map[models.Interval]string, len(cfg.Intervals))
		for id, iv := range cfg.Intervals {
			ranges[models.Interval(id)] = iv.Range
		}
		f = NewYahooFetcher(YahooConfig{
			BaseURL:    cfg.Source.BaseURL,
			Proxy:      cfg.Source.Proxy,
			Timeout:    cfg.Source.Timeout,
			RatePerSec: cfg.Source.RatePerSec,
			Burst:      cfg.Source.Burst,
			Retries:    cfg.Source.Retries,
			Ranges:     ranges,
		})
	case "csv":
		f = NewCSVFetcher(cfg.Data.CSVDir)
	default:
		return nil, errors.NewValidationError("source.provider", cfg.Source.Provider, "must be yahoo or csv")
	}

	if cfg.Source.BreakerFailures > 0 {
		f = WithBreaker(f, BreakerConfig{
			FailureThreshold: cfg.Source.BreakerFailures,
			Cooldown:         cfg.Source.BreakerCooldown,
		})
	}
	if cfg.Source.SessionFilter {
		f = WithSessionFilter(f)
	}
	return f, nil
}

// sessionFetcher drops bars outside exchange trading sessions.
type sessionFetcher struct {
	next Fetcher
}

// WithSessionFilter wraps a fetcher so that its output goes through
// FilterSession.
func WithSessionFilter(f Fetcher) Fetcher {
	return &sessionFetcher{next: f}
}

func (s *sessionFetcher) Name() string { return s.next.Name() }

func (s *sessionFetcher) FetchBars(ctx context.Context, symbol string, interval models.Interval) ([]models.Candle, error) {
	bars, err := s.next.FetchBars(ctx, symbol, interval)
	if err != nil {
		return nil, err
	}
	return FilterSession(symbol, interval, bars), nil
}

// FilterSession keeps only intraday bars of Shanghai and Shenzhen symbols that
// fall inside the 09:30-11:30 and 13:00-15:00 sessions. Other symbols and
// daily or longer intervals pass through unchanged.
func FilterSession(symbol string, interval models.Interval, bars []models.Candle) []models.Candle {
	if !interval.IsIntraday() || !utils.IsMainlandSymbol(symbol) {
		return bars
	}

	kept := make([]models.Candle, 0, len(bars))
	for _, b := range bars {
		if utils.InMainlandSession(b.Timestamp) {
			kept = append(kept, b)
		}
	}
	return kept
}

// parseBarTime parses the date column of bar files.
func parseBarTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
