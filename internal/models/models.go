// Package models provides domain models shared across the application.
package models

import (
	"time"
)

// Interval identifies a bar granularity such as "1d" or "30m".
// The set of supported intervals comes from configuration.
type Interval string

func (i Interval) String() string {
	return string(i)
}

// IsIntraday reports whether the interval is shorter than one day.
func (i Interval) IsIntraday() bool {
	switch i {
	case "1d", "5d", "1wk", "1mo", "3mo":
		return false
	}
	return true
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Symbol is a tradeable instrument tracked by the application.
type Symbol struct {
	Symbol string `mapstructure:"symbol" json:"symbol"`
	Name   string `mapstructure:"name" json:"name"`
}

// Run records one pipeline execution for a symbol and interval.
type Run struct {
	ID        string
	Symbol    string
	Interval  Interval
	Source    string
	StartedAt time.Time
	Duration  time.Duration
	Bars      int
	Strokes   int
	Segments  int
	Pivots    int
	Error     string
}
