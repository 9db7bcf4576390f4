// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"chanlun/internal/analysis"
	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Bars
	SaveBars(ctx context.Context, symbol string, interval models.Interval, bars []models.Candle) error
	GetBars(ctx context.Context, symbol string, interval models.Interval) ([]models.Candle, error)
	GetBarsFreshness(ctx context.Context, symbol string, interval models.Interval) (time.Time, error)

	// Stage tables
	SaveLayer(ctx context.Context, symbol string, interval models.Interval, layer analysis.Layer, table chanlun.Table) error
	GetLayer(ctx context.Context, symbol string, interval models.Interval, layer analysis.Layer) (chanlun.Table, error)
	DeleteLayers(ctx context.Context, symbol string, interval models.Interval) error

	// Runs
	SaveRun(ctx context.Context, run *models.Run) error
	LastRun(ctx context.Context, symbol string, interval models.Interval) (*models.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]models.Run, error)

	// Symbols with stored bars
	Symbols(ctx context.Context) ([]string, error)

	// Lifecycle
	Close() error
}

// RunFilter represents filters for querying runs.
type RunFilter struct {
	Symbol    string
	Interval  models.Interval
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}
