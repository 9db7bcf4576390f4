// Package export writes stage tables to files and optionally uploads them to
// object storage.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"chanlun/internal/analysis"
	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/engine"
	"chanlun/internal/errors"
	"chanlun/internal/models"
)

// Supported formats.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Uploader copies a local file to remote storage under key.
type Uploader interface {
	Upload(ctx context.Context, key, path string) error
}

// Exporter writes one file per stage table, plus the bar history, under
// <dir>/<symbol>/.
type Exporter struct {
	dir      string
	format   string
	uploader Uploader
	logger   zerolog.Logger
}

// New creates an exporter. uploader may be nil.
func New(dir, format string, uploader Uploader, logger zerolog.Logger) (*Exporter, error) {
	switch format {
	case FormatCSV, FormatParquet:
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedFormat, format)
	}
	return &Exporter{dir: dir, format: format, uploader: uploader, logger: logger}, nil
}

// FileName returns the file name used for a layer, e.g. stroke_1d.csv.
func FileName(layer analysis.Layer, interval models.Interval, format string) string {
	return fmt.Sprintf("%s_%s.%s", layer, interval, format)
}

// Export writes every table in view and returns the written paths.
func (e *Exporter) Export(ctx context.Context, view *engine.View) ([]string, error) {
	dir := filepath.Join(e.dir, view.Symbol)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrExportFailed, err)
	}

	var written []string

	history := filepath.Join(dir, fmt.Sprintf("history_%s.%s", view.Interval, e.format))
	if err := e.writeBars(history, view.Bars); err != nil {
		return written, fmt.Errorf("%w: %s: %v", errors.ErrExportFailed, history, err)
	}
	written = append(written, history)

	for _, layer := range analysis.Layers {
		path := filepath.Join(dir, FileName(layer, view.Interval, e.format))
		if err := e.writeTable(path, view.Tables[layer]); err != nil {
			return written, fmt.Errorf("%w: %s: %v", errors.ErrExportFailed, path, err)
		}
		written = append(written, path)
	}

	e.logger.Info().
		Str("symbol", view.Symbol).
		Str("interval", string(view.Interval)).
		Str("format", e.format).
		Int("files", len(written)).
		Msg("Tables exported")

	if e.uploader == nil {
		return written, nil
	}

	for _, path := range written {
		key := filepath.ToSlash(filepath.Join(view.Symbol, filepath.Base(path)))
		if err := e.uploader.Upload(ctx, key, path); err != nil {
			return written, fmt.Errorf("%w: upload %s: %v", errors.ErrExportFailed, key, err)
		}
	}
	e.logger.Info().Str("symbol", view.Symbol).Int("files", len(written)).Msg("Tables uploaded")

	return written, nil
}

func (e *Exporter) writeBars(path string, bars []models.Candle) error {
	if e.format == FormatParquet {
		return writeBarsParquet(path, bars)
	}
	return writeBarsCSV(path, bars)
}

func (e *Exporter) writeTable(path string, rows chanlun.Table) error {
	if e.format == FormatParquet {
		return writeTableParquet(path, rows)
	}
	return writeTableCSV(path, rows)
}
