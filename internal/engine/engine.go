// Package engine drives the fetch, analyze and persist cycle for symbols.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chanlun/internal/analysis"
	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/config"
	"chanlun/internal/errors"
	"chanlun/internal/logging"
	"chanlun/internal/metrics"
	"chanlun/internal/models"
	"chanlun/internal/source"
	"chanlun/internal/store"
)

// Engine fetches bars, runs the pipeline and persists its tables.
type Engine struct {
	cfg     *config.Config
	store   store.DataStore
	fetcher source.Fetcher
	metrics *metrics.Metrics
	logger  zerolog.Logger
	opts    chanlun.Options

	mu        sync.RWMutex
	analyzers map[string]*chanlun.Analyzer
}

// New creates an engine. metrics may be nil.
func New(cfg *config.Config, st store.DataStore, fetcher source.Fetcher, m *metrics.Metrics, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   st,
		fetcher: fetcher,
		metrics: m,
		logger:  logging.WithOperation(logger, "engine"),
		opts: chanlun.Options{
			MinStrokeGap:      cfg.Analysis.MinStrokeGap,
			MinPivotEndpoints: cfg.Analysis.MinPivotEndpoints,
		},
		analyzers: make(map[string]*chanlun.Analyzer),
	}
}

// View is what presentation layers need for one symbol and interval.
type View struct {
	Symbol   string
	Interval models.Interval
	Bars     []models.Candle
	Tables   map[analysis.Layer]chanlun.Table
}

// pipeline builds a pipeline that logs and measures every stage.
func (e *Engine) pipeline(logger zerolog.Logger) *chanlun.Pipeline {
	return chanlun.NewPipeline(e.opts).WithObserver(func(stage string, in, out int, elapsed time.Duration) {
		logging.LogStage(logger, stage, in, out, elapsed)
		e.metrics.ObserveStage(stage, in, out, elapsed)
	})
}

// Analyzer returns the in-memory analyzer for symbol, if it was refreshed.
func (e *Engine) Analyzer(symbol string) (*chanlun.Analyzer, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.analyzers[symbol]
	return a, ok
}

func (e *Engine) analyzer(symbol string) *chanlun.Analyzer {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.analyzers[symbol]
	if !ok {
		a = chanlun.NewAnalyzer(symbol, e.pipeline(logging.WithSymbol(e.logger, symbol)))
		e.analyzers[symbol] = a
	}
	return a
}

type fetched struct {
	run  *models.Run
	bars []models.Candle
}

// Refresh fetches every configured interval of symbol, recomputes all stage
// tables and records one run per interval. A failed fetch is recorded on its
// run and leaves that interval's stored tables untouched.
func (e *Engine) Refresh(ctx context.Context, symbol string) ([]models.Run, error) {
	intervals := e.cfg.IntervalList()
	if len(intervals) == 0 {
		return nil, errors.ErrIntervalNotConfigured
	}
	logger := logging.WithSymbol(e.logger, symbol)

	results := make([]fetched, len(intervals))
	var wg sync.WaitGroup
	for i, interval := range intervals {
		wg.Add(1)
		go func(i int, interval models.Interval) {
			defer wg.Done()
			results[i] = e.fetch(ctx, symbol, interval)
		}(i, interval)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	series := make(map[models.Interval][]models.Candle, len(intervals))
	for _, f := range results {
		if f.run.Error == "" {
			series[f.run.Interval] = f.bars
		}
	}
	computed := e.analyzer(symbol).AnalyzeAll(series)

	runs := make([]models.Run, 0, len(results))
	for _, f := range results {
		run := f.run
		if res, ok := computed[run.Interval]; ok {
			if err := e.persist(ctx, symbol, res); err != nil {
				run.Error = err.Error()
			} else {
				run.Strokes = len(res.Strokes())
				run.Segments = len(res.Segments())
				run.Pivots = len(res.StrokePivots) + len(res.SegmentPivots)
				logging.LogRun(e.logger, symbol, string(run.Interval), run.Strokes, run.Segments, run.Pivots, time.Since(run.StartedAt))
			}
		}
		run.Duration = time.Since(run.StartedAt)

		if err := e.store.SaveRun(ctx, run); err != nil {
			runLogger := logging.WithInterval(logger, string(run.Interval))
			runLogger.Error().Err(err).Msg("Failed to record run")
		}
		var runErr error
		if run.Error != "" {
			runErr = fmt.Errorf("%s", run.Error)
		}
		e.metrics.ObserveRun(symbol, string(run.Interval), run.StartedAt, runErr)
		runs = append(runs, *run)
	}

	return runs, nil
}

// fetch downloads and stores bars for one interval, returning the full stored
// history on success.
func (e *Engine) fetch(ctx context.Context, symbol string, interval models.Interval) fetched {
	run := &models.Run{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Interval:  interval,
		Source:    e.fetcher.Name(),
		StartedAt: time.Now(),
	}
	logger := logging.WithRunID(e.logger, run.ID)

	start := time.Now()
	bars, err := e.fetcher.FetchBars(ctx, symbol, interval)
	logging.LogFetch(logger, e.fetcher.Name(), symbol, string(interval), len(bars), time.Since(start), err)
	e.metrics.ObserveFetch(e.fetcher.Name(), string(interval), len(bars), time.Since(start), err)
	if err != nil {
		run.Error = err.Error()
		return fetched{run: run}
	}

	if err := e.store.SaveBars(ctx, symbol, interval, bars); err != nil {
		run.Error = err.Error()
		return fetched{run: run}
	}
	stored, err := e.store.GetBars(ctx, symbol, interval)
	if err != nil {
		run.Error = err.Error()
		return fetched{run: run}
	}

	run.Bars = len(stored)
	return fetched{run: run, bars: stored}
}

func (e *Engine) persist(ctx context.Context, symbol string, res *chanlun.Result) error {
	for _, layer := range analysis.Layers {
		table, _ := res.Table(layer)
		if err := e.store.SaveLayer(ctx, symbol, res.Interval, layer, table); err != nil {
			return errors.Wrapf(err, "save %s table", layer)
		}
	}
	return nil
}

// BatchResult summarises a batch refresh.
type BatchResult struct {
	Runs   map[string][]models.Run
	Errors map[string]error
}

// Failed counts symbols whose refresh errored or whose runs all failed.
func (b BatchResult) Failed() []string {
	var failed []string
	for symbol := range b.Errors {
		failed = append(failed, symbol)
	}
	for symbol, runs := range b.Runs {
		ok := false
		for _, r := range runs {
			if r.Error == "" {
				ok = true
				break
			}
		}
		if !ok && b.Errors[symbol] == nil {
			failed = append(failed, symbol)
		}
	}
	sort.Strings(failed)
	return failed
}

// RunBatch refreshes symbols with a bounded worker pool.
func (e *Engine) RunBatch(ctx context.Context, symbols []string) BatchResult {
	workers := e.cfg.Analysis.Workers
	if workers < 1 {
		workers = 1
	}

	result := BatchResult{
		Runs:   make(map[string][]models.Run, len(symbols)),
		Errors: make(map[string]error),
	}
	var mu sync.Mutex

	jobs := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				runs, err := e.Refresh(ctx, symbol)
				mu.Lock()
				if err != nil {
					result.Errors[symbol] = err
				} else {
					result.Runs[symbol] = runs
				}
				mu.Unlock()
			}
		}()
	}

	start := time.Now()
	e.logger.Info().Int("symbols", len(symbols)).Int("workers", workers).Msg("Batch refresh started")

feed:
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- symbol:
		}
	}
	close(jobs)
	wg.Wait()

	e.logger.Info().
		Int("symbols", len(symbols)).
		Int("failed", len(result.Failed())).
		Dur("duration", time.Since(start)).
		Msg("Batch refresh finished")

	return result
}

// Load returns stored bars and stage tables for presentation. Tables missing
// from the store are recomputed from the stored bars and saved.
func (e *Engine) Load(ctx context.Context, symbol string, interval models.Interval) (*View, error) {
	if _, err := e.cfg.Interval(interval); err != nil {
		return nil, err
	}

	bars, err := e.store.GetBars(ctx, symbol, interval)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, errors.NewDataError("bars", symbol, "no bars for "+string(interval), errors.ErrDataNotFound)
	}

	view := &View{Symbol: symbol, Interval: interval, Bars: bars}

	if a, ok := e.Analyzer(symbol); ok {
		if res, ok := a.Result(interval); ok {
			view.Tables = res.Tables()
			return view, nil
		}
	}

	tables := make(map[analysis.Layer]chanlun.Table, len(analysis.Layers))
	for _, layer := range analysis.Layers {
		t, err := e.store.GetLayer(ctx, symbol, interval, layer)
		if err != nil {
			return nil, err
		}
		tables[layer] = t
	}

	if len(tables[analysis.LayerStick]) == 0 {
		e.logger.Debug().Str("symbol", symbol).Str("interval", string(interval)).Msg("Recomputing tables from stored bars")
		res := e.analyzer(symbol).Analyze(interval, bars)
		if err := e.persist(ctx, symbol, res); err != nil {
			return nil, err
		}
		tables = res.Tables()
	}

	view.Tables = tables
	return view, nil
}

// Reanalyze recomputes the stage tables of one interval from the stored bars
// without fetching, and records the run.
func (e *Engine) Reanalyze(ctx context.Context, symbol string, interval models.Interval) (*View, *models.Run, error) {
	if _, err := e.cfg.Interval(interval); err != nil {
		return nil, nil, err
	}

	bars, err := e.store.GetBars(ctx, symbol, interval)
	if err != nil {
		return nil, nil, err
	}
	if len(bars) == 0 {
		return nil, nil, errors.NewDataError("bars", symbol, "no bars for "+string(interval), errors.ErrDataNotFound)
	}

	run := &models.Run{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Interval:  interval,
		Source:    "store",
		StartedAt: time.Now(),
		Bars:      len(bars),
	}

	res := e.analyzer(symbol).Analyze(interval, bars)
	if err := e.persist(ctx, symbol, res); err != nil {
		return nil, nil, err
	}
	run.Strokes = len(res.Strokes())
	run.Segments = len(res.Segments())
	run.Pivots = len(res.StrokePivots) + len(res.SegmentPivots)
	run.Duration = time.Since(run.StartedAt)
	logging.LogRun(e.logger, symbol, string(interval), run.Strokes, run.Segments, run.Pivots, run.Duration)

	if err := e.store.SaveRun(ctx, run); err != nil {
		return nil, nil, err
	}
	e.metrics.ObserveRun(symbol, string(interval), run.StartedAt, nil)

	return &View{Symbol: symbol, Interval: interval, Bars: bars, Tables: res.Tables()}, run, nil
}

// Symbols lists configured symbols followed by any others found in the store.
func (e *Engine) Symbols(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, s := range e.cfg.Symbols {
		if !seen[s.Symbol] {
			seen[s.Symbol] = true
			out = append(out, s.Symbol)
		}
	}

	stored, err := e.store.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range stored {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}
