package chanlun

import (
	"sort"
	"sync"
	"time"

	"chanlun/internal/analysis"
	"chanlun/internal/models"
)

// Options tunes the pipeline stages.
type Options struct {
	MinStrokeGap      int
	MinPivotEndpoints int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		MinStrokeGap:      DefaultMinStrokeGap,
		MinPivotEndpoints: DefaultMinPivotEndpoints,
	}
}

// StageObserver is called after each stage with the input and output sizes.
type StageObserver func(stage string, in, out int, elapsed time.Duration)

// Pipeline wires the five stages in order.
type Pipeline struct {
	merger       analysis.Stage[models.Candle, MergedBar]
	detector     analysis.Stage[MergedBar, TurningPoint]
	strokes      analysis.Stage[TurningPoint, Endpoint]
	segments     analysis.Stage[Endpoint, Endpoint]
	segmentPivot analysis.Stage[Endpoint, Pivot]
	strokePivot  analysis.Stage[Endpoint, Pivot]
	observer     StageObserver
}

// NewPipeline creates a pipeline with the given options.
func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{
		merger:       NewBarMerger(),
		detector:     NewTurningPointDetector(),
		strokes:      NewStrokeBuilder(opts.MinStrokeGap),
		segments:     NewSegmentBuilder(),
		segmentPivot: NewPivotDetector("SegmentPivotDetector", opts.MinPivotEndpoints),
		strokePivot:  NewPivotDetector("StrokePivotDetector", opts.MinPivotEndpoints),
	}
}

// WithObserver returns a copy of the pipeline that reports stage timings.
func (p *Pipeline) WithObserver(obs StageObserver) *Pipeline {
	cp := *p
	cp.observer = obs
	return &cp
}

// StageNames lists the stages in execution order.
func (p *Pipeline) StageNames() []string {
	return []string{
		p.merger.Name(),
		p.detector.Name(),
		p.strokes.Name(),
		p.segments.Name(),
		p.segmentPivot.Name(),
		p.strokePivot.Name(),
	}
}

// Run computes every stage over bars.
func (p *Pipeline) Run(bars []models.Candle) *Result {
	r := &Result{Bars: bars}
	r.Merged = run(p, p.merger, bars)
	r.Points = run(p, p.detector, r.Merged)
	r.StrokeEndpoints = run(p, p.strokes, r.Points)
	r.SegmentEndpoints = run(p, p.segments, r.StrokeEndpoints)
	r.SegmentPivots = run(p, p.segmentPivot, r.SegmentEndpoints)
	r.StrokePivots = run(p, p.strokePivot, r.StrokeEndpoints)
	return r
}

func run[In, Out any](p *Pipeline, s analysis.Stage[In, Out], in []In) []Out {
	start := time.Now()
	out := s.Transform(in)
	if p.observer != nil {
		p.observer(s.Name(), len(in), len(out), time.Since(start))
	}
	return out
}

// Result holds every stage output for one interval.
type Result struct {
	Interval         models.Interval
	Bars             []models.Candle
	Merged           []MergedBar
	Points           []TurningPoint
	StrokeEndpoints  []Endpoint
	SegmentEndpoints []Endpoint
	StrokePivots     []Pivot
	SegmentPivots    []Pivot
}

// Strokes returns the moves between stroke endpoints.
func (r *Result) Strokes() []Stroke {
	return Strokes(r.StrokeEndpoints)
}

// Segments returns the moves between segment endpoints.
func (r *Result) Segments() []Stroke {
	return Strokes(r.SegmentEndpoints)
}

// Table renders one stage as a sparse table.
func (r *Result) Table(layer analysis.Layer) (Table, bool) {
	switch layer {
	case analysis.LayerStick:
		return MergedTable(r.Merged), true
	case analysis.LayerFractal:
		return PointTable(r.Points), true
	case analysis.LayerStroke:
		return EndpointTable(r.StrokeEndpoints), true
	case analysis.LayerSegment:
		return EndpointTable(r.SegmentEndpoints), true
	case analysis.LayerStrokePivot:
		return PivotTable(r.StrokePivots), true
	case analysis.LayerSegmentPivot:
		return PivotTable(r.SegmentPivots), true
	}
	return nil, false
}

// Tables renders every stage.
func (r *Result) Tables() map[analysis.Layer]Table {
	out := make(map[analysis.Layer]Table, len(analysis.Layers))
	for _, l := range analysis.Layers {
		t, _ := r.Table(l)
		out[l] = t
	}
	return out
}

// Analyzer keeps the latest result per interval for one symbol.
type Analyzer struct {
	symbol   string
	pipeline *Pipeline

	mu      sync.RWMutex
	results map[models.Interval]*Result
}

// NewAnalyzer creates an analyzer for symbol.
func NewAnalyzer(symbol string, pipeline *Pipeline) *Analyzer {
	return &Analyzer{
		symbol:   symbol,
		pipeline: pipeline,
		results:  make(map[models.Interval]*Result),
	}
}

// Symbol returns the analyzed symbol.
func (a *Analyzer) Symbol() string {
	return a.symbol
}

// Analyze recomputes one interval from scratch.
func (a *Analyzer) Analyze(interval models.Interval, bars []models.Candle) *Result {
	r := a.pipeline.Run(bars)
	r.Interval = interval

	a.mu.Lock()
	a.results[interval] = r
	a.mu.Unlock()

	return r
}

// AnalyzeAll recomputes every interval concurrently, one goroutine each.
func (a *Analyzer) AnalyzeAll(bars map[models.Interval][]models.Candle) map[models.Interval]*Result {
	var wg sync.WaitGroup
	var mu sync.Mutex
	out := make(map[models.Interval]*Result, len(bars))

	for interval, series := range bars {
		wg.Add(1)
		go func(interval models.Interval, series []models.Candle) {
			defer wg.Done()
			r := a.Analyze(interval, series)
			mu.Lock()
			out[interval] = r
			mu.Unlock()
		}(interval, series)
	}
	wg.Wait()

	return out
}

// Result returns the last computed result for interval.
func (a *Analyzer) Result(interval models.Interval) (*Result, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.results[interval]
	return r, ok
}

// Intervals returns the analyzed intervals in lexical order.
func (a *Analyzer) Intervals() []models.Interval {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.Interval, 0, len(a.results))
	for iv := range a.results {
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
