// Package chart renders candlestick charts with the structural overlays.
package chart

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"chanlun/internal/analysis"
	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/models"
)

// Input is everything drawn on one chart.
type Input struct {
	Symbol     string
	Interval   models.Interval
	DateFormat string
	Bars       []models.Candle
	Tables     map[analysis.Layer]chanlun.Table
	// AssetsHost overrides where the echarts javascript is loaded from.
	AssetsHost string
}

var overlayColors = map[analysis.Layer]string{
	analysis.LayerStroke:       "#f5a623",
	analysis.LayerSegment:      "#4a90e2",
	analysis.LayerStrokePivot:  "rgba(245, 166, 35, 0.15)",
	analysis.LayerSegmentPivot: "rgba(74, 144, 226, 0.2)",
}

// axis maps timestamps to category labels.
type axis struct {
	labels []string
	index  map[int64]int
}

func newAxis(bars []models.Candle, layout string) axis {
	if layout == "" {
		layout = "2006-01-02 15:04"
	}
	a := axis{labels: make([]string, len(bars)), index: make(map[int64]int, len(bars))}
	for i, b := range bars {
		a.labels[i] = b.Timestamp.Format(layout)
		a.index[b.Timestamp.UnixNano()] = i
	}
	return a
}

func (a axis) label(t time.Time) (string, bool) {
	i, ok := a.index[t.UnixNano()]
	if !ok {
		return "", false
	}
	return a.labels[i], true
}

// Build assembles the chart without rendering it.
func Build(in Input) *charts.Kline {
	ax := newAxis(in.Bars, in.DateFormat)

	init := opts.Initialization{
		PageTitle: fmt.Sprintf("%s %s", in.Symbol, in.Interval),
		Width:     "1200px",
		Height:    "640px",
	}
	if in.AssetsHost != "" {
		init.AssetsHost = in.AssetsHost
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(init),
		charts.WithTitleOpts(opts.Title{Title: in.Symbol, Subtitle: fmt.Sprintf("interval=%s bars=%d", in.Interval, len(in.Bars))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{SplitNumber: 20}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(
			opts.DataZoom{Type: "inside", Start: 50, End: 100},
			opts.DataZoom{Type: "slider", Start: 50, End: 100},
		),
	)

	candles := make([]opts.KlineData, len(in.Bars))
	for i, b := range in.Bars {
		// echarts expects [open, close, low, high]
		candles[i] = opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}}
	}

	series := []charts.SeriesOpts{
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ec0000", Color0: "#00da3c", BorderColor: "#8a0000", BorderColor0: "#008f28"}),
	}
	series = append(series, fractalMarks(ax, in.Tables[analysis.LayerFractal])...)
	series = append(series, pivotAreas(ax, in.Tables[analysis.LayerStrokePivot], overlayColors[analysis.LayerStrokePivot])...)
	series = append(series, pivotAreas(ax, in.Tables[analysis.LayerSegmentPivot], overlayColors[analysis.LayerSegmentPivot])...)

	kline.SetXAxis(ax.labels).AddSeries("kline", candles, series...)

	if stick := in.Tables[analysis.LayerStick]; len(stick) > 0 {
		kline.AddSeries("stick", stickCandles(ax, stick),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "transparent", Color0: "transparent", BorderColor: "#999", BorderColor0: "#999"}))
	}

	overlays := make([]charts.Overlaper, 0, 2)
	for _, layer := range []analysis.Layer{analysis.LayerStroke, analysis.LayerSegment} {
		if t := in.Tables[layer]; len(t) > 0 {
			overlays = append(overlays, polyline(ax, string(layer), t, overlayColors[layer]))
		}
	}
	if len(overlays) > 0 {
		kline.Overlap(overlays...)
	}

	return kline
}

// Render writes the chart as a standalone HTML page.
func Render(w io.Writer, in Input) error {
	return Build(in).Render(w)
}

// stickCandles draws each merged bar as a hollow rising candle spanning its
// range, aligned to the source axis.
func stickCandles(ax axis, t chanlun.Table) []opts.KlineData {
	data := make([]opts.KlineData, len(ax.labels))
	for i := range data {
		data[i] = opts.KlineData{Value: []interface{}{nil, nil, nil, nil}}
	}
	for _, row := range t {
		i, ok := ax.index[row.Timestamp.UnixNano()]
		if !ok || !row.High.Valid || !row.Low.Valid {
			continue
		}
		data[i] = opts.KlineData{Value: [4]float64{row.Low.Value, row.High.Value, row.Low.Value, row.High.Value}}
	}
	return data
}

// polyline joins endpoint rows across the bars between them.
func polyline(ax axis, name string, t chanlun.Table, color string) *charts.Line {
	data := make([]opts.LineData, len(ax.labels))
	for _, row := range t {
		i, ok := ax.index[row.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		switch {
		case row.High.Valid:
			data[i] = opts.LineData{Value: row.High.Value}
		case row.Low.Valid:
			data[i] = opts.LineData{Value: row.Low.Value}
		}
	}

	line := charts.NewLine()
	line.SetXAxis(ax.labels).AddSeries(name, data,
		charts.WithLineChartOpts(opts.LineChart{ConnectNulls: opts.Bool(true), ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}),
	)
	return line
}

func fractalMarks(ax axis, t chanlun.Table) []charts.SeriesOpts {
	var items []opts.MarkPointNameCoordItem
	for _, row := range t {
		label, ok := ax.label(row.Timestamp)
		if !ok {
			continue
		}
		switch {
		case row.High.Valid:
			items = append(items, opts.MarkPointNameCoordItem{
				Name:       "top",
				Coordinate: []interface{}{label, row.High.Value},
				ItemStyle:  &opts.ItemStyle{Color: "#ec0000"},
			})
		case row.Low.Valid:
			items = append(items, opts.MarkPointNameCoordItem{
				Name:       "bottom",
				Coordinate: []interface{}{label, row.Low.Value},
				ItemStyle:  &opts.ItemStyle{Color: "#00da3c"},
			})
		}
	}
	if len(items) == 0 {
		return nil
	}
	return []charts.SeriesOpts{
		charts.WithMarkPointNameCoordItemOpts(items...),
		charts.WithMarkPointStyleOpts(opts.MarkPointStyle{Symbol: []string{"circle"}, SymbolSize: 6}),
	}
}

func pivotAreas(ax axis, t chanlun.Table, color string) []charts.SeriesOpts {
	var items []opts.MarkAreaNameCoordItem
	for _, p := range chanlun.PivotsFromTable(t) {
		start, ok1 := ax.label(p.Start)
		end, ok2 := ax.label(p.End)
		if !ok1 || !ok2 {
			continue
		}
		items = append(items, opts.MarkAreaNameCoordItem{
			Coordinate0: []interface{}{start, p.ZoneHigh},
			Coordinate1: []interface{}{end, p.ZoneLow},
			ItemStyle:   &opts.ItemStyle{Color: color},
		})
	}
	if len(items) == 0 {
		return nil
	}
	return []charts.SeriesOpts{charts.WithMarkAreaNameCoordItemOpts(items...)}
}
