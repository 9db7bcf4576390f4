package api

import (
	"time"

	"chanlun/internal/analysis"
	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/analysis/indicators"
	"chanlun/internal/engine"
	"chanlun/internal/models"
)

// Payload is the response of GET /api/{symbol}/{interval}. Source rows are
// [date, open, close, low, high, macd, signal, histogram]; pivot rows are
// [start, end, low, high]; every other layer row is [date, low, high].
type Payload struct {
	Source       [][]interface{} `json:"source"`
	Stick        [][]interface{} `json:"stick"`
	Fractal      [][]interface{} `json:"fractal"`
	Stroke       [][]interface{} `json:"stroke"`
	StrokePivot  [][]interface{} `json:"stroke_pivot"`
	Segment      [][]interface{} `json:"segment"`
	SegmentPivot [][]interface{} `json:"segment_pivot"`
}

func buildPayload(view *engine.View, layout string) Payload {
	format := func(t time.Time) string { return t.UTC().Format(layout) }

	return Payload{
		Source:       sourceRows(view.Bars, format),
		Stick:        stickRows(view.Bars, view.Tables[analysis.LayerStick], format),
		Fractal:      layerRows(view.Tables[analysis.LayerFractal], format),
		Stroke:       layerRows(view.Tables[analysis.LayerStroke], format),
		StrokePivot:  pivotRows(view.Tables[analysis.LayerStrokePivot], format),
		Segment:      layerRows(view.Tables[analysis.LayerSegment], format),
		SegmentPivot: pivotRows(view.Tables[analysis.LayerSegmentPivot], format),
	}
}

func sourceRows(bars []models.Candle, format func(time.Time) string) [][]interface{} {
	rows := make([][]interface{}, 0, len(bars))
	if len(bars) == 0 {
		return rows
	}

	macd, err := indicators.NewDefaultMACD().Calculate(bars)
	for i, b := range bars {
		row := []interface{}{format(b.Timestamp), b.Open, b.Close, b.Low, b.High}
		if err == nil {
			row = append(row,
				macd[indicators.SeriesMACD][i],
				macd[indicators.SeriesSignal][i],
				macd[indicators.SeriesHistogram][i],
			)
		} else {
			row = append(row, nil, nil, nil)
		}
		rows = append(rows, row)
	}
	return rows
}

// stickRows aligns merged bars to the source dates, leaving nulls where a
// source bar was absorbed into a neighbour.
func stickRows(bars []models.Candle, table chanlun.Table, format func(time.Time) string) [][]interface{} {
	byTime := make(map[int64]chanlun.Row, len(table))
	for _, row := range table {
		byTime[row.Timestamp.UnixNano()] = row
	}

	rows := make([][]interface{}, 0, len(bars))
	for _, b := range bars {
		row, ok := byTime[b.Timestamp.UnixNano()]
		if !ok {
			rows = append(rows, []interface{}{format(b.Timestamp), nil, nil})
			continue
		}
		rows = append(rows, []interface{}{format(b.Timestamp), row.Low.Ptr(), row.High.Ptr()})
	}
	return rows
}

func layerRows(table chanlun.Table, format func(time.Time) string) [][]interface{} {
	rows := make([][]interface{}, 0, len(table))
	for _, row := range table {
		rows = append(rows, []interface{}{format(row.Timestamp), row.Low.Ptr(), row.High.Ptr()})
	}
	return rows
}

func pivotRows(table chanlun.Table, format func(time.Time) string) [][]interface{} {
	pivots := chanlun.PivotsFromTable(table)
	rows := make([][]interface{}, 0, len(pivots))
	for _, p := range pivots {
		rows = append(rows, []interface{}{format(p.Start), format(p.End), p.ZoneLow, p.ZoneHigh})
	}
	return rows
}
