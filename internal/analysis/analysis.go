// Package analysis provides the technical analysis building blocks: the stage
// capability shared by the structural pipeline and the indicator interfaces.
package analysis

import (
	"chanlun/internal/models"
)

// Stage is a pure sequence transform. Each structural stage consumes the
// finalized output of the stage before it and returns a fresh slice.
type Stage[In, Out any] interface {
	Name() string
	Transform(in []In) []Out
}

// MultiValueIndicator defines the interface for indicators that return multiple values.
type MultiValueIndicator interface {
	Name() string
	Calculate(candles []models.Candle) (map[string][]float64, error)
	Period() int
}

// Layer names one persisted stage table.
type Layer string

const (
	LayerStick        Layer = "stick"
	LayerFractal      Layer = "fractal"
	LayerStroke       Layer = "stroke"
	LayerSegment      Layer = "segment"
	LayerStrokePivot  Layer = "stroke_pivot"
	LayerSegmentPivot Layer = "segment_pivot"
)

// Layers lists every stage table in pipeline order.
var Layers = []Layer{
	LayerStick,
	LayerFractal,
	LayerStroke,
	LayerSegment,
	LayerStrokePivot,
	LayerSegmentPivot,
}

// ParseLayer returns the layer named s.
func ParseLayer(s string) (Layer, bool) {
	for _, l := range Layers {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// IsPivot reports whether the layer stores start/end pivot row pairs.
func (l Layer) IsPivot() bool {
	return l == LayerStrokePivot || l == LayerSegmentPivot
}
