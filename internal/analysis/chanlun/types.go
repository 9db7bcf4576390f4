// Package chanlun implements the structural reduction pipeline: bar merging,
// turning point detection, stroke and segment construction, and pivot detection.
//
// Every stage is a pure transform over an already materialized slice. Stages
// never mutate their input, never log and never fail: malformed or insufficient
// input yields an empty result.
package chanlun

import (
	"fmt"
	"time"

	"chanlun/internal/models"
)

// Polarity classifies a turning point or an endpoint.
type Polarity int

const (
	PolarityNone Polarity = iota
	PolarityTop
	PolarityBottom
)

func (p Polarity) String() string {
	switch p {
	case PolarityTop:
		return "top"
	case PolarityBottom:
		return "bottom"
	default:
		return "none"
	}
}

// Opposite returns the other extreme. None stays None.
func (p Polarity) Opposite() Polarity {
	switch p {
	case PolarityTop:
		return PolarityBottom
	case PolarityBottom:
		return PolarityTop
	default:
		return PolarityNone
	}
}

// MergedBar is a bar after containment merging.
type MergedBar struct {
	Timestamp time.Time
	High      float64
	Low       float64
}

// TurningPoint is the classification of one interior merged bar.
// Price is the bar high for tops, the bar low for bottoms and zero otherwise.
type TurningPoint struct {
	Index     int
	Timestamp time.Time
	Polarity  Polarity
	Price     float64
}

// IsTop reports whether the point is a local high.
func (t TurningPoint) IsTop() bool { return t.Polarity == PolarityTop }

// IsBottom reports whether the point is a local low.
func (t TurningPoint) IsBottom() bool { return t.Polarity == PolarityBottom }

// Endpoint is a classified turning point kept by the stroke or segment builder.
type Endpoint struct {
	Index     int
	Timestamp time.Time
	Polarity  Polarity
	Price     float64
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s@%s(%.4f)", e.Polarity, e.Timestamp.Format(time.RFC3339), e.Price)
}

// moreExtreme reports whether e is at least as extreme as ref in e's own
// polarity: higher or equal for tops, lower or equal for bottoms.
func (e Endpoint) moreExtreme(ref Endpoint) bool {
	if e.Polarity == PolarityTop {
		return e.Price >= ref.Price
	}
	return e.Price <= ref.Price
}

// Stroke is a directional move between two consecutive endpoints. Segments
// share the same shape.
type Stroke struct {
	Start Endpoint
	End   Endpoint
}

// High returns the upper price of the move.
func (s Stroke) High() float64 {
	if s.Start.Price > s.End.Price {
		return s.Start.Price
	}
	return s.End.Price
}

// Low returns the lower price of the move.
func (s Stroke) Low() float64 {
	if s.Start.Price < s.End.Price {
		return s.Start.Price
	}
	return s.End.Price
}

// Rising reports whether the move goes from a bottom to a top.
func (s Stroke) Rising() bool {
	return s.Start.Polarity == PolarityBottom
}

// Strokes pairs consecutive endpoints into moves.
func Strokes(endpoints []Endpoint) []Stroke {
	if len(endpoints) < 2 {
		return nil
	}
	out := make([]Stroke, 0, len(endpoints)-1)
	for i := 1; i < len(endpoints); i++ {
		out = append(out, Stroke{Start: endpoints[i-1], End: endpoints[i]})
	}
	return out
}

// Pivot is a consolidation zone spanning at least three consecutive moves.
type Pivot struct {
	Start      time.Time
	End        time.Time
	ZoneHigh   float64
	ZoneLow    float64
	Polarity   Polarity
	StartIndex int
	EndIndex   int
}

// Overlaps reports whether the two zones share an interior.
func (p Pivot) Overlaps(o Pivot) bool {
	return p.ZoneLow < o.ZoneHigh && o.ZoneLow < p.ZoneHigh
}

// priceRange is the high/low envelope of one move.
type priceRange struct {
	High float64
	Low  float64
}

// candlesValid reports whether the raw bars are usable by the merger.
func candlesValid(bars []models.Candle) bool {
	if len(bars) == 0 {
		return false
	}
	for i, b := range bars {
		if b.High < b.Low {
			return false
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return false
		}
	}
	return true
}
