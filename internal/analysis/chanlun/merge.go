package chanlun

import (
	"chanlun/internal/models"
)

type direction int

const (
	directionNone direction = iota
	directionUp
	directionDown
)

// trendOf classifies b against a. Only strict moves on both edges count.
func trendOf(a, b MergedBar) direction {
	switch {
	case b.High > a.High && b.Low > a.Low:
		return directionUp
	case b.High < a.High && b.Low < a.Low:
		return directionDown
	default:
		return directionNone
	}
}

// BarMerger consolidates raw bars so that no merged bar contains its neighbour.
type BarMerger struct{}

// NewBarMerger creates a new bar merger.
func NewBarMerger() *BarMerger {
	return &BarMerger{}
}

func (m *BarMerger) Name() string {
	return "BarMerger"
}

// Transform merges contained bars. Bars before the first strict up or down
// pair are discarded. When the input has no such pair at all, only the final
// bar survives.
func (m *BarMerger) Transform(bars []models.Candle) []MergedBar {
	if !candlesValid(bars) {
		return nil
	}

	anchor := -1
	dir := directionNone
	for i := 1; i < len(bars); i++ {
		if d := trendOf(toMerged(bars[i-1]), toMerged(bars[i])); d != directionNone {
			anchor, dir = i, d
			break
		}
	}
	if anchor < 0 {
		return []MergedBar{toMerged(bars[len(bars)-1])}
	}

	out := make([]MergedBar, 0, len(bars)-anchor+1)
	out = append(out, toMerged(bars[anchor-1]))
	cur := toMerged(bars[anchor])

	for _, raw := range bars[anchor+1:] {
		next := toMerged(raw)
		switch {
		case cur.High >= next.High && cur.Low <= next.Low:
			// next inside cur: pull in the trailing edge, keep cur's timestamp
			if dir == directionUp {
				cur.Low = next.Low
			} else {
				cur.High = next.High
			}
		case cur.High <= next.High && cur.Low >= next.Low:
			// cur inside next
			if dir == directionUp {
				next.Low = cur.Low
			} else {
				next.High = cur.High
			}
			cur = next
		default:
			out = append(out, cur)
			dir = trendOf(cur, next)
			cur = next
		}
	}

	return append(out, cur)
}

func toMerged(c models.Candle) MergedBar {
	return MergedBar{Timestamp: c.Timestamp, High: c.High, Low: c.Low}
}
