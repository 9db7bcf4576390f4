package chanlun

import "math"

const (
	// DefaultMinPivotEndpoints is the shortest endpoint sequence searched for pivots.
	DefaultMinPivotEndpoints = 5

	minPivotMoves = 3
)

// PivotDetector finds consolidation zones over stroke or segment endpoints.
type PivotDetector struct {
	MinEndpoints int
	name         string
}

// NewPivotDetector creates a pivot detector. A minimum below five falls back
// to DefaultMinPivotEndpoints. The name distinguishes stroke and segment runs
// in logs.
func NewPivotDetector(name string, minEndpoints int) *PivotDetector {
	if minEndpoints < DefaultMinPivotEndpoints {
		minEndpoints = DefaultMinPivotEndpoints
	}
	if name == "" {
		name = "PivotDetector"
	}
	return &PivotDetector{MinEndpoints: minEndpoints, name: name}
}

func (d *PivotDetector) Name() string {
	return d.name
}

// Transform scans for zones and then merges overlapping zones of the same
// polarity until nothing changes.
func (d *PivotDetector) Transform(endpoints []Endpoint) []Pivot {
	if len(endpoints) < d.MinEndpoints {
		return nil
	}

	ranges := moveRanges(endpoints)
	var pivots []Pivot

	for c := 1; c+minPivotMoves <= len(ranges); {
		zone, moves, ok := findZone(ranges, c)
		if !ok || disjoint(ranges[c-1], zone) {
			c++
			continue
		}

		pivots = append(pivots, Pivot{
			Start:      endpoints[c].Timestamp,
			End:        endpoints[c+moves].Timestamp,
			ZoneHigh:   zone.High,
			ZoneLow:    zone.Low,
			Polarity:   endpoints[c].Polarity,
			StartIndex: c,
			EndIndex:   c + moves,
		})
		c += moves + 1
	}

	return mergePivots(pivots)
}

// moveRanges returns the envelope of each move between consecutive endpoints.
func moveRanges(endpoints []Endpoint) []priceRange {
	out := make([]priceRange, 0, len(endpoints)-1)
	for i := 1; i < len(endpoints); i++ {
		a, b := endpoints[i-1].Price, endpoints[i].Price
		out = append(out, priceRange{High: math.Max(a, b), Low: math.Min(a, b)})
	}
	return out
}

// findZone intersects the three moves starting at start and keeps widening
// while the next move overlaps the zone and the intersection stays valid.
// It returns the zone and the number of moves it spans.
func findZone(ranges []priceRange, start int) (priceRange, int, bool) {
	if start < 0 || start+minPivotMoves > len(ranges) {
		return priceRange{}, 0, false
	}

	zone := ranges[start]
	for _, r := range ranges[start+1 : start+minPivotMoves] {
		zone = intersect(zone, r)
	}
	if zone.High <= zone.Low {
		return priceRange{}, 0, false
	}

	moves := minPivotMoves
	for start+moves < len(ranges) {
		r := ranges[start+moves]
		if disjoint(r, zone) {
			break
		}
		next := intersect(zone, r)
		if next.High <= next.Low {
			break
		}
		zone = next
		moves++
	}

	return zone, moves, true
}

func intersect(a, b priceRange) priceRange {
	return priceRange{High: math.Min(a.High, b.High), Low: math.Max(a.Low, b.Low)}
}

// disjoint reports whether r lies entirely outside the zone.
func disjoint(r, zone priceRange) bool {
	return r.High < zone.Low || r.Low > zone.High
}

// mergePivots folds neighbouring pivots with the same polarity and
// overlapping zones into one, repeating until a pass changes nothing.
func mergePivots(pivots []Pivot) []Pivot {
	for {
		merged := false
		out := make([]Pivot, 0, len(pivots))
		for _, p := range pivots {
			if n := len(out); n > 0 {
				prev := out[n-1]
				if prev.Polarity == p.Polarity && prev.Overlaps(p) {
					out[n-1] = Pivot{
						Start:      prev.Start,
						End:        p.End,
						ZoneHigh:   math.Min(prev.ZoneHigh, p.ZoneHigh),
						ZoneLow:    math.Max(prev.ZoneLow, p.ZoneLow),
						Polarity:   prev.Polarity,
						StartIndex: prev.StartIndex,
						EndIndex:   p.EndIndex,
					}
					merged = true
					continue
				}
			}
			out = append(out, p)
		}
		pivots = out
		if !merged {
			return pivots
		}
	}
}
