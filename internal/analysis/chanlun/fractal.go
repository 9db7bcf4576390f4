package chanlun

// TurningPointDetector classifies every interior merged bar as a top, a
// bottom or neither.
type TurningPointDetector struct{}

// NewTurningPointDetector creates a new turning point detector.
func NewTurningPointDetector() *TurningPointDetector {
	return &TurningPointDetector{}
}

func (d *TurningPointDetector) Name() string {
	return "TurningPointDetector"
}

// Transform returns one point per interior bar. Unclassified points are kept
// so that the stroke builder can measure gaps.
func (d *TurningPointDetector) Transform(bars []MergedBar) []TurningPoint {
	if len(bars) < 3 {
		return nil
	}

	points := make([]TurningPoint, 0, len(bars)-2)
	for i := 1; i < len(bars)-1; i++ {
		prev, cur, next := bars[i-1], bars[i], bars[i+1]
		tp := TurningPoint{Index: i, Timestamp: cur.Timestamp}

		switch {
		case cur.High > prev.High && cur.High > next.High:
			tp.Polarity = PolarityTop
			tp.Price = cur.High
		case cur.Low < prev.Low && cur.Low < next.Low:
			tp.Polarity = PolarityBottom
			tp.Price = cur.Low
		}

		points = append(points, tp)
	}

	return points
}
