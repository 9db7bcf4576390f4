// Package indicators provides auxiliary indicators computed alongside the
// structural analysis.
package indicators

import (
	"fmt"

	"chanlun/internal/models"
)

// Keys of the series returned by MACD.Calculate.
const (
	SeriesMACD      = "macd"
	SeriesSignal    = "signal"
	SeriesHistogram = "histogram"
)

// CalculateEWM calculates an exponentially weighted mean over raw values with
// smoothing 2/(span+1), seeded with the first value so that every input has
// an output.
func CalculateEWM(values []float64, span int) []float64 {
	if len(values) == 0 || span <= 0 {
		return nil
	}

	result := make([]float64, len(values))
	alpha := 2.0 / float64(span+1)

	result[0] = values[0]
	for i := 1; i < len(values); i++ {
		result[i] = (values[i]-result[i-1])*alpha + result[i-1]
	}

	return result
}

// MACD calculates Moving Average Convergence Divergence.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a new MACD indicator.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

// NewDefaultMACD creates a MACD with the standard (12, 26, 9) periods.
func NewDefaultMACD() *MACD {
	return NewMACD(12, 26, 9)
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

func (m *MACD) Period() int {
	return m.slowPeriod + m.signalPeriod - 1
}

// Calculate returns the macd, signal and histogram series, one value per
// candle. Early values are computed from the short history available.
func (m *MACD) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if m.fastPeriod <= 0 || m.slowPeriod <= 0 || m.signalPeriod <= 0 || m.fastPeriod >= m.slowPeriod {
		return nil, ErrInvalidPeriod
	}
	if len(candles) == 0 {
		return nil, ErrInsufficientData
	}

	closes := closePrices(candles)
	fastEMA := CalculateEWM(closes, m.fastPeriod)
	slowEMA := CalculateEWM(closes, m.slowPeriod)

	// MACD Line = Fast EMA - Slow EMA
	macdLine := make([]float64, len(candles))
	for i := range macdLine {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}

	// Signal Line = EMA of MACD Line
	signalLine := CalculateEWM(macdLine, m.signalPeriod)

	// Histogram = MACD Line - Signal Line
	histogram := make([]float64, len(candles))
	for i := range histogram {
		histogram[i] = macdLine[i] - signalLine[i]
	}

	return map[string][]float64{
		SeriesMACD:      macdLine,
		SeriesSignal:    signalLine,
		SeriesHistogram: histogram,
	}, nil
}
