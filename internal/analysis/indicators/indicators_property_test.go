package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chanlun/internal/analysis"
	"chanlun/internal/models"
)

var _ analysis.MultiValueIndicator = (*MACD)(nil)

// closeSeriesGen generates candles whose closes follow a bounded random walk.
func closeSeriesGen(minLen, maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, gen.Float64Range(-5.0, 5.0)).Map(func(steps []float64) []models.Candle {
		for len(steps) < minLen {
			steps = append(steps, 0.5)
		}
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		price := 100.0
		candles := make([]models.Candle, len(steps))
		for i, s := range steps {
			price = math.Max(1, price+s)
			candles[i] = models.Candle{
				Timestamp: start.Add(time.Duration(i) * time.Hour),
				Open:      price,
				High:      price + 1,
				Low:       price - 1,
				Close:     price,
			}
		}
		return candles
	})
}

// Property: the histogram is always the macd line minus the signal line, and
// every candle gets a value in each series.
func TestProperty_MACDHistogramIsDifference(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	properties.Property("histogram equals macd minus signal", prop.ForAll(
		func(candles []models.Candle) bool {
			values, err := NewDefaultMACD().Calculate(candles)
			if err != nil {
				return false
			}
			macd, signal, hist := values[SeriesMACD], values[SeriesSignal], values[SeriesHistogram]
			if len(macd) != len(candles) || len(signal) != len(candles) || len(hist) != len(candles) {
				return false
			}
			for i := range hist {
				if math.Abs(hist[i]-(macd[i]-signal[i])) > 1e-9 {
					return false
				}
			}
			return true
		},
		closeSeriesGen(1, 200),
	))

	properties.TestingRun(t)
}

func TestMACD_ConstantPricesAreFlat(t *testing.T) {
	candles := make([]models.Candle, 50)
	for i := range candles {
		candles[i] = models.Candle{Close: 42}
	}

	values, err := NewDefaultMACD().Calculate(candles)
	require.NoError(t, err)

	for _, key := range []string{SeriesMACD, SeriesSignal, SeriesHistogram} {
		for _, v := range values[key] {
			assert.InDelta(t, 0, v, 1e-12)
		}
	}
}

func TestMACD_RisingPricesArePositive(t *testing.T) {
	candles := make([]models.Candle, 60)
	for i := range candles {
		candles[i] = models.Candle{Close: 100 + float64(i)}
	}

	values, err := NewDefaultMACD().Calculate(candles)
	require.NoError(t, err)

	assert.Zero(t, values[SeriesMACD][0])
	assert.Greater(t, values[SeriesMACD][59], 0.0)
	assert.Greater(t, values[SeriesHistogram][10], 0.0)
}

func TestMACD_Errors(t *testing.T) {
	_, err := NewDefaultMACD().Calculate(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = NewMACD(26, 12, 9).Calculate([]models.Candle{{Close: 1}})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	assert.Equal(t, "MACD_12_26_9", NewDefaultMACD().Name())
	assert.Equal(t, 34, NewDefaultMACD().Period())
}

func TestCalculateEWM(t *testing.T) {
	got := CalculateEWM([]float64{1, 2, 3}, 1)
	assert.Equal(t, []float64{1, 2, 3}, got)

	got = CalculateEWM([]float64{0, 3}, 2)
	assert.InDeltaSlice(t, []float64{0, 2}, got, 1e-12)

	assert.Nil(t, CalculateEWM(nil, 3))
}
