package chanlun

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"

	"chanlun/internal/models"
)

var epoch = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func ts(i int) time.Time {
	return epoch.Add(time.Duration(i) * time.Hour)
}

func bar(i int, high, low float64) models.Candle {
	return models.Candle{Timestamp: ts(i), Open: low, High: high, Low: low, Close: high}
}

// points parses "N N N B10 T20" into turning points at consecutive indexes.
func points(s string) []TurningPoint {
	fields := strings.Fields(s)
	out := make([]TurningPoint, 0, len(fields))
	for i, f := range fields {
		tp := TurningPoint{Index: i + 1, Timestamp: ts(i + 1)}
		switch f[0] {
		case 'T':
			tp.Polarity = PolarityTop
		case 'B':
			tp.Polarity = PolarityBottom
		}
		if tp.Polarity != PolarityNone {
			v, err := strconv.ParseFloat(f[1:], 64)
			if err != nil {
				panic(err)
			}
			tp.Price = v
		}
		out = append(out, tp)
	}
	return out
}

// endpoints parses "T100 B80 T90" into alternating endpoints.
func endpoints(s string) []Endpoint {
	var out []Endpoint
	for _, tp := range points(s) {
		out = append(out, Endpoint{Index: tp.Index, Timestamp: tp.Timestamp, Polarity: tp.Polarity, Price: tp.Price})
	}
	return out
}

func summary(eps []Endpoint) string {
	parts := make([]string, 0, len(eps))
	for _, e := range eps {
		p := "B"
		if e.Polarity == PolarityTop {
			p = "T"
		}
		parts = append(parts, p+strconv.FormatFloat(e.Price, 'f', -1, 64))
	}
	return strings.Join(parts, " ")
}

// barSeriesGen generates a random walk of valid, strictly ordered bars.
func barSeriesGen(minLen, maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, gen.Float64Range(-3.0, 3.0)).Map(func(steps []float64) []models.Candle {
		for len(steps) < minLen {
			steps = append(steps, 1.0)
		}
		bars := make([]models.Candle, 0, len(steps))
		mid := 100.0
		for i, s := range steps {
			mid += s
			spread := 0.5 + math.Abs(s)/2
			bars = append(bars, models.Candle{
				Timestamp: ts(i),
				Open:      mid,
				High:      mid + spread,
				Low:       mid - spread,
				Close:     mid,
				Volume:    1000,
			})
		}
		return bars
	})
}

// pointSeriesGen generates arbitrary turning point sequences, including runs
// of the same polarity.
func pointSeriesGen(maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, gen.IntRange(0, 9)).Map(func(codes []int) []TurningPoint {
		out := make([]TurningPoint, 0, len(codes))
		for i, c := range codes {
			tp := TurningPoint{Index: i + 1, Timestamp: ts(i + 1)}
			switch {
			case c == 0 || c == 1:
				tp.Polarity = PolarityTop
				tp.Price = 100 + float64(c*7+i%5)
			case c == 2 || c == 3:
				tp.Polarity = PolarityBottom
				tp.Price = 90 - float64(c*3+i%7)
			}
			out = append(out, tp)
		}
		return out
	})
}

func alternates(eps []Endpoint) bool {
	for i := 1; i < len(eps); i++ {
		if eps[i].Polarity == eps[i-1].Polarity || eps[i].Polarity == PolarityNone {
			return false
		}
	}
	return true
}

func increasing(eps []Endpoint) bool {
	for i := 1; i < len(eps); i++ {
		if !eps[i].Timestamp.After(eps[i-1].Timestamp) {
			return false
		}
	}
	return true
}
