package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/models"
)

var groupedPattern = regexp.MustCompile(`^-?\d{1,3}(,\d{3})*\.\d{2}$`)

// Property: a present price renders with thousands separators and two
// decimals and parses back to the rounded value.
func TestProperty_NullPriceFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	properties.Property("present prices are grouped and preserved", prop.ForAll(
		func(v float64) bool {
			formatted := FormatNullPrice(chanlun.Price(v))
			if !groupedPattern.MatchString(formatted) {
				t.Logf("unexpected format for %f: %s", v, formatted)
				return false
			}
			parsed, err := strconv.ParseFloat(strings.ReplaceAll(formatted, ",", ""), 64)
			if err != nil {
				return false
			}
			return math.Abs(parsed-math.Round(v*100)/100) <= 0.01
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}

func TestFormatNullPrice_Absent(t *testing.T) {
	assert.Equal(t, "-", FormatNullPrice(chanlun.NullPrice{}))
	assert.Equal(t, "1,234.50", FormatNullPrice(chanlun.Price(1234.5)))
}

func TestFormatBarTime(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("CST", 8*3600))
	assert.Equal(t, "2024-03-01 01:30", FormatBarTime(ts, "2006-01-02 15:04"))
	assert.Equal(t, "2024-03-01T01:30:00Z", FormatBarTime(ts, ""))
}

func TestFormatRunCounts(t *testing.T) {
	run := models.Run{Bars: 120, Strokes: 9, Segments: 2, Pivots: 1}
	assert.Equal(t, "120 bars, 9 strokes, 2 segments, 1 pivots", FormatRunCounts(run))
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", FormatAge(time.Time{}, now))
	assert.Equal(t, "just now", FormatAge(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", FormatAge(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", FormatAge(now.Add(-3*time.Hour), now))
	assert.Equal(t, "4d ago", FormatAge(now.Add(-96*time.Hour), now))
}
