package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"chanlun/internal/analysis"
	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/models"
)

// Property: a stage table read back after saving has the same timestamps in
// the same order, and a price that was absent stays absent.
func TestProperty_LayerRoundTripKeepsNulls(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "layers.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	// 0 = none, 1 = high only, 2 = low only, 3 = both
	shapeGen := gen.SliceOfN(30, gen.IntRange(0, 3))
	layerGen := gen.OneConstOf(analysis.LayerFractal, analysis.LayerStroke, analysis.LayerStrokePivot)

	run := 0
	properties.Property("save then load preserves rows and nulls", prop.ForAll(
		func(shapes []int, layer analysis.Layer) bool {
			ctx := context.Background()
			run++
			symbol := fmt.Sprintf("SYM%d", run)

			start := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
			table := make(chanlun.Table, len(shapes))
			for i, shape := range shapes {
				row := chanlun.Row{Timestamp: start.Add(time.Duration(i) * time.Minute)}
				if shape&1 != 0 {
					row.High = chanlun.Price(100 + float64(i))
				}
				if shape&2 != 0 {
					row.Low = chanlun.Price(50 + float64(i)/4)
				}
				table[i] = row
			}

			if err := store.SaveLayer(ctx, symbol, "5m", layer, table); err != nil {
				t.Logf("Failed to save layer: %v", err)
				return false
			}
			got, err := store.GetLayer(ctx, symbol, models.Interval("5m"), layer)
			if err != nil {
				t.Logf("Failed to get layer: %v", err)
				return false
			}
			if len(got) != len(table) {
				return false
			}
			for i := range table {
				if !got[i].Timestamp.Equal(table[i].Timestamp) {
					return false
				}
				if got[i].High != table[i].High || got[i].Low != table[i].Low {
					return false
				}
			}
			return true
		},
		shapeGen,
		layerGen,
	))

	properties.TestingRun(t)
}
