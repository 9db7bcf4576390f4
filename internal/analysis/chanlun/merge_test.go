package chanlun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chanlun/internal/models"
)

func TestBarMerger_ContainedBarMergesIntoUpTrend(t *testing.T) {
	bars := []models.Candle{
		bar(1, 10, 8),
		bar(2, 12, 9),
		bar(3, 11, 9.5),
	}

	got := NewBarMerger().Transform(bars)

	require.Len(t, got, 2)
	assert.Equal(t, MergedBar{Timestamp: ts(1), High: 10, Low: 8}, got[0])
	assert.Equal(t, MergedBar{Timestamp: ts(2), High: 12, Low: 9.5}, got[1])
}

func TestBarMerger_OuterBarTakesTrailingEdgeInDownTrend(t *testing.T) {
	bars := []models.Candle{
		bar(1, 12, 10),
		bar(2, 11, 9),
		bar(3, 11.5, 8),
		bar(4, 10, 7),
	}

	got := NewBarMerger().Transform(bars)

	require.Len(t, got, 3)
	assert.Equal(t, MergedBar{Timestamp: ts(3), High: 11, Low: 8}, got[1])
	assert.Equal(t, MergedBar{Timestamp: ts(4), High: 10, Low: 7}, got[2])
}

func TestBarMerger_DiscardsAmbiguousLeadingBars(t *testing.T) {
	bars := []models.Candle{
		bar(1, 10, 8),
		bar(2, 10, 8),
		bar(3, 9, 8),
		bar(4, 11, 9),
	}

	got := NewBarMerger().Transform(bars)

	require.Len(t, got, 2)
	assert.Equal(t, ts(3), got[0].Timestamp)
	assert.Equal(t, ts(4), got[1].Timestamp)
}

func TestBarMerger_NoDirectionKeepsLastBar(t *testing.T) {
	bars := []models.Candle{
		bar(1, 10, 8),
		bar(2, 10, 8),
		bar(3, 10, 8),
	}

	got := NewBarMerger().Transform(bars)

	require.Len(t, got, 1)
	assert.Equal(t, ts(3), got[0].Timestamp)
}

func TestBarMerger_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		bars []models.Candle
	}{
		{name: "empty", bars: nil},
		{name: "high below low", bars: []models.Candle{bar(1, 10, 8), bar(2, 7, 9)}},
		{name: "duplicate timestamp", bars: []models.Candle{bar(1, 10, 8), bar(1, 12, 9)}},
		{name: "out of order", bars: []models.Candle{bar(2, 10, 8), bar(1, 12, 9)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, NewBarMerger().Transform(tt.bars))
		})
	}
}

func TestBarMerger_DoesNotMutateInput(t *testing.T) {
	bars := []models.Candle{
		bar(1, 10, 8),
		bar(2, 12, 9),
		bar(3, 11, 9.5),
	}
	before := append([]models.Candle(nil), bars...)

	NewBarMerger().Transform(bars)

	assert.Equal(t, before, bars)
}
