package chanlun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurningPointDetector_Top(t *testing.T) {
	bars := []MergedBar{
		{Timestamp: ts(1), High: 10, Low: 8},
		{Timestamp: ts(2), High: 15, Low: 9},
		{Timestamp: ts(3), High: 11, Low: 7},
	}

	got := NewTurningPointDetector().Transform(bars)

	require.Len(t, got, 1)
	assert.Equal(t, TurningPoint{Index: 1, Timestamp: ts(2), Polarity: PolarityTop, Price: 15}, got[0])
}

func TestTurningPointDetector_Classification(t *testing.T) {
	bars := []MergedBar{
		{Timestamp: ts(0), High: 10, Low: 9},
		{Timestamp: ts(1), High: 12, Low: 10},
		{Timestamp: ts(2), High: 11, Low: 8},
		{Timestamp: ts(3), High: 13, Low: 11},
		{Timestamp: ts(4), High: 14, Low: 12},
		{Timestamp: ts(5), High: 15, Low: 13},
	}

	got := NewTurningPointDetector().Transform(bars)

	require.Len(t, got, 4)
	assert.Equal(t, PolarityTop, got[0].Polarity)
	assert.Equal(t, 12.0, got[0].Price)
	assert.Equal(t, PolarityBottom, got[1].Polarity)
	assert.Equal(t, 8.0, got[1].Price)
	assert.Equal(t, PolarityNone, got[2].Polarity)
	assert.Equal(t, PolarityNone, got[3].Polarity)
	assert.Zero(t, got[3].Price)
	for i, p := range got {
		assert.Equal(t, i+1, p.Index)
	}
}

func TestTurningPointDetector_TooShort(t *testing.T) {
	d := NewTurningPointDetector()
	assert.Empty(t, d.Transform(nil))
	assert.Empty(t, d.Transform([]MergedBar{{Timestamp: ts(1), High: 2, Low: 1}}))
	assert.Empty(t, d.Transform([]MergedBar{
		{Timestamp: ts(1), High: 2, Low: 1},
		{Timestamp: ts(2), High: 3, Low: 2},
	}))
}
