package chanlun

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentBuilder(t *testing.T) {
	tests := []struct {
		name      string
		endpoints string
		want      string
	}{
		{
			name:      "boundary lands on the lowest bottom",
			endpoints: "T100 B80 T90 B70 T75 B60 T85 B65 T95",
			want:      "T100 B60",
		},
		{
			name:      "lower bottom continues the previous segment",
			endpoints: "T100 B80 T90 B70 T75 B60 T85 B65 T84 B55 T70",
			want:      "T100 B55",
		},
		{
			name:      "scan start slides past continuation",
			endpoints: "T100 B90 T105 B80 T95 B70 T85 B75 T80",
			want:      "T105 B70",
		},
		{
			name:      "unconfirmed move stays pending",
			endpoints: "T100 B80 T90 B70 T75 B60",
			want:      "",
		},
		{
			name:      "rising segments",
			endpoints: "B10 T20 B15 T25 B18 T30 B22 T28 B12 T16 B8 T14 B11",
			want:      "B10 T30 B8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewSegmentBuilder().Transform(endpoints(tt.endpoints))
			assert.Equal(t, tt.want, summary(got))
			assert.True(t, alternates(got))
		})
	}
}

func TestSegmentBuilder_TooShort(t *testing.T) {
	b := NewSegmentBuilder()
	assert.Empty(t, b.Transform(nil))
	assert.Empty(t, b.Transform(endpoints("T10 B5 T8")))
}
