package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func seriesOf(ts ...int64) *Series {
	s := &Series{}
	for _, v := range ts {
		s.add(v, float64(v))
	}
	return s
}

func TestSeriesNearest(t *testing.T) {
	s := seriesOf(100, 200, 300)
	cases := []struct {
		ts   int64
		want int
	}{
		{ts: 50, want: 0},
		{ts: 100, want: 0},
		{ts: 149, want: 0},
		{ts: 150, want: 0},
		{ts: 151, want: 1},
		{ts: 300, want: 2},
		{ts: 1000, want: 2},
	}
	for _, tc := range cases {
		got, ok := s.nearest(tc.ts)
		assert.True(t, ok)
		assert.Equal(t, tc.want, got, "nearest(%d)", tc.ts)
	}

	_, ok := (&Series{}).nearest(100)
	assert.False(t, ok)
}

func TestSeriesBetween(t *testing.T) {
	s := seriesOf(100, 200, 200, 300, 400)
	assert.Len(t, s.Between(200, 300), 3)
	assert.Empty(t, s.Between(301, 399))
	assert.Empty(t, s.Between(500, 100))
	assert.Equal(t, []float64{300, 400}, s.valuesAfter(200))
	assert.Equal(t, []float64{300, 400}, s.tail(2))
	assert.Len(t, s.tail(10), 5)
}

func TestMedianAveragesMiddlePair(t *testing.T) {
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 3.0, median([]float64{5, 3, 1}))
	assert.Equal(t, 1.0, mad([]float64{1, 2, 3, 4, 5}))
}
