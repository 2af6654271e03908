package anomaly

import "sort"

// Point is one timestamped value of a series. TS is in seconds since epoch.
type Point struct {
	TS    int64   `json:"ts"`
	Value float64 `json:"value"`
}

// Series is an append-only sequence of points with non-decreasing timestamps.
type Series struct {
	points []Point
}

func (s *Series) add(ts int64, value float64) {
	s.points = append(s.points, Point{TS: ts, Value: value})
}

// Len returns the number of points.
func (s *Series) Len() int {
	return len(s.points)
}

// Last returns the most recent point.
func (s *Series) Last() (Point, bool) {
	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// Points returns a copy of the series.
func (s *Series) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Between returns a copy of the points with from <= TS <= to.
func (s *Series) Between(from, to int64) []Point {
	lo, hi := s.span(from, to)
	out := make([]Point, hi-lo)
	copy(out, s.points[lo:hi])
	return out
}

// span returns the index range [lo, hi) of points with from <= TS <= to.
func (s *Series) span(from, to int64) (int, int) {
	lo := sort.Search(len(s.points), func(i int) bool { return s.points[i].TS >= from })
	hi := sort.Search(len(s.points), func(i int) bool { return s.points[i].TS > to })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// valuesAfter returns the values of points with TS > ts.
func (s *Series) valuesAfter(ts int64) []float64 {
	lo := sort.Search(len(s.points), func(i int) bool { return s.points[i].TS > ts })
	return values(s.points[lo:])
}

// tail returns the values of the last n points.
func (s *Series) tail(n int) []float64 {
	if n > len(s.points) {
		n = len(s.points)
	}
	return values(s.points[len(s.points)-n:])
}

// nearest returns the index of the point whose timestamp equals ts or, failing
// that, is closest to it. Ties resolve to the earlier point.
func (s *Series) nearest(ts int64) (int, bool) {
	n := len(s.points)
	if n == 0 {
		return 0, false
	}
	i := sort.Search(n, func(i int) bool { return s.points[i].TS >= ts })
	switch {
	case i == n:
		return n - 1, true
	case s.points[i].TS == ts || i == 0:
		return i, true
	}
	if ts-s.points[i-1].TS <= s.points[i].TS-ts {
		return i - 1, true
	}
	return i, true
}

func values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
