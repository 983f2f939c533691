package fill

import "sort"

// Last is a streaming forward-fill fold. The zero value is ready to use.
type Last[T any] struct {
	value T
	ok    bool
}

// Step folds one observation and returns the filled value. A nil v keeps the
// previous value.
func (l *Last[T]) Step(v *T) (T, bool) {
	if v != nil {
		l.value = *v
		l.ok = true
	}
	return l.value, l.ok
}

// Value returns the current filled value.
func (l *Last[T]) Value() (T, bool) {
	return l.value, l.ok
}

// Reset forgets the carried value.
func (l *Last[T]) Reset() {
	var zero T
	l.value = zero
	l.ok = false
}

// Ptr returns the filled value as a pointer, nil while absent.
func (l *Last[T]) Ptr() *T {
	if !l.ok {
		return nil
	}
	v := l.value
	return &v
}

// Point is one observation in a Series.
type Point[T any] struct {
	Ts    int64
	Value *T
}

// Series answers point-in-time lookups over observations ordered by time.
type Series[T any] struct {
	ts     []int64
	values []T
	ok     []bool
}

// NewSeries builds a Series. Points must be ordered by Ts; equal timestamps
// are applied in order, so the last present value at a timestamp wins.
func NewSeries[T any](points []Point[T]) *Series[T] {
	s := &Series[T]{
		ts:     make([]int64, len(points)),
		values: make([]T, len(points)),
		ok:     make([]bool, len(points)),
	}
	var last Last[T]
	for i, p := range points {
		s.ts[i] = p.Ts
		s.values[i], s.ok[i] = last.Step(p.Value)
	}
	return s
}

// At returns the last present value observed at or before ts.
func (s *Series[T]) At(ts int64) (T, bool) {
	i := sort.Search(len(s.ts), func(i int) bool { return s.ts[i] > ts })
	if i == 0 {
		var zero T
		return zero, false
	}
	return s.values[i-1], s.ok[i-1]
}

// Len returns the number of observations.
func (s *Series[T]) Len() int {
	return len(s.ts)
}

// Fill applies forward-fill to a slice of observations and returns one
// pointer per input, nil until the first present value.
func Fill[T any](values []*T) []*T {
	out := make([]*T, len(values))
	var last Last[T]
	for i, v := range values {
		last.Step(v)
		out[i] = last.Ptr()
	}
	return out
}
