package optimize

import (
	"sync"
)

// SlicePool pools slices of a single element type. Returned slices have zero
// length and at least the configured capacity.
type SlicePool[T any] struct {
	pool sync.Pool
	size int
}

// NewSlicePool creates a slice pool with the given base capacity
func NewSlicePool[T any](size int) *SlicePool[T] {
	return &SlicePool[T]{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				s := make([]T, 0, size)
				return &s
			},
		},
	}
}

// Get gets an empty slice from the pool
func (p *SlicePool[T]) Get() []T {
	return (*p.pool.Get().(*[]T))[:0]
}

// Put returns a slice to the pool. Oversized slices are dropped so a single
// large batch does not pin memory.
func (p *SlicePool[T]) Put(s []T) {
	if cap(s) > p.size*2 {
		return
	}
	s = s[:0]
	p.pool.Put(&s)
}

// PreAllocateSlice allocates a slice with known length and capacity
func PreAllocateSlice[T any](length, capacity int) []T {
	if capacity < length {
		capacity = length
	}
	return make([]T, length, capacity)
}

// GrowSlice extends a slice to newLen, reallocating only when needed
func GrowSlice[T any](s []T, newLen int) []T {
	if newLen <= cap(s) {
		return s[:newLen]
	}

	newCap := cap(s) * 2
	if newCap < newLen {
		newCap = newLen
	}

	grown := make([]T, newLen, newCap)
	copy(grown, s)
	return grown
}
