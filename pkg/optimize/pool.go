package optimize

import (
	"sync"
)

// BytePool is a pool of fixed-size byte slices to reduce allocations on hot
// paths such as snapshot writes and frame encoding.
type BytePool struct {
	pool sync.Pool
	size int
}

// NewBytePool creates a byte pool handing out slices of the given size
func NewBytePool(size int) *BytePool {
	return &BytePool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		},
	}
}

// Get gets a byte slice from the pool
func (p *BytePool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns a byte slice to the pool. Undersized slices are dropped.
func (p *BytePool) Put(b []byte) {
	if cap(b) >= p.size {
		p.pool.Put(b[:p.size])
	}
}
