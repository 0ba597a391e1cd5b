// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync"

// DefaultChunkSize is the scratch size used for one non-blocking read.
const DefaultChunkSize = 4096

// BytePool hands out fixed-size scratch chunks shared by every reactor.
// Chunks are borrowed for a single read call and returned right after, so
// a connection never holds one between readiness events.
type BytePool struct {
	pool sync.Pool
	size int
}

// NewBytePool creates a pool of chunks of the given size.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = DefaultChunkSize
	}
	b := &BytePool{size: size}
	b.pool.New = func() any {
		chunk := make([]byte, size)
		return &chunk
	}
	return b
}

// Size returns the chunk length.
func (b *BytePool) Size() int { return b.size }

// Get returns a full-length chunk.
func (b *BytePool) Get() *[]byte {
	p := b.pool.Get().(*[]byte)
	*p = (*p)[:b.size]
	return p
}

// Put returns a chunk. Chunks of a foreign size are dropped.
func (b *BytePool) Put(p *[]byte) {
	if p == nil || cap(*p) < b.size {
		return
	}
	b.pool.Put(p)
}
