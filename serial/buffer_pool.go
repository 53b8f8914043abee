package serial

import (
	"sync"
	"sync/atomic"
)

// ReadChunkSize is the size of a single non-blocking read in Receive.
const ReadChunkSize = 1024

// BufferPool manages reusable fixed-size byte buffers for device reads.
type BufferPool struct {
	pool    sync.Pool
	size    int
	metrics *Metrics // may be nil

	gets    atomic.Int64
	puts    atomic.Int64
	creates atomic.Int64
}

// NewBufferPool creates a pool of bufferSize buffers. Hits and misses are
// also counted in metrics when it is not nil.
func NewBufferPool(bufferSize int, metrics *Metrics) *BufferPool {
	return &BufferPool{size: bufferSize, metrics: metrics}
}

// Get retrieves a buffer, allocating one when the pool is empty.
func (bp *BufferPool) Get() []byte {
	bp.gets.Add(1)
	if buf, ok := bp.pool.Get().([]byte); ok {
		if bp.metrics != nil {
			bp.metrics.BufferPoolHits.Add(1)
		}
		return buf
	}
	bp.creates.Add(1)
	if bp.metrics != nil {
		bp.metrics.BufferPoolMisses.Add(1)
	}
	return make([]byte, bp.size)
}

// Put returns a buffer to the pool, cleared first since it may have held telegram bytes.
func (bp *BufferPool) Put(buf []byte) {
	if len(buf) != bp.size {
		return
	}
	bp.puts.Add(1)

	clear(buf)
	bp.pool.Put(buf)
}

// Stats returns pool usage statistics
func (bp *BufferPool) Stats() PoolStats {
	return PoolStats{
		Size:    bp.size,
		Gets:    bp.gets.Load(),
		Puts:    bp.puts.Load(),
		Creates: bp.creates.Load(),
	}
}

// PoolStats contains buffer pool usage statistics
type PoolStats struct {
	Size    int   // Buffer size managed by this pool
	Gets    int64 // Number of Get() calls
	Puts    int64 // Number of Put() calls
	Creates int64 // Number of new buffers created
}

// HitRatio returns the share of Get calls served without allocating (0.0 to 1.0).
func (ps PoolStats) HitRatio() float64 {
	if ps.Gets == 0 {
		return 0.0
	}
	return 1.0 - (float64(ps.Creates) / float64(ps.Gets))
}
