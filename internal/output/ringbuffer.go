package output

import (
	"io"
	"sync"
	"sync/atomic"
)

// ringBufferSizeClasses are the capacities sinks actually request (a few
// hundred milliseconds of PCM at the sample rates internal/output opens);
// pooling at these sizes avoids a fresh allocation on every track change.
var ringBufferSizeClasses = []int{1 << 14, 1 << 16, 1 << 18}

var ringBufferPools = newRingBufferPools()

type ringBufferPool struct {
	size int
	pool *sync.Pool
}

func newRingBufferPools() []ringBufferPool {
	pools := make([]ringBufferPool, len(ringBufferSizeClasses))
	for i, size := range ringBufferSizeClasses {
		size := size
		pools[i] = ringBufferPool{
			size: size,
			pool: &sync.Pool{New: func() any { return make([]byte, size) }},
		}
	}
	return pools
}

// acquireRingBuf returns a buffer of exactly capacity bytes, drawn from the
// nearest size class pool when one fits, or freshly allocated otherwise.
func acquireRingBuf(capacity int) []byte {
	for _, class := range ringBufferPools {
		if capacity <= class.size {
			return class.pool.Get().([]byte)[:capacity]
		}
	}
	return make([]byte, capacity)
}

// releaseRingBuf returns buf to the pool matching its capacity, if any.
func releaseRingBuf(buf []byte) {
	for _, class := range ringBufferPools {
		if cap(buf) == class.size {
			full := buf[:class.size]
			clear(full)
			class.pool.Put(full)
			return
		}
	}
}

// RingBuffer is a single-producer/single-consumer byte ring, backed by a
// pooled buffer so repeated Sink opens/closes don't churn the GC. The
// decode/DSP pipeline writes processed PCM in; the realtime output callback
// reads it back out, blocking (Write) or zero-filling (Read) rather than
// ever growing the buffer.
type RingBuffer struct {
	buf      []byte
	mu       sync.Mutex
	cond     *sync.Cond
	readPos  int
	writePos int
	filled   int
	closed   bool

	underruns atomic.Int64
}

// NewRingBuffer allocates a ring of the given capacity from the shared
// buffer pool.
func NewRingBuffer(capacity int) *RingBuffer {
	rb := &RingBuffer{buf: acquireRingBuf(capacity)}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// Write blocks until there is room for all of p, or the buffer is closed.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(p) {
		for rb.filled == len(rb.buf) && !rb.closed {
			rb.cond.Wait()
		}
		if rb.closed {
			return written, io.ErrClosedPipe
		}
		// Take as much as fits without blocking, wrapping around the ring.
		n := len(rb.buf) - rb.filled
		if room := len(p) - written; n > room {
			n = room
		}
		chunk := p[written:]
		for n > 0 {
			space := len(rb.buf) - rb.writePos
			take := n
			if take > space {
				take = space
			}
			copy(rb.buf[rb.writePos:], chunk[:take])
			rb.writePos = (rb.writePos + take) % len(rb.buf)
			rb.filled += take
			written += take
			chunk = chunk[take:]
			n -= take
		}
		rb.cond.Broadcast()
	}
	return written, nil
}

// Read fills p with buffered samples, zero-filling any remainder if the
// buffer is empty (an underrun), matching the original output callback's
// "mute any remaining samples" contract rather than blocking the audio
// device's pull thread.
func (rb *RingBuffer) Read(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed && rb.filled == 0 {
		return 0, io.EOF
	}

	n := rb.filled
	if n > len(p) {
		n = len(p)
	}
	remaining := n
	pos := 0
	for remaining > 0 {
		space := len(rb.buf) - rb.readPos
		take := remaining
		if take > space {
			take = space
		}
		copy(p[pos:], rb.buf[rb.readPos:rb.readPos+take])
		rb.readPos = (rb.readPos + take) % len(rb.buf)
		pos += take
		remaining -= take
	}
	rb.filled -= n

	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	if n < len(p) {
		rb.underruns.Add(1)
	}
	rb.cond.Broadcast()
	return len(p), nil
}

// Underruns reports how many Read calls have had to zero-fill part of their
// output because the producer fell behind.
func (rb *RingBuffer) Underruns() int64 { return rb.underruns.Load() }

// Clear discards any buffered, not-yet-played samples.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos, rb.writePos, rb.filled = 0, 0, 0
	rb.cond.Broadcast()
}

// Close releases the ring's backing buffer and unblocks any waiting writer.
func (rb *RingBuffer) Close() error {
	rb.mu.Lock()
	closed := rb.closed
	rb.closed = true
	buf := rb.buf
	rb.buf = nil
	rb.mu.Unlock()
	rb.cond.Broadcast()
	if !closed {
		releaseRingBuf(buf)
	}
	return nil
}
