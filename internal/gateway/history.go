package gateway

import "sync"

// History is a fixed-size circular buffer of recently broadcast signal
// envelopes. Freshly connected WS clients replay it so they see signals
// that fired before they attached, and the REST API serves it for quick
// inspection without a store round trip.
//
// Thread-safe for concurrent writes and reads.
type History struct {
	mu   sync.RWMutex
	buf  [][]byte
	cap  int
	pos  int // next write position
	full bool
}

// NewHistory creates a history ring with the given capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 64
	}
	return &History{
		buf: make([][]byte, capacity),
		cap: capacity,
	}
}

// Push appends an envelope to the ring. Overwrites the oldest entry when
// full. The envelope is copied so callers may reuse their buffer.
func (h *History) Push(envelope []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cp := make([]byte, len(envelope))
	copy(cp, envelope)

	h.buf[h.pos] = cp
	h.pos = (h.pos + 1) % h.cap
	if h.pos == 0 && !h.full {
		h.full = true
	}
}

// Recent returns up to n envelopes in insertion order, oldest first.
// n <= 0 returns everything buffered.
func (h *History) Recent(n int) [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := h.len()
	if n <= 0 || n > count {
		n = count
	}

	out := make([][]byte, 0, n)
	// Skip the oldest entries when the caller asked for fewer than we hold.
	for i := count - n; i < count; i++ {
		out = append(out, h.buf[h.index(i)])
	}
	return out
}

// Len returns the number of envelopes currently buffered.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.len()
}

func (h *History) len() int {
	if h.full {
		return h.cap
	}
	return h.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (h *History) index(logical int) int {
	if h.full {
		return (h.pos + logical) % h.cap
	}
	return logical
}
