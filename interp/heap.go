package interp

import "sync"

// Heap is the append-only managed-object heap (spec.md §3, §5): objects
// are allocated by newobj and addressed by a monotonically increasing
// heapKey. Nothing is ever freed, so unlike the resource tables this
// interpreter's wasm-hosting ancestor used, there is no free list and no
// borrow tracking to maintain.
type Heap struct {
	mu      sync.Mutex
	objects [][]byte
}

// NewHeap returns an empty heap. heapKey 0 is never issued, mirroring the
// metadata token convention that index 0 means "no row".
func NewHeap() *Heap {
	return &Heap{}
}

// Alloc reserves a zero-initialized size-byte object and returns its
// heapKey.
func (h *Heap) Alloc(size int) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.objects = append(h.objects, make([]byte, size))
	return uint64(len(h.objects)) // 1-based, so 0 stays reserved for "no object"
}

// Get returns the byte buffer for heapKey, or (nil, false) if it was
// never allocated.
func (h *Heap) Get(heapKey uint64) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if heapKey == 0 || heapKey > uint64(len(h.objects)) {
		return nil, false
	}
	return h.objects[heapKey-1], true
}

// Len reports the number of objects ever allocated.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}
