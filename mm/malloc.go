// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mm

import (
	"github.com/sirupsen/logrus"
)

// Malloc allocates size bytes and returns the payload address, or 0
// when no region has room. Size 0 returns 0.
func (h *Heap) Malloc(size int) Ptr {
	p := h.allocate(size, 0)
	if p == 0 && size > 0 {
		h.failed(size)
	}
	return p
}

// Zalloc is Malloc with the payload cleared.
func (h *Heap) Zalloc(size int) Ptr {
	p := h.Malloc(size)
	if p != 0 {
		clear(h.Bytes(p))
	}
	return p
}

// Calloc allocates n elements of size bytes each, cleared.
func (h *Heap) Calloc(n, size int) Ptr {
	if n <= 0 || size <= 0 || n > maxAlloc/size {
		return 0
	}
	return h.Zalloc(n * size)
}

// Memalign allocates size bytes whose address is a multiple of align,
// which must be a power of two.
func (h *Heap) Memalign(align, size int) Ptr {
	if align <= 0 || align&(align-1) != 0 || align > maxAlloc {
		return 0
	}
	p := h.allocate(size, align)
	if p == 0 && size > 0 {
		h.failed(size)
	}
	return p
}

// allocate is the allocator proper. It drains the deferred frees,
// then takes a node from the first region that can satisfy the request.
// It logs nothing on failure: a Set tries its other heaps first.
func (h *Heap) allocate(size, align int) Ptr {
	need := nodeSize(size)
	if need == 0 {
		return 0
	}
	h.FreeDelayList()

	var caller string
	if h.instrumented() {
		caller = h.caller()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	var p Ptr
	if align > minChunk {
		p = h.memalign(uint32(align), need)
	} else {
		p = h.malloc(need)
	}
	if p != 0 {
		h.record(p, size, caller)
	}
	return p
}

// malloc allocates a node of need bytes. The caller holds h.mu.
func (h *Heap) malloc(need uint32) Ptr {
	for _, r := range h.regions {
		if off := r.fit(need, h.policy); off != 0 {
			r.take(off, need)
			return r.addr(off) + hdrSize
		}
	}
	return 0
}

// memalign allocates a node of need bytes whose payload is aligned to
// align. It over-allocates, then returns the leading and trailing slop
// to the free list. The caller holds h.mu.
func (h *Heap) memalign(align, need uint32) Ptr {
	over := need + align - minChunk
	if over < need {
		return 0
	}
	for _, r := range h.regions {
		off := r.fit(over, h.policy)
		if off == 0 {
			continue
		}
		r.take(off, over)
		p := r.addr(off) + hdrSize
		if a := (p + Ptr(align) - 1) &^ Ptr(align-1); a != p {
			// The gap is a multiple of 16, large enough to be a node.
			gap := uint32(a - p)
			n := r.size(off)
			next := off + gap
			r.setSize(off, gap)
			r.setSize(next, n-gap)
			r.setPrev(next, gap, true)
			r.fixNext(next)
			r.release(off)
			off = next
		}
		r.shrink(off, need)
		return r.addr(off) + hdrSize
	}
	return 0
}

// fit returns the free node chosen for a request of need bytes, or 0.
func (r *region) fit(need uint32, policy Policy) uint32 {
	var best uint32
	for off := r.free; off != 0; off = r.nextFree(off) {
		n := r.size(off)
		if n < need {
			continue
		}
		if policy == FirstFit {
			return off
		}
		if best == 0 || n < r.size(best) {
			best = off
		}
	}
	return best
}

// take allocates the free node at off, splitting off the tail when it
// is large enough to be a node of its own.
func (r *region) take(off, need uint32) {
	n := r.size(off)
	r.removeFree(off)
	if n-need >= minChunk {
		rest := off + need
		r.setSize(rest, n-need)
		r.setPrev(rest, need, false)
		r.fixNext(rest)
		r.setSize(off, need)
		r.insertFree(rest)
	}
	r.setPrev(off, r.prevSize(off), true)
}

// shrink trims the allocated node at off to need bytes, freeing the
// tail when it is large enough to be a node.
func (r *region) shrink(off, need uint32) {
	n := r.size(off)
	if n < need || n-need < minChunk {
		return
	}
	tail := off + need
	r.setSize(off, need)
	r.setSize(tail, n-need)
	r.setPrev(tail, need, true)
	r.fixNext(tail)
	r.release(tail)
}

// release frees the allocated node at off, merging it with free
// neighbours.
func (r *region) release(off uint32) {
	r.setPrev(off, r.prevSize(off), false)
	if next := off + r.size(off); !r.allocated(next) {
		r.removeFree(next)
		r.setSize(off, r.size(off)+r.size(next))
		r.fixNext(off)
	}
	if prev := off - r.prevSize(off); !r.allocated(prev) {
		// prev stays on the free list in its place.
		r.setSize(prev, r.size(prev)+r.size(off))
		r.fixNext(prev)
		return
	}
	r.insertFree(off)
}

func (h *Heap) failed(size int) {
	f := logrus.Fields{"size": size}
	if h.instrumented() {
		f["caller"] = h.caller()
	}
	h.log.WithFields(f).Warn("allocation failed")
}
