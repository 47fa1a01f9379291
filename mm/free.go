// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mm

import (
	"encoding/binary"

	"github.com/Samsung/TizenRT-sub134/errno"
)

// Free returns the block at p to the heap. Freeing 0 does nothing.
//
// In interrupt context, or when another task holds the heap lock, the
// block is queued on the deferred list instead and Signal is called;
// the next allocation or the worker frees it.
func (h *Heap) Free(p Ptr) error {
	if p == 0 {
		return nil
	}
	if (h.InInterrupt != nil && h.InInterrupt()) || !h.mu.TryLock() {
		return h.Defer(p)
	}
	defer h.mu.Unlock()
	return h.free(p)
}

// free releases the block at p. The caller holds h.mu.
func (h *Heap) free(p Ptr) error {
	r, off, err := h.lookup(p)
	if err != nil {
		h.log.WithField("addr", uint64(p)).Warn("free of invalid pointer")
		return h.invalid(p)
	}
	h.unrecord(p)
	r.release(off)
	return nil
}

// Defer queues p to be freed later. It never blocks and never takes the
// heap lock, so it is safe in interrupt context and for a task freeing
// the stack it is running on. The node is marked deferred so that a
// second free of p is rejected before the list is touched.
func (h *Heap) Defer(p Ptr) error {
	if p == 0 {
		return nil
	}
	r, off, err := h.header(p)
	if err != nil || r.deferred(off) {
		h.log.WithField("addr", uint64(p)).Warn("deferred free of invalid pointer")
		return errno.Check(h.Debug, "mm", errno.EINVAL, "free %#x: not allocated in heap %s", uint64(p), h.name)
	}
	r.setDeferred(off)
	link := r.mem[p-r.base : p-r.base+8]
	for {
		old := h.delay.Load()
		binary.LittleEndian.PutUint64(link, old)
		if h.delay.CompareAndSwap(old, uint64(p)) {
			break
		}
	}
	h.ndelayed.Add(1)
	if h.Signal != nil {
		h.Signal()
	}
	return nil
}

// FreeDelayList frees every block on the deferred list and returns how
// many it freed. It stops at the first entry that is not a deferred
// node.
func (h *Heap) FreeDelayList() int {
	p := Ptr(h.delay.Swap(0))
	if p == 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for p != 0 {
		r, off, err := h.header(p)
		if err != nil || !r.deferred(off) {
			h.log.WithField("addr", uint64(p)).Error("deferred free list corrupted")
			break
		}
		next := Ptr(binary.LittleEndian.Uint64(r.mem[p-r.base:]))
		r.setSize(off, r.size(off))
		h.ndelayed.Add(-1)
		h.unrecord(p)
		r.release(off)
		n++
		if next == p {
			h.log.WithField("addr", uint64(p)).Error("deferred free list loops")
			break
		}
		p = next
	}
	return n
}
