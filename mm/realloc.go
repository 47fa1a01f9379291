// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mm

// Realloc resizes the block at p to size bytes. Realloc(0, n) is
// Malloc(n) and Realloc(p, 0) frees p and returns 0.
//
// The block is resized in place when possible: shrinking splits off the
// tail, growing absorbs a free successor and then a free predecessor
// (moving the data down). Otherwise a new block is allocated, the data
// copied and the old block freed. On failure 0 is returned and the old
// block is untouched.
func (h *Heap) Realloc(p Ptr, size int) Ptr {
	if p == 0 {
		return h.Malloc(size)
	}
	if size <= 0 {
		h.Free(p)
		return 0
	}
	q, err := h.reallocInPlace(p, size)
	if err != nil || q != 0 {
		return q
	}

	q = h.allocate(size, 0)
	if q == 0 {
		h.failed(size)
		return 0
	}
	h.move(q, h, p)
	return q
}

// reallocInPlace resizes the block at p without leaving the node's
// neighbourhood. It returns 0 and no error when that is not possible.
func (h *Heap) reallocInPlace(p Ptr, size int) (Ptr, error) {
	need := nodeSize(size)
	if need == 0 {
		return 0, nil
	}
	h.FreeDelayList()

	h.mu.Lock()
	defer h.mu.Unlock()
	r, off, err := h.lookup(p)
	if err != nil {
		h.log.WithField("addr", uint64(p)).Warn("realloc of invalid pointer")
		return 0, h.invalid(p)
	}

	n := r.size(off)
	if need <= n {
		r.shrink(off, need)
		h.resize(p, p, size)
		return p, nil
	}

	next := off + n
	if !r.allocated(next) && n+r.size(next) >= need {
		r.removeFree(next)
		r.setSize(off, n+r.size(next))
		r.fixNext(off)
		r.shrink(off, need)
		h.resize(p, p, size)
		return p, nil
	}

	prev := off - r.prevSize(off)
	if r.allocated(prev) {
		return 0, nil
	}
	total := r.size(prev) + n
	if !r.allocated(next) {
		total += r.size(next)
	}
	if total < need {
		return 0, nil
	}
	r.removeFree(prev)
	if !r.allocated(next) {
		r.removeFree(next)
	}
	copy(r.mem[prev+hdrSize:], r.mem[off+hdrSize:off+n])
	r.setSize(prev, total)
	r.setPrev(prev, r.prevSize(prev), true)
	r.fixNext(prev)
	r.shrink(prev, need)
	q := r.addr(prev) + hdrSize
	h.resize(p, q, size)
	return q, nil
}

// move copies the payload of block p in heap from into block q of h and
// frees p.
func (h *Heap) move(q Ptr, from *Heap, p Ptr) {
	dst, src := h.Bytes(q), from.Bytes(p)
	copy(dst, src)
	from.Free(p)
}
