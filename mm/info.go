// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mm

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Info is the mallinfo of a heap.
type Info struct {
	Arena    int // bytes managed, guards included
	Ordblks  int // free nodes
	Mxordblk int // largest free node
	Uordblks int // bytes in allocated nodes, guards excluded
	Fordblks int // bytes in free nodes
	Deferred int // blocks waiting on the deferred list
}

// A Node describes one node of a region, as seen by Walk.
type Node struct {
	Addr Ptr // payload address
	Size int // node size, header included
	Free bool

	// Filled in by instrumented heaps.
	Requested int
	Owner     int
	Caller    string
}

// Info returns allocation statistics.
func (h *Heap) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	var info Info
	for _, r := range h.regions {
		info.Arena += int(r.end + minChunk - r.first)
		for off := r.first + minChunk; off < r.end; off += r.size(off) {
			n := int(r.size(off))
			if r.allocated(off) {
				info.Uordblks += n
				continue
			}
			info.Ordblks++
			info.Fordblks += n
			if n > info.Mxordblk {
				info.Mxordblk = n
			}
		}
	}
	info.Deferred = int(h.ndelayed.Load())
	return info
}

// Walk calls fn for every node between the guards of every region,
// in address order, until fn returns false.
func (h *Heap) Walk(fn func(Node) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.regions {
		for off := r.first + minChunk; off < r.end; off += r.size(off) {
			n := Node{Addr: r.addr(off) + hdrSize, Size: int(r.size(off)), Free: !r.allocated(off)}
			if rec, ok := h.records[n.Addr]; ok && !n.Free {
				n.Requested, n.Owner, n.Caller = rec.size, rec.owner, rec.caller
			}
			if !fn(n) {
				return
			}
		}
	}
}

// Dump writes the node map of the heap to w.
func (h *Heap) Dump(w io.Writer) {
	fmt.Fprintf(w, "heap %s (%v fit)\n", h.name, h.policy)
	h.Walk(func(n Node) bool {
		state := "used"
		if n.Free {
			state = "free"
		}
		fmt.Fprintf(w, "\t%#x %6d %s", uint64(n.Addr), n.Size, state)
		if n.Caller != "" {
			fmt.Fprintf(w, " %v", record{n.Requested, n.Owner, n.Caller})
		}
		fmt.Fprintln(w)
		return true
	})
}

// Check verifies the structure of every region: the guards are in
// place, every node's size matches its successor's back link, no two
// neighbouring nodes are free, and the free list holds exactly the free
// nodes in address order.
func (h *Heap) Check() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.regions {
		if err := r.check(); err != nil {
			return errors.Wrapf(err, "heap %s region %#x", h.name, uint64(r.base))
		}
	}
	return nil
}

func (r *region) check() error {
	if r.size(r.first) != minChunk || !r.allocated(r.first) {
		return errors.New("start guard damaged")
	}
	if r.size(r.end) != minChunk || !r.allocated(r.end) {
		return errors.New("end guard damaged")
	}
	nfree := 0
	prevFree := false
	for off := r.first; off < r.end; {
		n := r.size(off)
		if n < minChunk || n%minChunk != 0 || off+n > r.end {
			return errors.Errorf("node %#x: bad size %d", uint64(r.addr(off)), n)
		}
		if r.prevSize(off+n) != n {
			return errors.Errorf("node %#x: size %d, successor records %d", uint64(r.addr(off)), n, r.prevSize(off+n))
		}
		free := !r.allocated(off)
		if free && prevFree {
			return errors.Errorf("node %#x: adjacent free nodes", uint64(r.addr(off)))
		}
		if free {
			nfree++
		}
		prevFree = free
		off += n
	}

	var prev uint32
	listed := 0
	for off := r.free; off != 0; off = r.nextFree(off) {
		if off <= prev {
			return errors.Errorf("free list out of order at %#x", uint64(r.addr(off)))
		}
		if off <= r.first || off >= r.end || r.allocated(off) {
			return errors.Errorf("free list holds non-free node %#x", uint64(r.addr(off)))
		}
		if r.prevFree(off) != prev {
			return errors.Errorf("free list back link broken at %#x", uint64(r.addr(off)))
		}
		prev = off
		listed++
	}
	if listed != nfree {
		return errors.Errorf("%d free nodes, %d on the free list", nfree, listed)
	}
	return nil
}
