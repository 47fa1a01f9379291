// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mm implements the kernel and user heaps: a region-based
// allocator with address-ordered free lists, coalescing on free, and a
// deferred free path for callers that may not take the heap lock.
//
// A heap manages one or more regions. Every region is a byte arena laid
// out as a sequence of nodes:
//
//	start guard | node | node | ... | end guard
//
// Each node begins with an 8-byte header holding its own size and the
// size of the node before it. The top bit of the second word marks the
// node allocated. Free nodes also carry the offsets of their neighbours
// on the region's free list. Node sizes are multiples of 16 and node
// headers sit 8 bytes below a 16-byte boundary, so every payload is
// 16-byte aligned.
package mm

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/logging"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// A Ptr is an address in the simulated address space. 0 is NULL.
type Ptr uint64

const (
	hdrSize  = 8          // node header
	minChunk = 16         // smallest node, also the size granule
	allocBit = 0x80000000 // in the preceding word: this node is allocated
	deferBit = 0x80000000 // in the size word: this node is on the deferred list
	maxAlloc = 1 << 30
)

// A Policy selects how a region's free list is searched.
type Policy int

const (
	FirstFit Policy = iota // lowest address that fits
	BestFit                // smallest node that fits
)

// ParsePolicy converts a configuration name ("first", "best") to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "first":
		return FirstFit, nil
	case "best":
		return BestFit, nil
	}
	return 0, errors.Errorf("unknown heap policy %q", s)
}

func (p Policy) String() string {
	if p == BestFit {
		return "best"
	}
	return "first"
}

type region struct {
	base  Ptr    // address of mem[0]
	mem   []byte // the arena
	first uint32 // offset of the start guard
	end   uint32 // offset of the end guard
	free  uint32 // first free node, 0 if none
}

func (r *region) size(off uint32) uint32 {
	return binary.LittleEndian.Uint32(r.mem[off:]) &^ deferBit
}
func (r *region) setSize(off, n uint32) { binary.LittleEndian.PutUint32(r.mem[off:], n) }
func (r *region) deferred(off uint32) bool {
	return binary.LittleEndian.Uint32(r.mem[off:])&deferBit != 0
}
func (r *region) setDeferred(off uint32) { r.setSize(off, r.size(off)|deferBit) }
func (r *region) prevSize(off uint32) uint32 {
	return binary.LittleEndian.Uint32(r.mem[off+4:]) &^ allocBit
}
func (r *region) allocated(off uint32) bool {
	return binary.LittleEndian.Uint32(r.mem[off+4:])&allocBit != 0
}
func (r *region) setPrev(off, n uint32, alloc bool) {
	if alloc {
		n |= allocBit
	}
	binary.LittleEndian.PutUint32(r.mem[off+4:], n)
}
func (r *region) nextFree(off uint32) uint32 { return binary.LittleEndian.Uint32(r.mem[off+8:]) }
func (r *region) setNextFree(off, n uint32) { binary.LittleEndian.PutUint32(r.mem[off+8:], n) }
func (r *region) prevFree(off uint32) uint32 { return binary.LittleEndian.Uint32(r.mem[off+12:]) }
func (r *region) setPrevFree(off, n uint32) { binary.LittleEndian.PutUint32(r.mem[off+12:], n) }
func (r *region) addr(off uint32) Ptr { return r.base + Ptr(off) }
func (r *region) node(p Ptr) uint32 { return uint32(p-r.base) - hdrSize }
func (r *region) payload(off uint32) []byte { return r.mem[off+hdrSize : off+r.size(off)] }
func (r *region) usable(off uint32) int { return int(r.size(off)) - hdrSize }
func (r *region) contains(p Ptr) bool { return p >= r.base && p < r.base+Ptr(len(r.mem)) }

func (r *region) overlaps(base Ptr, size int) bool {
	return base < r.base+Ptr(len(r.mem)) && r.base < base+Ptr(size)
}

// fixNext stores the size of the node at off in its successor's header.
func (r *region) fixNext(off uint32) {
	n := off + r.size(off)
	r.setPrev(n, r.size(off), r.allocated(n))
}

// insertFree links the free node at off into the address-ordered list.
func (r *region) insertFree(off uint32) {
	var prev uint32
	next := r.free
	for next != 0 && next < off {
		prev, next = next, r.nextFree(next)
	}
	r.setPrevFree(off, prev)
	r.setNextFree(off, next)
	if prev == 0 {
		r.free = off
	} else {
		r.setNextFree(prev, off)
	}
	if next != 0 {
		r.setPrevFree(next, off)
	}
}

func (r *region) removeFree(off uint32) {
	prev, next := r.prevFree(off), r.nextFree(off)
	if prev == 0 {
		r.free = next
	} else {
		r.setNextFree(prev, next)
	}
	if next != 0 {
		r.setPrevFree(next, prev)
	}
}

// A Heap is one allocator instance: the kernel heap, a user heap, or the
// private heap of a loaded binary.
type Heap struct {
	name    string
	policy  Policy
	mu      sync.Mutex
	regions []*region
	log     *logrus.Entry

	// deferred frees: a LIFO of payload addresses whose links live in
	// the payloads themselves.
	delay    atomic.Uint64
	ndelayed atomic.Int32

	// instrumentation, nil when off
	records map[Ptr]record
	symbols *lru.Cache

	// Debug promotes invalid frees to assertion failures.
	Debug bool

	// InInterrupt reports whether the caller runs in interrupt context.
	// Frees from interrupt context take the deferred path.
	InInterrupt func() bool

	// Signal is called after a pointer is put on the deferred list, to
	// wake the worker that drains it.
	Signal func()

	// Owner returns the id recorded as the owner of new allocations
	// when the heap is instrumented.
	Owner func() int
}

// NewHeap returns an empty heap. Regions are added with AddRegion.
func NewHeap(name string, policy Policy) *Heap {
	return &Heap{
		name:   name,
		policy: policy,
		log:    logging.Module("mm").WithField("heap", name),
	}
}

func (h *Heap) Name() string { return h.name }

// AddRegion gives the heap the memory [base, base+size).
// Regions are added at boot, before the heap is shared.
func (h *Heap) AddRegion(base Ptr, size int) error {
	if base == 0 || size <= 0 || size > maxAlloc {
		return errors.Errorf("heap %s: bad region %#x size %d", h.name, uint64(base), size)
	}
	for _, r := range h.regions {
		if r.overlaps(base, size) {
			return errors.Errorf("heap %s: region %#x size %d overlaps region %#x", h.name, uint64(base), size, uint64(r.base))
		}
	}

	if size < 4*minChunk {
		return errors.Errorf("heap %s: region %#x size %d too small", h.name, uint64(base), size)
	}

	// Node headers sit at addresses = 8 mod 16.
	a := (base+hdrSize+minChunk-1)&^(minChunk-1) - hdrSize
	last := base + Ptr(size) - minChunk // highest address an end guard may start at
	e := (last-hdrSize)&^(minChunk-1) + hdrSize
	if e < a+2*minChunk {
		return errors.Errorf("heap %s: region %#x size %d too small", h.name, uint64(base), size)
	}
	first, end := uint32(a-base), uint32(e-base)

	r := &region{base: base, mem: make([]byte, size), first: first, end: end}
	free := first + minChunk
	r.setSize(first, minChunk)
	r.setPrev(first, 0, true)
	r.setSize(free, end-free)
	r.setPrev(free, minChunk, false)
	r.setSize(end, minChunk)
	r.setPrev(end, end-free, true)
	r.insertFree(free)
	h.regions = append(h.regions, r)

	h.log.WithFields(logrus.Fields{"base": uint64(base), "size": size, "free": end - free}).Debug("region added")
	return nil
}

// Contains reports whether p lies in one of the heap's regions.
func (h *Heap) Contains(p Ptr) bool {
	return h.region(p) != nil
}

func (h *Heap) region(p Ptr) *region {
	for _, r := range h.regions {
		if r.contains(p) {
			return r
		}
	}
	return nil
}

// lookup returns the allocated node whose payload starts at p. Nodes
// waiting on the deferred list are not allocated as far as callers are
// concerned. The caller holds h.mu.
func (h *Heap) lookup(p Ptr) (*region, uint32, error) {
	r, off, err := h.header(p)
	if err != nil || r.deferred(off) {
		return nil, 0, errno.EINVAL
	}
	return r, off, nil
}

// header validates the header of the allocated node whose payload
// starts at p.
func (h *Heap) header(p Ptr) (*region, uint32, error) {
	r := h.region(p)
	if r == nil || p < r.addr(r.first+minChunk)+hdrSize || p >= r.addr(r.end) || p%minChunk != 0 {
		return nil, 0, errno.EINVAL
	}
	off := r.node(p)
	if !r.allocated(off) {
		return nil, 0, errno.EINVAL
	}
	n := r.size(off)
	if n < minChunk || n%minChunk != 0 || off+n > r.end || r.prevSize(off+n) != n {
		return nil, 0, errno.EINVAL
	}
	return r, off, nil
}

// Bytes returns the payload of the allocated block at p, or nil.
func (h *Heap) Bytes(p Ptr) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, off, err := h.lookup(p)
	if err != nil {
		return nil
	}
	return r.payload(off)
}

// UsableSize returns the payload size of the block at p, or 0.
func (h *Heap) UsableSize(p Ptr) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, off, err := h.lookup(p)
	if err != nil {
		return 0
	}
	return r.usable(off)
}

// nodeSize returns the node size needed for a payload of n bytes,
// or 0 if n cannot be allocated.
func nodeSize(n int) uint32 {
	if n <= 0 || n > maxAlloc {
		return 0
	}
	return uint32(n+hdrSize+minChunk-1) &^ (minChunk - 1)
}
