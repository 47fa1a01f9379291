// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mm

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Samsung/TizenRT-sub134/errno"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// A record describes one allocation of an instrumented heap.
type record struct {
	size   int    // bytes requested
	owner  int    // pid of the allocating task
	caller string // allocating function
}

// Instrument turns on allocation tracking: each allocation records the
// requested size, the owner and the calling function. Caller symbols are
// resolved once per program counter and kept in an LRU cache of
// cacheSize entries.
func (h *Heap) Instrument(cacheSize int) error {
	c, err := lru.New(cacheSize)
	if err != nil {
		return errors.Wrapf(err, "heap %s: symbol cache", h.name)
	}
	h.mu.Lock()
	h.symbols = c
	h.records = make(map[Ptr]record)
	h.mu.Unlock()
	return nil
}

func (h *Heap) instrumented() bool { return h.symbols != nil }

// Frames of allocator methods are skipped when looking for the caller.
const pkgPrefix = "github.com/Samsung/TizenRT-sub134/mm.(*"

// caller returns the innermost function on the stack that is not an
// allocator method.
func (h *Heap) caller() string {
	var pcs [16]uintptr
	n := runtime.Callers(2, pcs[:])
	for _, pc := range pcs[:n] {
		if sym := h.symbol(pc); !strings.HasPrefix(sym, pkgPrefix) {
			return sym
		}
	}
	return "?"
}

func (h *Heap) symbol(pc uintptr) string {
	if v, ok := h.symbols.Get(pc); ok {
		return v.(string)
	}
	sym := "?"
	if fn := runtime.FuncForPC(pc - 1); fn != nil {
		sym = fn.Name()
	}
	h.symbols.Add(pc, sym)
	return sym
}

// record notes a new allocation. The caller holds h.mu.
func (h *Heap) record(p Ptr, size int, caller string) {
	if h.records == nil {
		return
	}
	owner := 0
	if h.Owner != nil {
		owner = h.Owner()
	}
	h.records[p] = record{size: size, owner: owner, caller: caller}
}

func (h *Heap) unrecord(p Ptr) {
	if h.records != nil {
		delete(h.records, p)
	}
}

// resize moves the record of p to q after a reallocation.
func (h *Heap) resize(p, q Ptr, size int) {
	if h.records == nil {
		return
	}
	rec := h.records[p]
	delete(h.records, p)
	rec.size = size
	h.records[q] = rec
}

// Usage returns the bytes requested by each owner that holds memory in
// an instrumented heap.
func (h *Heap) Usage() map[int]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	u := make(map[int]int)
	for _, rec := range h.records {
		u[rec.owner] += rec.size
	}
	return u
}

func (h *Heap) invalid(p Ptr) error {
	return errno.Check(h.Debug, "mm", errno.EINVAL, "%s: %#x is not an allocated block", h.name, uint64(p))
}

// String is for debugging.
func (rec record) String() string {
	return fmt.Sprintf("%d bytes owner %d by %s", rec.size, rec.owner, rec.caller)
}
