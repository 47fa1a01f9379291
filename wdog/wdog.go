// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wdog implements watchdog timers: one-shot callbacks that run
// a number of ticks in the future.
//
// Active watchdogs are kept on a delta list. Each entry's lag is the
// number of ticks it expires after its predecessor, so a tick only
// looks at the head of the list:
//
//	delays 1, 1, 3, 4, 4, 9
//	lags   1, 0, 2, 1, 0, 5
//
// Watchdogs come from a preallocated pool, part of which is reserved for
// interrupt handlers, or from the kernel heap when the pool runs low.
package wdog

import (
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/irq"
	"github.com/Samsung/TizenRT-sub134/logging"
	"github.com/Samsung/TizenRT-sub134/mm"
	"github.com/sirupsen/logrus"
)

// Flags describe the state and origin of a watchdog.
type Flags uint8

const (
	Active  Flags = 1 << iota // on the active list
	Alloced                   // handed out by Create or Init
	Static                    // storage not from the heap
)

// Size is the heap footprint of a heap-allocated watchdog.
const Size = 32

// A Func is called when a watchdog expires. It runs in interrupt context.
type Func func(arg any)

type Wdog struct {
	next   *Wdog
	lag    int
	fn     Func
	arg    any
	flags  Flags
	pooled bool   // member of the preallocated pool
	block  mm.Ptr // heap storage backing a heap-allocated watchdog
}

func (wd *Wdog) Flags() Flags { return wd.flags }

// An Allocator is the heap watchdogs overflow into.
type Allocator interface {
	Malloc(size int) mm.Ptr
	Free(p mm.Ptr) error
}

// A Timer is the watchdog subsystem: the pool and the active list.
type Timer struct {
	lock    irq.Spinlock // guards everything below
	ctl     *irq.Controller
	heap    Allocator
	pool    []Wdog
	free    *Wdog
	nfree   int
	reserve int
	active  *Wdog
	log     *logrus.Entry

	// Debug promotes invalid arguments to assertion failures.
	Debug bool

	// OnHeadChange is called, outside the timer's lock, when the head of
	// the active list changes, with the ticks until the next expiry or
	// -1 when nothing is pending.
	OnHeadChange func(ticks int)
}

// New returns a timer with a pool of prealloc watchdogs, reserve of
// which are kept for interrupt handlers.
func New(ctl *irq.Controller, heap Allocator, prealloc, reserve int) *Timer {
	t := &Timer{
		ctl:     ctl,
		heap:    heap,
		pool:    make([]Wdog, prealloc),
		reserve: reserve,
		log:     logging.Module("wdog"),
	}
	for i := len(t.pool) - 1; i >= 0; i-- {
		wd := &t.pool[i]
		wd.pooled = true
		wd.flags = Static
		wd.next = t.free
		t.free = wd
		t.nfree++
	}
	return t
}

// Create returns an idle watchdog, or nil if none is available.
//
// Pool entries are used while more than the reserve remain, and always
// from interrupt context. Otherwise the watchdog is allocated from the
// heap, which interrupt handlers may not use.
func (t *Timer) Create() *Wdog {
	inIRQ := t.ctl.InInterrupt()
	t.lock.Acquire()
	if t.free != nil && (t.nfree > t.reserve || inIRQ) {
		wd := t.free
		t.free = wd.next
		t.nfree--
		wd.next = nil
		wd.flags = Alloced | Static
		t.lock.Release()
		return wd
	}
	t.lock.Release()

	if inIRQ {
		t.log.Warn("watchdog pool exhausted in interrupt context")
		return nil
	}
	p := t.heap.Malloc(Size)
	if p == 0 {
		t.log.Warn("no memory for watchdog")
		return nil
	}
	t.log.WithField("addr", uint64(p)).Debug("watchdog from heap")
	return &Wdog{flags: Alloced, block: p}
}

// Init prepares caller-owned storage for use as a watchdog.
func (t *Timer) Init(wd *Wdog) {
	*wd = Wdog{flags: Alloced | Static}
}

// Delete cancels wd if it is active and releases it: to the pool, to
// the heap, or back to its owner. It is safe in interrupt context; heap
// storage is then freed through the deferred path.
func (t *Timer) Delete(wd *Wdog) error {
	if wd == nil {
		return errno.Check(t.Debug, "wdog", errno.EINVAL, "delete of nil watchdog")
	}
	t.lock.Acquire()
	if wd.flags&Alloced == 0 {
		t.lock.Release()
		return errno.Check(t.Debug, "wdog", errno.EINVAL, "delete of unallocated watchdog")
	}
	head := false
	if wd.flags&Active != 0 {
		head = t.unlink(wd)
	}
	wd.fn, wd.arg = nil, nil
	var block mm.Ptr
	switch {
	case wd.pooled:
		wd.flags = Static
		wd.next = t.free
		t.free = wd
		t.nfree++
	case wd.flags&Static != 0:
		wd.flags = Static
	default:
		wd.flags = 0
		block, wd.block = wd.block, 0
	}
	t.lock.Release()

	if head {
		t.headChanged()
	}
	if block != 0 {
		return t.heap.Free(block)
	}
	return nil
}

// FreeCount returns the number of pool entries available.
func (t *Timer) FreeCount() int {
	t.lock.Acquire()
	defer t.lock.Release()
	return t.nfree
}
