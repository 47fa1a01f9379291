// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wdog

import (
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/pkg/errors"
)

// Start arms wd to call fn(arg) delay ticks from now. A running watchdog
// is cancelled first. Delays below one tick are rounded up to one.
// Watchdogs started for the same tick fire in the order they were
// started.
func (t *Timer) Start(wd *Wdog, delay int, fn Func, arg any) error {
	if wd == nil || fn == nil {
		return errno.Check(t.Debug, "wdog", errno.EINVAL, "start: nil watchdog or function")
	}
	if delay <= 0 {
		delay = 1
	}

	t.lock.Acquire()
	if wd.flags&Alloced == 0 {
		t.lock.Release()
		return errno.Check(t.Debug, "wdog", errno.EINVAL, "start of unallocated watchdog")
	}
	head := false
	if wd.flags&Active != 0 {
		head = t.unlink(wd)
	}
	wd.fn, wd.arg = fn, arg

	var prev *Wdog
	cur := t.active
	for cur != nil && cur.lag <= delay {
		delay -= cur.lag
		prev, cur = cur, cur.next
	}
	wd.lag = delay
	wd.next = cur
	if cur != nil {
		cur.lag -= delay
	}
	if prev == nil {
		t.active = wd
	} else {
		prev.next = wd
	}
	wd.flags |= Active
	head = head || prev == nil
	t.lock.Release()

	if head {
		t.headChanged()
	}
	return nil
}

// Cancel stops an active watchdog. Its lag is handed to its successor so
// that later expiries do not move.
func (t *Timer) Cancel(wd *Wdog) error {
	if wd == nil {
		return errno.Check(t.Debug, "wdog", errno.EINVAL, "cancel of nil watchdog")
	}
	t.lock.Acquire()
	if wd.flags&Active == 0 {
		t.lock.Release()
		return errno.EINVAL
	}
	head := t.unlink(wd)
	t.lock.Release()

	if head {
		t.headChanged()
	}
	return nil
}

// unlink removes wd from the active list and reports whether it was the
// head. The caller holds t.lock.
func (t *Timer) unlink(wd *Wdog) bool {
	var prev *Wdog
	for cur := t.active; cur != wd; cur = cur.next {
		if cur == nil {
			panic("wdog: active watchdog not on the active list")
		}
		prev = cur
	}
	if wd.next != nil {
		wd.next.lag += wd.lag
	}
	if prev == nil {
		t.active = wd.next
	} else {
		prev.next = wd.next
	}
	wd.next = nil
	wd.lag = 0
	wd.flags &^= Active
	return prev == nil
}

// Expire advances time by ticks and fires every watchdog that comes
// due, in expiry order. Callbacks run outside the timer's lock and may
// start or cancel watchdogs. Expire returns the number fired.
func (t *Timer) Expire(ticks int) int {
	if ticks <= 0 {
		return 0
	}
	t.lock.Acquire()
	if t.active == nil {
		t.lock.Release()
		return 0
	}
	t.active.lag -= ticks
	fired := 0
	for t.active != nil && t.active.lag <= 0 {
		wd := t.active
		t.active = wd.next
		if wd.next != nil {
			// Carry an overshoot forward.
			wd.next.lag += wd.lag
		}
		wd.next = nil
		wd.lag = 0
		wd.flags &^= Active
		fn, arg := wd.fn, wd.arg
		t.lock.Release()

		fn(arg)
		fired++

		t.lock.Acquire()
	}
	t.lock.Release()

	t.headChanged()
	return fired
}

func (t *Timer) headChanged() {
	if t.OnHeadChange != nil {
		t.OnHeadChange(t.Next())
	}
}

// Next returns the ticks until the first active watchdog expires, or -1.
func (t *Timer) Next() int {
	t.lock.Acquire()
	defer t.lock.Release()
	if t.active == nil {
		return -1
	}
	return t.active.lag
}

// Remaining returns the ticks until wd expires, or 0 if it is not active.
func (t *Timer) Remaining(wd *Wdog) int {
	t.lock.Acquire()
	defer t.lock.Release()
	if wd == nil || wd.flags&Active == 0 {
		return 0
	}
	sum := 0
	for cur := t.active; cur != nil; cur = cur.next {
		sum += cur.lag
		if cur == wd {
			return sum
		}
	}
	return 0
}

// IsActive reports whether wd is waiting to expire.
func (t *Timer) IsActive(wd *Wdog) bool {
	t.lock.Acquire()
	defer t.lock.Release()
	return wd != nil && wd.flags&Active != 0
}

// Lags returns the lag of every active watchdog, in list order.
func (t *Timer) Lags() []int {
	t.lock.Acquire()
	defer t.lock.Release()
	var lags []int
	for cur := t.active; cur != nil; cur = cur.next {
		lags = append(lags, cur.lag)
	}
	return lags
}

// Check verifies the active list and the pool: every listed watchdog is
// active and allocated, only the head may be overdue, and the pool's
// free list matches its count.
func (t *Timer) Check() error {
	t.lock.Acquire()
	defer t.lock.Release()
	n := 0
	for cur := t.active; cur != nil; cur = cur.next {
		if cur.flags&(Active|Alloced) != Active|Alloced {
			return errors.Errorf("active list entry %d has flags %#x", n, cur.flags)
		}
		if cur != t.active && cur.lag < 0 {
			return errors.Errorf("active list entry %d has negative lag %d", n, cur.lag)
		}
		if n++; n > 1<<20 {
			return errors.New("active list loops")
		}
	}
	free := 0
	for cur := t.free; cur != nil; cur = cur.next {
		if !cur.pooled || cur.flags != Static {
			return errors.Errorf("pool free list holds a watchdog with flags %#x", cur.flags)
		}
		if free++; free > len(t.pool) {
			return errors.New("pool free list loops")
		}
	}
	if free != t.nfree {
		return errors.Errorf("pool free list has %d entries, count says %d", free, t.nfree)
	}
	return nil
}
