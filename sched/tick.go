// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/wdog"
)

// Tick delivers n timer interrupts.
func (k *Kernel) Tick(n int) {
	for i := 0; i < n; i++ {
		k.ctl.Dispatch(k.tick)
	}
}

// tick is the timer interrupt handler.
func (k *Kernel) tick() {
	s := k.ctl.Disable()
	k.ticks++
	if t := k.current.Load(); t != nil && t.policy == RR && k.cfg.RRInterval > 0 {
		if t.timeslice--; t.timeslice <= 0 {
			t.timeslice = k.cfg.RRInterval
			if k.ready.peers(t) {
				k.ready.remove(t)
				k.ready.add(t)
			}
		}
	}
	k.ctl.Restore(s)

	k.timer.Expire(1)
}

// Busy keeps the running task computing for n ticks. The timer
// interrupt fires on its behalf, and it is preempted when the tick
// readies a higher-priority task or ends its time slice.
func (k *Kernel) Busy(n int) error {
	if _, err := k.taskContext("busy"); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		k.ctl.Dispatch(k.tick)
		s := k.ctl.Disable()
		s = k.Reschedule(s)
		k.ctl.Restore(s)
	}
	return nil
}

// WaitDog returns t's watchdog for timed waits, creating it on first
// use. It returns nil if no watchdog is available. Only t calls it, with
// interrupts enabled.
func (k *Kernel) WaitDog(t *TCB) *wdog.Wdog {
	if t.waitdog == nil {
		t.waitdog = k.timer.Create()
	}
	return t.waitdog
}

// Sleep suspends the running task for the given number of ticks. It
// returns EINTR if the sleep was cut short.
func (k *Kernel) Sleep(ticks int) error {
	t, err := k.taskContext("sleep")
	if err != nil {
		return err
	}
	if ticks <= 0 {
		return k.Yield()
	}
	wd := k.WaitDog(t)
	if wd == nil {
		return errno.EAGAIN
	}
	s := k.ctl.Disable()
	k.ready.remove(t)
	t.state = Delayed
	k.delayed.pushBack(t)
	t.waitErr = 0
	k.timer.Start(wd, ticks, k.wakeup, t)
	s = k.switchOut(t, s)
	if t.waitErr != 0 {
		err = t.waitErr
	}
	t.waitErr = 0
	k.ctl.Restore(s)
	return err
}

// wakeup ends a sleep when its watchdog fires.
func (k *Kernel) wakeup(arg any) {
	t := arg.(*TCB)
	s := k.ctl.Disable()
	if t.state == Delayed {
		k.Unblock(t, 0)
	}
	k.ctl.Restore(s)
}
