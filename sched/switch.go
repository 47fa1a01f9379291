// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/irq"
	"github.com/sirupsen/logrus"
)

// dispatchLocked hands the CPU to next, or idles it when next is nil.
func (k *Kernel) dispatchLocked(next *TCB) {
	if next == nil {
		k.current.Store(nil)
		k.idle <- struct{}{}
		return
	}
	next.state = Running
	if next.policy == RR && next.timeslice <= 0 {
		next.timeslice = k.cfg.RRInterval
	}
	k.current.Store(next)
	k.switches++
	if k.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		k.log.WithFields(logrus.Fields{"task": next.String(), "prio": next.prio}).Debug("dispatch")
	}
	next.wake <- struct{}{}
}

// switchOut gives up the CPU on behalf of t, the running task, which
// has either left the ready queue or been preempted on it. It returns,
// with interrupts disabled again, once t is dispatched. A task killed
// in the meantime exits instead of returning.
func (k *Kernel) switchOut(t *TCB, s irq.State) irq.State {
	next := k.ready.first()
	if next == t {
		t.state = Running
		return s
	}
	if t.state == Running {
		t.state = Ready
	}
	k.dispatchLocked(next)
	k.ctl.Restore(s)

	<-t.wake

	s = k.ctl.Disable()
	if t.killed {
		k.ctl.Restore(s)
		k.exit(t, -1)
	}
	return s
}

// Reschedule switches away from the running task if a higher-priority
// task became ready. It does nothing in interrupt context or on the
// host; while the sched lock is held the switch is left pending.
// The caller has interrupts disabled.
func (k *Kernel) Reschedule(s irq.State) irq.State {
	t := k.current.Load()
	if t == nil || k.ctl.InInterrupt() {
		return s
	}
	if k.ready.first() == t {
		return s
	}
	if t.lockcount > 0 {
		k.pending = true
		return s
	}
	return k.switchOut(t, s)
}

// Block moves t, the running task, from the ready queue to wq and gives
// up the CPU until the wait ends. It returns the error the wait was
// ended with, if any. The caller has interrupts disabled.
func (k *Kernel) Block(s irq.State, t *TCB, wq *WaitQueue, obj WaitObject, st State) (irq.State, error) {
	if t != k.current.Load() {
		panic("sched: Block of " + t.String() + ", which is not running")
	}
	k.ready.remove(t)
	t.state = st
	t.waitq, t.waitObj, t.waitErr = wq, obj, 0
	wq.insert(t)

	s = k.switchOut(t, s)

	var err error
	if t.waitErr != 0 {
		err = t.waitErr
	}
	t.waitErr = 0
	return s, err
}

// Unblock ends t's wait with err (0 for a normal wakeup) and makes it
// ready. It does not switch; callers follow with Reschedule. The caller
// has interrupts disabled.
func (k *Kernel) Unblock(t *TCB, err errno.Errno) {
	switch t.state {
	case WaitSem, WaitJoin:
		t.waitq.remove(t)
	case Delayed:
		k.delayed.remove(t)
	default:
		panic("sched: Unblock of " + t.String() + " in state " + t.state.String())
	}
	t.waitq, t.waitObj = nil, nil
	t.waitErr = err
	t.state = Ready
	k.ready.add(t)
}

// taskContext returns the running task, failing with EPERM when called
// from an interrupt handler or the host.
func (k *Kernel) taskContext(op string) (*TCB, error) {
	t := k.current.Load()
	if t == nil || k.ctl.InInterrupt() {
		return nil, errno.Check(k.cfg.Debug, "sched", errno.EPERM, "%s outside task context", op)
	}
	return t, nil
}

// Yield moves the running task behind its equal-priority peers.
func (k *Kernel) Yield() error {
	t, err := k.taskContext("yield")
	if err != nil {
		return err
	}
	s := k.ctl.Disable()
	if k.ready.peers(t) {
		k.ready.remove(t)
		k.ready.add(t)
		s = k.Reschedule(s)
	}
	k.ctl.Restore(s)
	return nil
}

// Lock disables preemption of the running task. Calls nest.
func (k *Kernel) Lock() error {
	t, err := k.taskContext("sched_lock")
	if err != nil {
		return err
	}
	s := k.ctl.Disable()
	t.lockcount++
	k.ctl.Restore(s)
	return nil
}

// Unlock undoes one Lock. When the last one is undone, a switch held
// off in the meantime happens.
func (k *Kernel) Unlock() error {
	t, err := k.taskContext("sched_unlock")
	if err != nil {
		return err
	}
	s := k.ctl.Disable()
	if t.lockcount == 0 {
		k.ctl.Restore(s)
		return errno.Check(k.cfg.Debug, "sched", errno.EINVAL, "sched_unlock without sched_lock")
	}
	if t.lockcount--; t.lockcount == 0 {
		k.pending = false
		s = k.Reschedule(s)
	}
	k.ctl.Restore(s)
	return nil
}

// LockCount returns the sched lock depth of the running task.
func (k *Kernel) LockCount() int {
	t := k.current.Load()
	if t == nil {
		return 0
	}
	s := k.ctl.Disable()
	defer k.ctl.Restore(s)
	return t.lockcount
}
