// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sem implements counting semaphores with priority inheritance.
//
// A negative count is the number of tasks waiting. Waiters are kept in
// priority order and Post wakes the highest one, handing it the count
// directly. With the Inherit protocol the semaphore tracks the tasks
// holding counts and lends them the priority of its highest waiter,
// following chains of blocked holders up to a configured depth.
package sem

import (
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/logging"
	"github.com/Samsung/TizenRT-sub134/sched"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MaxValue is the largest count a semaphore can hold.
const MaxValue = 32767

// A Protocol says whether holders inherit their waiters' priority.
type Protocol int8

const (
	Inherit Protocol = iota
	None
)

func (p Protocol) String() string {
	if p == None {
		return "none"
	}
	return "inherit"
}

type holder struct {
	t     *sched.TCB
	count int
}

type Sem struct {
	k       *sched.Kernel
	name    string
	count   int
	proto   Protocol
	waiters sched.WaitQueue
	holders []holder
	log     *logrus.Entry
}

// New returns a semaphore with the given initial count.
func New(k *sched.Kernel, name string, count int) (*Sem, error) {
	if count < 0 || count > MaxValue {
		return nil, errno.Check(k.Debug(), "sem", errno.EINVAL, "initial count %d out of range", count)
	}
	return &Sem{
		k:     k,
		name:  name,
		count: count,
		log:   logging.Module("sem").WithField("sem", name),
	}, nil
}

func (s *Sem) Name() string { return s.name }

// SetProtocol selects the priority protocol. It fails with EBUSY while
// tasks are waiting.
func (s *Sem) SetProtocol(p Protocol) error {
	ctl := s.k.Controller()
	st := ctl.Disable()
	defer ctl.Restore(st)
	if s.waiters.Len() > 0 {
		return errno.EBUSY
	}
	if p == None {
		for _, h := range s.holders {
			h.t.RemoveHeld(s)
		}
		s.holders = nil
	}
	s.proto = p
	return nil
}

// Protocol returns the priority protocol.
func (s *Sem) Protocol() Protocol { return s.proto }

// caller returns the running task, or fails with EPERM when there is
// none to block.
func (s *Sem) caller(op string) (*sched.TCB, error) {
	t := s.k.Current()
	if t == nil || s.k.Controller().InInterrupt() {
		return nil, errno.Check(s.k.Debug(), "sem", errno.EPERM, "%s on %s outside task context", op, s.name)
	}
	return t, nil
}

// Wait takes a count, blocking until one is available. It returns EINTR
// if the wait is cancelled.
func (s *Sem) Wait() error {
	t, err := s.caller("wait")
	if err != nil {
		return err
	}
	ctl := s.k.Controller()
	st := ctl.Disable()
	if s.count > 0 {
		s.count--
		s.addHolder(t)
		ctl.Restore(st)
		return nil
	}
	s.count--
	s.boost(t.Priority(), 1)
	st, err = s.k.Block(st, t, &s.waiters, s, sched.WaitSem)
	ctl.Restore(st)
	return err
}

// TryWait takes a count if one is available and fails with EAGAIN
// otherwise. It may be called from interrupt context.
func (s *Sem) TryWait() error {
	ctl := s.k.Controller()
	st := ctl.Disable()
	defer ctl.Restore(st)
	if s.count <= 0 {
		return errno.EAGAIN
	}
	s.count--
	if t := s.k.Current(); t != nil && !ctl.InInterrupt() {
		s.addHolder(t)
	}
	return nil
}

// TimedWait is like Wait but gives up with ETIMEDOUT after ticks clock
// ticks. With no count available and ticks <= 0 it fails at once.
func (s *Sem) TimedWait(ticks int) error {
	t, err := s.caller("timedwait")
	if err != nil {
		return err
	}
	wd := s.k.WaitDog(t)
	ctl := s.k.Controller()
	st := ctl.Disable()
	if s.count > 0 {
		s.count--
		s.addHolder(t)
		ctl.Restore(st)
		return nil
	}
	if ticks <= 0 {
		ctl.Restore(st)
		return errno.ETIMEDOUT
	}
	if wd == nil {
		ctl.Restore(st)
		return errno.ENOMEM
	}
	s.count--
	s.boost(t.Priority(), 1)
	s.k.Timer().Start(wd, ticks, s.timeout, t)
	st, err = s.k.Block(st, t, &s.waiters, s, sched.WaitSem)
	s.k.Timer().Cancel(wd)
	ctl.Restore(st)
	return err
}

func (s *Sem) timeout(arg any) {
	s.WaitIRQ(arg.(*sched.TCB), errno.ETIMEDOUT)
}

// Post releases a count. If tasks are waiting, the highest-priority one
// takes it and becomes ready. Post may be called from interrupt context.
func (s *Sem) Post() error {
	ctl := s.k.Controller()
	st := ctl.Disable()
	if s.count >= MaxValue {
		ctl.Restore(st)
		s.log.Warn("post overflow")
		return errno.EOVERFLOW
	}
	var poster *sched.TCB
	if !ctl.InInterrupt() {
		poster = s.k.Current()
	}
	if poster != nil {
		s.releaseHolder(poster)
	}
	s.count++
	if s.count <= 0 {
		w := s.waiters.First()
		s.k.Unblock(w, 0)
		s.addHolder(w)
	}
	s.restoreHolders(1)
	if poster != nil {
		s.k.RestorePriority(poster)
	}
	st = s.k.Reschedule(st)
	ctl.Restore(st)
	return nil
}

// WaitIRQ ends t's wait on s with err, as a timeout or a signal would.
// It does nothing unless t is waiting on s, so a timeout racing with a
// post loses cleanly.
func (s *Sem) WaitIRQ(t *sched.TCB, err errno.Errno) {
	ctl := s.k.Controller()
	st := ctl.Disable()
	s.CancelWait(t, err)
	st = s.k.Reschedule(st)
	ctl.Restore(st)
}

// CancelWait is WaitIRQ for callers that have interrupts disabled.
func (s *Sem) CancelWait(t *sched.TCB, err errno.Errno) {
	if t.State() != sched.WaitSem || t.Waiting() != s {
		return
	}
	s.count++
	s.k.Unblock(t, err)
	s.restoreHolders(1)
}

// Value returns the count; a negative value is minus the number of
// waiters.
func (s *Sem) Value() int {
	ctl := s.k.Controller()
	st := ctl.Disable()
	defer ctl.Restore(st)
	return s.count
}

// Waiters returns the blocked tasks in wake order.
func (s *Sem) Waiters() []*sched.TCB {
	ctl := s.k.Controller()
	st := ctl.Disable()
	defer ctl.Restore(st)
	return s.waiters.Tasks()
}

// HolderInfo describes a task holding counts of a semaphore.
type HolderInfo struct {
	Pid   int
	Count int
}

func (s *Sem) Holders() []HolderInfo {
	ctl := s.k.Controller()
	st := ctl.Disable()
	defer ctl.Restore(st)
	var hs []HolderInfo
	for _, h := range s.holders {
		hs = append(hs, HolderInfo{h.t.Pid(), h.count})
	}
	return hs
}

// Destroy retires s. It fails with EBUSY while tasks are waiting.
func (s *Sem) Destroy() error {
	ctl := s.k.Controller()
	st := ctl.Disable()
	defer ctl.Restore(st)
	if s.waiters.Len() > 0 {
		return errno.EBUSY
	}
	for _, h := range s.holders {
		h.t.RemoveHeld(s)
	}
	s.holders = nil
	return nil
}

// Check verifies that the count agrees with the waiter list.
func (s *Sem) Check() error {
	ctl := s.k.Controller()
	st := ctl.Disable()
	defer ctl.Restore(st)
	n := s.waiters.Len()
	switch {
	case s.count > MaxValue:
		return errors.Errorf("%s: count %d above maximum", s.name, s.count)
	case s.count < 0 && -s.count != n:
		return errors.Errorf("%s: count %d with %d waiters", s.name, s.count, n)
	case s.count >= 0 && n != 0:
		return errors.Errorf("%s: count %d with %d waiters", s.name, s.count, n)
	}
	prio := s.k.MaxPriority() + 1
	for _, t := range s.waiters.Tasks() {
		if t.State() != sched.WaitSem || t.Waiting() != s {
			return errors.Errorf("%s: waiter %v is %v", s.name, t, t.State())
		}
		if t.Priority() > prio {
			return errors.Errorf("%s: waiters out of priority order at %v", s.name, t)
		}
		prio = t.Priority()
	}
	for _, h := range s.holders {
		if h.count <= 0 {
			return errors.Errorf("%s: holder %v with count %d", s.name, h.t, h.count)
		}
	}
	return nil
}
