// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mutex implements pthread mutexes on top of binary semaphores.
//
// A robust mutex survives the death of its owner: the next task to lock
// it gets EOWNERDEAD along with the lock and must call Consistent before
// unlocking, or the mutex becomes permanently unusable. A non-robust
// mutex whose owner dies stays locked.
package mutex

import (
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/logging"
	"github.com/Samsung/TizenRT-sub134/sched"
	"github.com/Samsung/TizenRT-sub134/sem"
	"github.com/sirupsen/logrus"
)

// A Type selects how a mutex treats relocking by its owner.
type Type int8

const (
	Normal     Type = iota // relocking deadlocks
	ErrorCheck             // relocking fails with EDEADLK
	Recursive              // relocking nests
)

func (t Type) String() string {
	switch t {
	case ErrorCheck:
		return "errorcheck"
	case Recursive:
		return "recursive"
	}
	return "normal"
}

// maxLocks bounds the nesting of a recursive mutex.
const maxLocks = 32767

type Attr struct {
	Type     Type
	Robust   bool
	Protocol sem.Protocol
}

type Mutex struct {
	k    *sched.Kernel
	name string
	attr Attr
	sem  *sem.Sem
	log  *logrus.Entry

	// guarded by the kernel's critical section
	owner          *sched.TCB
	nlocks         int
	inconsistent   bool // owner died; not yet made consistent
	notRecoverable bool
}

// New returns an unlocked mutex.
func New(k *sched.Kernel, name string, attr Attr) (*Mutex, error) {
	s, err := sem.New(k, name, 1)
	if err != nil {
		return nil, err
	}
	if err := s.SetProtocol(attr.Protocol); err != nil {
		return nil, err
	}
	return &Mutex{
		k:    k,
		name: name,
		attr: attr,
		sem:  s,
		log:  logging.Module("mutex").WithField("mutex", name),
	}, nil
}

func (m *Mutex) Name() string  { return m.name }
func (m *Mutex) Attr() Attr    { return m.attr }
func (m *Mutex) Sem() *sem.Sem { return m.sem }

func (m *Mutex) caller(op string) (*sched.TCB, error) {
	t := m.k.Current()
	if t == nil || m.k.Controller().InInterrupt() {
		return nil, errno.Check(m.k.Debug(), "mutex", errno.EPERM, "%s of %s outside task context", op, m.name)
	}
	return t, nil
}

// Lock acquires the mutex, blocking as long as necessary.
func (m *Mutex) Lock() error { return m.lock("lock", false, 0) }

// TimedLock is like Lock but gives up with ETIMEDOUT after ticks ticks.
func (m *Mutex) TimedLock(ticks int) error { return m.lock("timedlock", true, ticks) }

func (m *Mutex) lock(op string, timed bool, ticks int) error {
	t, err := m.caller(op)
	if err != nil {
		return err
	}
	if done, err := m.relock(t); done {
		return err
	}
	for {
		if timed {
			err = m.sem.TimedWait(ticks)
		} else {
			err = m.sem.Wait()
		}
		// Mutex waits are not interrupted by signals.
		if err != errno.EINTR {
			break
		}
	}
	if err != nil {
		return err
	}
	return m.acquired(t)
}

// TryLock acquires the mutex if it is free and fails with EBUSY
// otherwise.
func (m *Mutex) TryLock() error {
	t, err := m.caller("trylock")
	if err != nil {
		return err
	}
	if done, err := m.relock(t); done {
		return err
	}
	if err := m.sem.TryWait(); err != nil {
		if err == errno.EAGAIN {
			return errno.EBUSY
		}
		return err
	}
	return m.acquired(t)
}

// relock handles a lock attempt by the current owner and by anyone once
// the mutex is unrecoverable. It reports whether the attempt is
// finished.
func (m *Mutex) relock(t *sched.TCB) (bool, error) {
	ctl := m.k.Controller()
	st := ctl.Disable()
	defer ctl.Restore(st)
	if m.notRecoverable {
		return true, errno.ENOTRECOVERABLE
	}
	if m.owner != t {
		return false, nil
	}
	switch {
	case m.attr.Type == Recursive:
		if m.nlocks >= maxLocks {
			return true, errno.EAGAIN
		}
		m.nlocks++
		return true, nil
	case m.attr.Type == ErrorCheck || m.attr.Robust:
		return true, errno.EDEADLK
	}
	// A normal mutex deadlocks on itself.
	m.log.WithField("task", t.String()).Warn("relock of normal mutex")
	return false, nil
}

// acquired records t as owner once it holds the semaphore.
func (m *Mutex) acquired(t *sched.TCB) error {
	ctl := m.k.Controller()
	st := ctl.Disable()
	if m.notRecoverable {
		// Became unrecoverable while we waited: pass the wakeup on.
		ctl.Restore(st)
		m.sem.Post()
		return errno.ENOTRECOVERABLE
	}
	m.owner = t
	m.nlocks = 1
	t.AddHeld(m)
	dead := m.inconsistent
	ctl.Restore(st)
	if dead {
		m.log.WithField("task", t.String()).Info("acquired mutex of dead owner")
		return errno.EOWNERDEAD
	}
	return nil
}

// Unlock releases the mutex. Only the owner may unlock it. Unlocking a
// mutex recovered from a dead owner without calling Consistent makes it
// unrecoverable.
func (m *Mutex) Unlock() error {
	t, err := m.caller("unlock")
	if err != nil {
		return err
	}
	ctl := m.k.Controller()
	st := ctl.Disable()
	if m.owner != t {
		ctl.Restore(st)
		return errno.Check(m.k.Debug(), "mutex", errno.EPERM, "unlock of %s by %v, not its owner", m.name, t)
	}
	if m.nlocks > 1 {
		m.nlocks--
		ctl.Restore(st)
		return nil
	}
	if m.inconsistent {
		m.inconsistent = false
		m.notRecoverable = true
		m.log.Warn("unlocked inconsistent mutex; now unrecoverable")
	}
	m.owner = nil
	m.nlocks = 0
	t.RemoveHeld(m)
	ctl.Restore(st)
	return m.sem.Post()
}

// Consistent marks a robust mutex recovered from a dead owner as
// consistent again. The caller must own it.
func (m *Mutex) Consistent() error {
	t, err := m.caller("consistent")
	if err != nil {
		return err
	}
	ctl := m.k.Controller()
	st := ctl.Disable()
	defer ctl.Restore(st)
	if !m.attr.Robust || m.owner != t || !m.inconsistent {
		return errno.EINVAL
	}
	m.inconsistent = false
	return nil
}

// InheritedPriority is zero: the semaphore underneath does the lending.
func (m *Mutex) InheritedPriority() int { return 0 }

// HolderExited handles the death of the owner. A robust mutex is
// released and marked inconsistent; any other stays locked.
func (m *Mutex) HolderExited(t *sched.TCB) {
	ctl := m.k.Controller()
	st := ctl.Disable()
	if m.owner != t {
		ctl.Restore(st)
		return
	}
	if !m.attr.Robust {
		ctl.Restore(st)
		m.log.WithField("owner", t.String()).Warn("owner exited holding mutex")
		return
	}
	m.inconsistent = true
	m.owner = nil
	m.nlocks = 0
	t.RemoveHeld(m)
	ctl.Restore(st)
	m.log.WithField("owner", t.String()).Info("owner died; mutex inconsistent")
	m.sem.Post()
}

// Owner returns the owning task, or nil.
func (m *Mutex) Owner() *sched.TCB {
	ctl := m.k.Controller()
	st := ctl.Disable()
	defer ctl.Restore(st)
	return m.owner
}

// Locked reports whether the mutex is held.
func (m *Mutex) Locked() bool {
	return m.sem.Value() <= 0
}

// Destroy retires the mutex. It fails with EBUSY while it is locked.
func (m *Mutex) Destroy() error {
	if m.Locked() {
		return errno.EBUSY
	}
	return m.sem.Destroy()
}
