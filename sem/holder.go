// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sem

import (
	"github.com/Samsung/TizenRT-sub134/sched"
	"github.com/sirupsen/logrus"
)

// Holder bookkeeping and priority inheritance. Everything here runs with
// interrupts disabled.

func (s *Sem) addHolder(t *sched.TCB) {
	if s.proto != Inherit {
		return
	}
	for i := range s.holders {
		if s.holders[i].t == t {
			s.holders[i].count++
			return
		}
	}
	s.holders = append(s.holders, holder{t, 1})
	t.AddHeld(s)
}

func (s *Sem) releaseHolder(t *sched.TCB) {
	for i := range s.holders {
		if s.holders[i].t != t {
			continue
		}
		if s.holders[i].count--; s.holders[i].count == 0 {
			s.holders = append(s.holders[:i], s.holders[i+1:]...)
			t.RemoveHeld(s)
		}
		return
	}
}

// boost lends prio to every holder. A holder that is itself blocked on
// another semaphore passes the boost on to that semaphore's holders.
func (s *Sem) boost(prio, depth int) {
	if s.proto != Inherit || depth > s.k.MaxInheritDepth() {
		return
	}
	for _, h := range s.holders {
		if h.t.Priority() >= prio {
			continue
		}
		if s.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			s.log.WithFields(logrus.Fields{"holder": h.t.String(), "prio": prio, "depth": depth}).Debug("boost")
		}
		s.k.Boost(h.t, prio)
		if next, ok := h.t.Waiting().(*Sem); ok && h.t.State() == sched.WaitSem {
			next.boost(prio, depth+1)
		}
	}
}

// restoreHolders drops the holders' priorities back to what they still
// inherit, and passes the change down blocked holders.
func (s *Sem) restoreHolders(depth int) {
	if s.proto != Inherit || depth > s.k.MaxInheritDepth() {
		return
	}
	for _, h := range s.holders {
		s.k.RestorePriority(h.t)
		if next, ok := h.t.Waiting().(*Sem); ok && h.t.State() == sched.WaitSem {
			next.restoreHolders(depth + 1)
		}
	}
}

// InheritedPriority returns the priority of the highest waiter, which
// every holder inherits.
func (s *Sem) InheritedPriority() int {
	if s.proto != Inherit {
		return 0
	}
	if w := s.waiters.First(); w != nil {
		return w.Priority()
	}
	return 0
}

// HolderExited drops an exiting task's holder entry. Its counts are not
// returned.
func (s *Sem) HolderExited(t *sched.TCB) {
	ctl := s.k.Controller()
	st := ctl.Disable()
	for i := range s.holders {
		if s.holders[i].t == t {
			s.holders = append(s.holders[:i], s.holders[i+1:]...)
			break
		}
	}
	t.RemoveHeld(s)
	ctl.Restore(st)
}
