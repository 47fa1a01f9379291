// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"github.com/Samsung/TizenRT-sub134/config"
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/sirupsen/logrus"
)

// setPriority changes t's effective priority and moves it within
// whatever queue it is on.
func (k *Kernel) setPriority(t *TCB, prio int) {
	if prio == t.prio {
		return
	}
	if k.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		k.log.WithFields(logrus.Fields{"task": t.String(), "from": t.prio, "to": prio}).Debug("priority")
	}
	switch t.state {
	case Ready, Running:
		k.ready.remove(t)
		raised := prio > t.prio
		t.prio = prio
		if t.state == Running && raised {
			k.ready.addHead(t)
		} else {
			k.ready.add(t)
		}
	case WaitSem, WaitJoin:
		t.waitq.remove(t)
		t.prio = prio
		t.waitq.insert(t)
	default:
		t.prio = prio
	}
}

// Boost raises t's effective priority to prio if that is higher. The
// caller has interrupts disabled.
func (k *Kernel) Boost(t *TCB, prio int) {
	if prio > t.prio {
		k.setPriority(t, prio)
	}
}

// RestorePriority recomputes t's effective priority from its base
// priority and what its held resources lend it. The caller has
// interrupts disabled.
func (k *Kernel) RestorePriority(t *TCB) {
	prio := t.base
	for _, r := range t.held {
		if p := r.InheritedPriority(); p > prio {
			prio = p
		}
	}
	k.setPriority(t, prio)
}

// SetPriority sets the base priority of task pid (0 for the caller).
// Inherited boosts stay in effect until released.
func (k *Kernel) SetPriority(pid, prio int) error {
	if prio < config.MINPRIO || prio > k.cfg.MaxPriority {
		return errno.Check(k.cfg.Debug, "sched", errno.EINVAL, "priority %d out of range", prio)
	}
	s := k.ctl.Disable()
	t := k.current.Load()
	if pid != 0 {
		t = k.tasks[pid]
	}
	if t == nil || t.state == Exited {
		k.ctl.Restore(s)
		return errno.ESRCH
	}
	t.base = prio
	k.RestorePriority(t)
	s = k.Reschedule(s)
	k.ctl.Restore(s)
	return nil
}

// GetPriority returns the effective priority of task pid (0 for the
// caller).
func (k *Kernel) GetPriority(pid int) (int, error) {
	s := k.ctl.Disable()
	defer k.ctl.Restore(s)
	t := k.current.Load()
	if pid != 0 {
		t = k.tasks[pid]
	}
	if t == nil {
		return 0, errno.ESRCH
	}
	return t.prio, nil
}
