// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "github.com/Samsung/TizenRT-sub134/errno"

// Kill terminates task pid. A blocked victim has its wait cancelled
// with EINTR; every victim exits, with status -1, the next time it
// runs. Kernel threads cannot be killed.
func (k *Kernel) Kill(pid int) error {
	s := k.ctl.Disable()
	t := k.tasks[pid]
	if t == nil || t.state == Exited {
		k.ctl.Restore(s)
		return errno.ESRCH
	}
	if t.typ == KernelThread {
		k.ctl.Restore(s)
		return errno.EPERM
	}
	k.log.WithField("task", t.String()).Debug("kill")
	if t == k.current.Load() && !k.ctl.InInterrupt() {
		k.ctl.Restore(s)
		k.exit(t, -1)
	}
	t.killed = true
	switch t.state {
	case WaitSem:
		t.waitObj.CancelWait(t, errno.EINTR)
	case WaitJoin:
		k.Unblock(t, errno.EINTR)
	case Delayed:
		k.timer.Cancel(t.waitdog)
		k.Unblock(t, errno.EINTR)
	}
	s = k.Reschedule(s)
	k.ctl.Restore(s)
	return nil
}
