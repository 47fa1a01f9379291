// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"runtime"

	"github.com/Samsung/TizenRT-sub134/config"
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/sirupsen/logrus"
)

const maxPid = 32767

// Create makes a new task ready to run. Called by a running task, it
// may be preempted by the new one.
func (k *Kernel) Create(p TaskParams) (*TCB, error) {
	if p.Entry == nil {
		return nil, errno.Check(k.cfg.Debug, "sched", errno.EINVAL, "create %q: no entry point", p.Name)
	}
	if p.Priority < config.MINPRIO || p.Priority > k.cfg.MaxPriority {
		return nil, errno.Check(k.cfg.Debug, "sched", errno.EINVAL, "create %q: priority %d out of range", p.Name, p.Priority)
	}
	size := p.Stack
	if size == 0 {
		size = k.cfg.DefaultStack
	}
	if size < k.cfg.MinStack {
		size = k.cfg.MinStack
	}
	policy := p.Policy
	if policy == PolicyDefault {
		policy = FIFO
		if k.cfg.RRInterval > 0 {
			policy = RR
		}
	}
	t := &TCB{
		k:        k,
		name:     k.truncName(p.Name),
		typ:      p.Type,
		policy:   policy,
		prio:     p.Priority,
		base:     p.Priority,
		state:    Inactive,
		entry:    p.Entry,
		wake:     make(chan struct{}, 1),
		joinable: p.Type == Pthread,
	}

	s := k.ctl.Disable()
	if len(k.tasks) >= k.cfg.MaxTasks {
		k.ctl.Restore(s)
		k.log.WithField("name", p.Name).Warn("task table full")
		return nil, errno.EAGAIN
	}
	t.pid = k.allocPid()
	t.group = t.pid
	if p.Type == Pthread {
		parent := p.Parent
		if parent == nil {
			parent = k.current.Load()
		}
		if parent != nil {
			t.group = parent.group
		}
	}
	k.tasks[t.pid] = t
	k.ctl.Restore(s)

	if err := k.allocStack(t, size); err != nil {
		s := k.ctl.Disable()
		delete(k.tasks, t.pid)
		k.ctl.Restore(s)
		return nil, err
	}

	k.log.WithFields(logrus.Fields{
		"task":  t.String(),
		"type":  t.typ,
		"prio":  t.prio,
		"stack": size,
	}).Debug("create")

	s = k.ctl.Disable()
	t.state = Ready
	k.ready.add(t)
	go k.start(t)
	s = k.Reschedule(s)
	k.ctl.Restore(s)
	return t, nil
}

func (k *Kernel) allocPid() int {
	for {
		pid := k.nextPid
		if k.nextPid++; k.nextPid > maxPid {
			k.nextPid = 1
		}
		if k.tasks[pid] == nil {
			return pid
		}
	}
}

// start is the body of a task's goroutine.
func (k *Kernel) start(t *TCB) {
	<-t.wake
	s := k.ctl.Disable()
	killed := t.killed
	k.ctl.Restore(s)
	if killed {
		k.exit(t, -1)
	}
	t.entry()
	k.exit(t, 0)
}

// Exit terminates the running task with the given status.
func (k *Kernel) Exit(status int) error {
	t, err := k.taskContext("exit")
	if err != nil {
		return err
	}
	k.exit(t, status)
	panic("unreachable")
}

// exit tears down t, the running task, and switches away for good.
// Preemption is off throughout, so resources released on t's behalf
// only make their waiters ready.
func (k *Kernel) exit(t *TCB, status int) {
	s := k.ctl.Disable()
	t.lockcount++
	held := append([]Resource(nil), t.held...)
	k.ctl.Restore(s)

	for _, r := range held {
		r.HolderExited(t)
	}
	if t.waitdog != nil {
		k.timer.Delete(t.waitdog)
		t.waitdog = nil
	}
	if t.stack != 0 {
		// t is still running on its stack.
		t.stackHeap.Defer(t.stack)
	}

	s = k.ctl.Disable()
	t.stack = 0
	t.held = nil
	t.status = status
	k.ready.remove(t)
	t.state = Exited
	t.lockcount = 0
	for w := t.joinq.First(); w != nil; w = t.joinq.First() {
		k.Unblock(w, 0)
	}
	if !t.joinable {
		delete(k.tasks, t.pid)
	}
	k.log.WithFields(logrus.Fields{"task": t.String(), "status": status}).Debug("exit")
	k.dispatchLocked(k.ready.first())
	k.ctl.Restore(s)
	runtime.Goexit()
}

// Join waits for task pid to exit and returns its exit status. A joined
// task's slot is freed.
func (k *Kernel) Join(pid int) (int, error) {
	t, err := k.taskContext("join")
	if err != nil {
		return 0, err
	}
	s := k.ctl.Disable()
	target := k.tasks[pid]
	if target == nil {
		k.ctl.Restore(s)
		return 0, errno.ESRCH
	}
	if target == t {
		k.ctl.Restore(s)
		return 0, errno.EDEADLK
	}
	if target.state != Exited {
		if s, err = k.Block(s, t, &target.joinq, nil, WaitJoin); err != nil {
			k.ctl.Restore(s)
			return 0, err
		}
	}
	status := target.status
	if k.tasks[pid] == target {
		delete(k.tasks, pid)
	}
	k.ctl.Restore(s)
	return status, nil
}

// Detach makes task pid's slot free itself when it exits.
func (k *Kernel) Detach(pid int) error {
	s := k.ctl.Disable()
	defer k.ctl.Restore(s)
	t := k.tasks[pid]
	if t == nil {
		return errno.ESRCH
	}
	if t.state == Exited {
		delete(k.tasks, pid)
	}
	t.joinable = false
	return nil
}
