// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sched is the scheduler core: task control blocks, the
// priority ready queue, context switches, clock ticks and task stacks.
//
// Every task is a goroutine, but only one of them holds the CPU at a
// time. The running task hands the CPU over by waking the next task's
// goroutine and sleeping on its own wake channel; when no task is
// runnable the CPU goes idle and Run, called by the host, returns.
// Interrupts (Tick, Interrupt) are injected by the host while the CPU is
// idle, or by the running task itself through Busy.
//
// Scheduler state is guarded by the interrupt controller's critical
// section. Functions whose names end in Locked, and the primitives used
// by the semaphore layer (Block, Unblock, Reschedule, Boost,
// RestorePriority), expect the caller to be inside it.
package sched

import (
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/Samsung/TizenRT-sub134/config"
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/irq"
	"github.com/Samsung/TizenRT-sub134/logging"
	"github.com/Samsung/TizenRT-sub134/mm"
	"github.com/Samsung/TizenRT-sub134/wdog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// A Kernel is the scheduler of one CPU.
type Kernel struct {
	cfg   config.SchedConfig
	ctl   *irq.Controller
	timer *wdog.Timer
	kheap *mm.Set
	uheap *mm.Set
	log   *logrus.Entry

	// guarded by ctl
	ready    readyQueue
	delayed  queue
	tasks    map[int]*TCB
	nextPid  int
	pending  bool // a switch was held off by the sched lock
	ticks    uint64
	switches uint64
	halted   error

	current atomic.Pointer[TCB]
	idle    chan struct{}

	// Halt is called once when the kernel panics. Tests replace it to
	// observe the failure.
	Halt func(err error)
}

// New returns a kernel whose stacks come from kheap (kernel threads)
// and uheap (tasks and pthreads).
func New(cfg config.SchedConfig, ctl *irq.Controller, timer *wdog.Timer, kheap, uheap *mm.Set) *Kernel {
	k := &Kernel{
		cfg:     cfg,
		ctl:     ctl,
		timer:   timer,
		kheap:   kheap,
		uheap:   uheap,
		log:     logging.Module("sched"),
		tasks:   make(map[int]*TCB),
		nextPid: 1,
		idle:    make(chan struct{}, 1),
		Halt:    func(error) {},
	}
	k.ready.init()
	k.delayed.level = -1
	return k
}

func (k *Kernel) Controller() *irq.Controller { return k.ctl }
func (k *Kernel) Timer() *wdog.Timer         { return k.timer }
func (k *Kernel) Debug() bool                { return k.cfg.Debug }
func (k *Kernel) MaxInheritDepth() int       { return k.cfg.InheritDepth }
func (k *Kernel) MaxPriority() int           { return k.cfg.MaxPriority }

// Current returns the running task, or nil when the CPU is idle.
func (k *Kernel) Current() *TCB { return k.current.Load() }

// Lookup returns the task with the given pid, or nil.
func (k *Kernel) Lookup(pid int) *TCB {
	s := k.ctl.Disable()
	defer k.ctl.Restore(s)
	return k.tasks[pid]
}

// Ticks returns the number of clock ticks since boot.
func (k *Kernel) Ticks() uint64 {
	s := k.ctl.Disable()
	defer k.ctl.Restore(s)
	return k.ticks
}

// Switches returns the number of context switches.
func (k *Kernel) Switches() uint64 {
	s := k.ctl.Disable()
	defer k.ctl.Restore(s)
	return k.switches
}

// Halted returns the error the kernel panicked with, or nil.
func (k *Kernel) Halted() error {
	s := k.ctl.Disable()
	defer k.ctl.Restore(s)
	return k.halted
}

// Run gives the CPU to the highest-priority ready task and waits until
// the CPU goes idle. It is called by the host, never by a task.
func (k *Kernel) Run() error {
	if k.Current() != nil {
		panic("sched: Run called from task context")
	}
	s := k.ctl.Disable()
	if k.halted != nil {
		k.ctl.Restore(s)
		return k.halted
	}
	next := k.ready.first()
	if next == nil {
		k.ctl.Restore(s)
		return nil
	}
	k.dispatchLocked(next)
	k.ctl.Restore(s)

	<-k.idle
	return k.Halted()
}

// Interrupt runs isr in interrupt context.
func (k *Kernel) Interrupt(isr func()) {
	k.ctl.Dispatch(isr)
}

// Panic halts the kernel with err: the banner is logged, the halt hook
// runs and Run returns err. Called from a task, Panic does not return.
func (k *Kernel) Panic(err error) {
	s := k.ctl.Disable()
	if k.halted != nil {
		k.ctl.Restore(s)
		return
	}
	k.halted = err
	t := k.current.Load()
	k.ctl.Restore(s)

	k.log.WithError(err).Error("*** kernel panic ***")
	if t != nil {
		k.log.WithField("task", t.String()).Error("panic in task context")
	}
	k.Halt(err)

	if t == nil || k.ctl.InInterrupt() {
		return
	}
	// The CPU stops: nothing is dispatched again.
	s = k.ctl.Disable()
	k.current.Store(nil)
	k.ctl.Restore(s)
	k.idle <- struct{}{}
	runtime.Goexit()
}

// Tasks returns a snapshot of the task table ordered by pid.
func (k *Kernel) Tasks() []TaskInfo {
	s := k.ctl.Disable()
	var ts []*TCB
	for _, t := range k.tasks {
		ts = append(ts, t)
	}
	infos := make([]TaskInfo, 0, len(ts))
	for _, t := range ts {
		infos = append(infos, TaskInfo{
			Pid:       t.pid,
			Name:      t.name,
			Group:     t.group,
			Type:      t.typ,
			Priority:  t.prio,
			Base:      t.base,
			State:     t.state,
			Policy:    t.policy,
			StackSize: t.stackSize,
		})
	}
	k.ctl.Restore(s)

	for i := range infos {
		infos[i].StackUsed = k.stackUsed(ts[i])
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Pid < infos[j].Pid })
	return infos
}

// Prctl operations.
const (
	PR_SET_NAME = 15
	PR_GET_NAME = 16
)

// Prctl sets or gets the name of task pid; pid 0 is the caller.
func (k *Kernel) Prctl(op, pid int, name string) (string, error) {
	s := k.ctl.Disable()
	defer k.ctl.Restore(s)
	t := k.current.Load()
	if pid != 0 {
		t = k.tasks[pid]
	}
	if t == nil {
		return "", errno.ESRCH
	}
	switch op {
	case PR_SET_NAME:
		t.name = k.truncName(name)
		return t.name, nil
	case PR_GET_NAME:
		return t.name, nil
	}
	return "", errno.Check(k.cfg.Debug, "sched", errno.EINVAL, "prctl: unknown option %d", op)
}

func (k *Kernel) truncName(name string) string {
	if n := k.cfg.TaskNameSize; n > 0 && len(name) > n {
		return name[:n]
	}
	return name
}

// Blocked returns the number of tasks in state st.
func (k *Kernel) Blocked(st State) int {
	s := k.ctl.Disable()
	defer k.ctl.Restore(s)
	n := 0
	for _, t := range k.tasks {
		if t.state == st {
			n++
		}
	}
	return n
}

// Check verifies the scheduler's bookkeeping: every task is on exactly
// the list its state calls for, the bitmap matches the ready lists and
// the running task heads its list.
func (k *Kernel) Check() error {
	s := k.ctl.Disable()
	defer k.ctl.Restore(s)

	for i := range k.ready.lists {
		l := &k.ready.lists[i]
		bit := k.ready.bitmap[i>>6]&(1<<(i&63)) != 0
		if bit != (l.n > 0) {
			return errors.Errorf("ready bitmap bit %d is %v with %d tasks queued", i, bit, l.n)
		}
		n := 0
		for t := l.head; t != nil; t = t.next {
			if t.list != l || t.prio != i {
				return errors.Errorf("%v on ready list %d has priority %d", t, i, t.prio)
			}
			if n++; n > l.n {
				return errors.Errorf("ready list %d is longer than its count %d", i, l.n)
			}
		}
		if n != l.n {
			return errors.Errorf("ready list %d has %d tasks, count says %d", i, n, l.n)
		}
	}

	running := 0
	for _, t := range k.tasks {
		switch t.state {
		case Ready, Running:
			if !k.ready.contains(t) {
				return errors.Errorf("%v is %v but not on the ready queue", t, t.state)
			}
			if t.state == Running {
				running++
				if t != k.current.Load() {
					return errors.Errorf("%v is running but not current", t)
				}
			}
		case WaitSem, WaitJoin:
			if t.waitq == nil || !t.waitq.Contains(t) {
				return errors.Errorf("%v is %v but not on a wait queue", t, t.state)
			}
			if t.state == WaitSem && t.waitObj == nil {
				return errors.Errorf("%v is waiting on nothing", t)
			}
		case Delayed:
			if t.list != &k.delayed {
				return errors.Errorf("%v is delayed but not on the delayed list", t)
			}
		default:
			if t.list != nil {
				return errors.Errorf("%v is %v but still queued", t, t.state)
			}
		}
		if t.prio < t.base {
			return errors.Errorf("%v has priority %d below its base %d", t, t.prio, t.base)
		}
	}
	if running > 1 {
		return errors.Errorf("%d tasks running on one CPU", running)
	}
	return nil
}
