// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tinyara assembles a kernel from a configuration: heaps,
// watchdogs, the scheduler and the low-priority worker. A System is
// driven by the host, which creates tasks, runs the CPU until it idles
// and injects clock ticks and interrupts.
package tinyara

import (
	"sync/atomic"

	"github.com/Samsung/TizenRT-sub134/config"
	"github.com/Samsung/TizenRT-sub134/irq"
	"github.com/Samsung/TizenRT-sub134/logging"
	"github.com/Samsung/TizenRT-sub134/mm"
	"github.com/Samsung/TizenRT-sub134/mutex"
	"github.com/Samsung/TizenRT-sub134/sched"
	"github.com/Samsung/TizenRT-sub134/sem"
	"github.com/Samsung/TizenRT-sub134/wdog"
	"github.com/Samsung/TizenRT-sub134/work"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type System struct {
	Config *config.Config
	Ctl    *irq.Controller
	KHeap  *mm.Set // kernel heaps: kernel thread stacks, watchdogs
	UHeap  *mm.Set // user heaps: task and pthread stacks
	Timer  *wdog.Timer
	Kernel *sched.Kernel
	Work   *work.Queue

	log       *logrus.Entry
	nextTimer atomic.Int64
	sems      []*sem.Sem
	mutexes   []*mutex.Mutex
}

// Boot builds a system from cfg, or from the default configuration if
// cfg is nil, and starts the low-priority worker. The worker runs the
// first time the host calls Run.
func Boot(cfg *config.Config) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if cfg.Log.Level != "" {
		if err := logging.SetLevel(cfg.Log.Level); err != nil {
			return nil, err
		}
	}
	if cfg.Log.Dir != "" {
		if err := logging.SetFileRotationHooker(cfg.Log.Dir, cfg.Log.Rotate); err != nil {
			return nil, err
		}
	}

	sys := &System{
		Config: cfg,
		Ctl:    new(irq.Controller),
		log:    logging.Module("tinyara"),
	}
	sys.nextTimer.Store(-1)
	var err error
	if sys.KHeap, err = sys.heaps("kmm", cfg.KHeap); err != nil {
		return nil, err
	}
	if sys.UHeap, err = sys.heaps("umm", cfg.UHeap); err != nil {
		return nil, err
	}

	sys.Timer = wdog.New(sys.Ctl, sys.KHeap, cfg.Wdog.Prealloc, cfg.Wdog.IntReserve)
	sys.Timer.Debug = cfg.Sched.Debug
	sys.Timer.OnHeadChange = func(ticks int) { sys.nextTimer.Store(int64(ticks)) }

	sys.Kernel = sched.New(cfg.Sched, sys.Ctl, sys.Timer, sys.KHeap, sys.UHeap)

	sys.Work, err = work.Start(sys.Kernel, "lpwork", cfg.Work.Priority, cfg.Work.Stack, cfg.Work.Period)
	if err != nil {
		return nil, errors.Wrap(err, "starting worker")
	}
	sys.Work.AddDrain(sys.KHeap.FreeDelayList)
	sys.Work.AddDrain(sys.UHeap.FreeDelayList)
	sys.sems = append(sys.sems, sys.Work.Sem())

	sys.log.WithFields(logrus.Fields{
		"kheaps": len(cfg.KHeap),
		"uheaps": len(cfg.UHeap),
		"wdogs":  cfg.Wdog.Prealloc,
	}).Debug("booted")
	return sys, nil
}

func (sys *System) heaps(name string, cfgs []config.HeapConfig) (*mm.Set, error) {
	var heaps []*mm.Heap
	for _, hc := range cfgs {
		policy, err := mm.ParsePolicy(hc.Policy)
		if err != nil {
			return nil, errors.Wrapf(err, "heap %s", hc.Name)
		}
		h := mm.NewHeap(hc.Name, policy)
		for _, r := range hc.Regions {
			if err := h.AddRegion(mm.Ptr(r.Base), r.Size); err != nil {
				return nil, errors.Wrapf(err, "heap %s: region %#x", hc.Name, uint64(r.Base))
			}
		}
		if hc.Instrument {
			if err := h.Instrument(256); err != nil {
				return nil, errors.Wrapf(err, "heap %s", hc.Name)
			}
		}
		h.Debug = sys.Config.Sched.Debug
		h.InInterrupt = sys.Ctl.InInterrupt
		h.Signal = sys.signal
		h.Owner = sys.owner
		heaps = append(heaps, h)
	}
	return mm.NewSet(name, heaps...), nil
}

// signal wakes the worker to drain deferred frees.
func (sys *System) signal() {
	if sys.Work != nil {
		sys.Work.Signal()
	}
}

// owner returns the pid charged with an allocation.
func (sys *System) owner() int {
	if sys.Kernel == nil {
		return 0
	}
	if t := sys.Kernel.Current(); t != nil {
		return t.Pid()
	}
	return 0
}

// NextTimer returns the ticks until the next watchdog expiry as of the
// last change to the head of the timer list, or -1 if none is pending.
func (sys *System) NextTimer() int { return int(sys.nextTimer.Load()) }

// Run runs tasks until the CPU goes idle.
func (sys *System) Run() error { return sys.Kernel.Run() }

// Tick delivers n clock ticks.
func (sys *System) Tick(n int) { sys.Kernel.Tick(n) }

// Interrupt runs isr as an interrupt handler.
func (sys *System) Interrupt(isr func()) { sys.Kernel.Interrupt(isr) }

// TaskCreate creates a task with its own group.
func (sys *System) TaskCreate(name string, prio, stack int, entry func()) (*sched.TCB, error) {
	return sys.Kernel.Create(sched.TaskParams{Name: name, Priority: prio, Stack: stack, Type: sched.Task, Entry: entry})
}

// KernelThread creates a kernel thread, whose stack comes from the
// kernel heap.
func (sys *System) KernelThread(name string, prio, stack int, entry func()) (*sched.TCB, error) {
	return sys.Kernel.Create(sched.TaskParams{Name: name, Priority: prio, Stack: stack, Type: sched.KernelThread, Entry: entry})
}

// PthreadCreate creates a joinable thread in parent's group. A nil
// parent means the running task.
func (sys *System) PthreadCreate(parent *sched.TCB, name string, prio int, entry func()) (*sched.TCB, error) {
	return sys.Kernel.Create(sched.TaskParams{Name: name, Priority: prio, Type: sched.Pthread, Parent: parent, Entry: entry})
}

// NewSem creates a semaphore the system checks along with the kernel.
func (sys *System) NewSem(name string, count int) (*sem.Sem, error) {
	s, err := sem.New(sys.Kernel, name, count)
	if err != nil {
		return nil, err
	}
	sys.sems = append(sys.sems, s)
	return s, nil
}

// NewMutex creates a mutex the system checks along with the kernel.
func (sys *System) NewMutex(name string, attr mutex.Attr) (*mutex.Mutex, error) {
	m, err := mutex.New(sys.Kernel, name, attr)
	if err != nil {
		return nil, err
	}
	sys.mutexes = append(sys.mutexes, m)
	sys.sems = append(sys.sems, m.Sem())
	return m, nil
}

// KmmMallocAt allocates from kernel heap i only.
func (sys *System) KmmMallocAt(i, size int) mm.Ptr { return sys.KHeap.MallocAt(i, size) }

// KmmReallocAt resizes p within kernel heap i.
func (sys *System) KmmReallocAt(i int, p mm.Ptr, size int) mm.Ptr {
	return sys.KHeap.ReallocAt(i, p, size)
}

// Check verifies every invariant the system can see: the scheduler's
// queues, the timer list, every heap and every semaphore, and that the
// tasks blocked on semaphores are exactly the semaphores' waiters.
func (sys *System) Check() error {
	if err := sys.Kernel.Check(); err != nil {
		return errors.Wrap(err, "sched")
	}
	if err := sys.Timer.Check(); err != nil {
		return errors.Wrap(err, "wdog")
	}
	if err := sys.KHeap.Check(); err != nil {
		return errors.Wrap(err, "kmm")
	}
	if err := sys.UHeap.Check(); err != nil {
		return errors.Wrap(err, "umm")
	}
	waiters := 0
	for _, s := range sys.sems {
		if err := s.Check(); err != nil {
			return errors.Wrap(err, "sem")
		}
		waiters += len(s.Waiters())
	}
	if n := sys.Kernel.Blocked(sched.WaitSem); n != waiters {
		return errors.Errorf("%d tasks blocked on semaphores, semaphores have %d waiters", n, waiters)
	}
	return nil
}
