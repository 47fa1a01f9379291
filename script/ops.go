// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package script

import (
	"strings"

	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/mutex"
	"github.com/Samsung/TizenRT-sub134/sched"
	"github.com/Samsung/TizenRT-sub134/sem"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Host commands.

func cmdSem(c *call) error {
	count, err := c.int(2)
	if err != nil {
		return err
	}
	s, err := c.e.sys.NewSem(c.args[1], count)
	if err != nil {
		return err
	}
	if len(c.args) == 4 {
		switch c.args[3] {
		case "none":
			err = s.SetProtocol(sem.None)
		case "inherit":
			err = s.SetProtocol(sem.Inherit)
		default:
			return errors.Errorf("unknown protocol %q", c.args[3])
		}
		if err != nil {
			return err
		}
	}
	c.e.sems[c.args[1]] = s
	return nil
}

func cmdMutex(c *call) error {
	var attr mutex.Attr
	for _, a := range c.args[2:] {
		switch a {
		case "normal":
			attr.Type = mutex.Normal
		case "errorcheck":
			attr.Type = mutex.ErrorCheck
		case "recursive":
			attr.Type = mutex.Recursive
		case "robust":
			attr.Robust = true
		case "noinherit":
			attr.Protocol = sem.None
		default:
			return errors.Errorf("unknown mutex attribute %q", a)
		}
	}
	m, err := c.e.sys.NewMutex(c.args[1], attr)
	if err != nil {
		return err
	}
	c.e.mutexes[c.args[1]] = m
	c.e.sems[c.args[1]] = m.Sem()
	return nil
}

// entry returns the body of a script task.
func (c *call) entry() func() {
	name, line, ops := c.args[1], c.line, c.ops
	return func() { c.e.runOps(name, line, taskTab, ops) }
}

func (c *call) created(t *sched.TCB, err error) error {
	if err != nil {
		return err
	}
	c.e.tasks[c.args[1]] = t
	c.e.log.WithFields(logrus.Fields{"task": t.String(), "ops": len(c.ops)}).Debug("created")
	return nil
}

func cmdTask(c *call) error {
	prio, stack, err := c.prioStack()
	if err != nil {
		return err
	}
	return c.created(c.e.sys.TaskCreate(c.args[1], prio, stack, c.entry()))
}

func cmdKthread(c *call) error {
	prio, stack, err := c.prioStack()
	if err != nil {
		return err
	}
	return c.created(c.e.sys.KernelThread(c.args[1], prio, stack, c.entry()))
}

func cmdThread(c *call) error {
	prio, err := c.int(2)
	if err != nil {
		return err
	}
	parent, err := c.task(3)
	if err != nil {
		return err
	}
	return c.created(c.e.sys.PthreadCreate(parent, c.args[1], prio, c.entry()))
}

func (c *call) prioStack() (prio, stack int, err error) {
	if prio, err = c.int(2); err != nil {
		return
	}
	if len(c.args) > 3 {
		stack, err = c.int(3)
	}
	return
}

func cmdRun(c *call) error {
	c.e.run()
	return nil
}

// cmdTick delivers clock ticks one at a time, letting the tasks run
// after each.
func cmdTick(c *call) error {
	n, err := c.int(1)
	if err != nil {
		return err
	}
	for i := 0; i < n && !c.e.halted; i++ {
		c.e.sys.Tick(1)
		c.e.run()
	}
	return nil
}

func cmdIsr(c *call) error {
	line, ops := c.line, c.ops
	c.e.sys.Interrupt(func() { c.e.runOps("isr", line, isrTab, ops) })
	c.e.run()
	return nil
}

func cmdWdog(c *call) error {
	e, name := c.e, c.args[1]
	timer := e.sys.Timer
	wd := e.wdogs[name]
	if c.args[2] == "cancel" {
		if wd == nil {
			return errors.Errorf("no watchdog %q", name)
		}
		return timer.Cancel(wd)
	}
	delay, err := c.int(2)
	if err != nil {
		return err
	}
	if wd == nil {
		if wd = timer.Create(); wd == nil {
			return errno.ENOMEM
		}
		e.wdogs[name] = wd
	}
	line, ops := c.line, c.ops
	return timer.Start(wd, delay, func(any) { e.runOps(name, line, isrTab, ops) }, nil)
}

func cmdRemaining(c *call) error {
	wd := c.e.wdogs[c.args[1]]
	if wd == nil {
		return errors.Errorf("no watchdog %q", c.args[1])
	}
	if !c.e.sys.Timer.IsActive(wd) {
		c.printf("%s: inactive", c.args[1])
		return nil
	}
	c.printf("%s: %d ticks", c.args[1], c.e.sys.Timer.Remaining(wd))
	return nil
}

func cmdEcho(c *call) error {
	c.printf("%s", strings.Join(c.args[1:], " "))
	return nil
}

// cmdMalloc allocates from the user heaps, or from the kernel heaps if
// asked to.
func cmdMalloc(c *call) error {
	size, err := c.int(2)
	if err != nil {
		return err
	}
	set := c.e.sys.UHeap
	if len(c.args) > 3 {
		if c.args[3] != "kmm" {
			return errors.Errorf("unknown heap %q", c.args[3])
		}
		set = c.e.sys.KHeap
	}
	p := set.Malloc(size)
	if p == 0 {
		return errno.ENOMEM
	}
	c.e.vars[c.args[1]] = p
	return nil
}

func cmdFree(c *call) error {
	p, set, err := c.ptr(1)
	if err != nil {
		return err
	}
	delete(c.e.vars, c.args[1])
	return set.Free(p)
}

func cmdRealloc(c *call) error {
	p, set, err := c.ptr(1)
	if err != nil {
		return err
	}
	size, err := c.int(2)
	if err != nil {
		return err
	}
	q := set.Realloc(p, size)
	if q == 0 && size > 0 {
		return errno.ENOMEM
	}
	c.e.vars[c.args[1]] = q
	return nil
}

func cmdPs(c *call) error  { return c.e.sys.Ps(c.e.w) }
func cmdMem(c *call) error { return c.e.sys.Mem(c.e.w) }

func cmdDump(c *call) error {
	c.e.sys.Dump(c.e.w)
	return nil
}

func cmdValue(c *call) error {
	s, err := c.sem(1)
	if err != nil {
		return err
	}
	c.printf("%s = %d", c.args[1], s.Value())
	return nil
}

func cmdOwner(c *call) error {
	m, err := c.mutex(1)
	if err != nil {
		return err
	}
	switch t := m.Owner(); {
	case t != nil:
		c.printf("%s: owner %s", c.args[1], t.Name())
	case m.Locked():
		c.printf("%s: locked", c.args[1])
	default:
		c.printf("%s: unlocked", c.args[1])
	}
	return nil
}

// info returns the task table entry of the named task.
func (c *call) info(i int) (*sched.TaskInfo, error) {
	t, err := c.task(i)
	if err != nil {
		return nil, err
	}
	for _, ti := range c.e.sys.Kernel.Tasks() {
		if ti.Pid == t.Pid() {
			return &ti, nil
		}
	}
	return nil, nil
}

func cmdState(c *call) error {
	ti, err := c.info(1)
	if err != nil {
		return err
	}
	if ti == nil {
		c.printf("%s: gone", c.args[1])
		return nil
	}
	c.printf("%s: %v", c.args[1], ti.State)
	return nil
}

func cmdPrio(c *call) error {
	if len(c.args) > 2 {
		t, err := c.task(1)
		if err != nil {
			return err
		}
		prio, err := c.int(2)
		if err != nil {
			return err
		}
		return c.e.sys.Kernel.SetPriority(t.Pid(), prio)
	}
	ti, err := c.info(1)
	if err != nil {
		return err
	}
	if ti == nil {
		return errno.ESRCH
	}
	c.printf("%s: prio %d base %d", c.args[1], ti.Priority, ti.Base)
	return nil
}

func cmdKill(c *call) error {
	t, err := c.task(1)
	if err != nil {
		return err
	}
	return c.e.sys.Kernel.Kill(t.Pid())
}

func cmdCheck(c *call) error {
	if err := c.e.sys.Check(); err != nil {
		c.printf("check: %v", err)
		return nil
	}
	c.printf("check: ok")
	return nil
}

// Ops that run in task context. The semaphore ops also run in
// interrupt context, where only the non-blocking ones are listed.

func opWait(c *call) error {
	s, err := c.sem(1)
	if err != nil {
		return err
	}
	return s.Wait()
}

func opTryWait(c *call) error {
	s, err := c.sem(1)
	if err != nil {
		return err
	}
	return s.TryWait()
}

func opTimedWait(c *call) error {
	s, err := c.sem(1)
	if err != nil {
		return err
	}
	ticks, err := c.int(2)
	if err != nil {
		return err
	}
	return s.TimedWait(ticks)
}

func opPost(c *call) error {
	s, err := c.sem(1)
	if err != nil {
		return err
	}
	return s.Post()
}

func opLock(c *call) error {
	m, err := c.mutex(1)
	if err != nil {
		return err
	}
	return m.Lock()
}

func opTryLock(c *call) error {
	m, err := c.mutex(1)
	if err != nil {
		return err
	}
	return m.TryLock()
}

func opTimedLock(c *call) error {
	m, err := c.mutex(1)
	if err != nil {
		return err
	}
	ticks, err := c.int(2)
	if err != nil {
		return err
	}
	return m.TimedLock(ticks)
}

func opUnlock(c *call) error {
	m, err := c.mutex(1)
	if err != nil {
		return err
	}
	return m.Unlock()
}

func opConsistent(c *call) error {
	m, err := c.mutex(1)
	if err != nil {
		return err
	}
	return m.Consistent()
}

func opSleep(c *call) error {
	n, err := c.int(1)
	if err != nil {
		return err
	}
	return c.e.sys.Kernel.Sleep(n)
}

func opYield(c *call) error { return c.e.sys.Kernel.Yield() }

func opBusy(c *call) error {
	n, err := c.int(1)
	if err != nil {
		return err
	}
	return c.e.sys.Kernel.Busy(n)
}

func opStack(c *call) error {
	n, err := c.int(1)
	if err != nil {
		return err
	}
	return c.e.sys.Kernel.UseStack(n)
}

func opPrio(c *call) error {
	n, err := c.int(1)
	if err != nil {
		return err
	}
	return c.e.sys.Kernel.SetPriority(0, n)
}

func opSchedLock(c *call) error   { return c.e.sys.Kernel.Lock() }
func opSchedUnlock(c *call) error { return c.e.sys.Kernel.Unlock() }

func opJoin(c *call) error {
	t, err := c.task(1)
	if err != nil {
		return err
	}
	status, err := c.e.sys.Kernel.Join(t.Pid())
	if err != nil {
		return err
	}
	c.printf("join %s = %d", c.args[1], status)
	return nil
}

func opExit(c *call) error {
	n, err := c.int(1)
	if err != nil {
		return err
	}
	return c.e.sys.Kernel.Exit(n)
}
