// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"fmt"

	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/mm"
	"github.com/Samsung/TizenRT-sub134/wdog"
)

// A State is the scheduling state of a task.
type State int8

const (
	Inactive State = iota // created, not yet runnable
	Ready                 // on the ready queue
	Running               // on the ready queue, holding the CPU
	WaitSem               // blocked on a semaphore
	WaitJoin              // blocked in Join
	Delayed               // sleeping
	Exited                // finished, waiting to be joined
)

var stateNames = []string{
	Inactive: "Inactive",
	Ready:    "Ready",
	Running:  "Running",
	WaitSem:  "WaitSem",
	WaitJoin: "WaitJoin",
	Delayed:  "Delayed",
	Exited:   "Exited",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// A Type says what created a task.
type Type int8

const (
	Task         Type = iota // task_create
	Pthread                  // pthread_create, shares its creator's group
	KernelThread             // kernel_thread, stack from the kernel heap
)

func (t Type) String() string {
	switch t {
	case Task:
		return "task"
	case Pthread:
		return "pthread"
	case KernelThread:
		return "kthread"
	}
	return fmt.Sprintf("Type(%d)", t)
}

// A Policy is a scheduling policy. Both are strict priority; round robin
// also rotates a task behind its equal-priority peers when its time
// slice runs out.
type Policy int8

const (
	PolicyDefault Policy = iota // RR if a time slice is configured, else FIFO
	FIFO
	RR
)

func (p Policy) String() string {
	switch p {
	case FIFO:
		return "FIFO"
	case RR:
		return "RR"
	}
	return "default"
}

// A Resource is something a task holds that matters to the scheduler:
// a semaphore count or a mutex.
type Resource interface {
	// InheritedPriority returns the priority the resource lends its
	// holders, or 0. It is called with interrupts disabled.
	InheritedPriority() int

	// HolderExited is called, with interrupts enabled, when a task exits
	// while holding the resource.
	HolderExited(t *TCB)
}

// A WaitObject is what a blocked task waits on.
type WaitObject interface {
	// CancelWait ends t's wait with err. It is called with interrupts
	// disabled and must do nothing unless t is still waiting on the
	// object.
	CancelWait(t *TCB, err errno.Errno)
}

// A TCB is a task control block.
type TCB struct {
	k      *Kernel
	pid    int
	name   string
	group  int
	typ    Type
	policy Policy
	prio   int // effective priority
	base   int // priority before inheritance
	state  State
	cpu    int
	entry  func()
	wake   chan struct{}

	// queue links: a task is on at most one list at a time.
	list       *queue
	next, prev *TCB

	waitq   *WaitQueue
	waitObj WaitObject
	waitErr errno.Errno
	waitdog *wdog.Wdog
	held    []Resource

	stack     mm.Ptr
	stackSize int
	stackHeap *mm.Set

	timeslice int
	lockcount int
	joinq     WaitQueue
	joinable  bool
	status    int
	killed    bool
}

func (t *TCB) Pid() int             { return t.pid }
func (t *TCB) Name() string         { return t.name }
func (t *TCB) Group() int           { return t.group }
func (t *TCB) Type() Type           { return t.typ }
func (t *TCB) Policy() Policy       { return t.policy }
func (t *TCB) CPU() int             { return t.cpu }
func (t *TCB) Stack() mm.Ptr        { return t.stack }
func (t *TCB) StackSize() int       { return t.stackSize }
func (t *TCB) Kernel() *Kernel      { return t.k }
func (t *TCB) Status() int          { return t.status }
func (t *TCB) String() string       { return fmt.Sprintf("%s(%d)", t.name, t.pid) }
func (t *TCB) WaitObject() WaitObject {
	s := t.k.ctl.Disable()
	defer t.k.ctl.Restore(s)
	return t.waitObj
}

// The following accessors read scheduling state and are meant for code
// that already has interrupts disabled.

func (t *TCB) Priority() int       { return t.prio }
func (t *TCB) BasePriority() int   { return t.base }
func (t *TCB) State() State        { return t.state }
func (t *TCB) Waiting() WaitObject { return t.waitObj }

// AddHeld records that t holds r. The caller has interrupts disabled.
func (t *TCB) AddHeld(r Resource) {
	for _, h := range t.held {
		if h == r {
			return
		}
	}
	t.held = append(t.held, r)
}

// RemoveHeld records that t no longer holds r. The caller has interrupts
// disabled.
func (t *TCB) RemoveHeld(r Resource) {
	for i, h := range t.held {
		if h == r {
			t.held = append(t.held[:i], t.held[i+1:]...)
			return
		}
	}
}

// Holds reports whether t holds r. The caller has interrupts disabled.
func (t *TCB) Holds(r Resource) bool {
	for _, h := range t.held {
		if h == r {
			return true
		}
	}
	return false
}

// TaskParams describe a task to create.
type TaskParams struct {
	Name     string
	Priority int
	Stack    int // bytes; 0 means the configured default
	Type     Type
	Policy   Policy
	Parent   *TCB // creator of a pthread
	Entry    func()
}

// TaskInfo is a snapshot of a task for the process table.
type TaskInfo struct {
	Pid       int
	Name      string
	Group     int
	Type      Type
	Priority  int
	Base      int
	State     State
	Policy    Policy
	StackSize int
	StackUsed int
}
