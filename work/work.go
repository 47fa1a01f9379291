// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package work runs the low-priority worker: a kernel thread that
// drains deferred frees and runs queued work items.
package work

import (
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/irq"
	"github.com/Samsung/TizenRT-sub134/logging"
	"github.com/Samsung/TizenRT-sub134/sched"
	"github.com/Samsung/TizenRT-sub134/sem"
	"github.com/sirupsen/logrus"
)

// A Work is a queued call. Its zero value is ready to use.
type Work struct {
	fn     func(arg any)
	arg    any
	due    uint64
	queued bool
}

// A Queue is a work queue served by one kernel thread.
type Queue struct {
	k      *sched.Kernel
	sem    *sem.Sem
	period int
	tcb    *sched.TCB
	log    *logrus.Entry

	lock   irq.Spinlock // guards items
	items  []*Work
	drains []func() int
}

// Start creates the worker thread. It wakes when signalled and at least
// every period ticks.
func Start(k *sched.Kernel, name string, prio, stack, period int) (*Queue, error) {
	s, err := sem.New(k, name, 0)
	if err != nil {
		return nil, err
	}
	s.SetProtocol(sem.None)
	q := &Queue{
		k:      k,
		sem:    s,
		period: period,
		log:    logging.Module("work").WithField("queue", name),
	}
	q.tcb, err = k.Create(sched.TaskParams{
		Name:     name,
		Priority: prio,
		Stack:    stack,
		Type:     sched.KernelThread,
		Entry:    q.loop,
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Pid returns the worker's pid.
func (q *Queue) Pid() int { return q.tcb.Pid() }

// Sem returns the semaphore the worker waits on.
func (q *Queue) Sem() *sem.Sem { return q.sem }

// AddDrain registers fn to be called on every pass of the worker. Drains
// report how much they did.
func (q *Queue) AddDrain(fn func() int) {
	q.lock.Acquire()
	q.drains = append(q.drains, fn)
	q.lock.Release()
}

// Signal wakes the worker. It may be called from interrupt context.
func (q *Queue) Signal() {
	if q.sem.Value() > 0 {
		return
	}
	q.sem.Post()
}

// Queue schedules fn(arg) to run on the worker after delay ticks. It
// fails with EBUSY if w is already queued.
func (q *Queue) Queue(w *Work, fn func(arg any), arg any, delay int) error {
	if fn == nil {
		return errno.Check(q.k.Debug(), "work", errno.EINVAL, "queue of nil function")
	}
	if delay < 0 {
		delay = 0
	}
	due := q.k.Ticks() + uint64(delay)
	q.lock.Acquire()
	if w.queued {
		q.lock.Release()
		return errno.EBUSY
	}
	w.fn, w.arg, w.due, w.queued = fn, arg, due, true
	q.items = append(q.items, w)
	q.lock.Release()
	q.Signal()
	return nil
}

// Cancel removes w from the queue. It fails with ENOENT if w is not
// queued.
func (q *Queue) Cancel(w *Work) error {
	q.lock.Acquire()
	defer q.lock.Release()
	for i, x := range q.items {
		if x == w {
			q.items = append(q.items[:i], q.items[i+1:]...)
			w.queued = false
			return nil
		}
	}
	return errno.ENOENT
}

// Pending returns the number of queued items.
func (q *Queue) Pending() int {
	q.lock.Acquire()
	defer q.lock.Release()
	return len(q.items)
}

func (q *Queue) loop() {
	for {
		q.lock.Acquire()
		drains := q.drains
		q.lock.Release()
		for _, drain := range drains {
			if n := drain(); n > 0 {
				q.log.WithField("n", n).Debug("drained")
			}
		}

		wait := q.period
		if next := q.runDue(); next >= 0 && (wait <= 0 || next < wait) {
			wait = next
		}
		if wait > 0 {
			q.sem.TimedWait(wait)
		} else {
			q.sem.Wait()
		}
	}
}

// runDue runs the items that are due and returns the ticks until the
// next one, or -1 if none is queued.
func (q *Queue) runDue() int {
	now := q.k.Ticks()
	q.lock.Acquire()
	var due []*Work
	next := -1
	keep := q.items[:0]
	for _, w := range q.items {
		if w.due <= now {
			w.queued = false
			due = append(due, w)
			continue
		}
		if d := int(w.due - now); next < 0 || d < next {
			next = d
		}
		keep = append(keep, w)
	}
	q.items = keep
	q.lock.Release()

	for _, w := range due {
		w.fn(w.arg)
	}
	return next
}
