// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "math/bits"

// A queue is an intrusive doubly linked list of tasks. A task's list
// field names the one queue it is on.
type queue struct {
	head, tail *TCB
	n          int
	level      int // priority of a ready list, -1 otherwise
}

func (q *queue) pushBack(t *TCB) {
	if t.list != nil {
		panic("sched: " + t.String() + " is already queued")
	}
	t.list = q
	t.next, t.prev = nil, q.tail
	if q.tail == nil {
		q.head = t
	} else {
		q.tail.next = t
	}
	q.tail = t
	q.n++
}

func (q *queue) pushFront(t *TCB) {
	if t.list != nil {
		panic("sched: " + t.String() + " is already queued")
	}
	t.list = q
	t.prev, t.next = nil, q.head
	if q.head == nil {
		q.tail = t
	} else {
		q.head.prev = t
	}
	q.head = t
	q.n++
}

// insertBefore links t ahead of at, or at the tail when at is nil.
func (q *queue) insertBefore(t, at *TCB) {
	if at == nil {
		q.pushBack(t)
		return
	}
	if at == q.head {
		q.pushFront(t)
		return
	}
	if t.list != nil {
		panic("sched: " + t.String() + " is already queued")
	}
	t.list = q
	t.prev, t.next = at.prev, at
	at.prev.next = t
	at.prev = t
	q.n++
}

func (q *queue) remove(t *TCB) {
	if t.list != q {
		panic("sched: " + t.String() + " is not on this queue")
	}
	if t.prev == nil {
		q.head = t.next
	} else {
		t.prev.next = t.next
	}
	if t.next == nil {
		q.tail = t.prev
	} else {
		t.next.prev = t.prev
	}
	t.list, t.next, t.prev = nil, nil, nil
	q.n--
}

// The ready queue keeps one FIFO list per priority and a bitmap of the
// non-empty ones, so the highest ready task is found with a few
// leading-zero counts.
type readyQueue struct {
	lists  [256]queue
	bitmap [4]uint64
}

func (r *readyQueue) init() {
	for i := range r.lists {
		r.lists[i].level = i
	}
}

func (r *readyQueue) add(t *TCB) {
	r.lists[t.prio].pushBack(t)
	r.bitmap[t.prio>>6] |= 1 << (t.prio & 63)
}

func (r *readyQueue) addHead(t *TCB) {
	r.lists[t.prio].pushFront(t)
	r.bitmap[t.prio>>6] |= 1 << (t.prio & 63)
}

func (r *readyQueue) remove(t *TCB) {
	l := t.list
	l.remove(t)
	if l.n == 0 {
		r.bitmap[l.level>>6] &^= 1 << (l.level & 63)
	}
}

func (r *readyQueue) contains(t *TCB) bool {
	return t.list != nil && t.list.level >= 0 && t.list == &r.lists[t.list.level]
}

func (r *readyQueue) first() *TCB {
	for i := len(r.bitmap) - 1; i >= 0; i-- {
		if w := r.bitmap[i]; w != 0 {
			return r.lists[i*64+63-bits.LeadingZeros64(w)].head
		}
	}
	return nil
}

// peers reports whether another task shares t's ready list.
func (r *readyQueue) peers(t *TCB) bool {
	return r.contains(t) && t.list.n > 1
}

// A WaitQueue holds the tasks blocked on one object, highest priority
// first and FIFO among equals. Its zero value is empty and ready to use.
// All methods require interrupts disabled.
type WaitQueue struct {
	q queue
}

func (wq *WaitQueue) insert(t *TCB) {
	wq.q.level = -1
	at := wq.q.head
	for at != nil && at.prio >= t.prio {
		at = at.next
	}
	wq.q.insertBefore(t, at)
}

func (wq *WaitQueue) remove(t *TCB) { wq.q.remove(t) }

// First returns the highest-priority waiter, or nil.
func (wq *WaitQueue) First() *TCB { return wq.q.head }

// Len returns the number of waiters.
func (wq *WaitQueue) Len() int { return wq.q.n }

// Contains reports whether t is on wq.
func (wq *WaitQueue) Contains(t *TCB) bool { return t.list == &wq.q }

// Tasks returns the waiters in wake order.
func (wq *WaitQueue) Tasks() []*TCB {
	var ts []*TCB
	for t := wq.q.head; t != nil; t = t.next {
		ts = append(ts, t)
	}
	return ts
}
