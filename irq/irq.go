// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package irq

import "sync/atomic"

// A State is returned by Disable and must be handed back to Restore.
type State uint64

// A Controller is the interrupt controller of one simulated CPU.
//
// Disable/Restore bracket a critical section: while it is held no
// interrupt handler and no other task touches the structures it guards.
// Critical sections do not nest; code that already holds one calls the
// "interrupts disabled" variants of kernel functions instead.
type Controller struct {
	lock  Spinlock
	held  State // token of the current critical section
	gen   State
	nest  atomic.Int32
	count atomic.Uint64
}

// Disable enters the critical section.
func (c *Controller) Disable() State {
	c.lock.Acquire()
	c.gen++
	c.held = c.gen
	return c.held
}

// Restore leaves the critical section entered by the Disable call that
// returned s.
func (c *Controller) Restore(s State) {
	if s == 0 || c.held != s {
		panic("irq: unbalanced restore")
	}
	c.held = 0
	c.lock.Release()
}

// Dispatch runs isr in interrupt context. Interrupt handlers may nest.
func (c *Controller) Dispatch(isr func()) {
	c.count.Add(1)
	c.nest.Add(1)
	defer c.nest.Add(-1)
	isr()
}

// InInterrupt reports whether an interrupt handler is running.
func (c *Controller) InInterrupt() bool {
	return c.nest.Load() > 0
}

// Count returns the number of interrupts taken.
func (c *Controller) Count() uint64 {
	return c.count.Load()
}
