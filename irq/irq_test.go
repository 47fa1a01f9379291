// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package irq

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestSpinlock(t *testing.T) {
	defer func(origYieldFn func()) { yieldFn = origYieldFn }(yieldFn)
	yieldFn = runtime.Gosched

	var (
		sl         Spinlock
		wg         sync.WaitGroup
		numWorkers = 10
	)

	sl.Acquire()

	if sl.TryToAcquire() != false {
		t.Error("expected TryToAcquire to return false when lock is held")
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(worker int) {
			sl.Acquire()
			sl.Release()
			wg.Done()
		}(i)
	}

	<-time.After(100 * time.Millisecond)
	sl.Release()
	wg.Wait()
}

func TestCriticalSection(t *testing.T) {
	var (
		c       Controller
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s := c.Disable()
				counter++
				c.Restore(s)
			}
		}()
	}
	wg.Wait()
	if counter != 8000 {
		t.Fatalf("counter = %d, want 8000", counter)
	}
}

func TestUnbalancedRestore(t *testing.T) {
	var c Controller
	s := c.Disable()
	c.Restore(s)

	defer func() {
		if e := recover(); e != "irq: unbalanced restore" {
			t.Fatalf("recover() = %v, want unbalanced restore panic", e)
		}
	}()
	c.Restore(s)
}

func TestDispatch(t *testing.T) {
	var c Controller
	if c.InInterrupt() {
		t.Fatal("InInterrupt() = true outside a handler")
	}
	var inside, nested bool
	c.Dispatch(func() {
		inside = c.InInterrupt()
		c.Dispatch(func() { nested = c.InInterrupt() })
	})
	if !inside || !nested {
		t.Errorf("InInterrupt() in handler = %v, nested = %v, want true, true", inside, nested)
	}
	if c.InInterrupt() {
		t.Error("InInterrupt() = true after handler returned")
	}
	if c.Count() != 2 {
		t.Errorf("Count() = %d, want 2", c.Count())
	}
}
