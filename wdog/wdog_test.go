// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wdog

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/irq"
	"github.com/Samsung/TizenRT-sub134/mm"
)

func newTestTimer(t *testing.T, prealloc, reserve int) (*Timer, *irq.Controller, *mm.Heap) {
	t.Helper()
	ctl := new(irq.Controller)
	heap := mm.NewHeap("kheap", mm.FirstFit)
	if err := heap.AddRegion(0x1000, 1024); err != nil {
		t.Fatal(err)
	}
	heap.InInterrupt = ctl.InInterrupt
	return New(ctl, heap, prealloc, reserve), ctl, heap
}

func check(t *testing.T, tm *Timer) {
	t.Helper()
	if err := tm.Check(); err != nil {
		t.Fatal(err)
	}
}

func nop(any) {}

func TestDeltaList(t *testing.T) {
	tm, _, _ := newTestTimer(t, 8, 0)
	var wds []*Wdog
	for _, d := range []int{1, 1, 3, 4, 4, 9} {
		wd := tm.Create()
		if err := tm.Start(wd, d, nop, nil); err != nil {
			t.Fatal(err)
		}
		wds = append(wds, wd)
	}
	check(t, tm)
	if have, want := tm.Lags(), []int{1, 0, 2, 1, 0, 5}; !reflect.DeepEqual(have, want) {
		t.Errorf("Lags() = %v, want %v", have, want)
	}
	for i, d := range []int{1, 1, 3, 4, 4, 9} {
		if r := tm.Remaining(wds[i]); r != d {
			t.Errorf("Remaining(wd%d) = %d, want %d", i, r, d)
		}
	}

	// Out of order, and a zero delay becomes one tick.
	tm.Start(wds[5], 2, nop, nil)
	tm.Start(wds[0], 0, nop, nil)
	if have, want := tm.Lags(), []int{1, 0, 1, 1, 1, 0}; !reflect.DeepEqual(have, want) {
		t.Errorf("after restarts: Lags() = %v, want %v", have, want)
	}
	check(t, tm)
}

// The watchdog of a 100-tick delay fires on the 100th tick, once.
func TestExpireOnTime(t *testing.T) {
	tm, _, _ := newTestTimer(t, 8, 0)
	wd := tm.Create()
	fired := 0
	tm.Start(wd, 100, func(arg any) {
		if arg.(string) != "x" {
			t.Errorf("callback arg = %v", arg)
		}
		fired++
	}, "x")
	for i := 1; i < 100; i++ {
		if n := tm.Expire(1); n != 0 {
			t.Fatalf("tick %d fired %d", i, n)
		}
	}
	if fired != 0 || !tm.IsActive(wd) || tm.Remaining(wd) != 1 {
		t.Fatalf("after 99 ticks: fired %d, remaining %d", fired, tm.Remaining(wd))
	}
	if n := tm.Expire(1); n != 1 || fired != 1 {
		t.Fatalf("tick 100 fired %d (callback %d)", n, fired)
	}
	if tm.IsActive(wd) || wd.Flags()&Active != 0 {
		t.Errorf("watchdog still active after firing")
	}
	tm.Expire(500)
	if fired != 1 {
		t.Errorf("callback fired %d times", fired)
	}
	check(t, tm)
}

func TestExpireOrder(t *testing.T) {
	tm, _, _ := newTestTimer(t, 8, 0)
	var order []int
	record := func(arg any) { order = append(order, arg.(int)) }
	for i, d := range []int{5, 2, 5, 3, 6, 2} {
		tm.Start(tm.Create(), d, record, i)
	}
	// Two ticks at once, then an overshoot past 3 up to 5.
	if n := tm.Expire(2); n != 2 {
		t.Errorf("Expire(2) = %d, want 2", n)
	}
	if n := tm.Expire(3); n != 3 {
		t.Errorf("Expire(3) = %d, want 3", n)
	}
	if want := []int{1, 5, 3, 0, 2}; !reflect.DeepEqual(order, want) {
		t.Errorf("fired %v, want %v", order, want)
	}
	if have := tm.Lags(); !reflect.DeepEqual(have, []int{1}) {
		t.Errorf("Lags() = %v, want [1]", have)
	}
	if tm.Expire(1) != 1 || order[5] != 4 {
		t.Errorf("last watchdog did not fire: %v", order)
	}
	check(t, tm)
}

func TestCallbackRestarts(t *testing.T) {
	tm, _, _ := newTestTimer(t, 8, 0)
	wd := tm.Create()
	other := tm.Create()
	n := 0
	var periodic Func
	periodic = func(any) {
		n++
		tm.Start(wd, 3, periodic, nil)
		tm.Cancel(other)
	}
	tm.Start(wd, 3, periodic, nil)
	tm.Start(other, 4, func(any) { t.Error("cancelled watchdog fired") }, nil)
	for i := 0; i < 30; i++ {
		tm.Expire(1)
		check(t, tm)
	}
	if n != 10 {
		t.Errorf("periodic watchdog fired %d times, want 10", n)
	}
}

func TestCancel(t *testing.T) {
	tm, _, _ := newTestTimer(t, 8, 0)
	var wds []*Wdog
	for _, d := range []int{2, 5, 9} {
		wd := tm.Create()
		tm.Start(wd, d, nop, nil)
		wds = append(wds, wd)
	}
	if err := tm.Cancel(wds[1]); err != nil {
		t.Fatal(err)
	}
	if have := tm.Lags(); !reflect.DeepEqual(have, []int{2, 7}) {
		t.Errorf("Lags() = %v, want [2 7]", have)
	}
	if r := tm.Remaining(wds[2]); r != 9 {
		t.Errorf("Remaining = %d, want 9", r)
	}
	if err := tm.Cancel(wds[1]); err != errno.EINVAL {
		t.Errorf("cancel of inactive watchdog = %v, want EINVAL", err)
	}
	if err := tm.Cancel(nil); err != errno.EINVAL {
		t.Errorf("Cancel(nil) = %v, want EINVAL", err)
	}
	if err := tm.Start(nil, 1, nop, nil); err != errno.EINVAL {
		t.Errorf("Start(nil) = %v, want EINVAL", err)
	}
	if err := tm.Start(wds[1], 1, nil, nil); err != errno.EINVAL {
		t.Errorf("Start(nil func) = %v, want EINVAL", err)
	}
	check(t, tm)
}

func TestHeadChange(t *testing.T) {
	tm, _, _ := newTestTimer(t, 8, 0)
	var heads []int
	tm.OnHeadChange = func(ticks int) { heads = append(heads, ticks) }
	a, b := tm.Create(), tm.Create()
	tm.Start(a, 10, nop, nil) // head: 10
	tm.Start(b, 20, nop, nil) // not the head
	tm.Start(b, 4, nop, nil)  // head: 4
	tm.Cancel(b)              // head: 10
	tm.Expire(10)             // empty
	if want := []int{10, 4, 10, -1}; !reflect.DeepEqual(heads, want) {
		t.Errorf("head changes %v, want %v", heads, want)
	}
}

// For every reachable state, the running sum of lags is each watchdog's
// absolute expiry.
func TestLagSum(t *testing.T) {
	tm, _, _ := newTestTimer(t, 16, 0)
	rnd := rand.New(rand.NewSource(1))
	now := 0
	deadline := make(map[*Wdog]int)
	var wds []*Wdog
	for i := 0; i < 16; i++ {
		wds = append(wds, tm.Create())
	}
	for step := 0; step < 3000; step++ {
		wd := wds[rnd.Intn(len(wds))]
		switch rnd.Intn(4) {
		case 0, 1:
			d := rnd.Intn(20)
			tm.Start(wd, d, func(arg any) {
				w := arg.(*Wdog)
				if deadline[w] != now {
					t.Errorf("watchdog fired at %d, due at %d", now, deadline[w])
				}
				delete(deadline, w)
			}, wd)
			if d <= 0 {
				d = 1
			}
			deadline[wd] = now + d
		case 2:
			if tm.Cancel(wd) == nil {
				delete(deadline, wd)
			}
		case 3:
			now++
			tm.Expire(1)
		}
		check(t, tm)
		for _, w := range wds {
			if due, ok := deadline[w]; ok {
				if r := tm.Remaining(w); r != due-now {
					t.Fatalf("step %d: Remaining = %d, want %d", step, r, due-now)
				}
			} else if tm.IsActive(w) {
				t.Fatalf("step %d: watchdog active with no deadline", step)
			}
		}
	}
}

func TestCreatePool(t *testing.T) {
	tm, ctl, heap := newTestTimer(t, 4, 2)
	a, b := tm.Create(), tm.Create()
	if a.Flags() != Alloced|Static || b.Flags() != Alloced|Static {
		t.Fatalf("pool watchdogs have flags %#x, %#x", a.Flags(), b.Flags())
	}
	c := tm.Create()
	if c.Flags() != Alloced || c.block == 0 {
		t.Fatalf("reserve not respected: flags %#x", c.Flags())
	}
	if tm.FreeCount() != 2 || heap.Info().Uordblks != 48 {
		t.Errorf("free %d, heap %+v", tm.FreeCount(), heap.Info())
	}

	// Interrupt handlers dip into the reserve and never touch the heap.
	var irqWds []*Wdog
	ctl.Dispatch(func() {
		for i := 0; i < 3; i++ {
			irqWds = append(irqWds, tm.Create())
		}
	})
	if irqWds[0] == nil || irqWds[1] == nil || irqWds[2] != nil {
		t.Errorf("interrupt Create = %v", irqWds)
	}
	if tm.FreeCount() != 0 {
		t.Errorf("FreeCount() = %d, want 0", tm.FreeCount())
	}

	for _, wd := range []*Wdog{a, b, irqWds[0], irqWds[1]} {
		if err := tm.Delete(wd); err != nil {
			t.Fatal(err)
		}
	}
	if tm.FreeCount() != 4 {
		t.Errorf("FreeCount() = %d after deletes, want 4", tm.FreeCount())
	}
	if err := tm.Delete(c); err != nil {
		t.Fatal(err)
	}
	if heap.Info().Uordblks != 0 {
		t.Errorf("heap watchdog not freed: %+v", heap.Info())
	}
	if err := tm.Delete(c); err != errno.EINVAL {
		t.Errorf("second Delete = %v, want EINVAL", err)
	}
	if err := tm.Delete(nil); err != errno.EINVAL {
		t.Errorf("Delete(nil) = %v, want EINVAL", err)
	}
	check(t, tm)
}

func TestCreateNoMemory(t *testing.T) {
	ctl := new(irq.Controller)
	heap := mm.NewHeap("tiny", mm.FirstFit)
	if err := heap.AddRegion(0x1000, 64); err != nil {
		t.Fatal(err)
	}
	tm := New(ctl, heap, 1, 1)
	if wd := tm.Create(); wd != nil {
		t.Errorf("Create() = %+v, want nil", wd)
	}
	var wd *Wdog
	ctl.Dispatch(func() { wd = tm.Create() })
	if wd == nil {
		t.Errorf("interrupt Create() could not use the reserve")
	}
}

func TestDeleteActive(t *testing.T) {
	tm, ctl, heap := newTestTimer(t, 0, 0)
	wd := tm.Create()
	tm.Start(wd, 5, func(any) { t.Error("deleted watchdog fired") }, nil)

	// From an interrupt handler the heap block goes on the deferred list.
	var err error
	ctl.Dispatch(func() { err = tm.Delete(wd) })
	if err != nil {
		t.Fatal(err)
	}
	if tm.Next() != -1 {
		t.Errorf("deleted watchdog still listed: %v", tm.Lags())
	}
	if heap.Info().Deferred != 1 {
		t.Errorf("interrupt-context delete did not defer the free: %+v", heap.Info())
	}
	tm.Expire(10)
	heap.FreeDelayList()
	if heap.Info().Uordblks != 0 {
		t.Errorf("heap block leaked: %+v", heap.Info())
	}
}

func TestStaticWatchdog(t *testing.T) {
	tm, _, _ := newTestTimer(t, 2, 0)
	var wd Wdog
	if err := tm.Start(&wd, 3, nop, nil); err != errno.EINVAL {
		t.Errorf("Start before Init = %v, want EINVAL", err)
	}
	tm.Init(&wd)
	fired := false
	tm.Start(&wd, 3, func(any) { fired = true }, nil)
	tm.Expire(3)
	if !fired {
		t.Errorf("static watchdog did not fire")
	}
	if err := tm.Delete(&wd); err != nil {
		t.Fatal(err)
	}
	if tm.FreeCount() != 2 {
		t.Errorf("caller-owned watchdog joined the pool")
	}
	check(t, tm)
}

func TestDebugAssert(t *testing.T) {
	tm, _, _ := newTestTimer(t, 1, 0)
	tm.Debug = true
	defer func() {
		if a, ok := recover().(*errno.Assertion); !ok || a.Module != "wdog" {
			t.Errorf("recovered %v, want wdog assertion", a)
		}
	}()
	tm.Start(nil, 1, nop, nil)
	t.Fatal("Start(nil) did not panic")
}
