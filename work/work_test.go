// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package work

import (
	"reflect"
	"testing"

	"github.com/Samsung/TizenRT-sub134/config"
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/irq"
	"github.com/Samsung/TizenRT-sub134/mm"
	"github.com/Samsung/TizenRT-sub134/sched"
	"github.com/Samsung/TizenRT-sub134/wdog"
)

func newKernel(t *testing.T) (*sched.Kernel, *mm.Set) {
	t.Helper()
	ctl := new(irq.Controller)
	kh := mm.NewHeap("kheap", mm.FirstFit)
	uh := mm.NewHeap("uheap", mm.FirstFit)
	if err := kh.AddRegion(0x10000000, 16<<10); err != nil {
		t.Fatal(err)
	}
	if err := uh.AddRegion(0x20000000, 16<<10); err != nil {
		t.Fatal(err)
	}
	kh.InInterrupt = ctl.InInterrupt
	ks, us := mm.NewSet("kmm", kh), mm.NewSet("umm", uh)
	return sched.New(config.Default().Sched, ctl, wdog.New(ctl, ks, 8, 2), ks, us), ks
}

func run(t *testing.T, k *sched.Kernel) {
	t.Helper()
	if err := k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := k.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestQueue(t *testing.T) {
	k, _ := newKernel(t)
	q, err := Start(k, "lpwork", 50, 1024, 50)
	if err != nil {
		t.Fatal(err)
	}
	var ran []int
	fn := func(arg any) {
		if k.Current().Pid() != q.Pid() {
			t.Errorf("work ran on %v, not the worker", k.Current())
		}
		ran = append(ran, arg.(int))
	}
	var w1, w2, w3 Work
	if err := q.Queue(&w1, fn, 1, 0); err != nil {
		t.Fatal(err)
	}
	if err := q.Queue(&w1, fn, 1, 0); err != errno.EBUSY {
		t.Errorf("second Queue = %v, want EBUSY", err)
	}
	q.Queue(&w2, fn, 2, 10)
	q.Queue(&w3, fn, 3, 20)
	if err := q.Cancel(&w3); err != nil {
		t.Errorf("Cancel: %v", err)
	}
	if err := q.Cancel(&w3); err != errno.ENOENT {
		t.Errorf("second Cancel = %v, want ENOENT", err)
	}

	run(t, k)
	if want := []int{1}; !reflect.DeepEqual(ran, want) {
		t.Fatalf("ran %v, want %v", ran, want)
	}
	k.Tick(9)
	run(t, k)
	if len(ran) != 1 {
		t.Fatalf("ran %v before item was due", ran)
	}
	k.Tick(1)
	run(t, k)
	if want := []int{1, 2}; !reflect.DeepEqual(ran, want) {
		t.Errorf("ran %v, want %v", ran, want)
	}
	if n := q.Pending(); n != 0 {
		t.Errorf("Pending() = %d", n)
	}
}

func TestDrainDeferredFree(t *testing.T) {
	k, heap := newKernel(t)
	q, err := Start(k, "lpwork", 50, 1024, 0)
	if err != nil {
		t.Fatal(err)
	}
	heap.Heap(0).Signal = q.Signal
	q.AddDrain(heap.FreeDelayList)
	run(t, k)

	p := heap.Malloc(64)
	used := heap.Info()[0].Uordblks
	k.Interrupt(func() {
		if err := heap.Free(p); err != nil {
			t.Errorf("Free in interrupt: %v", err)
		}
	})
	if info := heap.Info()[0]; info.Deferred != 1 {
		t.Fatalf("after interrupt Free: %+v", info)
	}
	// The worker was waiting; the signal woke it.
	if v := q.Sem().Value(); v != 0 {
		t.Errorf("worker semaphore = %d, want 0", v)
	}
	run(t, k)
	info := heap.Info()[0]
	if info.Deferred != 0 || info.Uordblks != used-80 {
		t.Errorf("after drain: %+v, want %d bytes in use", info, used-80)
	}
}
