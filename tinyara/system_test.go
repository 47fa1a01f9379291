// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tinyara

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Samsung/TizenRT-sub134/config"
	"github.com/Samsung/TizenRT-sub134/mutex"
	"github.com/Samsung/TizenRT-sub134/sched"
)

func boot(t *testing.T, edit func(*config.Config)) *System {
	t.Helper()
	cfg := config.Default()
	cfg.Log.Level = "warn"
	if edit != nil {
		edit(cfg)
	}
	sys, err := Boot(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return sys
}

func run(t *testing.T, sys *System) {
	t.Helper()
	if err := sys.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := sys.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestBoot(t *testing.T) {
	sys := boot(t, nil)
	run(t, sys)
	tasks := sys.Kernel.Tasks()
	if len(tasks) != 1 || tasks[0].Name != "lpwork" || tasks[0].Type != sched.KernelThread {
		t.Fatalf("tasks after boot: %+v", tasks)
	}
	if tasks[0].State != sched.WaitSem {
		t.Errorf("worker state %v, want %v", tasks[0].State, sched.WaitSem)
	}
	if !sys.KHeap.Contains(sys.Kernel.Lookup(tasks[0].Pid).Stack()) {
		t.Errorf("worker stack not in the kernel heap")
	}
	// The worker polls every period.
	if n := sys.NextTimer(); n != config.LPWORKPERIOD {
		t.Errorf("NextTimer() = %d, want %d", n, config.LPWORKPERIOD)
	}
}

func TestBootErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		edit func(*config.Config)
	}{
		{"policy", func(c *config.Config) { c.KHeap[0].Policy = "worst" }},
		{"overlap", func(c *config.Config) { c.UHeap[0].Regions[0].Base = c.KHeap[0].Regions[0].Base + 16 }},
		{"level", func(c *config.Config) { c.Log.Level = "loud" }},
		{"work", func(c *config.Config) { c.Work.Stack = c.KHeap[0].Regions[0].Size * 2 }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.edit(cfg)
			if _, err := Boot(cfg); err == nil {
				t.Errorf("Boot succeeded")
			}
		})
	}
}

func TestStacksComeFromTheirHeaps(t *testing.T) {
	sys := boot(t, nil)
	var task, thread, kthread *sched.TCB
	task, _ = sys.TaskCreate("app", 100, 0, func() {
		thread, _ = sys.PthreadCreate(nil, "helper", 100, func() {})
		sys.Kernel.Join(thread.Pid())
	})
	kthread, _ = sys.KernelThread("kt", 90, 512, func() {})
	if !sys.UHeap.Contains(task.Stack()) {
		t.Errorf("task stack %#x not in the user heap", uint64(task.Stack()))
	}
	if !sys.KHeap.Contains(kthread.Stack()) {
		t.Errorf("kernel thread stack %#x not in the kernel heap", uint64(kthread.Stack()))
	}
	run(t, sys)
	if thread.Group() != task.Pid() {
		t.Errorf("thread group %d, want %d", thread.Group(), task.Pid())
	}
	// The exited tasks' stacks went to the deferred lists, and the worker
	// drained them when it ran.
	sys.Tick(config.LPWORKPERIOD)
	run(t, sys)
	for _, info := range sys.UHeap.Info() {
		if info.Deferred != 0 || info.Uordblks != 0 {
			t.Errorf("user heap after exits: %+v", info)
		}
	}
}

func TestBlockedAccounting(t *testing.T) {
	sys := boot(t, nil)
	m, err := sys.NewMutex("m", mutex.Attr{})
	if err != nil {
		t.Fatal(err)
	}
	s, err := sys.NewSem("s", 0)
	if err != nil {
		t.Fatal(err)
	}
	sys.TaskCreate("owner", 100, 0, func() {
		m.Lock()
		s.Wait()
		m.Unlock()
	})
	sys.TaskCreate("waiter", 90, 0, func() { m.Lock(); m.Unlock() })
	run(t, sys)
	if n := sys.Kernel.Blocked(sched.WaitSem); n != 3 {
		t.Errorf("%d tasks blocked, want 3", n)
	}
	sys.Interrupt(func() { s.Post() })
	run(t, sys)
	if n := sys.Kernel.Blocked(sched.WaitSem); n != 1 {
		t.Errorf("%d tasks blocked, want only the worker", n)
	}
}

func TestReports(t *testing.T) {
	sys := boot(t, func(c *config.Config) { c.UHeap[0].Instrument = true })
	sys.TaskCreate("sleeper", 100, 1024, func() { sys.Kernel.Sleep(10) })
	run(t, sys)

	var buf bytes.Buffer
	if err := sys.Ps(&buf); err != nil {
		t.Fatal(err)
	}
	ps := buf.String()
	for _, want := range []string{"PID", "lpwork", "sleeper", "Delayed", "kthread"} {
		if !strings.Contains(ps, want) {
			t.Errorf("ps output missing %q:\n%s", want, ps)
		}
	}

	buf.Reset()
	if err := sys.Mem(&buf); err != nil {
		t.Fatal(err)
	}
	if mem := buf.String(); !strings.Contains(mem, "kmm/kheap") || !strings.Contains(mem, "umm/uheap") {
		t.Errorf("mem output:\n%s", mem)
	}

	buf.Reset()
	sys.Dump(&buf)
	if dump := buf.String(); !strings.Contains(dump, "heap uheap") || !strings.Contains(dump, "used") {
		t.Errorf("dump output:\n%s", dump)
	}
}

func TestKmmAt(t *testing.T) {
	sys := boot(t, func(c *config.Config) {
		c.KHeap = append(c.KHeap, config.HeapConfig{
			Name:    "kheap2",
			Policy:  "best",
			Regions: []config.RegionConfig{{Base: 0x30000000, Size: 4096}},
		})
	})
	p := sys.KmmMallocAt(1, 100)
	if p == 0 || sys.KHeap.Owner(p) != sys.KHeap.Heap(1) {
		t.Fatalf("KmmMallocAt(1) = %#x, not in the second heap", uint64(p))
	}
	q := sys.KmmReallocAt(1, p, 200)
	if q == 0 || sys.KHeap.Owner(q) != sys.KHeap.Heap(1) {
		t.Errorf("KmmReallocAt(1) = %#x, not in the second heap", uint64(q))
	}
	if p := sys.KmmMallocAt(1, 8192); p != 0 {
		t.Errorf("oversized KmmMallocAt = %#x, want 0", uint64(p))
	}
	if err := sys.Check(); err != nil {
		t.Error(err)
	}
}
