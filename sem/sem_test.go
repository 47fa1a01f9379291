// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sem

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/Samsung/TizenRT-sub134/config"
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/irq"
	"github.com/Samsung/TizenRT-sub134/mm"
	"github.com/Samsung/TizenRT-sub134/sched"
	"github.com/Samsung/TizenRT-sub134/wdog"
)

func newKernel(t *testing.T, edit func(*config.SchedConfig)) *sched.Kernel {
	t.Helper()
	cfg := config.Default().Sched
	if edit != nil {
		edit(&cfg)
	}
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
	uh.InInterrupt = ctl.InInterrupt
	ks, us := mm.NewSet("kmm", kh), mm.NewSet("umm", uh)
	return sched.New(cfg, ctl, wdog.New(ctl, ks, 8, 2), ks, us)
}

func newSem(t *testing.T, k *sched.Kernel, name string, count int) *Sem {
	t.Helper()
	s, err := New(k, name, count)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

type recorder struct {
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) check(t *testing.T, want ...string) {
	t.Helper()
	if !reflect.DeepEqual(r.events, want) {
		t.Errorf("have events\n\t%s\nwant\n\t%s", strings.Join(r.events, "\n\t"), strings.Join(want, "\n\t"))
	}
	r.events = nil
}

func spawn(t *testing.T, k *sched.Kernel, name string, prio int, entry func()) *sched.TCB {
	t.Helper()
	tcb, err := k.Create(sched.TaskParams{Name: name, Priority: prio, Entry: entry})
	if err != nil {
		t.Fatalf("Create(%s): %v", name, err)
	}
	return tcb
}

func run(t *testing.T, k *sched.Kernel, sems ...*Sem) {
	t.Helper()
	if err := k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := k.Check(); err != nil {
		t.Fatalf("kernel Check: %v", err)
	}
	for _, s := range sems {
		if err := s.Check(); err != nil {
			t.Fatalf("Check: %v", err)
		}
	}
}

func TestPostWakesHighest(t *testing.T) {
	k := newKernel(t, nil)
	s := newSem(t, k, "s", 0)
	var r recorder
	for _, p := range []int{10, 20} {
		p := p
		spawn(t, k, fmt.Sprint("w", p), p, func() {
			err := s.Wait()
			r.add("w%d woke %v", p, err)
		})
	}
	spawn(t, k, "poster", 5, func() {
		s.Post()
		r.add("posted once")
		s.Post()
		r.add("posted twice")
	})
	run(t, k, s)
	r.check(t, "w20 woke <nil>", "posted once", "w10 woke <nil>", "posted twice")
	if v := s.Value(); v != 0 {
		t.Errorf("Value() = %d, want 0", v)
	}
}

func TestWakeOrderIgnoresArrival(t *testing.T) {
	k := newKernel(t, nil)
	s := newSem(t, k, "s", 0)
	var r recorder
	waiter := func(p int) func() {
		return func() {
			s.Wait()
			r.add("w%d", p)
		}
	}
	spawn(t, k, "w5", 5, waiter(5))
	run(t, k, s)
	spawn(t, k, "w10", 10, waiter(10))
	run(t, k, s)
	if v := s.Value(); v != -2 {
		t.Fatalf("Value() = %d, want -2", v)
	}

	spawn(t, k, "poster", 1, func() { s.Post() })
	run(t, k, s)
	r.check(t, "w10")
	if ws := s.Waiters(); len(ws) != 1 || ws[0].Name() != "w5" {
		t.Errorf("Waiters() = %v, want [w5]", ws)
	}
	if v := s.Value(); v != -1 {
		t.Errorf("Value() = %d, want -1", v)
	}
}

func TestTimedWait(t *testing.T) {
	k := newKernel(t, nil)
	s := newSem(t, k, "s", 0)
	var r recorder
	spawn(t, k, "w", 10, func() {
		r.add("poll %v", s.TimedWait(0))
		r.add("wait %v at %d", s.TimedWait(5), k.Ticks())
		s.Post()
		r.add("available %v", s.TimedWait(5))
	})
	run(t, k, s)
	k.Tick(4)
	run(t, k, s)
	r.check(t, "poll ETIMEDOUT")
	k.Tick(1)
	run(t, k, s)
	r.check(t, "wait ETIMEDOUT at 5", "available <nil>")
	if v := s.Value(); v != 0 {
		t.Errorf("Value() = %d, want 0", v)
	}
	if lags := k.Timer().Lags(); len(lags) != 0 {
		t.Errorf("watchdogs still active: %v", lags)
	}
}

func TestTimeoutPostRace(t *testing.T) {
	for _, tt := range []struct {
		name      string
		postFirst bool
		err       error
		value     int
	}{
		{"timeout-first", false, errno.ETIMEDOUT, 1},
		{"post-first", true, nil, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			k := newKernel(t, nil)
			s := newSem(t, k, "s", 0)
			var werr error
			woke := 0
			w := spawn(t, k, "w", 10, func() {
				werr = s.TimedWait(10)
				woke++
			})
			run(t, k, s)
			k.Interrupt(func() {
				if tt.postFirst {
					s.Post()
					s.WaitIRQ(w, errno.ETIMEDOUT)
				} else {
					s.WaitIRQ(w, errno.ETIMEDOUT)
					s.Post()
				}
			})
			run(t, k, s)
			k.Tick(20)
			run(t, k, s)
			if woke != 1 || werr != tt.err {
				t.Errorf("woke %d times with %v, want once with %v", woke, werr, tt.err)
			}
			if v := s.Value(); v != tt.value {
				t.Errorf("Value() = %d, want %d", v, tt.value)
			}
		})
	}
}

func TestPriorityInheritance(t *testing.T) {
	k := newKernel(t, nil)
	s := newSem(t, k, "s", 1)
	var r recorder
	spawn(t, k, "low", 10, func() {
		s.Wait()
		r.add("low holds")
		spawn(t, k, "high", 30, func() {
			s.Wait()
			r.add("high got")
			s.Post()
		})
		r.add("low prio %d", k.Current().Priority())
		s.Post()
		r.add("low prio %d", k.Current().Priority())
	})
	run(t, k, s)
	r.check(t, "low holds", "low prio 30", "high got", "low prio 10")
}

func TestNoInheritance(t *testing.T) {
	k := newKernel(t, nil)
	s := newSem(t, k, "s", 1)
	if err := s.SetProtocol(None); err != nil {
		t.Fatal(err)
	}
	var prio int
	spawn(t, k, "low", 10, func() {
		s.Wait()
		spawn(t, k, "high", 30, func() { s.Wait() })
		prio = k.Current().Priority()
		s.Post()
	})
	run(t, k, s)
	if prio != 10 {
		t.Errorf("holder priority %d with no inheritance, want 10", prio)
	}
	if hs := s.Holders(); len(hs) != 0 {
		t.Errorf("Holders() = %v with no inheritance", hs)
	}
}

func TestInheritanceChain(t *testing.T) {
	for _, tt := range []struct {
		depth int
		want  int
	}{
		{8, 30},
		{1, 20},
	} {
		t.Run(fmt.Sprint("depth", tt.depth), func(t *testing.T) {
			k := newKernel(t, func(c *config.SchedConfig) { c.InheritDepth = tt.depth })
			s1 := newSem(t, k, "s1", 1)
			s2 := newSem(t, k, "s2", 1)
			var prio int
			spawn(t, k, "a", 10, func() {
				s1.Wait()
				spawn(t, k, "b", 20, func() {
					s2.Wait()
					s1.Wait()
					s2.Post()
					s1.Post()
				})
				spawn(t, k, "c", 30, func() {
					s2.Wait()
					s2.Post()
				})
				prio = k.Current().Priority()
				s1.Post()
				if p := k.Current().Priority(); p != 10 {
					t.Errorf("a priority after release = %d, want 10", p)
				}
			})
			run(t, k, s1, s2)
			if prio != tt.want {
				t.Errorf("a inherited priority %d, want %d", prio, tt.want)
			}
		})
	}
}

func TestPostOverflow(t *testing.T) {
	k := newKernel(t, nil)
	s := newSem(t, k, "s", MaxValue)
	if err := s.Post(); err != errno.EOVERFLOW {
		t.Errorf("Post() = %v, want EOVERFLOW", err)
	}
	if _, err := New(k, "bad", -1); err != errno.EINVAL {
		t.Errorf("New(-1) = %v, want EINVAL", err)
	}
}

func TestOutsideTask(t *testing.T) {
	k := newKernel(t, nil)
	s := newSem(t, k, "s", 1)
	if err := s.Wait(); err != errno.EPERM {
		t.Errorf("Wait from host = %v, want EPERM", err)
	}
	k.Interrupt(func() {
		if err := s.TryWait(); err != nil {
			t.Errorf("TryWait in interrupt = %v", err)
		}
		if err := s.TryWait(); err != errno.EAGAIN {
			t.Errorf("second TryWait = %v, want EAGAIN", err)
		}
	})

	dk := newKernel(t, func(c *config.SchedConfig) { c.Debug = true })
	ds := newSem(t, dk, "s", 0)
	defer func() {
		a, ok := recover().(*errno.Assertion)
		if !ok || a.Module != "sem" || a.Err != errno.EPERM {
			t.Errorf("recovered %v, want sem EPERM assertion", a)
		}
	}()
	ds.Wait()
	t.Errorf("Wait from host returned in debug mode")
}

func TestKillWaiter(t *testing.T) {
	k := newKernel(t, nil)
	s := newSem(t, k, "s", 0)
	var r recorder
	w := spawn(t, k, "w", 10, func() {
		err := s.Wait()
		r.add("returned %v", err)
	})
	run(t, k, s)
	if err := s.Destroy(); err != errno.EBUSY {
		t.Errorf("Destroy with waiter = %v, want EBUSY", err)
	}
	if err := k.Kill(w.Pid()); err != nil {
		t.Fatal(err)
	}
	run(t, k, s)
	r.check(t)
	if v := s.Value(); v != 0 {
		t.Errorf("Value() = %d, want 0", v)
	}
	if err := s.Destroy(); err != nil {
		t.Errorf("Destroy: %v", err)
	}
}

func TestHolderExit(t *testing.T) {
	k := newKernel(t, nil)
	s := newSem(t, k, "s", 2)
	var holders []HolderInfo
	spawn(t, k, "h", 10, func() {
		s.Wait()
		s.Wait()
		holders = s.Holders()
	})
	run(t, k, s)
	if len(holders) != 1 || holders[0].Count != 2 {
		t.Errorf("Holders() = %v, want one holder of 2", holders)
	}
	if hs := s.Holders(); len(hs) != 0 {
		t.Errorf("Holders() after exit = %v", hs)
	}
	if v := s.Value(); v != 0 {
		t.Errorf("Value() = %d, want 0", v)
	}
}
