// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the build-time configuration of the kernel core,
// read from TOML.
package config

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type Config struct {
	Sched SchedConfig  `toml:"sched"`
	Wdog  WdogConfig   `toml:"wdog"`
	Work  WorkConfig   `toml:"work"`
	KHeap []HeapConfig `toml:"kheap"`
	UHeap []HeapConfig `toml:"uheap"`
	Log   LogConfig    `toml:"log"`
}

type SchedConfig struct {
	MaxTasks       int    `toml:"max_tasks"`
	MaxPriority    int    `toml:"max_priority"`
	RRInterval     int    `toml:"rr_interval"`
	TaskNameSize   int    `toml:"task_name_size"`
	InheritDepth   int    `toml:"inherit_depth"`
	DefaultStack   int    `toml:"default_stack"`
	MinStack       int    `toml:"min_stack"`
	UserStackFault string `toml:"user_stack_fault"` // "kill" or "panic"
	Debug          bool   `toml:"debug"`
}

type WdogConfig struct {
	Prealloc   int `toml:"prealloc"`
	IntReserve int `toml:"int_reserve"`
}

type WorkConfig struct {
	Priority int `toml:"priority"`
	Stack    int `toml:"stack"`
	Period   int `toml:"period"`
}

type HeapConfig struct {
	Name       string         `toml:"name"`
	Policy     string         `toml:"policy"` // "first" or "best"
	Instrument bool           `toml:"instrument"`
	Regions    []RegionConfig `toml:"region"`
}

type RegionConfig struct {
	Base Addr `toml:"base"`
	Size int  `toml:"size"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
	Rotate uint   `toml:"rotate"`
}

// An Addr is a memory address written in TOML as a string, so that it
// can use hexadecimal notation ("0x20000000").
type Addr uint64

func (a *Addr) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(string(text), 0, 64)
	if err != nil {
		return errors.Wrapf(err, "address %q", text)
	}
	*a = Addr(v)
	return nil
}

func (a Addr) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%#x", uint64(a))), nil
}

// Default returns the default configuration: one kernel heap, one user
// heap, and the tunables in param.go.
func Default() *Config {
	return &Config{
		Sched: SchedConfig{
			MaxTasks:       NTASKS,
			MaxPriority:    MAXPRIO,
			RRInterval:     RRINTERVAL,
			TaskNameSize:   NAMESIZE,
			InheritDepth:   INHERITDEPTH,
			DefaultStack:   DEFSTACK,
			MinStack:       MINSTACK,
			UserStackFault: "kill",
		},
		Wdog: WdogConfig{
			Prealloc:   NWDOGS,
			IntReserve: WDRESERVE,
		},
		Work: WorkConfig{
			Priority: LPWORKPRIO,
			Stack:    LPWORKSTACK,
			Period:   LPWORKPERIOD,
		},
		KHeap: []HeapConfig{{
			Name:    "kheap",
			Policy:  "first",
			Regions: []RegionConfig{{Base: KHEAPBASE, Size: KHEAPSIZE}},
		}},
		UHeap: []HeapConfig{{
			Name:    "uheap",
			Policy:  "first",
			Regions: []RegionConfig{{Base: UHEAPBASE, Size: UHEAPSIZE}},
		}},
		Log: LogConfig{
			Level:  "info",
			Rotate: 7,
		},
	}
}

// Load reads the TOML file at path over the default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse reads TOML text over the default configuration.
func Parse(text string) (*Config, error) {
	return Overlay(Default(), text)
}

// Overlay reads TOML text over a copy of base. Tables and keys missing
// from text keep their values from base; base is not modified.
func Overlay(base *Config, text string) (*Config, error) {
	cfg := base.Clone()
	if _, err := toml.Decode(text, cfg); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Clone returns a deep copy of cfg.
func (cfg *Config) Clone() *Config {
	c := *cfg
	c.KHeap = cloneHeaps(cfg.KHeap)
	c.UHeap = cloneHeaps(cfg.UHeap)
	return &c
}

func cloneHeaps(heaps []HeapConfig) []HeapConfig {
	if heaps == nil {
		return nil
	}
	out := make([]HeapConfig, len(heaps))
	for i, h := range heaps {
		out[i] = h
		out[i].Regions = append([]RegionConfig(nil), h.Regions...)
	}
	return out
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg *Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Validate checks that cfg describes a bootable system.
func (cfg *Config) Validate() error {
	s := &cfg.Sched
	switch {
	case s.MaxTasks < 2:
		return errors.Errorf("sched.max_tasks %d: need at least 2", s.MaxTasks)
	case s.MaxPriority < MINPRIO || s.MaxPriority > MAXPRIO:
		return errors.Errorf("sched.max_priority %d out of range [%d, %d]", s.MaxPriority, MINPRIO, MAXPRIO)
	case s.RRInterval < 0:
		return errors.Errorf("sched.rr_interval %d is negative", s.RRInterval)
	case s.TaskNameSize < 1:
		return errors.Errorf("sched.task_name_size %d: need at least 1", s.TaskNameSize)
	case s.InheritDepth < 1:
		return errors.Errorf("sched.inherit_depth %d: need at least 1", s.InheritDepth)
	case s.MinStack < 16:
		return errors.Errorf("sched.min_stack %d: need at least 16", s.MinStack)
	case s.DefaultStack < s.MinStack:
		return errors.Errorf("sched.default_stack %d below min_stack %d", s.DefaultStack, s.MinStack)
	case s.UserStackFault != "kill" && s.UserStackFault != "panic":
		return errors.Errorf("sched.user_stack_fault %q: want kill or panic", s.UserStackFault)
	}

	if cfg.Wdog.Prealloc < 0 || cfg.Wdog.IntReserve < 0 || cfg.Wdog.IntReserve > cfg.Wdog.Prealloc {
		return errors.Errorf("wdog: prealloc %d, int_reserve %d: need 0 <= int_reserve <= prealloc", cfg.Wdog.Prealloc, cfg.Wdog.IntReserve)
	}

	w := &cfg.Work
	if w.Priority < MINPRIO || w.Priority > s.MaxPriority {
		return errors.Errorf("work.priority %d out of range [%d, %d]", w.Priority, MINPRIO, s.MaxPriority)
	}
	if w.Stack < s.MinStack {
		return errors.Errorf("work.stack %d below min_stack %d", w.Stack, s.MinStack)
	}
	if w.Period < 1 {
		return errors.Errorf("work.period %d: need at least 1", w.Period)
	}

	if len(cfg.KHeap) == 0 {
		return errors.New("no kernel heap configured")
	}
	if len(cfg.UHeap) == 0 {
		return errors.New("no user heap configured")
	}
	type span struct {
		name       string
		start, end uint64
	}
	var spans []span
	for _, heaps := range [][]HeapConfig{cfg.KHeap, cfg.UHeap} {
		for _, h := range heaps {
			if h.Name == "" {
				return errors.New("heap without a name")
			}
			if h.Policy != "" && h.Policy != "first" && h.Policy != "best" {
				return errors.Errorf("heap %s: policy %q: want first or best", h.Name, h.Policy)
			}
			if len(h.Regions) == 0 {
				return errors.Errorf("heap %s: no regions", h.Name)
			}
			for _, r := range h.Regions {
				if r.Size < MINREGION {
					return errors.Errorf("heap %s: region %#x size %d below %d", h.Name, uint64(r.Base), r.Size, MINREGION)
				}
				if r.Base == 0 {
					return errors.Errorf("heap %s: region at address 0", h.Name)
				}
				spans = append(spans, span{h.Name, uint64(r.Base), uint64(r.Base) + uint64(r.Size)})
			}
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return errors.Errorf("heap %s region %#x overlaps heap %s", spans[i].name, spans[i].start, spans[i-1].name)
		}
	}
	return nil
}
