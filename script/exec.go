// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package script runs kernel scenarios written as scripts.
//
// A script has one command per line. Blank lines and lines starting
// with # are ignored. A line is a command and its arguments, optionally
// followed by ':'-separated ops:
//
//	sem s 0
//	task low 10: wait s: echo woke
//	task high 20: wait s: echo woke
//	task poster 5: post s: post s
//	run
//	value s
//
// The host commands (sem, task, run, tick, ...) are listed in hostTab.
// The ops of a task line run in order on the new task when it is
// scheduled; the ops of isr and wdog lines run in interrupt context.
// An op or command that fails with a kernel error prints the error and
// the script goes on; a malformed script stops with an error.
package script

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/logging"
	"github.com/Samsung/TizenRT-sub134/mm"
	"github.com/Samsung/TizenRT-sub134/mutex"
	"github.com/Samsung/TizenRT-sub134/sched"
	"github.com/Samsung/TizenRT-sub134/sem"
	"github.com/Samsung/TizenRT-sub134/tinyara"
	"github.com/Samsung/TizenRT-sub134/wdog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// An Env is the state of a running script: the system and the objects
// the script has named.
type Env struct {
	sys *tinyara.System
	w   io.Writer
	log *logrus.Entry

	sems    map[string]*sem.Sem
	mutexes map[string]*mutex.Mutex
	tasks   map[string]*sched.TCB
	wdogs   map[string]*wdog.Wdog
	vars    map[string]mm.Ptr

	halted bool
	err    error // script error raised in task or interrupt context
}

func NewEnv(sys *tinyara.System, w io.Writer) *Env {
	return &Env{
		sys:     sys,
		w:       w,
		log:     logging.Module("script"),
		sems:    make(map[string]*sem.Sem),
		mutexes: make(map[string]*mutex.Mutex),
		tasks:   make(map[string]*sched.TCB),
		wdogs:   make(map[string]*wdog.Wdog),
		vars:    make(map[string]mm.Ptr),
	}
}

// Halted reports whether the kernel has panicked.
func (e *Env) Halted() bool { return e.halted }

// A stmt is one parsed script line.
type stmt struct {
	line int
	cmd  []string
	ops  [][]string
}

func parseLine(n int, text string) (*stmt, error) {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "#") {
		return nil, nil
	}
	parts := strings.Split(text, ":")
	st := &stmt{line: n, cmd: strings.Fields(parts[0])}
	if len(st.cmd) == 0 {
		return nil, errors.Errorf("line %d: missing command", n)
	}
	c := hostTab[st.cmd[0]]
	if c == nil {
		return nil, errors.Errorf("line %d: unknown command %q", n, st.cmd[0])
	}
	if err := checkArgs(c, st.cmd); err != nil {
		return nil, errors.Wrapf(err, "line %d", n)
	}
	for _, p := range parts[1:] {
		op := strings.Fields(p)
		if len(op) == 0 {
			continue
		}
		if c.ops == nil {
			return nil, errors.Errorf("line %d: %s takes no ops", n, st.cmd[0])
		}
		oc := c.ops[op[0]]
		if oc == nil {
			return nil, errors.Errorf("line %d: %s: unknown op %q", n, st.cmd[0], op[0])
		}
		if err := checkArgs(oc, op); err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		st.ops = append(st.ops, op)
	}
	return st, nil
}

func checkArgs(c *command, args []string) error {
	n := len(args) - 1
	if n < c.min || c.max >= 0 && n > c.max {
		return errors.Errorf("usage: %s %s", args[0], c.usage)
	}
	return nil
}

func parse(script string) ([]*stmt, error) {
	var stmts []*stmt
	for i, line := range strings.Split(script, "\n") {
		st, err := parseLine(i+1, line)
		if err != nil {
			return nil, err
		}
		if st != nil {
			stmts = append(stmts, st)
		}
	}
	return stmts, nil
}

// Run runs script on sys, writing its output to w. It stops early if
// the kernel panics.
func Run(sys *tinyara.System, script string, w io.Writer) error {
	stmts, err := parse(script)
	if err != nil {
		return err
	}
	e := NewEnv(sys, w)
	for _, st := range stmts {
		if e.halted {
			break
		}
		if err := e.exec(st); err != nil {
			return err
		}
	}
	return nil
}

// Exec runs a single script line.
func (e *Env) Exec(line string) error {
	st, err := parseLine(0, line)
	if err != nil || st == nil {
		return err
	}
	if e.halted {
		return errors.New("kernel halted")
	}
	return e.exec(st)
}

func (e *Env) exec(st *stmt) error {
	c := &call{e: e, line: st.line, args: st.cmd, ops: st.ops}
	err := e.do(hostTab[st.cmd[0]], c)
	if err := c.report(err); err != nil {
		return err
	}
	if err := e.err; err != nil {
		e.err = nil
		return err
	}
	return nil
}

// do runs a command, turning a debug assertion into its error.
func (e *Env) do(c *command, x *call) (err error) {
	defer func() {
		if v := recover(); v != nil {
			a, ok := v.(*errno.Assertion)
			if !ok {
				panic(v)
			}
			err = a
		}
	}()
	return c.impl(x)
}

// runOps runs ops from table on behalf of who. It is the body of script
// tasks and interrupt handlers.
func (e *Env) runOps(who string, line int, table opTable, ops [][]string) {
	for _, op := range ops {
		if e.err != nil {
			return
		}
		c := &call{e: e, who: who, line: line, args: op}
		if err := c.report(e.do(table[op[0]], c)); err != nil {
			e.err = err
			return
		}
	}
}

// run lets the tasks run until the CPU idles. A kernel panic ends the
// script.
func (e *Env) run() {
	if e.halted {
		return
	}
	if err := e.sys.Run(); err != nil {
		fmt.Fprintf(e.w, "panic: %v\n", err)
		e.halted = true
	}
}

// A call is one command or op being run.
type call struct {
	e    *Env
	who  string // task or handler name; empty on the host
	line int
	args []string
	ops  [][]string
}

func (c *call) printf(format string, args ...any) {
	if c.who != "" {
		fmt.Fprintf(c.e.w, "%s: ", c.who)
	}
	fmt.Fprintf(c.e.w, format+"\n", args...)
}

// report prints a kernel error and returns any other error with the
// script line it came from.
func (c *call) report(err error) error {
	if err == nil {
		return nil
	}
	switch errors.Cause(err).(type) {
	case errno.Errno, *errno.Assertion:
		c.printf("%s: %v", strings.Join(c.args, " "), err)
		return nil
	}
	if c.line > 0 {
		return errors.Wrapf(err, "line %d: %s", c.line, c.args[0])
	}
	return errors.Wrap(err, c.args[0])
}

func (c *call) int(i int) (int, error) {
	n, err := strconv.Atoi(c.args[i])
	if err != nil {
		return 0, errors.Errorf("bad number %q", c.args[i])
	}
	return n, nil
}

func (c *call) sem(i int) (*sem.Sem, error) {
	s := c.e.sems[c.args[i]]
	if s == nil {
		return nil, errors.Errorf("no semaphore %q", c.args[i])
	}
	return s, nil
}

func (c *call) mutex(i int) (*mutex.Mutex, error) {
	m := c.e.mutexes[c.args[i]]
	if m == nil {
		return nil, errors.Errorf("no mutex %q", c.args[i])
	}
	return m, nil
}

func (c *call) task(i int) (*sched.TCB, error) {
	t := c.e.tasks[c.args[i]]
	if t == nil {
		return nil, errors.Errorf("no task %q", c.args[i])
	}
	return t, nil
}

func (c *call) ptr(i int) (mm.Ptr, *mm.Set, error) {
	p, ok := c.e.vars[c.args[i]]
	if !ok {
		return 0, nil, errors.Errorf("no variable %q", c.args[i])
	}
	if c.e.sys.KHeap.Contains(p) {
		return p, c.e.sys.KHeap, nil
	}
	return p, c.e.sys.UHeap, nil
}
