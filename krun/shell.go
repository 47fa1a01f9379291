// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Samsung/TizenRT-sub134/script"
	"github.com/Samsung/TizenRT-sub134/tinyara"
	"github.com/fatih/color"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

const prompt = "krun> "

func shell(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	sys, err := tinyara.Boot(cfg)
	if err != nil {
		return err
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLines(sys, os.Stdin, os.Stdout)
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, prompt)
	e := script.NewEnv(sys, t)
	for {
		line, err := t.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if done := exec(e, t, line); done {
			return nil
		}
	}
}

// readLines runs script lines from a pipe or file.
func readLines(sys *tinyara.System, r io.Reader, w io.Writer) error {
	e := script.NewEnv(sys, w)
	s := bufio.NewScanner(r)
	for s.Scan() {
		if exec(e, w, s.Text()) {
			return nil
		}
	}
	return s.Err()
}

// exec runs one shell line and reports whether the shell should quit.
func exec(e *script.Env, w io.Writer, line string) bool {
	switch strings.TrimSpace(line) {
	case "quit":
		return true
	case "help":
		for _, u := range script.Usage() {
			fmt.Fprintf(w, "\t%s\n", u)
		}
		fmt.Fprintf(w, "\tquit\n")
		return false
	}
	if err := e.Exec(line); err != nil {
		fmt.Fprintf(w, "%s %v\n", color.RedString("error:"), err)
	}
	return e.Halted()
}
