// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errno defines the error numbers returned by the kernel core.
package errno

import "fmt"

// An Errno is a kernel error number.
type Errno int

const (
	EPERM           Errno = 1
	ENOENT          Errno = 2
	ESRCH           Errno = 3
	EINTR           Errno = 4
	EAGAIN          Errno = 11
	ENOMEM          Errno = 12
	EBUSY           Errno = 16
	EINVAL          Errno = 22
	EDEADLK         Errno = 45
	EOVERFLOW       Errno = 75
	ETIMEDOUT       Errno = 110
	EOWNERDEAD      Errno = 130
	ENOTRECOVERABLE Errno = 131
)

var enames = map[Errno]string{
	EPERM:           "EPERM",
	ENOENT:          "ENOENT",
	ESRCH:           "ESRCH",
	EINTR:           "EINTR",
	EAGAIN:          "EAGAIN",
	ENOMEM:          "ENOMEM",
	EBUSY:           "EBUSY",
	EINVAL:          "EINVAL",
	EDEADLK:         "EDEADLK",
	EOVERFLOW:       "EOVERFLOW",
	ETIMEDOUT:       "ETIMEDOUT",
	EOWNERDEAD:      "EOWNERDEAD",
	ENOTRECOVERABLE: "ENOTRECOVERABLE",
}

func (e Errno) Error() string {
	if s, ok := enames[e]; ok {
		return s
	}
	return fmt.Sprintf("Errno(%d)", int(e))
}

// Lookup returns the Errno named s, such as "ETIMEDOUT".
func Lookup(s string) (Errno, bool) {
	for e, name := range enames {
		if name == s {
			return e, true
		}
	}
	return 0, false
}

// An Assertion is raised (as a panic value) when a debug build detects an
// invalid argument or a protocol violation.
type Assertion struct {
	// The module where the assertion failed.
	Module string

	// The error message
	Message string

	// The error that a release build returns instead.
	Err Errno
}

func (a *Assertion) Error() string {
	return fmt.Sprintf("[%s] assertion failed: %s (%v)", a.Module, a.Message, a.Err)
}

// Check reports err for a failed kernel precondition. When debug is set
// the failure is promoted to a panic carrying an *Assertion, so that the
// bug is caught where it happens.
func Check(debug bool, module string, err Errno, format string, args ...any) error {
	if debug {
		panic(&Assertion{Module: module, Message: fmt.Sprintf(format, args...), Err: err})
	}
	return err
}
