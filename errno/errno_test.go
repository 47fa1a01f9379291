// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errno

import "testing"

func TestErrnoString(t *testing.T) {
	tests := []struct {
		e    Errno
		want string
	}{
		{ETIMEDOUT, "ETIMEDOUT"},
		{EOWNERDEAD, "EOWNERDEAD"},
		{EAGAIN, "EAGAIN"},
		{Errno(999), "Errno(999)"},
	}
	for _, tt := range tests {
		if have := tt.e.Error(); have != tt.want {
			t.Errorf("Errno(%d).Error() = %q, want %q", int(tt.e), have, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	e, ok := Lookup("EDEADLK")
	if !ok || e != EDEADLK {
		t.Errorf("Lookup(EDEADLK) = %v, %v, want %v, true", e, ok, EDEADLK)
	}
	if _, ok := Lookup("EBOGUS"); ok {
		t.Errorf("Lookup(EBOGUS) succeeded")
	}
}

func TestCheck(t *testing.T) {
	if err := Check(false, "test", EINVAL, "bad %d", 1); err != EINVAL {
		t.Fatalf("Check(release) = %v, want EINVAL", err)
	}

	defer func() {
		e := recover()
		a, ok := e.(*Assertion)
		if !ok {
			t.Fatalf("Check(debug) panicked with %v, want *Assertion", e)
		}
		if a.Module != "test" || a.Message != "bad 2" || a.Err != EPERM {
			t.Errorf("assertion = %+v", a)
		}
		if have, want := a.Error(), "[test] assertion failed: bad 2 (EPERM)"; have != want {
			t.Errorf("assertion text = %q, want %q", have, want)
		}
	}()
	Check(true, "test", EPERM, "bad %d", 2)
	t.Fatal("Check(debug) did not panic")
}
