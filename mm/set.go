// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mm

import (
	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/Samsung/TizenRT-sub134/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// A Set is an ordered group of heaps used as one: the kernel heaps
// (kmm) or the user heaps (umm). Allocation tries the heaps in order and
// fails only when all of them are exhausted. Frees go to the heap that
// owns the address.
type Set struct {
	name  string
	heaps []*Heap
	log   *logrus.Entry
	debug bool
}

func NewSet(name string, heaps ...*Heap) *Set {
	s := &Set{
		name:  name,
		heaps: heaps,
		log:   logging.Module("mm").WithField("set", name),
	}
	for _, h := range heaps {
		s.debug = s.debug || h.Debug
	}
	return s
}

func (s *Set) Name() string { return s.name }
func (s *Set) Heaps() []*Heap { return s.heaps }
func (s *Set) Heap(i int) *Heap { return s.heaps[i] }

// Owner returns the heap holding p, or nil.
func (s *Set) Owner(p Ptr) *Heap {
	for _, h := range s.heaps {
		if h.Contains(p) {
			return h
		}
	}
	return nil
}

func (s *Set) Contains(p Ptr) bool { return s.Owner(p) != nil }

func (s *Set) Malloc(size int) Ptr {
	if size <= 0 {
		return 0
	}
	for _, h := range s.heaps {
		if p := h.allocate(size, 0); p != 0 {
			return p
		}
	}
	s.failed(size)
	return 0
}

func (s *Set) Zalloc(size int) Ptr {
	p := s.Malloc(size)
	if p != 0 {
		clear(s.Bytes(p))
	}
	return p
}

func (s *Set) Memalign(align, size int) Ptr {
	if size <= 0 || align <= 0 || align&(align-1) != 0 || align > maxAlloc {
		return 0
	}
	for _, h := range s.heaps {
		if p := h.allocate(size, align); p != 0 {
			return p
		}
	}
	s.failed(size)
	return 0
}

// Realloc resizes p in place in its own heap if possible, otherwise
// moves it to fresh storage from any heap of the set.
func (s *Set) Realloc(p Ptr, size int) Ptr {
	if p == 0 {
		return s.Malloc(size)
	}
	h := s.Owner(p)
	if h == nil {
		s.log.WithField("addr", uint64(p)).Warn("realloc of pointer outside the heaps")
		errno.Check(s.debug, "mm", errno.EINVAL, "realloc %#x: outside %s", uint64(p), s.name)
		return 0
	}
	if size <= 0 {
		h.Free(p)
		return 0
	}
	q, err := h.reallocInPlace(p, size)
	if err != nil || q != 0 {
		return q
	}
	for _, to := range s.heaps {
		if q = to.allocate(size, 0); q != 0 {
			to.move(q, h, p)
			return q
		}
	}
	s.failed(size)
	return 0
}

// MallocAt allocates from heap i only.
func (s *Set) MallocAt(i, size int) Ptr {
	if i < 0 || i >= len(s.heaps) {
		return 0
	}
	return s.heaps[i].Malloc(size)
}

// ReallocAt resizes p, which must belong to heap i, within heap i.
func (s *Set) ReallocAt(i int, p Ptr, size int) Ptr {
	if i < 0 || i >= len(s.heaps) {
		return 0
	}
	h := s.heaps[i]
	if p != 0 && !h.Contains(p) {
		s.log.WithFields(logrus.Fields{"addr": uint64(p), "heap": h.name}).Warn("realloc in foreign heap")
		errno.Check(s.debug, "mm", errno.EINVAL, "realloc %#x: not in heap %s", uint64(p), h.name)
		return 0
	}
	return h.Realloc(p, size)
}

func (s *Set) Free(p Ptr) error {
	if p == 0 {
		return nil
	}
	h := s.Owner(p)
	if h == nil {
		s.log.WithField("addr", uint64(p)).Warn("free of pointer outside the heaps")
		return errno.Check(s.debug, "mm", errno.EINVAL, "free %#x: outside %s", uint64(p), s.name)
	}
	return h.Free(p)
}

func (s *Set) Defer(p Ptr) error {
	if p == 0 {
		return nil
	}
	h := s.Owner(p)
	if h == nil {
		return errno.Check(s.debug, "mm", errno.EINVAL, "free %#x: outside %s", uint64(p), s.name)
	}
	return h.Defer(p)
}

// FreeDelayList drains the deferred list of every heap.
func (s *Set) FreeDelayList() int {
	n := 0
	for _, h := range s.heaps {
		n += h.FreeDelayList()
	}
	return n
}

func (s *Set) Bytes(p Ptr) []byte {
	if h := s.Owner(p); h != nil {
		return h.Bytes(p)
	}
	return nil
}

func (s *Set) Info() []Info {
	var infos []Info
	for _, h := range s.heaps {
		infos = append(infos, h.Info())
	}
	return infos
}

func (s *Set) Check() error {
	for _, h := range s.heaps {
		if err := h.Check(); err != nil {
			return errors.Wrap(err, s.name)
		}
	}
	return nil
}

func (s *Set) failed(size int) {
	f := logrus.Fields{"size": size}
	if len(s.heaps) > 0 && s.heaps[0].instrumented() {
		f["caller"] = s.heaps[0].caller()
	}
	s.log.WithFields(f).Warn("allocation failed in every heap")
}
