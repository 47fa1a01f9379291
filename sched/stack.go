// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"encoding/binary"

	"github.com/Samsung/TizenRT-sub134/errno"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stacks are filled with stackColor when allocated. They grow down from
// the end of their block, so the used part is everything above the
// lowest word that lost its color.
const stackColor = 0xdeadbeef

func (k *Kernel) allocStack(t *TCB, size int) error {
	heap := k.uheap
	if t.typ == KernelThread {
		heap = k.kheap
	}
	p := heap.Malloc(size)
	if p == 0 {
		return errno.ENOMEM
	}
	t.stack, t.stackSize, t.stackHeap = p, size, heap
	b := heap.Bytes(p)[:size]
	for i := 0; i+4 <= len(b); i += 4 {
		binary.LittleEndian.PutUint32(b[i:], stackColor)
	}
	return nil
}

func (k *Kernel) stackUsed(t *TCB) int {
	if t.stack == 0 {
		return 0
	}
	b := t.stackHeap.Bytes(t.stack)
	if len(b) < t.stackSize {
		return 0
	}
	b = b[:t.stackSize]
	i := 0
	for i+4 <= len(b) && binary.LittleEndian.Uint32(b[i:]) == stackColor {
		i += 4
	}
	return len(b) - i
}

// StackUsed returns the high-water mark of t's stack in bytes.
func (t *TCB) StackUsed() int { return t.k.stackUsed(t) }

// UseStack simulates the running task reaching depth bytes into its
// stack. Going past the end is a stack overflow: in a kernel thread it
// panics the kernel; a user task is killed with status -1, or panics the
// kernel when the configuration says so.
func (k *Kernel) UseStack(depth int) error {
	t, err := k.taskContext("stack")
	if err != nil {
		return err
	}
	if depth <= t.stackSize {
		b := t.stackHeap.Bytes(t.stack)[:t.stackSize]
		for i := t.stackSize - depth; i < t.stackSize; i++ {
			b[i] = 0
		}
		return nil
	}

	err = errors.Errorf("stack overflow in %v: %d bytes of %d", t, depth, t.stackSize)
	if t.typ == KernelThread || k.cfg.UserStackFault == "panic" {
		k.Panic(err)
		return err
	}
	k.log.WithFields(logrus.Fields{"task": t.String(), "depth": depth, "size": t.stackSize}).Warn("task fault: stack overflow")
	k.exit(t, -1)
	return err
}
