// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tinyara

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Samsung/TizenRT-sub134/mm"
)

// Ps writes the task table to w.
func (sys *System) Ps(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "PID\tGROUP\tPRI\tBASE\tPOLICY\tTYPE\tSTATE\tSTACK\tUSED\tNAME\n")
	for _, t := range sys.Kernel.Tasks() {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%v\t%v\t%v\t%d\t%d\t%s\n",
			t.Pid, t.Group, t.Priority, t.Base, t.Policy, t.Type, t.State, t.StackSize, t.StackUsed, t.Name)
	}
	return tw.Flush()
}

// Mem writes the statistics of every heap to w.
func (sys *System) Mem(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "HEAP\tARENA\tUSED\tFREE\tLARGEST\tNFREE\tDEFERRED\n")
	for _, set := range []*mm.Set{sys.KHeap, sys.UHeap} {
		for i, info := range set.Info() {
			fmt.Fprintf(tw, "%s/%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
				set.Name(), set.Heap(i).Name(), info.Arena, info.Uordblks, info.Fordblks, info.Mxordblk, info.Ordblks, info.Deferred)
		}
	}
	return tw.Flush()
}

// Dump writes the node map of every heap to w.
func (sys *System) Dump(w io.Writer) {
	for _, set := range []*mm.Set{sys.KHeap, sys.UHeap} {
		for _, h := range set.Heaps() {
			h.Dump(w)
		}
	}
}
