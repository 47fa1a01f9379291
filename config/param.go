// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

/*
 * tunable variables
 */
const (
	NTASKS       = 32         /* max number of tasks */
	MAXPRIO      = 255        /* highest task priority */
	MINPRIO      = 1          /* lowest task priority */
	RRINTERVAL   = 10         /* round robin time slice (ticks) */
	NAMESIZE     = 31         /* max task name length */
	INHERITDEPTH = 8          /* max priority inheritance chain */
	DEFSTACK     = 2048       /* default task stack (bytes) */
	MINSTACK     = 256        /* smallest task stack (bytes) */
	NWDOGS       = 32         /* preallocated watchdogs */
	WDRESERVE    = 4          /* watchdogs reserved for interrupt handlers */
	LPWORKPRIO   = 50         /* low priority worker priority */
	LPWORKSTACK  = 2048       /* low priority worker stack (bytes) */
	LPWORKPERIOD = 50         /* low priority worker poll period (ticks) */
	KHEAPBASE    = 0x20000000 /* default kernel heap base */
	KHEAPSIZE    = 64 << 10   /* default kernel heap size */
	UHEAPBASE    = 0x20100000 /* default user heap base */
	UHEAPSIZE    = 64 << 10   /* default user heap size */
	MINREGION    = 64         /* smallest heap region (bytes) */
)
