// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package script

import "sort"

// A command is one entry of a command table.
type command struct {
	min, max int    // argument counts; max < 0 means no limit
	usage    string // arguments, for error messages
	ops      opTable
	impl     func(*call) error
}

type opTable map[string]*command

// hostTab holds the commands a script runs on the host. Commands with an
// op table take a ':'-separated list of ops from that table, run in task
// context (taskTab) or interrupt context (isrTab).
var hostTab, taskTab, isrTab opTable

func init() {
	taskTab = opTable{
		"wait":        {1, 1, "SEM", nil, opWait},
		"trywait":     {1, 1, "SEM", nil, opTryWait},
		"timedwait":   {2, 2, "SEM TICKS", nil, opTimedWait},
		"post":        {1, 1, "SEM", nil, opPost},
		"lock":        {1, 1, "MUTEX", nil, opLock},
		"trylock":     {1, 1, "MUTEX", nil, opTryLock},
		"timedlock":   {2, 2, "MUTEX TICKS", nil, opTimedLock},
		"unlock":      {1, 1, "MUTEX", nil, opUnlock},
		"consistent":  {1, 1, "MUTEX", nil, opConsistent},
		"sleep":       {1, 1, "TICKS", nil, opSleep},
		"yield":       {0, 0, "", nil, opYield},
		"busy":        {1, 1, "TICKS", nil, opBusy},
		"echo":        {0, -1, "TEXT...", nil, cmdEcho},
		"malloc":      {2, 3, "VAR SIZE [kmm]", nil, cmdMalloc},
		"free":        {1, 1, "VAR", nil, cmdFree},
		"realloc":     {2, 2, "VAR SIZE", nil, cmdRealloc},
		"stack":       {1, 1, "DEPTH", nil, opStack},
		"prio":        {1, 1, "PRIO", nil, opPrio},
		"schedlock":   {0, 0, "", nil, opSchedLock},
		"schedunlock": {0, 0, "", nil, opSchedUnlock},
		"join":        {1, 1, "TASK", nil, opJoin},
		"exit":        {1, 1, "STATUS", nil, opExit},
		"kill":        {1, 1, "TASK", nil, cmdKill},
	}

	isrTab = opTable{
		"post":    {1, 1, "SEM", nil, opPost},
		"trywait": {1, 1, "SEM", nil, opTryWait},
		"echo":    {0, -1, "TEXT...", nil, cmdEcho},
		"free":    {1, 1, "VAR", nil, cmdFree},
	}

	hostTab = opTable{
		"sem":       {2, 3, "NAME COUNT [none|inherit]", nil, cmdSem},
		"mutex":     {1, 4, "NAME [normal|errorcheck|recursive] [robust] [noinherit]", nil, cmdMutex},
		"task":      {2, 3, "NAME PRIO [STACK]", taskTab, cmdTask},
		"thread":    {3, 3, "NAME PRIO PARENT", taskTab, cmdThread},
		"kthread":   {2, 3, "NAME PRIO [STACK]", taskTab, cmdKthread},
		"run":       {0, 0, "", nil, cmdRun},
		"tick":      {1, 1, "N", nil, cmdTick},
		"isr":       {0, 0, "", isrTab, cmdIsr},
		"wdog":      {2, 2, "NAME DELAY|cancel", isrTab, cmdWdog},
		"remaining": {1, 1, "WDOG", nil, cmdRemaining},
		"malloc":    {2, 3, "VAR SIZE [kmm]", nil, cmdMalloc},
		"free":      {1, 1, "VAR", nil, cmdFree},
		"realloc":   {2, 2, "VAR SIZE", nil, cmdRealloc},
		"echo":      {0, -1, "TEXT...", nil, cmdEcho},
		"ps":        {0, 0, "", nil, cmdPs},
		"mem":       {0, 0, "", nil, cmdMem},
		"dump":      {0, 0, "", nil, cmdDump},
		"value":     {1, 1, "SEM", nil, cmdValue},
		"owner":     {1, 1, "MUTEX", nil, cmdOwner},
		"state":     {1, 1, "TASK", nil, cmdState},
		"prio":      {1, 2, "TASK [PRIO]", nil, cmdPrio},
		"kill":      {1, 1, "TASK", nil, cmdKill},
		"check":     {0, 0, "", nil, cmdCheck},
	}
}

// Usage returns a usage line for every host command, sorted.
func Usage() []string {
	var lines []string
	for name, c := range hostTab {
		line := name
		if c.usage != "" {
			line += " " + c.usage
		}
		if c.ops != nil {
			line += ": OP..."
		}
		lines = append(lines, line)
	}
	sort.Strings(lines)
	return lines
}
