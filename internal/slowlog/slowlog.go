// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package slowlog remembers the most recent commands whose execution took
// longer than a configured threshold, mirroring the SLOWLOG command
// surface: GET, LEN, RESET, HELP.
package slowlog

import (
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/kvreactor/kvreactor/internal/list"
)

// MaxArgc bounds how many arguments an Entry stores; beyond it the last
// slot is replaced with a synthetic "... (N more arguments)" string.
const MaxArgc = 32

// MaxString bounds a single stored argument's length; beyond it the value
// is truncated with a synthetic "... (N more bytes)" suffix.
const MaxString = 128

// Entry is one recorded slow command.
type Entry struct {
	ID         int64
	WallTime   time.Time
	DurationUs int64
	Argv       []string
	Peer       string
	ClientName string
}

// HelpText is returned for the HELP subcommand, matching the original
// command surface line for line.
var HelpText = []string{
	"GET [count] -- Return top entries from the slowlog (default: 10).",
	"    Entries are made of:",
	"    id, timestamp, time in microseconds, arguments array, client IP and port, client name",
	"LEN -- Return the length of the slowlog.",
	"RESET -- Reset the slowlog.",
}

// Reaper exports an entry evicted from a Log when it overflows max
// length. Submit must not block the caller.
type Reaper interface {
	Submit(entry Entry) error
}

// Log is a bounded, insertion-ordered record of slow commands. Disabled
// when ThresholdUs is negative.
type Log struct {
	ThresholdUs int64
	MaxLen      int

	entries *list.List
	nextID  atomic.Int64
	reaper  Reaper
}

// New builds a Log with the given threshold (microseconds; negative
// disables recording) and maximum retained entry count. A nil reaper
// means evicted entries are simply dropped.
func New(thresholdUs int64, maxLen int, reaper Reaper) *Log {
	return &Log{
		ThresholdUs: thresholdUs,
		MaxLen:      maxLen,
		entries:     list.New(),
		reaper:      reaper,
	}
}

// RecordIfNeeded pushes a new entry for argv/peer/clientName if
// durationUs meets the threshold, then evicts from the tail until the
// length invariant (len <= MaxLen) holds again.
func (l *Log) RecordIfNeeded(argv []string, durationUs int64, peer, clientName string) {
	if l.ThresholdUs < 0 || durationUs < l.ThresholdUs {
		return
	}
	entry := &Entry{
		ID:         l.nextID.Inc() - 1,
		WallTime:   time.Now(),
		DurationUs: durationUs,
		Argv:       truncateArgv(argv),
		Peer:       peer,
		ClientName: clientName,
	}
	l.entries.PushFront(entry)
	for l.entries.Len() > l.MaxLen {
		tail := l.entries.Back()
		evicted := tail.Value().(*Entry)
		l.entries.Remove(tail)
		if l.reaper != nil {
			_ = l.reaper.Submit(*evicted)
		}
	}
}

// truncateArgv applies the MaxArgc/MaxString bounding rules: an
// over-length vector has its last kept slot replaced with a synthetic
// "more arguments" marker, and any individual string over MaxString gets
// a "more bytes" suffix.
func truncateArgv(argv []string) []string {
	n := len(argv)
	if n <= MaxArgc {
		out := make([]string, n)
		for i, s := range argv {
			out[i] = truncateString(s)
		}
		return out
	}
	out := make([]string, MaxArgc)
	for i := 0; i < MaxArgc-1; i++ {
		out[i] = truncateString(argv[i])
	}
	out[MaxArgc-1] = fmt.Sprintf("... (%d more arguments)", n-MaxArgc+1)
	return out
}

func truncateString(s string) string {
	if len(s) <= MaxString {
		return s
	}
	return fmt.Sprintf("%s... (%d more bytes)", s[:MaxString], len(s)-MaxString)
}

// Len returns the current entry count.
func (l *Log) Len() int {
	return l.entries.Len()
}

// Get returns the most recent count entries (default 10 if count <= 0),
// newest first.
func (l *Log) Get(count int) []Entry {
	if count <= 0 {
		count = 10
	}
	out := make([]Entry, 0, count)
	for n := l.entries.Front(); n != nil && len(out) < count; n = n.Next() {
		out = append(out, *n.Value().(*Entry))
	}
	return out
}

// Reset drops every entry.
func (l *Log) Reset() {
	l.entries.Clear()
}
