// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package tstest provides utilities for use in unit tests.
package tstest

import (
	"testing"

	"csmutex.dev/cs"
)

// SetCriticalSection registers f as the process-wide critical section for
// the duration of the test and restores the previous one on cleanup.
// A nil f selects cs.Default.
//
// Tests that call it must not run in parallel with other tests that lock a
// mutex.Mutex.
func SetCriticalSection(tb testing.TB, f cs.Func) {
	tb.Helper()
	old := cs.Swap(f)
	tb.Cleanup(func() { cs.Set(old) })
}
