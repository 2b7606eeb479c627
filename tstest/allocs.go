// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package tstest

import (
	"runtime"
	"testing"
	"time"
	"unsafe"

	"csmutex.dev/cs"
)

// MinLockAllocs registers p as the critical section, runs f repeatedly and
// returns the fewest heap allocations any single run made. It stops early
// once a run makes none, after 200 runs, or after 2s.
//
// Allocations made by p itself count against f. The test fails if f never
// enters the critical section, since a lock-free f proves nothing about
// the cost of locking.
//
// GOMAXPROCS is 1 while f runs, so other goroutines' allocations do not
// show up in the count.
func MinLockAllocs(tb testing.TB, p cs.Func, f func()) uint64 {
	tb.Helper()
	var entered uint64
	SetCriticalSection(tb, func(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
		entered++
		p(ctx, fn)
	})
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	f() // warm up lazily initialized state
	if entered == 0 {
		tb.Fatal("f did not enter the critical section")
	}

	var ms runtime.MemStats
	best := ^uint64(0)
	deadline := time.Now().Add(2 * time.Second)
	for range 200 {
		runtime.ReadMemStats(&ms)
		before := ms.Mallocs
		f()
		runtime.ReadMemStats(&ms)
		best = min(best, ms.Mallocs-before)
		if best == 0 || time.Now().After(deadline) {
			break
		}
	}
	return best
}
