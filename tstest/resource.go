// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package tstest

import (
	"bytes"
	"reflect"
	"runtime"
	"runtime/pprof"
	"testing"
	"time"

	"csmutex.dev/cs"
	"github.com/google/go-cmp/cmp"
)

// ResourceCheck records the registered critical section and the running
// goroutines, and registers a cleanup on tb that fails the test if either
// changed by the time the test and its other cleanups are done. Call it
// first so that it runs last.
//
// A provider counts as unchanged if it is the same function (or closure of
// the same function literal), so restoring it with cs.Set is enough.
//
// It panics if called from a parallel test.
func ResourceCheck(tb testing.TB) {
	tb.Helper()
	// tb.Setenv panics in parallel tests, and both the provider slot and
	// the goroutine count are process-wide.
	tb.Setenv("CSMUTEX_CHECKING_RESOURCES", "1")
	startCS := funcID(cs.Current())
	startN, startStacks := goroutines()
	tb.Cleanup(func() {
		if tb.Failed() {
			// Panics are not reported through tb.Failed; see
			// https://github.com/golang/go/issues/49929.
			return
		}
		if funcID(cs.Current()) != startCS {
			tb.Errorf("critical section provider replaced and not restored; use tstest.SetCriticalSection")
		}
		// Workers may still be returning from their last critical section.
		for range 300 {
			if runtime.NumGoroutine() <= startN {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		endN, endStacks := goroutines()
		if endN <= startN {
			return
		}
		tb.Logf("goroutine diff:\n%v\n", cmp.Diff(startStacks, endStacks))
		tb.Errorf("goroutine count: expected %d, got %d\n", startN, endN)
	})
}

// funcID identifies the code behind f.
func funcID(f cs.Func) uintptr {
	return reflect.ValueOf(f).Pointer()
}

func goroutines() (int, []byte) {
	p := pprof.Lookup("goroutine")
	b := new(bytes.Buffer)
	p.WriteTo(b, 1)
	return p.Count(), b.Bytes()
}
