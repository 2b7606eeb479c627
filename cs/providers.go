// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package cs

import (
	"sync/atomic"
	"unsafe"

	"csmutex.dev/internal/noescape"
	"csmutex.dev/syncs"
	"csmutex.dev/types/logger"
)

// Passthrough calls fn directly without any exclusion. It is only correct
// when nothing else can run concurrently, such as single-goroutine programs
// and tests.
func Passthrough(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
	fn(ctx)
}

// Unsupported raises a fatal ErrUnsupported every time it is entered.
// Running without exclusion would be a silent correctness bug.
func Unsupported(unsafe.Pointer, func(unsafe.Pointer)) {
	Fatal(ErrUnsupported)
}

var globalMu syncs.Mutex

// GlobalLock serializes all critical sections in the process with a single
// blocking lock. It is the hosted equivalent of masking every interrupt.
//
// Entering GlobalLock again from inside one of its critical sections
// deadlocks.
func GlobalLock(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
	globalMu.Lock()
	defer globalMu.Unlock()
	fn(ctx)
}

// Trap returns a provider that enters next and raises a fatal ErrReentered
// if a critical section is already active inside it.
//
// The check runs inside next, so it only fires for providers that let a
// nested call through, such as interrupt masking or Passthrough; a nested
// GlobalLock deadlocks before Trap can see it.
func Trap(next Func) Func {
	t := new(trap)
	return func(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
		t.enter(next, ctx, fn)
	}
}

type trap struct {
	busy atomic.Bool
}

type trapFrame struct {
	t   *trap
	ctx unsafe.Pointer
	fn  func(unsafe.Pointer)
}

func (t *trap) enter(next Func, ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
	f := trapFrame{t: t, ctx: ctx, fn: fn}
	next(noescape.Pointer(unsafe.Pointer(&f)), trapped)
}

func trapped(p unsafe.Pointer) {
	f := (*trapFrame)(p)
	if !f.t.busy.CompareAndSwap(false, true) {
		Fatal(ErrReentered)
	}
	defer f.t.busy.Store(false)
	f.fn(f.ctx)
}

// Traced returns a provider that enters next and logs each entry and exit to
// logf along with the number of critical sections in flight, including ones
// still waiting to enter. logf should be rate limited; see
// logger.RateLimitedFn.
func Traced(next Func, logf logger.Logf) Func {
	var inFlight atomic.Int32
	return func(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		logf("cs: enter (in flight %d)", n)
		next(ctx, fn)
		logf("cs: exit (in flight %d)", n)
	}
}
