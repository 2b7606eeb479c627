// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package cs provides critical sections: spans of execution during which
// nothing else that also uses a critical section can run.
//
// On a bare-metal single-core target the compiled-in Default masks
// interrupts; hosted builds use GlobalLock. Applications can replace it
// process-wide with Set, for example to mask a single interrupt line instead
// of all of them.
//
// Providers only ever see an opaque context pointer and a callback, so any
// caller, whatever it needs to carry into the critical section, can use any
// provider without allocating.
package cs

import (
	"errors"
	"sync/atomic"
	"unsafe"
)

// Func is a critical-section provider.
//
// It must call fn(ctx) exactly once, synchronously on the calling goroutine,
// and guarantee that no other critical section of the same exclusion domain
// runs concurrently with or re-entrantly inside that call. It must not retain
// ctx after returning: ctx usually points into the caller's stack.
type Func func(ctx unsafe.Pointer, fn func(ctx unsafe.Pointer))

var (
	// ErrUnsupported is the cause of the fatal error raised when a critical
	// section is entered on a platform without a default provider and no
	// provider was registered with Set.
	ErrUnsupported = errors.New("critical section not supported on this platform; register one with cs.Set")

	// ErrReentered is raised by Trap when a critical section is entered
	// while another one is active.
	ErrReentered = errors.New("critical section entered while another is active")

	// ErrCallbackSkipped is raised when a provider returns without calling
	// its callback.
	ErrCallbackSkipped = errors.New("critical section provider returned without running its callback")

	// ErrCallbackRepeated is raised when a provider calls its callback more
	// than once.
	ErrCallbackRepeated = errors.New("critical section provider ran its callback twice")

	// ErrUnknownProvider is raised for an unknown provider name.
	ErrUnknownProvider = errors.New("unknown critical section provider")
)

// FatalError is the panic value for configuration errors that must stop the
// program. Nothing in this module recovers from it.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "cs: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal panics with a *FatalError wrapping err.
func Fatal(err error) {
	panic(&FatalError{Err: err})
}

// the is the registered provider. nil means Default.
var the atomic.Pointer[Func]

// Set installs f as the critical section used by every subsequent Enter,
// replacing any previously registered provider. Set(nil) restores Default.
//
// Set is not safe to call while any critical section may be active or about
// to start: it replaces the exclusion mechanism itself, and nothing orders the
// change against in-flight callers. Call it once during initialization,
// before interrupts are enabled or goroutines are started.
func Set(f Func) {
	Swap(f)
}

// Swap is like Set but returns the previously registered provider, or nil if
// none was registered.
func Swap(f Func) (old Func) {
	var p *Func
	if f != nil {
		p = &f
	}
	if prev := the.Swap(p); prev != nil {
		return *prev
	}
	return nil
}

// Current returns the registered provider, or Default if none is registered.
func Current() Func {
	if p := the.Load(); p != nil {
		return *p
	}
	return Default
}

// Enter runs fn(ctx) inside the current critical section.
func Enter(ctx unsafe.Pointer, fn func(ctx unsafe.Pointer)) {
	Current()(ctx, fn)
}
