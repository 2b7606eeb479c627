// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package mutex provides a mutual-exclusion cell around a value that works
// the same way on hosted and bare-metal targets.
//
// Mutex gets its exclusion from the process-wide critical section in package
// cs, which on a single-core microcontroller masks interrupts and so never
// waits. Hosted wraps a blocking lock. Both are used through Lock and Do:
//
//	var counter mutex.Mutex[int]
//
//	func tick() {
//		mutex.Do(&counter, func(n *int) { *n++ })
//	}
//
// Neither kind of mutex may be locked again from inside its own closure.
// Mutex leaves that case to the critical-section provider: masking
// interrupts nests harmlessly, cs.Trap panics and cs.GlobalLock deadlocks.
package mutex

import (
	"errors"
	"unsafe"

	"csmutex.dev/cs"
	"csmutex.dev/syncs"
)

// Locker is a value guarded by a mutex. It is implemented by *Mutex and
// *Hosted only.
type Locker[T any] interface {
	// value returns the guarded value. The pointer may only be
	// dereferenced inside critical.
	value() *T

	// critical runs fn(ctx) with exclusive access to the value.
	critical(ctx unsafe.Pointer, fn func(unsafe.Pointer))
}

// Mutex is a value guarded by the current critical section (see cs.Set).
// It has no lock state of its own.
//
// The zero value holds the zero T and is ready to use. A Mutex must not be
// copied after first use.
type Mutex[T any] struct {
	_ noCopy
	v T
}

// New returns a Mutex holding v.
func New[T any](v T) *Mutex[T] {
	return &Mutex[T]{v: v}
}

func (m *Mutex[T]) value() *T { return &m.v }

func (m *Mutex[T]) critical(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
	cs.Enter(ctx, fn)
}

// ErrPoisoned is the cause of the fatal error raised when locking a Hosted
// whose previous holder panicked.
var ErrPoisoned = errors.New("mutex: poisoned by a panic in an earlier critical section")

// Hosted is a value guarded by a blocking lock, for programs running under
// an operating system. Lock blocks the calling goroutine until the lock is
// free.
//
// If a closure panics while holding the lock, the lock is released and the
// Hosted is poisoned: every later Lock raises a fatal ErrPoisoned.
//
// The zero value holds the zero T and is ready to use. A Hosted must not be
// copied after first use.
type Hosted[T any] struct {
	mu       syncs.Mutex
	poisoned bool // guarded by mu
	v        T
}

// NewHosted returns a Hosted holding v.
func NewHosted[T any](v T) *Hosted[T] {
	return &Hosted[T]{v: v}
}

func (m *Hosted[T]) value() *T { return &m.v }

func (m *Hosted[T]) critical(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poisoned {
		cs.Fatal(ErrPoisoned)
	}
	ok := false
	defer func() {
		if !ok {
			m.poisoned = true
		}
	}()
	syncs.AssertLocked(&m.mu)
	fn(ctx)
	ok = true
}

// noCopy may be embedded into structs which must not be copied
// after the first use. See sync.noCopy.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
