// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package mutex

import (
	"unsafe"

	"csmutex.dev/cs"
	"csmutex.dev/internal/noescape"
)

// Lock calls f exactly once with exclusive access to m's value and returns
// f's result. It panics if f is nil, without entering the critical section.
//
// Lock never allocates: f and its result travel to the critical-section
// provider in a frame on the caller's stack.
func Lock[T, R any](m Locker[T], f func(*T) R) R {
	if f == nil {
		panic("mutex: Lock with nil func")
	}
	fr := frame[T, R]{v: m.value(), f: f}
	fr.call = trampoline[T, R]
	m.critical(noescape.Pointer(unsafe.Pointer(&fr)), dispatch)
	if !fr.done {
		cs.Fatal(cs.ErrCallbackSkipped)
	}
	return fr.r
}

// Do calls f exactly once with exclusive access to m's value.
func Do[T any](m Locker[T], f func(*T)) {
	if f == nil {
		panic("mutex: Do with nil func")
	}
	Lock(m, func(v *T) struct{} {
		f(v)
		return struct{}{}
	})
}

// header is the part of every frame that dispatch can read without knowing
// the frame's type parameters. It must be the first field of frame.
type header struct {
	call func(unsafe.Pointer) // trampoline for the frame's T and R
}

// frame carries one Lock call through the provider.
type frame[T, R any] struct {
	header
	v    *T
	f    func(*T) R // nil once taken
	r    R
	done bool
}

// dispatch is the only callback providers ever see.
func dispatch(p unsafe.Pointer) {
	(*header)(p).call(p)
}

func trampoline[T, R any](p unsafe.Pointer) {
	fr := (*frame[T, R])(p)
	f := fr.f
	if f == nil {
		cs.Fatal(cs.ErrCallbackRepeated)
	}
	fr.f = nil
	fr.r = f(fr.v)
	fr.done = true
}
