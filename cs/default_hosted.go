// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build !(tinygo && baremetal)

package cs

import (
	"fmt"
	"unsafe"

	"csmutex.dev/envknob"
)

var (
	// hostedProvider names the provider Default uses on hosted builds.
	// Empty means GlobalLock.
	hostedProvider = envknob.RegisterString("CSMUTEX_HOSTED_PROVIDER")

	// debugTrap wraps Default's provider in a re-entrancy trap.
	debugTrap = envknob.RegisterBool("CSMUTEX_DEBUG_TRAP")

	defaultTrap trap
)

// Default is the compiled-in critical section.
//
// Hosted builds have no interrupts to mask, so Default is GlobalLock, a
// blocking lock. The CSMUTEX_HOSTED_PROVIDER knob selects another provider:
// global, signalmask, passthrough or unsupported.
func Default(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
	next := hostedDefault()
	if debugTrap() {
		defaultTrap.enter(next, ctx, fn)
		return
	}
	next(ctx, fn)
}

func hostedDefault() Func {
	switch name := hostedProvider(); name {
	case "", "global":
		return GlobalLock
	case "signalmask":
		return SignalMask
	case "passthrough":
		return Passthrough
	case "unsupported":
		return Unsupported
	default:
		Fatal(fmt.Errorf("%w: CSMUTEX_HOSTED_PROVIDER=%q", ErrUnknownProvider, name))
		panic("unreachable")
	}
}
