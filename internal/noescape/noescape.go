// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package noescape hides pointers from the compiler's escape analysis.
//
// It is the same trick the standard library uses for strings.Builder. A pointer
// laundered through Pointer must not outlive the stack frame it points into:
// it may only be passed down the call stack of the goroutine that owns it.
package noescape

import "unsafe"

// Pointer returns p unchanged, but the compiler no longer considers p to
// escape through the result.
//
//go:nosplit
//go:nocheckptr
func Pointer(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
