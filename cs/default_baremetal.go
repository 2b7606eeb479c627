// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build tinygo && baremetal

package cs

import (
	"runtime/interrupt"
	"unsafe"
)

// Default masks every interrupt on the current core while fn runs, then puts
// back the previous mask. A nested Default restores the already-masked state,
// so nesting is harmless.
func Default(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
	state := interrupt.Disable()
	fn(ctx)
	interrupt.Restore(state)
}
