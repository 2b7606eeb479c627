// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build !linux || baremetal

package cs

import "unsafe"

// SignalMask is GlobalLock on platforms where per-thread signal masks are not
// available.
func SignalMask(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
	GlobalLock(ctx, fn)
}
