// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build !csmutex_debug

package syncs

import "sync"

// Mutex is an alias for sync.Mutex.
//
// It's only not a sync.Mutex when built with the csmutex_debug build tag.
type Mutex = sync.Mutex

// AssertLocked panics if m is not locked.
//
// It only checks anything when built with the csmutex_debug build tag.
func AssertLocked(m *Mutex) {}
