// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build csmutex_debug

package syncs

import (
	"sync"
	"sync/atomic"
)

// Mutex is a sync.Mutex that remembers whether it is held.
type Mutex struct {
	mu   sync.Mutex
	held atomic.Bool
}

func (m *Mutex) Lock() {
	m.mu.Lock()
	m.held.Store(true)
}

func (m *Mutex) TryLock() bool {
	if !m.mu.TryLock() {
		return false
	}
	m.held.Store(true)
	return true
}

func (m *Mutex) Unlock() {
	if !m.held.Swap(false) {
		panic("syncs: unlock of unlocked mutex")
	}
	m.mu.Unlock()
}

// AssertLocked panics if m is not locked.
func AssertLocked(m *Mutex) {
	if !m.held.Load() {
		panic("mutex is not locked")
	}
}
