// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package cs

import (
	"fmt"
	"sort"

	"csmutex.dev/syncs"
)

var (
	namedMu syncs.Mutex
	named   = map[string]Func{
		"default":     Default,
		"global":      GlobalLock,
		"passthrough": Passthrough,
		"signalmask":  SignalMask,
		"unsupported": Unsupported,
	}
)

// Register makes f available to Lookup under name. It panics if name is
// already taken.
func Register(name string, f Func) {
	namedMu.Lock()
	defer namedMu.Unlock()
	if _, dup := named[name]; dup {
		panic(fmt.Sprintf("cs: provider %q already registered", name))
	}
	named[name] = f
}

// Lookup returns the provider registered under name.
func Lookup(name string) (f Func, ok bool) {
	namedMu.Lock()
	defer namedMu.Unlock()
	f, ok = named[name]
	return f, ok
}

// MustLookup is like Lookup but raises a fatal ErrUnknownProvider if name is
// not registered.
func MustLookup(name string) Func {
	f, ok := Lookup(name)
	if !ok {
		Fatal(fmt.Errorf("%w %q", ErrUnknownProvider, name))
	}
	return f
}

// Names returns the sorted names of all registered providers.
func Names() []string {
	namedMu.Lock()
	defer namedMu.Unlock()
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
