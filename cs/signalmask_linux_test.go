// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build linux && !baremetal

package cs

import (
	"runtime"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

func sigismember(set *unix.Sigset_t, sig unix.Signal) bool {
	n := uint(sig) - 1
	w := uint(unsafe.Sizeof(set.Val[0])) * 8
	return set.Val[n/w]&(1<<(n%w)) != 0
}

func currentSigmask(t *testing.T) unix.Sigset_t {
	t.Helper()
	var cur unix.Sigset_t
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, nil, &cur); err != nil {
		t.Fatal(err)
	}
	return cur
}

func TestSignalMaskBlocksAsyncSignals(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	before := currentSigmask(t)
	if sigismember(&before, unix.SIGURG) {
		t.Skip("SIGURG already blocked on this thread")
	}

	var inside unix.Sigset_t
	SignalMask(nil, func(unsafe.Pointer) {
		inside = currentSigmask(t)
	})
	for _, sig := range asyncSignals {
		if !sigismember(&inside, sig) {
			t.Errorf("%v not blocked inside SignalMask", sig)
		}
	}
	if sigismember(&inside, unix.SIGSEGV) {
		t.Errorf("SIGSEGV blocked inside SignalMask")
	}

	if after := currentSigmask(t); after != before {
		t.Errorf("signal mask not restored: before %v, after %v", before, after)
	}
}

func TestSignalMaskRestoreFailure(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	before := currentSigmask(t)

	orig := pthreadSigmask
	t.Cleanup(func() { pthreadSigmask = orig })
	pthreadSigmask = func(how int, set, oldset *unix.Sigset_t) error {
		if how == unix.SIG_SETMASK {
			orig(how, set, oldset) // leave the test thread usable
			return unix.EINVAL
		}
		return orig(how, set, oldset)
	}

	var n int
	wantFatal(t, unix.EINVAL, func() {
		SignalMask(unsafe.Pointer(&n), incr)
	})
	if n != 1 {
		t.Errorf("callback ran %d times; want 1", n)
	}
	if !globalMu.TryLock() {
		t.Fatal("global lock still held after a failed restore")
	}
	globalMu.Unlock()
	if after := currentSigmask(t); after != before {
		t.Errorf("signal mask not restored: before %v, after %v", before, after)
	}
}
