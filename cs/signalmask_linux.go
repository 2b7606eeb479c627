// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build linux && !baremetal

package cs

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// asyncSignals are the signals SignalMask blocks. Synchronous signals such as
// SIGSEGV stay deliverable: the Go runtime turns them into panics.
var asyncSignals = []unix.Signal{
	unix.SIGHUP,
	unix.SIGINT,
	unix.SIGQUIT,
	unix.SIGTERM,
	unix.SIGUSR1,
	unix.SIGUSR2,
	unix.SIGALRM,
	unix.SIGCHLD,
	unix.SIGURG, // asynchronous preemption
	unix.SIGWINCH,
	unix.SIGPROF,
	unix.SIGVTALRM,
	unix.SIGIO,
}

var asyncSigset = func() (set unix.Sigset_t) {
	for _, sig := range asyncSignals {
		sigaddset(&set, sig)
	}
	return set
}()

var pthreadSigmask = unix.PthreadSigmask

func sigaddset(set *unix.Sigset_t, sig unix.Signal) {
	n := uint(sig) - 1
	w := uint(unsafe.Sizeof(set.Val[0])) * 8
	set.Val[n/w] |= 1 << (n % w)
}

// SignalMask is GlobalLock with asynchronous signal delivery, including the
// runtime's preemption signal, blocked on the current OS thread while fn
// runs. It is the closest hosted analog of masking interrupts.
//
// Like GlobalLock, it deadlocks if entered again from inside fn.
func SignalMask(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var old unix.Sigset_t
	if err := pthreadSigmask(unix.SIG_BLOCK, &asyncSigset, &old); err != nil {
		Fatal(err)
	}
	defer func() {
		if err := pthreadSigmask(unix.SIG_SETMASK, &old, nil); err != nil {
			Fatal(err)
		}
	}()

	GlobalLock(ctx, fn)
}
