// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package irqsim simulates the interrupt controller of a single-core
// microcontroller, so code written against interrupt masking can run and be
// tested on a hosted system.
//
// A Core has a single execution context: the goroutine that drives it. Only
// Raise and Stats may be called from other goroutines. Raised interrupts stay
// pending until the driving goroutine reaches a delivery point: Step, a
// Restore that unmasks interrupts, or enabling a pending line. Handlers run
// on the driving goroutine with all interrupts masked, so handlers never nest.
package irqsim

import (
	"fmt"
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// MaxLines is the maximum number of interrupt lines on a Core.
const MaxLines = 64

// State is the global interrupt mask saved by Disable. It is true if
// interrupts were already masked.
type State bool

// Core is a simulated single-core interrupt controller.
type Core struct {
	masked bool
	lines  []Line

	pending   atomic.Uint64 // bit n set if line n is pending
	raised    atomic.Uint64
	delivered atomic.Uint64
}

// NewCore returns a Core with the given number of interrupt lines, all
// disabled, and interrupts globally unmasked.
func NewCore(lines int) *Core {
	if lines < 1 || lines > MaxLines {
		panic(fmt.Sprintf("irqsim: %d lines; want 1 to %d", lines, MaxLines))
	}
	c := &Core{lines: make([]Line, lines)}
	for i := range c.lines {
		l := &c.lines[i]
		l.core = c
		l.n = i
	}
	return c
}

// Line returns interrupt line n.
func (c *Core) Line(n int) *Line {
	return &c.lines[n]
}

// Disable masks all interrupts and returns the previous mask state.
func (c *Core) Disable() State {
	s := State(c.masked)
	c.masked = true
	return s
}

// Restore puts back a mask state returned by Disable. If that unmasks
// interrupts, pending interrupts are delivered before Restore returns.
func (c *Core) Restore(s State) {
	c.masked = bool(s)
	c.deliver()
}

// Masked reports whether interrupts are globally masked.
func (c *Core) Masked() bool { return c.masked }

// Raise marks line n pending. It is safe to call from any goroutine. Raising
// a line that is already pending has no further effect, as on hardware.
func (c *Core) Raise(n int) {
	if n < 0 || n >= len(c.lines) {
		panic(fmt.Sprintf("irqsim: raise of line %d on a core with %d lines", n, len(c.lines)))
	}
	c.raised.Add(1)
	c.pending.Or(1 << n)
}

// Step is a point in main-line code where pending interrupts may preempt it.
// Unless interrupts are masked, every pending interrupt on an enabled line is
// delivered before Step returns.
func (c *Core) Step() {
	c.deliver()
}

// CriticalSection is a cs.Func that masks all interrupts on c while fn runs.
// Like the hardware it models, nesting is harmless.
func (c *Core) CriticalSection(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
	s := c.Disable()
	fn(ctx)
	c.Restore(s)
}

func (c *Core) deliver() {
	for !c.masked {
		l := c.next()
		if l == nil {
			return
		}
		c.pending.And(^(uint64(1) << l.n))
		l.delivered.Add(1)
		c.delivered.Add(1)
		c.masked = true
		if l.handler != nil {
			l.handler()
		}
		c.masked = false
	}
}

// next returns the pending, enabled line with the lowest priority value,
// breaking ties by line number, or nil.
func (c *Core) next() *Line {
	var best *Line
	for p := c.pending.Load(); p != 0; p &= p - 1 {
		l := &c.lines[bits.TrailingZeros64(p)]
		if !l.enabled {
			continue
		}
		if best == nil || l.priority < best.priority {
			best = l
		}
	}
	return best
}

// Stats are counters for a Core.
type Stats struct {
	Raised    uint64 // calls to Raise
	Delivered uint64 // handler invocations
	Pending   int    // lines currently pending
}

// Stats returns c's counters. It is safe to call from any goroutine.
func (c *Core) Stats() Stats {
	return Stats{
		Raised:    c.raised.Load(),
		Delivered: c.delivered.Load(),
		Pending:   bits.OnesCount64(c.pending.Load()),
	}
}

// Line is one interrupt line of a Core.
type Line struct {
	core     *Core
	n        int
	enabled  bool
	priority uint8
	handler  func()

	delivered atomic.Uint64
}

// Handle sets the handler run when l is delivered.
func (l *Line) Handle(fn func()) {
	l.handler = fn
}

// Enable unmasks l. If l is pending and interrupts are not globally masked,
// it is delivered before Enable returns.
func (l *Line) Enable() {
	l.enabled = true
	l.core.deliver()
}

// Disable masks l. Raises stay pending until it is enabled again.
func (l *Line) Disable() {
	l.enabled = false
}

// Enabled reports whether l is unmasked.
func (l *Line) Enabled() bool { return l.enabled }

// SetPriority sets l's priority. Lower values are delivered first.
func (l *Line) SetPriority(p uint8) {
	l.priority = p
}

// Pending reports whether l has been raised but not yet delivered.
func (l *Line) Pending() bool {
	return l.core.pending.Load()&(1<<l.n) != 0
}

// Delivered returns the number of times l's handler was run.
func (l *Line) Delivered() uint64 {
	return l.delivered.Load()
}

// CriticalSection is a cs.Func that masks only l while fn runs, leaving
// other lines free to preempt fn.
func (l *Line) CriticalSection(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
	was := l.enabled
	l.enabled = false
	fn(ctx)
	l.enabled = was
	l.core.deliver()
}
