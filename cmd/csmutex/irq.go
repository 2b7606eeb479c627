// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"fmt"

	"csmutex.dev/cs"
	"csmutex.dev/irqsim"
	"csmutex.dev/mutex"
	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/sync/errgroup"
)

type irqArgs struct {
	interrupts int
	mainline   int
	mask       string
}

func irqCmd() *ffcli.Command {
	var args irqArgs
	fs := newFlagSet("irq")
	fs.IntVar(&args.interrupts, "interrupts", 500, "number of counter interrupts to raise")
	fs.IntVar(&args.mainline, "mainline", 500, "number of main-line increments")
	fs.StringVar(&args.mask, "mask", "all", `critical section: "all", "line" or "none"`)
	return &ffcli.Command{
		Name:       "irq",
		ShortUsage: "csmutex irq [-interrupts 500] [-mainline 500] [-mask all|line|none]",
		ShortHelp:  "Share a counter between main-line code and an interrupt handler",
		LongHelp: `The irq command runs a simulated single-core microcontroller. Main-line code
and the handler for interrupt line 0 both increment a counter held in a
mutex. An interrupt source on another goroutine raises line 0 in the middle
of each main-line increment, between its read and its write. Every fourth
raise also ticks line 1, which has a lower priority and never touches the
counter.

-mask selects the critical section: "all" masks every interrupt, "line"
masks only line 0, and "none" uses no masking at all, so every interrupt
that lands inside an increment loses an update.`,
		FlagSet: fs,
		Exec: func(ctx context.Context, rest []string) error {
			return runIRQ(ctx, args, rest)
		},
	}
}

const (
	counterLine = 0
	tickLine    = 1
)

func runIRQ(ctx context.Context, args irqArgs, rest []string) error {
	if len(rest) > 0 {
		return fmt.Errorf("unexpected arguments: %q", rest)
	}
	if args.interrupts < 0 || args.mainline < 0 {
		return fmt.Errorf("-interrupts and -mainline must not be negative")
	}
	core := irqsim.NewCore(2)

	var f cs.Func
	switch args.mask {
	case "all":
		f = core.CriticalSection
	case "line":
		f = core.Line(counterLine).CriticalSection
	case "none":
		f = cs.Passthrough
	default:
		return fmt.Errorf("unknown -mask %q", args.mask)
	}
	f, err := wrap("irqsim-"+args.mask, f, nil)
	if err != nil {
		return err
	}
	cs.Set(f)

	var counter mutex.Mutex[int]
	var ticks int
	core.Line(counterLine).Handle(func() {
		mutex.Do(&counter, func(v *int) { *v += 1 })
	})
	core.Line(tickLine).Handle(func() { ticks++ })
	core.Line(tickLine).SetPriority(1)
	core.Line(counterLine).Enable()
	core.Line(tickLine).Enable()

	// The interrupt source raises whatever lines the core asks for and
	// acknowledges once they are pending. Each raise is delivered before
	// the next one is requested, so none coalesce.
	req := make(chan []int)
	ack := make(chan struct{})
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case lines, ok := <-req:
				if !ok {
					return nil
				}
				for _, n := range lines {
					core.Raise(n)
				}
				ack <- struct{}{}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	raised := 0
	raise := func() error {
		if raised == args.interrupts {
			return nil
		}
		lines := []int{counterLine}
		if raised%4 == 0 {
			lines = append(lines, tickLine)
		}
		raised++
		select {
		case req <- lines:
		case <-ctx.Done():
			return ctx.Err()
		}
		<-ack
		return nil
	}
	g.Go(func() error {
		// The core's only execution context.
		defer close(req)
		for range args.mainline {
			err := mutex.Lock(&counter, func(v *int) error {
				x := *v
				if err := raise(); err != nil {
					return err
				}
				core.Step()
				*v = x + 1
				return nil
			})
			if err != nil {
				return err
			}
			core.Step()
		}
		for raised < args.interrupts {
			if err := raise(); err != nil {
				return err
			}
			core.Step()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	st := core.Stats()
	got := mutex.Lock(&counter, func(v *int) int { return *v })
	handled := int(core.Line(counterLine).Delivered())
	want := args.mainline + handled
	outf("counter = %d (main line %d, handler %d)\n", got, args.mainline, handled)
	outf("raised %d, delivered %d, ticks %d, lost %d\n", st.Raised, st.Delivered, ticks, want-got)
	logf("irq: mask %q done", args.mask)

	if got != want && args.mask != "none" {
		return fmt.Errorf("lost %d updates with -mask=%s", want-got, args.mask)
	}
	return nil
}
