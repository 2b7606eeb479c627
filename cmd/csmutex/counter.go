// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"

	"csmutex.dev/cs"
	"csmutex.dev/mutex"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/prometheus/client_golang/prometheus"
)

type counterArgs struct {
	n        int
	provider string
	hosted   bool
	metrics  bool
}

func counterCmd() *ffcli.Command {
	var args counterArgs
	fs := newFlagSet("counter")
	fs.IntVar(&args.n, "n", 1000, "number of increments")
	fs.StringVar(&args.provider, "provider", "passthrough", "critical section provider (see 'csmutex providers')")
	fs.BoolVar(&args.hosted, "hosted", false, "use a blocking hosted mutex instead of a critical section")
	fs.BoolVar(&args.metrics, "metrics", false, "print critical section metrics when done")
	return &ffcli.Command{
		Name:       "counter",
		ShortUsage: "csmutex counter [-n 1000] [-provider passthrough] [-hosted] [-metrics]",
		ShortHelp:  "Increment a counter through a mutex n times",
		LongHelp: `The counter command wraps an integer in a mutex, increments it n times from
a single goroutine and checks the result. With -provider=unsupported it shows
the fatal error raised when no critical section is available.

A -hosted mutex never enters a critical section, so it ignores -provider and
cannot be combined with -metrics.`,
		FlagSet: fs,
		Exec: func(ctx context.Context, rest []string) error {
			return runCounter(ctx, args, rest)
		},
	}
}

func runCounter(ctx context.Context, args counterArgs, rest []string) error {
	if len(rest) > 0 {
		return fmt.Errorf("unexpected arguments: %q", rest)
	}
	if args.hosted && args.metrics {
		return errors.New("-metrics requires a critical-section mutex; drop -hosted")
	}
	var reg *prometheus.Registry
	if args.metrics {
		reg = prometheus.NewRegistry()
	}
	f, err := provider(args.provider, reg)
	if err != nil {
		return err
	}
	cs.Set(f)

	var m mutex.Locker[int] = mutex.New(0)
	if args.hosted {
		m = mutex.NewHosted(0)
	}
	for range args.n {
		mutex.Do(m, func(c *int) { *c += 1 })
	}
	got := mutex.Lock(m, func(c *int) int { return *c })
	outf("counter = %d\n", got)
	if args.hosted {
		logf("counter: %d increments with a hosted mutex", args.n)
	} else {
		logf("counter: %d increments with provider %q", args.n, args.provider)
	}

	if reg != nil {
		if err := writeMetrics(Stdout, reg); err != nil {
			return err
		}
	}
	if got != args.n {
		return fmt.Errorf("counter = %d; want %d", got, args.n)
	}
	return nil
}
