// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"bytes"
	"fmt"
	"log"
	"strconv"
	"strings"
	"testing"

	"csmutex.dev/tstest"
	qt "github.com/frankban/quicktest"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	tstest.ResourceCheck(t)
	tstest.SetCriticalSection(t, nil)
	var stdout, stderr bytes.Buffer
	oldOut, oldErr := Stdout, Stderr
	Stdout, Stderr = &stdout, &stderr
	t.Cleanup(func() { Stdout, Stderr = oldOut, oldErr })
	err := Run(args)
	t.Logf("stderr:\n%s", stderr.String())
	return stdout.String(), err
}

func TestCounter(t *testing.T) {
	for _, provider := range []string{"passthrough", "global", "signalmask", "irqsim"} {
		t.Run(provider, func(t *testing.T) {
			c := qt.New(t)
			out, err := run(t, "counter", "-n=1000", "-provider="+provider)
			c.Assert(err, qt.IsNil)
			c.Assert(out, qt.Equals, "counter = 1000\n")
		})
	}
}

func TestCounterHosted(t *testing.T) {
	c := qt.New(t)
	out, err := run(t, "counter", "-n=10", "-hosted")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, "counter = 10\n")
}

func TestCounterMetrics(t *testing.T) {
	c := qt.New(t)
	out, err := run(t, "counter", "-n=100", "-metrics")
	c.Assert(err, qt.IsNil)
	// 100 increments plus the final read.
	c.Assert(out, qt.Contains, `csmutex_critical_sections_total{provider="passthrough"} 101`)
	c.Assert(out, qt.Contains, "# TYPE csmutex_critical_section_seconds histogram")
}

func TestCounterUnknownProvider(t *testing.T) {
	c := qt.New(t)
	_, err := run(t, "counter", "-provider=nope")
	c.Assert(err, qt.ErrorMatches, `unknown provider "nope"; want one of .*`)
}

func TestCounterHostedMetrics(t *testing.T) {
	c := qt.New(t)
	_, err := run(t, "counter", "-hosted", "-metrics")
	c.Assert(err, qt.ErrorMatches, "-metrics requires a critical-section mutex.*")
}

func TestCounterFlagsPerRun(t *testing.T) {
	c := qt.New(t)
	out, err := run(t, "counter", "-n=7", "-provider=global")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, "counter = 7\n")
	out, err = run(t, "counter")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, "counter = 1000\n")
}

func TestIRQ(t *testing.T) {
	tests := []struct {
		mask       string
		interrupts int
		mainline   int
		want       string
	}{
		{"all", 200, 200, "counter = 400 (main line 200, handler 200)\nraised 250, delivered 250, ticks 50, lost 0\n"},
		{"line", 200, 200, "counter = 400 (main line 200, handler 200)\nraised 250, delivered 250, ticks 50, lost 0\n"},
		{"all", 300, 100, "counter = 400 (main line 100, handler 300)\nraised 375, delivered 375, ticks 75, lost 0\n"},
		{"line", 10, 100, "counter = 110 (main line 100, handler 10)\nraised 13, delivered 13, ticks 3, lost 0\n"},
		// Every interrupt lands between a main-line read and write.
		{"none", 200, 200, "counter = 200 (main line 200, handler 200)\nraised 250, delivered 250, ticks 50, lost 200\n"},
		{"none", 50, 200, "counter = 200 (main line 200, handler 50)\nraised 63, delivered 63, ticks 13, lost 50\n"},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("%s-%d-%d", tt.mask, tt.interrupts, tt.mainline)
		t.Run(name, func(t *testing.T) {
			c := qt.New(t)
			out, err := run(t, "irq",
				"-interrupts="+strconv.Itoa(tt.interrupts),
				"-mainline="+strconv.Itoa(tt.mainline),
				"-mask="+tt.mask)
			c.Assert(err, qt.IsNil)
			c.Assert(out, qt.Equals, tt.want)
		})
	}
}

func TestIRQBadMask(t *testing.T) {
	c := qt.New(t)
	_, err := run(t, "irq", "-mask=some")
	c.Assert(err, qt.ErrorMatches, `unknown -mask "some"`)
}

func TestProviders(t *testing.T) {
	c := qt.New(t)
	out, err := run(t, "providers")
	c.Assert(err, qt.IsNil)
	names := strings.Fields(out)
	for _, want := range []string{"default", "global", "irqsim", "passthrough", "signalmask", "unsupported"} {
		c.Check(names, qt.Contains, want)
	}
}

func TestHelp(t *testing.T) {
	c := qt.New(t)
	out, err := run(t, "-h")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, "")
}

func TestRedirectStdLog(t *testing.T) {
	c := qt.New(t)
	var got []string
	restore := redirectStdLog(func(format string, args ...any) {
		got = append(got, fmt.Sprintf(format, args...))
	})
	log.Printf("invalid boolean environment variable %s", "CSMUTEX_DEBUG_TRAP")
	restore()
	c.Assert(got, qt.DeepEquals, []string{"invalid boolean environment variable CSMUTEX_DEBUG_TRAP"})
}
