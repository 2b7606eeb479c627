// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// The csmutex command exercises critical-section mutexes with the hosted
// providers and the simulated interrupt controller.
package main // import "csmutex.dev/cmd/csmutex"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"csmutex.dev/cs"
	"csmutex.dev/csmetrics"
	"csmutex.dev/envknob"
	"csmutex.dev/irqsim"
	"csmutex.dev/types/logger"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Stdout and Stderr are where the command writes; tests replace them.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

func outf(format string, a ...any) {
	fmt.Fprintf(Stdout, format, a...)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(Stderr)
	return fs
}

var rootArgs struct {
	verbose bool
	trace   bool
}

// logf is the command's logger, set up by Run.
var logf logger.Logf = logger.Discard

func init() {
	// A core with no interrupt sources: masking it is the bare-metal
	// default provider without any hardware.
	cs.Register("irqsim", irqsim.NewCore(1).CriticalSection)
}

// Run runs the CLI. The args do not include the binary name.
func Run(args []string) error {
	rootfs := newFlagSet("csmutex")
	rootfs.BoolVar(&rootArgs.verbose, "verbose", false, "log at debug level")
	rootfs.BoolVar(&rootArgs.trace, "trace", false, "log critical section entry and exit (rate limited)")

	rootCmd := &ffcli.Command{
		Name:       "csmutex",
		ShortUsage: "csmutex [flags] <subcommand> [command flags]",
		ShortHelp:  "Exercise critical-section mutexes.",
		LongHelp: strings.TrimSpace(`
Flags may also be set with CSMUTEX_-prefixed environment variables, and
knobs such as CSMUTEX_HOSTED_PROVIDER may be loaded from the file named by
CSMUTEX_ENV_FILE.
`),
		FlagSet: rootfs,
		Options: []ff.Option{ff.WithEnvVarPrefix("CSMUTEX")},
		Subcommands: []*ffcli.Command{
			counterCmd(),
			irqCmd(),
			providersCmd(),
		},
		Exec: func(context.Context, []string) error { return flag.ErrHelp },
	}

	if err := rootCmd.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	zl := newLogger(rootArgs.verbose)
	defer zl.Sync()
	logf = zl.Infof
	defer redirectStdLog(zl.Warnf)()

	if err := envknob.ApplyEnvFile(); err != nil {
		return err
	}
	envknob.LogCurrent(zl.Debugf)

	err := rootCmd.Run(context.Background())
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func newLogger(verbose bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(Stderr), zap.NewAtomicLevelAt(level))
	return zap.New(core).Sugar()
}

// redirectStdLog sends the standard logger's output, such as envknob's
// complaints about malformed knobs, to logf. It returns a func that undoes
// the redirect.
func redirectStdLog(logf logger.Logf) (restore func()) {
	w, flags := log.Writer(), log.Flags()
	log.SetFlags(0)
	log.SetOutput(logger.FuncWriter(func(format string, args ...any) {
		logf("%s", strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
	}))
	return func() {
		log.SetOutput(w)
		log.SetFlags(flags)
	}
}

// provider returns the named critical section, wrapped for tracing if
// requested and instrumented in reg if reg is non-nil.
func provider(name string, reg *prometheus.Registry) (cs.Func, error) {
	f, ok := cs.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q; want one of %s", name, strings.Join(cs.Names(), ", "))
	}
	return wrap(name, f, reg)
}

func wrap(name string, f cs.Func, reg *prometheus.Registry) (cs.Func, error) {
	if rootArgs.trace {
		f = cs.Traced(f, logger.RateLimitedFn(logger.WithPrefix(logf, name+": "), time.Second, 5, 10))
	}
	if reg == nil {
		return f, nil
	}
	return csmetrics.Instrument(name, f, reg)
}

// writeMetrics writes everything in g in the Prometheus text format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
