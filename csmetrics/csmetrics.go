// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package csmetrics exports Prometheus metrics about critical sections.
package csmetrics

import (
	"errors"
	"time"
	"unsafe"

	"csmutex.dev/cs"
	"github.com/prometheus/client_golang/prometheus"
)

func newTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "csmutex_critical_sections_total",
		Help: "Critical sections entered, by provider",
	}, []string{"provider"})
}

func newSeconds() *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "csmutex_critical_section_seconds",
		Help: "Time to enter, run and leave a critical section, by provider",
		// 12 buckets from 100ns to 100ms.
		Buckets: prometheus.ExponentialBucketsRange(1e-7, 0.1, 12),
	}, []string{"provider"})
}

// register registers c with reg, returning the already registered collector
// if an identical one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	var zero C
	return zero, err
}

// Instrument returns a provider that enters next and records each critical
// section in reg under the given provider name. Instrumenting several
// providers with the same reg shares the metric families.
func Instrument(name string, next cs.Func, reg prometheus.Registerer) (cs.Func, error) {
	total, err := register(reg, newTotal())
	if err != nil {
		return nil, err
	}
	seconds, err := register(reg, newSeconds())
	if err != nil {
		return nil, err
	}
	entered := total.WithLabelValues(name)
	took := seconds.WithLabelValues(name)
	return func(ctx unsafe.Pointer, fn func(unsafe.Pointer)) {
		start := time.Now()
		next(ctx, fn)
		took.Observe(time.Since(start).Seconds())
		entered.Inc()
	}, nil
}
