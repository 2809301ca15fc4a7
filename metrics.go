// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "jsonrpc_client"

// Request modes and cancellation stages used as metric labels.
const (
	modeCall   = "call"
	modeAsync  = "async"
	modeNotify = "notify"

	stageQueued    = "queued"
	stageInflight  = "inflight"
	stageCompleted = "completed"
)

// metrics are shared by every client registered on the same Registerer.
type metrics struct {
	requests       *prometheus.CounterVec
	canceled       *prometheus.CounterVec
	inflight       *level
	queued         *level
	drains         prometheus.Counter
	callbackPanics prometheus.Counter
	spare          *level
}

// level is one client's contribution to a gauge that other clients may share.
// Set moves the gauge by the difference from this client's previous value.
type level struct {
	prometheus.Gauge

	mu   sync.Mutex
	last float64
}

func (l *level) Set(v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Gauge.Add(v - l.last)
	l.last = v
}

// register registers c on reg, returning the collector registered earlier
// under the same descriptor if there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "requests_total",
		Help:      "Requests built, by calling mode.",
	}, []string{"mode"})
	canceled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "canceled_total",
		Help:      "Requests canceled, by lifecycle stage at the time of cancellation.",
	}, []string{"stage"})
	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "inflight",
		Help:      "Non-blocking requests currently on the transport.",
	})
	queued := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "queued",
		Help:      "Non-blocking requests waiting for a send slot.",
	})
	drains := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "drains_total",
		Help:      "Scheduler drain passes executed.",
	})
	callbackPanics := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "callback_panics_total",
		Help:      "Callbacks that panicked and were routed to the exception handler.",
	})
	spare := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "pool_spare",
		Help:      "Idle transport handles kept by the pool.",
	})

	if reg != nil {
		var errs []error
		var err error
		requests, err = register(reg, requests)
		errs = append(errs, err)
		canceled, err = register(reg, canceled)
		errs = append(errs, err)
		inflight, err = register(reg, inflight)
		errs = append(errs, err)
		queued, err = register(reg, queued)
		errs = append(errs, err)
		drains, err = register(reg, drains)
		errs = append(errs, err)
		callbackPanics, err = register(reg, callbackPanics)
		errs = append(errs, err)
		spare, err = register(reg, spare)
		errs = append(errs, err)
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
	}

	return &metrics{
		requests:       requests,
		canceled:       canceled,
		inflight:       &level{Gauge: inflight},
		queued:         &level{Gauge: queued},
		drains:         drains,
		callbackPanics: callbackPanics,
		spare:          &level{Gauge: spare},
	}, nil
}
