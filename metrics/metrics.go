// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes Prometheus metrics about keep-alive exchanges.
package metrics // import "github.com/go-lpc/keepalive/metrics"

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "keepalive"

// Exchange collects metrics about keep-alive exchanges.
// A nil *Exchange discards all observations.
type Exchange struct {
	exchanges *prometheus.CounterVec
	messages  prometheus.Counter
	bytes     prometheus.Counter
	samples   *prometheus.CounterVec
	latency   prometheus.Histogram
}

// New creates the exchange metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Exchange, error) {
	m := &Exchange{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Keep-alive exchanges, by outcome.",
		}, []string{"status"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Physical response messages received.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Bytes of physical response messages received.",
		}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Sensor samples received and checked, by sensor.",
		}, []string{"sensor"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time from keep-alive request to complete reply.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.exchanges, m.messages, m.bytes, m.samples, m.latency,
	} {
		err := reg.Register(c)
		if err != nil {
			return nil, fmt.Errorf("metrics: could not register collector: %w", err)
		}
	}

	return m, nil
}

// Observe records the outcome of one exchange.
func (m *Exchange) Observe(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(status).Inc()
	m.latency.Observe(elapsed.Seconds())
}

// Received records n physical messages totalling size bytes.
func (m *Exchange) Received(n, size int) {
	if m == nil {
		return
	}
	m.messages.Add(float64(n))
	m.bytes.Add(float64(size))
}

// Samples records n checked samples of the named sensor.
func (m *Exchange) Samples(sensor string, n int) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(sensor).Add(float64(n))
}
