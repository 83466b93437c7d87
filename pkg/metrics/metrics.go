// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports link exchange metrics to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/beyarkay/chat-with-arduino/pkg/link"
	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the /metrics HTTP handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// LinkMetrics counts exchanges by opcode and outcome. It is a link.Observer.
type LinkMetrics struct {
	Exchanges      *prometheus.CounterVec   // labels: opcode, result
	Duration       *prometheus.HistogramVec // labels: opcode
	DrainedBytes   prometheus.Counter
	Resyncs        prometheus.Counter
	BytesSent      prometheus.Counter
	BytesReceived  prometheus.Counter
	LastClockValue prometheus.Gauge
}

// NewLinkMetrics registers and returns link metrics
func NewLinkMetrics(reg prometheus.Registerer) *LinkMetrics {
	m := &LinkMetrics{
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pinlink_exchanges_total",
			Help: "Completed exchanges by opcode and result.",
		}, []string{"opcode", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pinlink_exchange_duration_seconds",
			Help:    "Round trip time of exchanges.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"opcode"}),
		DrainedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pinlink_drained_bytes_total",
			Help: "Stale bytes discarded while resynchronizing.",
		}),
		Resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pinlink_resyncs_total",
			Help: "Exchanges preceded by a resync that discarded bytes.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pinlink_bytes_sent_total",
			Help: "Request bytes written to the transport.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pinlink_bytes_received_total",
			Help: "Reply bytes consumed from the transport.",
		}),
		LastClockValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pinlink_board_clock_milliseconds",
			Help: "Last READ_CLOCK value reported by the board.",
		}),
	}
	reg.MustRegister(m.Exchanges, m.Duration, m.DrainedBytes, m.Resyncs, m.BytesSent, m.BytesReceived, m.LastClockValue)
	return m
}

// Result returns the result label for an exchange error.
func Result(err error) string {
	var lerr *link.Error
	var ferr *pinproto.FrameError
	var perr *pinproto.ProtocolError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &lerr):
		switch lerr.Kind {
		case link.Timeout:
			return "timeout"
		case link.IO:
			return "io_error"
		case link.Canceled:
			return "canceled"
		}
		return "link_error"
	case errors.As(err, &ferr):
		return "frame_error"
	case errors.As(err, &perr):
		if perr.Kind == pinproto.Rejected {
			return "rejected"
		}
		return "invalid_value"
	default:
		return "error"
	}
}

// ObserveExchange records one exchange.
func (m *LinkMetrics) ObserveExchange(ex link.Exchange) {
	op := ex.Command.Opcode().String()
	m.Exchanges.WithLabelValues(op, Result(ex.Err)).Inc()
	m.Duration.WithLabelValues(op).Observe(ex.Duration.Seconds())
	m.BytesSent.Add(float64(len(ex.Request)))
	m.BytesReceived.Add(float64(len(ex.Response)))
	if ex.Drained > 0 {
		m.Resyncs.Inc()
		m.DrainedBytes.Add(float64(ex.Drained))
	}
	if ex.Err == nil && ex.Reply != nil && ex.Reply.Opcode == pinproto.OpReadClock {
		m.LastClockValue.Set(float64(ex.Reply.Value))
	}
}
