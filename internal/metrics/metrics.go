// Package metrics exposes the service's Prometheus collectors. Each group is
// registered once on the default registry the first time it is used; every
// method is safe on a nil receiver.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

const namespace = "dsc"

var (
	engineOnce sync.Once
	engineReg  *EngineMetrics

	monitorOnce sync.Once
	monitorReg  *MonitorMetrics

	httpOnce sync.Once
	httpReg  *HTTPMetrics
)

// EngineMetrics tracks engine calls.
type EngineMetrics struct {
	calls        *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations prometheus.Counter
}

// Engine returns the engine collectors.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineReg = &EngineMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "calls_total",
				Help:      "State-changing engine calls by operation and outcome code.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "call_duration_seconds",
				Help:      "Engine call latency including lock wait.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Successful liquidations.",
			}),
		}
		prometheus.MustRegister(engineReg.calls, engineReg.latency, engineReg.liquidations)
	})
	return engineReg
}

// Observe records one engine call.
func (m *EngineMetrics) Observe(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(op, domain.ErrorCode(err)).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

// Liquidated counts a successful liquidation.
func (m *EngineMetrics) Liquidated() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

// MonitorMetrics tracks the liquidation monitor.
type MonitorMetrics struct {
	liquidatable prometheus.Gauge
	scans        *prometheus.CounterVec
	scanLatency  prometheus.Histogram
}

// Monitor returns the monitor collectors.
func Monitor() *MonitorMetrics {
	monitorOnce.Do(func() {
		monitorReg = &MonitorMetrics{
			liquidatable: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "liquidatable_accounts",
				Help:      "Accounts below the minimum health factor at the last scan.",
			}),
			scans: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "scans_total",
				Help:      "Monitor scans by outcome.",
			}, []string{"outcome"}),
			scanLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "scan_duration_seconds",
				Help:      "Time to scan every account.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(monitorReg.liquidatable, monitorReg.scans, monitorReg.scanLatency)
	})
	return monitorReg
}

// Scanned records a finished scan and the number of liquidatable accounts.
func (m *MonitorMetrics) Scanned(liquidatable int, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else {
		m.liquidatable.Set(float64(liquidatable))
	}
	m.scans.WithLabelValues(outcome).Inc()
	m.scanLatency.Observe(d.Seconds())
}

// HTTPMetrics tracks API requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// HTTP returns the HTTP collectors.
func HTTP() *HTTPMetrics {
	httpOnce.Do(func() {
		httpReg = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "API requests by route pattern, method and status.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "API request latency by route pattern.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
		}
		prometheus.MustRegister(httpReg.requests, httpReg.latency)
	})
	return httpReg
}

// Observe records one request. route should be the mux pattern, not the raw
// path, to keep label cardinality bounded.
func (m *HTTPMetrics) Observe(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(d.Seconds())
}
