package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

func TestNilReceiversAreSafe(t *testing.T) {
	var e *EngineMetrics
	var m *MonitorMetrics
	var h *HTTPMetrics
	assert.NotPanics(t, func() {
		e.Observe("mint_dsc", time.Millisecond, nil)
		e.Liquidated()
		m.Scanned(1, time.Second, nil)
		h.Observe("GET /api/health", "GET", 200, time.Millisecond)
	})
}

func TestEngineObserveLabelsByErrorCode(t *testing.T) {
	e := Engine()
	assert.Same(t, e, Engine())

	wrapped := fmt.Errorf("engine: %w", &domain.HealthFactorError{})
	before := value(t, e.calls.WithLabelValues("mint_dsc_test", "breaks_health_factor"))
	e.Observe("mint_dsc_test", time.Millisecond, wrapped)
	after := value(t, e.calls.WithLabelValues("mint_dsc_test", "breaks_health_factor"))
	assert.Equal(t, before+1, after)

	e.Observe("mint_dsc_test", time.Millisecond, errors.New("disk on fire"))
	assert.Equal(t, float64(1), value(t, e.calls.WithLabelValues("mint_dsc_test", "internal")))
}

func TestMonitorGaugeKeepsLastGoodScan(t *testing.T) {
	m := Monitor()
	m.Scanned(4, time.Millisecond, nil)
	assert.Equal(t, float64(4), value(t, m.liquidatable))
	m.Scanned(0, time.Millisecond, errors.New("rpc down"))
	assert.Equal(t, float64(4), value(t, m.liquidatable))
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %v", m.Desc())
	return 0
}
