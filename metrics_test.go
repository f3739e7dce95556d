package boot

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountUnitOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	b := New(nil, WithMetrics(m))
	b.Use(Unit(func(*Scope) error { return nil }))
	b.Use(Unit(func(*Scope) error { return errBoom }))
	b.Use(Unit(func(*Scope) error { return nil })) // skipped

	_, err := b.Wait(waitCtx(t))
	require.ErrorIs(t, err, errBoom)

	// the root unit itself loads, so loaded = root + first unit
	assert.Equal(t, 2.0, testutil.ToFloat64(m.unitsTotal.WithLabelValues(statusLoaded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unitsTotal.WithLabelValues(statusFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unitsTotal.WithLabelValues(statusSkipped)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestMetricsObserveLoadDurations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	b := New(nil, WithMetrics(m))
	b.Use(Unit(func(*Scope) error { return nil }))
	_, err := b.Wait(waitCtx(t))
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "boot_unit_load_seconds"))
}

func TestMetricsPreinitializeLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.unitsTotal.WithLabelValues(statusLoaded)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.unitsTotal.WithLabelValues(statusFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.unitsTotal.WithLabelValues(statusSkipped)))
}
