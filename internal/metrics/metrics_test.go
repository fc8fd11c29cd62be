package metrics

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Allocations.WithLabelValues("host_record", Result(nil)).Inc()
	m.Allocations.WithLabelValues("host_record", Result(errors.New("x"))).Inc()
	m.RangeFallbacks.Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Allocations.WithLabelValues("host_record", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Allocations.WithLabelValues("host_record", "error")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RangeFallbacks))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "ddi_ipam_allocations_total")
	assert.Contains(t, names, "ddi_ipam_range_fallbacks_total")

	assert.NotPanics(t, func() { New(nil) })
}
