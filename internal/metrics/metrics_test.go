package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeRegistersMetrics(t *testing.T) {
	srv := Serve("127.0.0.1:0")
	defer srv.Close()

	FillsTotal.WithLabelValues("mean_reversion", "BUY").Inc()
	RejectionsTotal.WithLabelValues("risk").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["quantfolio_fills_total"])
	assert.True(t, names["quantfolio_rejections_total"])
}

func TestEquityGauge(t *testing.T) {
	Equity.Set(101234.5)
	assert.Equal(t, 101234.5, testutil.ToFloat64(Equity))
}
