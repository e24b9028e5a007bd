// SPDX-License-Identifier: MIT
package metrics_test

import (
	"testing"

	"github.com/katalvlaran/parqg/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorsCount(t *testing.T) {
	before := testutil.ToFloat64(metrics.CutsAdded.WithLabelValues("root"))
	metrics.CutsAdded.WithLabelValues("root").Add(3)
	require.Equal(t, before+3, testutil.ToFloat64(metrics.CutsAdded.WithLabelValues("root")))

	metrics.Incumbent.Set(-2.5)
	require.Equal(t, -2.5, testutil.ToFloat64(metrics.Incumbent))
}
