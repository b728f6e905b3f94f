// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"net/http"
	"strings"
	"testing"

	"github.com/dev-BJ/CleanEnv-Dashboard/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &stubSession{snap: connectedSnapshot()})

	rec := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, "tegmon_connected 1")
	require.Contains(t, body, "tegmon_receiving_data 1")
	require.Contains(t, body, `tegmon_quality{quality="excellent"} 1`)
	require.Contains(t, body, `tegmon_quality{quality="poor"} 0`)
	require.Contains(t, body, "tegmon_history_readings 1")
	require.Contains(t, body, "tegmon_last_update_age_seconds")
	require.Contains(t, body, `tegmon_reading{channel="battery_voltage"} 12.6`)
	require.Contains(t, body, `tegmon_reading{channel="temperature"} 25.3`)
}

func TestCollectorIdle(t *testing.T) {
	c := newCollector(&stubSession{snap: telemetry.Snapshot{
		Quality: telemetry.QualityDisconnected,
	}})

	expected := `
# HELP tegmon_connected Whether the broker session is connected (1) or not (0).
# TYPE tegmon_connected gauge
tegmon_connected 0
# HELP tegmon_history_readings Number of readings in the rolling history.
# TYPE tegmon_history_readings gauge
tegmon_history_readings 0
# HELP tegmon_quality Current connection quality; the active class is 1.
# TYPE tegmon_quality gauge
tegmon_quality{quality="disconnected"} 1
tegmon_quality{quality="excellent"} 0
tegmon_quality{quality="good"} 0
tegmon_quality{quality="poor"} 0
`
	require.NoError(t, testutil.CollectAndCompare(
		c,
		strings.NewReader(expected),
		"tegmon_connected",
		"tegmon_history_readings",
		"tegmon_quality",
	))

	// Age and per-channel readings are absent until data arrives.
	require.Equal(t, 7, testutil.CollectAndCount(c))
}
