package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsh2dsh/nbkp/config"
)

func TestStart_nilMonitoringIsNoop(t *testing.T) {
	s, err := Start(nil)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestStart_servesMetrics(t *testing.T) {
	s, err := Start(&config.PrometheusMonitoring{Listen: "127.0.0.1:0"})
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, s.Shutdown(ctx))
	}()

	ObserveRun("photos-to-usb", ResultOK, 1.5)

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "nbkp_sync_runs_total")
}
