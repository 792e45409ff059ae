package telemetry_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/telemetry"
)

func TestMetricsHandlerServesBlocksProducedCounter(t *testing.T) {
	m := telemetry.NewMetrics("kernel_test")
	m.BlocksProduced.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "kernel_test_blocks_produced_total 1")
}

func TestNewLoggerProduction(t *testing.T) {
	logger, err := telemetry.NewLogger("test", false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("hello")
}
