package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/internal/metrics"
	"github.com/BaSui01/speechflow/testutil"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	c := metrics.NewCollector("server_test", nil, nil)
	c.RecordSessionStart()

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	return NewManager(NewMetricsHandler(c.Gatherer()), cfg, zap.NewNop())
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestManager_ServesMetrics(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	status, body := get(t, "http://"+m.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "server_test_")

	status, body = get(t, "http://"+m.Addr()+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)
}

func TestManager_DoubleStart(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	err := m.Start()
	assert.ErrorContains(t, err, "already started")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())

	assert.ErrorContains(t, m.Start(), "closed")
}

func TestManager_Run(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	testutil.AssertEventuallyTrue(t, func() bool {
		resp, err := http.Get("http://" + m.Addr() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second)

	cancel()
	err, ok := testutil.WaitForChannel(errCh, 5*time.Second)
	require.True(t, ok)
	assert.NoError(t, err)
	assert.False(t, m.IsRunning())
}

func TestManager_RunListenError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "256.0.0.1:0"
	m := NewManager(NewMetricsHandler(nil), cfg, nil)

	err := m.Run(context.Background())
	assert.ErrorContains(t, err, "failed to listen")
}
