package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/speechflow/internal/metrics"
	"github.com/BaSui01/speechflow/types"
)

func TestHTTPClient_HeadersAndJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-test", r.Header.Get(HeaderAPIKey))
		assert.Equal(t, "2024-06-10", r.Header.Get(HeaderVersion))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "/v1/echo", r.URL.Path)

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["say"]})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{
		BaseURL: srv.URL + "/v1",
		Version: "2024-06-10",
		APIKey:  StaticKey("sk-test"),
	}, WithHTTPMetrics(metrics.NewCollector("http_test", nil, nil)))
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, c.JSON(context.Background(), http.MethodPost, "/echo", map[string]string{"say": "hi"}, &out))
	assert.Equal(t, "hi", out["echo"])
}

func TestHTTPClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Bytes(context.Background(), http.MethodPost, "/tts/bytes", map[string]string{})
	require.Error(t, err)

	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.ErrUpstream, te.Code)
	assert.Equal(t, http.StatusServiceUnavailable, te.HTTPStatus)
	assert.True(t, te.Retryable)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestHTTPClient_KeySupplierError(t *testing.T) {
	c, err := NewHTTPClient(HTTPConfig{
		BaseURL: "http://127.0.0.1:1",
		APIKey:  func(context.Context) (string, error) { return "", errors.New("vault sealed") },
	})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), http.MethodGet, "/", nil)
	assert.ErrorContains(t, err, "vault sealed")
}

func TestHTTPClient_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, RateLimitRPS: 20, RateLimitBurst: 1})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.JSON(context.Background(), http.MethodGet, "/", nil, nil))
	}
	// 突发 1，之后每 50ms 放行一次
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Do(ctx, http.MethodGet, "/", nil)
	assert.Error(t, err)
}

func TestNewHTTPClient_InvalidBaseURL(t *testing.T) {
	_, err := NewHTTPClient(HTTPConfig{BaseURL: "not a url"})
	assert.True(t, types.IsErrorCode(err, types.ErrUsage))
}

func TestHTTPClient_URL(t *testing.T) {
	c, err := NewHTTPClient(HTTPConfig{BaseURL: "https://api.cartesia.ai/"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.cartesia.ai/tts/bytes", c.URL("/tts/bytes"))
}
