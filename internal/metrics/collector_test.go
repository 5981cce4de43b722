package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector("test", nil, zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.sessionsFinished)
	assert.NotNil(t, collector.pingDuration)
	assert.NotNil(t, collector.Gatherer())
}

func TestNewCollector_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector("shared", reg, nil)
	assert.Equal(t, prometheus.Gatherer(reg), collector.Gatherer())

	// 同一 Registry 重复注册同名指标会 panic
	assert.Panics(t, func() { NewCollector("shared", reg, nil) })
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector("test", nil, zap.NewNop())

	collector.RecordHTTPRequest("POST", "/tts/bytes", 200, 100*time.Millisecond)
	collector.RecordHTTPRequest("POST", "/tts/bytes", 503, 10*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/tts/bytes", "5xx")))
}

func TestCollector_Sessions(t *testing.T) {
	collector := NewCollector("test", nil, zap.NewNop())

	collector.RecordSessionStart()
	collector.RecordSessionStart()
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.sessionsActive))

	collector.RecordSessionEnd("completed", time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.sessionsFinished.WithLabelValues("completed")))

	collector.RecordSamples(441)
	collector.RecordSamples(0)
	assert.Equal(t, 441.0, testutil.ToFloat64(collector.samplesEnqueued))
}

func TestCollector_TransportAndPlayback(t *testing.T) {
	collector := NewCollector("test", nil, zap.NewNop())

	collector.RecordSocketEvent("open")
	collector.RecordFrame("in", "text")
	collector.RecordDroppedFrame("unknown_context")
	collector.RecordSegment()
	collector.RecordUnderrun()
	collector.SetBufferDuration(3200 * time.Millisecond)
	collector.RecordPing(200*time.Millisecond, nil)
	collector.RecordPing(time.Second, errors.New("timeout"))
	collector.RecordSTTResult("transcript")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.socketEvents.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.muxDropped.WithLabelValues("unknown_context")))
	assert.InDelta(t, 3.2, testutil.ToFloat64(collector.bufferDuration), 1e-9)
	assert.Equal(t, 2, testutil.CollectAndCount(collector.pingDuration))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		c.RecordSocketEvent("open")
		c.RecordFrame("out", "text")
		c.RecordDroppedFrame("malformed")
		c.RecordSessionStart()
		c.RecordSessionEnd("aborted", time.Second)
		c.RecordSamples(10)
		c.RecordModelLatency(time.Millisecond)
		c.RecordSegment()
		c.RecordUnderrun()
		c.SetBufferDuration(time.Second)
		c.RecordPing(time.Second, nil)
		c.RecordSTTResult("done")
	})
	assert.Nil(t, c.Gatherer())
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(301))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(502))
	assert.Equal(t, "unknown", statusCode(0))
}
