package tts

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/speechflow/audio"
	"github.com/BaSui01/speechflow/testutil"
	"github.com/BaSui01/speechflow/testutil/fixtures"
	"github.com/BaSui01/speechflow/testutil/mocks"
	"github.com/BaSui01/speechflow/transport"
	"github.com/BaSui01/speechflow/types"
)

func newMockWebSocket(t testing.TB) (*WebSocket, *mocks.Socket) {
	sock := mocks.NewSocket()
	hc, err := transport.NewHTTPClient(transport.HTTPConfig{
		BaseURL: "https://api.cartesia.ai",
		Version: "2024-06-10",
	})
	require.NoError(t, err)
	return NewWebSocket(hc, WithSocket(sock)), sock
}

func testRequest(contextID string) Request {
	return Request{
		ContextID:  contextID,
		ModelID:    "sonic-english",
		Transcript: "Hello, world!",
		Voice:      VoiceByID("a0e99841-438c-4a64-b679-ae501e7d6091"),
	}
}

func TestSession_CompletesOnDone(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	ctx := testutil.TestContext(t)

	sess, err := ws.Stream(ctx, testRequest("ctx-1"), StreamOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ctx-1", sess.ContextID())
	assert.Equal(t, StateStreaming, sess.State())

	sent := sock.Sent()
	require.Len(t, sent, 1)
	var wire map[string]any
	require.NoError(t, json.Unmarshal([]byte(sent[0]), &wire))
	assert.Equal(t, "ctx-1", wire["context_id"])
	assert.Equal(t, "raw", wire["output_format"].(map[string]any)["container"])
	assert.NotContains(t, wire, "continue")

	sock.DeliverText(fixtures.ChunkFrame("ctx-1", fixtures.F32Chunk(0.25)))
	sock.DeliverText(fixtures.ChunkFrame("ctx-1", fixtures.F32Chunk(0.5, -0.5)))
	sock.DeliverText(fixtures.ChunkFrame("ctx-1", fixtures.F32Chunk(1)))
	sock.DeliverText(fixtures.DoneFrame("ctx-1"))

	state, err := sess.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
	assert.Nil(t, sess.Err())

	src, err := audio.As[float32](sess.Source())
	require.NoError(t, err)
	assert.True(t, src.Closed())

	dst := make([]float32, 8)
	n, err := src.Read(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, -0.5, 1}, dst[:n])
	assert.Zero(t, ws.Multiplexer().Active())
}

func TestSession_ZeroSampleChunks(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	ctx := testutil.TestContext(t)

	sess, err := ws.Stream(ctx, testRequest("ctx-1"), StreamOptions{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		sock.DeliverText(fixtures.ChunkFrame("ctx-1", fixtures.ZeroF32Chunk))
	}
	sock.DeliverJSON(map[string]any{"context_id": "ctx-1", "done": true})

	state, err := sess.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
	assert.Equal(t, 3, sess.Source().WriteIndex())
}

func TestSession_InactivityTimeout(t *testing.T) {
	ws, _ := newMockWebSocket(t)
	ctx := testutil.TestContext(t)

	start := time.Now()
	sess, err := ws.Stream(ctx, testRequest("ctx-2"), StreamOptions{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	state, err := sess.Wait(ctx)
	assert.Equal(t, StateTimedOut, state)
	assert.ErrorIs(t, err, ErrInactive)
	assert.True(t, types.IsErrorCode(err, types.ErrTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	assert.True(t, sess.Source().Closed())
	assert.Zero(t, sess.Source().WriteIndex())
}

func TestSession_FramesResetTimeout(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	ctx := testutil.TestContext(t)

	sess, err := ws.Stream(ctx, testRequest("ctx-3"), StreamOptions{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		time.Sleep(40 * time.Millisecond)
		sock.DeliverText(fixtures.ChunkFrame("ctx-3", fixtures.ZeroF32Chunk))
	}
	assert.Equal(t, StateStreaming, sess.State())

	sock.DeliverText(fixtures.DoneFrame("ctx-3"))
	state, err := sess.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
}

func TestSession_ErrorFrameDoesNotTerminate(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	ctx := testutil.TestContext(t)

	sess, err := ws.Stream(ctx, testRequest("ctx-e"), StreamOptions{})
	require.NoError(t, err)

	var appErrs []error
	var raws []string
	sess.Errors().On(func(err error) { appErrs = append(appErrs, err) })
	sess.Messages().On(func(raw string) { raws = append(raws, raw) })

	frame := fixtures.ErrorFrame("ctx-e", "voice not found")
	sock.DeliverText(frame)

	require.Len(t, appErrs, 1)
	assert.True(t, types.IsErrorCode(appErrs[0], types.ErrApplication))
	assert.Contains(t, appErrs[0].Error(), "voice not found")
	var te *types.Error
	require.True(t, errors.As(appErrs[0], &te))
	assert.Equal(t, "ctx-e", te.ContextID)
	assert.Equal(t, 500, te.HTTPStatus)

	assert.Equal(t, []string{frame}, raws)
	assert.Equal(t, StateStreaming, sess.State())
	assert.False(t, sess.Source().Closed())

	sock.DeliverText(fixtures.DoneFrame("ctx-e"))
	state, _ := sess.Wait(ctx)
	assert.Equal(t, StateCompleted, state)
}

func TestSession_Timestamps(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	sess, err := ws.Stream(testutil.TestContext(t), testRequest("ctx-t"), StreamOptions{})
	require.NoError(t, err)

	var got []WordTimestamps
	sess.Timestamps().On(func(wt WordTimestamps) { got = append(got, wt) })

	sock.DeliverText(fixtures.TimestampsFrame("ctx-t", []string{"hello", "world"}, []float64{0, 0.4}, []float64{0.4, 0.9}))

	require.Len(t, got, 1)
	assert.Equal(t, []string{"hello", "world"}, got[0].Words)
	assert.Equal(t, []float64{0.4, 0.9}, got[0].End)
	assert.Zero(t, sess.Source().WriteIndex())
}

func TestSession_ModelLatency(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	sess, err := ws.Stream(testutil.TestContext(t), testRequest("ctx-l"), StreamOptions{})
	require.NoError(t, err)

	assert.Zero(t, sess.ModelLatency())
	sock.DeliverText(fixtures.ChunkFrame("ctx-l", fixtures.ZeroF32Chunk))
	assert.Equal(t, 42500*time.Microsecond, sess.ModelLatency())
}

func TestSession_TransportCloseAborts(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	ctx := testutil.TestContext(t)

	sess, err := ws.Stream(ctx, testRequest("ctx-c"), StreamOptions{})
	require.NoError(t, err)

	sock.Drop(errors.New("connection reset"))

	state, err := sess.Wait(ctx)
	assert.Equal(t, StateAborted, state)
	assert.ErrorIs(t, err, ErrTransportClosed)
	assert.ErrorContains(t, err, "connection reset")
	assert.True(t, sess.Source().Closed())
}

func TestSession_TransportErrorAborts(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	sess, err := ws.Stream(testutil.TestContext(t), testRequest("ctx-c"), StreamOptions{})
	require.NoError(t, err)

	sock.Fail(errors.New("tls handshake"))
	assert.Equal(t, StateAborted, sess.State())
}

func TestSession_MalformedFragmentAborts(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	sess, err := ws.Stream(testutil.TestContext(t), testRequest("ctx-m"), StreamOptions{})
	require.NoError(t, err)

	sock.DeliverText(fixtures.ChunkFrame("ctx-m", "***"))

	assert.Equal(t, StateAborted, sess.State())
	assert.ErrorIs(t, sess.Err(), audio.ErrMalformedFragment)
	assert.True(t, sess.Source().Closed())
}

func TestSession_StopIsIdempotent(t *testing.T) {
	ws, _ := newMockWebSocket(t)
	sess, err := ws.Stream(testutil.TestContext(t), testRequest("ctx-s"), StreamOptions{Timeout: 30 * time.Millisecond})
	require.NoError(t, err)

	var terminal, closes atomic.Int32
	sess.StateChanges().On(func(s State) {
		if s.Terminal() {
			terminal.Add(1)
		}
	})
	sess.Source().Events().On(func(ev audio.SourceEvent) {
		if ev.Type == audio.SourceClose {
			closes.Add(1)
		}
	})

	sess.Stop()
	sess.Stop()
	time.Sleep(80 * time.Millisecond) // 超时在 Stop 之后到期
	sess.Stop()

	assert.Equal(t, int32(1), terminal.Load())
	assert.Equal(t, int32(1), closes.Load())
	assert.Equal(t, StateAborted, sess.State())
	assert.ErrorIs(t, sess.Err(), ErrStopped)
}

// 监听器在终态回调里调用 Stop 是常见写法，不能卡住连接读 goroutine。
func TestSession_StopFromStateListener(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	ctx := testutil.TestContext(t)
	sess, err := ws.Stream(ctx, testRequest("ctx-1"), StreamOptions{})
	require.NoError(t, err)

	var terminal atomic.Int32
	sess.StateChanges().On(func(s State) {
		if s.Terminal() {
			terminal.Add(1)
			sess.Stop()
		}
	})

	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		sock.DeliverText(fixtures.DoneFrame("ctx-1"))
	}()
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("frame delivery blocked")
	}

	state, err := sess.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
	assert.Equal(t, int32(1), terminal.Load())
}

func TestSession_StopFromSourceCloseListener(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	ctx := testutil.TestContext(t)
	sess, err := ws.Stream(ctx, testRequest("ctx-1"), StreamOptions{})
	require.NoError(t, err)

	var closes atomic.Int32
	sess.Source().Events().On(func(ev audio.SourceEvent) {
		if ev.Type == audio.SourceClose {
			closes.Add(1)
			sess.Stop()
		}
	})

	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		sock.DeliverText(fixtures.ChunkFrame("ctx-1", fixtures.F32Chunk(0.5)))
		sock.DeliverText(fixtures.DoneFrame("ctx-1"))
	}()
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("frame delivery blocked")
	}

	state, err := sess.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
	assert.Nil(t, sess.Err())
	assert.Equal(t, int32(1), closes.Load())
}

// 任意顺序的终止触发只产生一次终态迁移和一次缓冲关闭，且终态由第一个触发决定。
func TestSession_TeardownOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ws, sock := newMockWebSocket(t)
		sess, err := ws.Stream(context.Background(), testRequest("ctx-p"), StreamOptions{})
		if err != nil {
			rt.Fatalf("stream: %v", err)
		}

		var terminal, closes atomic.Int32
		sess.StateChanges().On(func(s State) {
			if s.Terminal() {
				terminal.Add(1)
			}
		})
		sess.Source().Events().On(func(ev audio.SourceEvent) {
			if ev.Type == audio.SourceClose {
				closes.Add(1)
			}
		})

		triggers := rapid.SliceOfN(rapid.SampledFrom([]string{"stop", "done", "drop", "error"}), 1, 8).Draw(rt, "triggers")
		for _, trig := range triggers {
			switch trig {
			case "stop":
				sess.Stop()
			case "done":
				sock.DeliverText(fixtures.DoneFrame("ctx-p"))
			case "drop":
				sock.Drop(nil)
			case "error":
				sock.Fail(errors.New("boom"))
			}
		}

		want := StateAborted
		if triggers[0] == "done" {
			want = StateCompleted
		}
		if got := sess.State(); got != want {
			rt.Fatalf("state = %s, want %s", got, want)
		}
		if terminal.Load() != 1 || closes.Load() != 1 {
			rt.Fatalf("terminal transitions = %d, closes = %d", terminal.Load(), closes.Load())
		}
	})
}

func TestSession_StateTransitions(t *testing.T) {
	ws, sock := newMockWebSocket(t)

	var states []State
	// 状态在 Stream 返回前就已开始迁移，通过首帧前订阅只能看到后续迁移
	sess, err := ws.Stream(testutil.TestContext(t), testRequest("ctx-st"), StreamOptions{})
	require.NoError(t, err)
	sess.StateChanges().On(func(s State) { states = append(states, s) })

	sock.DeliverText(fixtures.DoneFrame("ctx-st"))
	assert.Equal(t, []State{StateCompleted}, states)

	sess.Stop()
	assert.Equal(t, []State{StateCompleted}, states)
}

func TestSession_Continue(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	ctx := testutil.TestContext(t)

	sess, err := ws.Stream(ctx, testRequest(""), StreamOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ContextID())

	require.NoError(t, sess.Continue(ctx, Request{Transcript: " And more."}))

	sent := sock.Sent()
	require.Len(t, sent, 2)
	var wire Request
	require.NoError(t, json.Unmarshal([]byte(sent[1]), &wire))
	assert.Equal(t, sess.ContextID(), wire.ContextID)
	assert.True(t, wire.Continue)
	require.NotNil(t, wire.OutputFormat)

	sess.Stop()
	assert.ErrorIs(t, sess.Continue(ctx, Request{}), ErrSessionFinished)
}

func TestWebSocket_UsageErrors(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	ctx := testutil.TestContext(t)

	err := ws.Continue(ctx, Request{Transcript: "x"})
	assert.ErrorIs(t, err, ErrMissingContextID)
	assert.True(t, types.IsErrorCode(err, types.ErrUsage))

	_, err = ws.Stream(ctx, Request{OutputFormat: &audio.Format{
		Container:  audio.ContainerMP3,
		Encoding:   audio.EncodingF32LE,
		SampleRate: 44100,
	}}, StreamOptions{})
	assert.ErrorIs(t, err, audio.ErrInvalidFormat)

	_, err = ws.Stream(ctx, testRequest("dup"), StreamOptions{})
	require.NoError(t, err)
	_, err = ws.Stream(ctx, testRequest("dup"), StreamOptions{})
	assert.ErrorIs(t, err, ErrContextInUse)

	sock.SetState(transport.StateClosed)
	_, err = ws.Stream(ctx, testRequest(""), StreamOptions{})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, ws.Continue(ctx, testRequest("dup")), ErrNotConnected)
	assert.ErrorIs(t, ws.Connect(ctx), ErrNotConnected)
}

func TestWebSocket_SendFailureUnregisters(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	sock.WithSendError(errors.New("broken pipe"))

	_, err := ws.Stream(testutil.TestContext(t), testRequest("ctx-f"), StreamOptions{})
	assert.ErrorContains(t, err, "broken pipe")
	assert.Zero(t, ws.Multiplexer().Active())
}

func TestWebSocket_RequestFormatSelectsSampleType(t *testing.T) {
	ws, sock := newMockWebSocket(t)
	req := testRequest("ctx-16")
	req.OutputFormat = &audio.Format{Container: audio.ContainerRaw, Encoding: audio.EncodingS16LE, SampleRate: 16000}

	sess, err := ws.Stream(testutil.TestContext(t), req, StreamOptions{})
	require.NoError(t, err)

	sock.DeliverText(fixtures.ChunkFrame("ctx-16", fixtures.S16Chunk(100, -100)))
	sock.DeliverText(fixtures.DoneFrame("ctx-16"))

	src, err := audio.As[int16](sess.Source())
	require.NoError(t, err)
	assert.Equal(t, 16000, src.SampleRate())

	dst := make([]int16, 4)
	n, err := src.Read(testutil.TestContext(t), dst)
	require.NoError(t, err)
	assert.Equal(t, []int16{100, -100}, dst[:n])
}

func TestSession_WaitCancelled(t *testing.T) {
	ws, _ := newMockWebSocket(t)
	sess, err := ws.Stream(testutil.TestContext(t), testRequest("ctx-w"), StreamOptions{})
	require.NoError(t, err)

	state, err := sess.Wait(testutil.CancelledContext())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateStreaming, state)
	sess.Stop()
}
