package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newS16() *Source[int16] {
	return NewSource[int16](Format{Container: ContainerRaw, Encoding: EncodingS16LE, SampleRate: 8000})
}

func TestSource_EnqueueRead(t *testing.T) {
	src := newS16()
	require.NoError(t, src.Enqueue([]int16{1, 2, 3}))
	require.NoError(t, src.Enqueue([]int16{4, 5}))

	dst := make([]int16, 4)
	n, err := src.Read(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int16{1, 2, 3, 4}, dst)
	assert.Equal(t, 4, src.ReadIndex())
	assert.Equal(t, 5, src.WriteIndex())
}

func TestSource_GrowsByDoubling(t *testing.T) {
	src := newS16()
	assert.Equal(t, 1024, src.Capacity())

	require.NoError(t, src.Enqueue(make([]int16, 1000)))
	assert.Equal(t, 1024, src.Capacity())

	require.NoError(t, src.Enqueue(make([]int16, 100)))
	assert.Equal(t, 2048, src.Capacity())

	require.NoError(t, src.Enqueue(make([]int16, 5000)))
	assert.Equal(t, 8192, src.Capacity())
	assert.Equal(t, 6100, src.WriteIndex())
}

func TestSource_GrowPreservesData(t *testing.T) {
	src := newS16()
	want := make([]int16, 0, 3000)
	for i := 0; i < 3; i++ {
		frag := make([]int16, 1000)
		for j := range frag {
			frag[j] = int16(i*1000 + j)
		}
		want = append(want, frag...)
		require.NoError(t, src.Enqueue(frag))
	}
	require.NoError(t, src.Close())

	got := make([]int16, 4000)
	n, err := src.Read(context.Background(), got)
	require.NoError(t, err)
	assert.Equal(t, 3000, n)
	assert.Equal(t, want, got[:n])
}

func TestSource_ReadBlocksUntilEnoughData(t *testing.T) {
	src := newS16()
	require.NoError(t, src.Enqueue([]int16{1}))

	done := make(chan int, 1)
	go func() {
		n, _ := src.Read(context.Background(), make([]int16, 3))
		done <- n
	}()

	select {
	case <-done:
		t.Fatal("read returned before enough data was available")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, src.Enqueue([]int16{2}))
	select {
	case <-done:
		t.Fatal("read returned with partial data on an open source")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, src.Enqueue([]int16{3, 4}))
	select {
	case n := <-done:
		assert.Equal(t, 3, n)
	case <-time.After(time.Second):
		t.Fatal("read did not wake after enqueue")
	}
}

// 关闭后挂起与后续的读取都必须返回。
func TestSource_CloseUnblocksReaders(t *testing.T) {
	src := newS16()
	require.NoError(t, src.Enqueue([]int16{7, 8}))

	done := make(chan int, 1)
	go func() {
		n, _ := src.Read(context.Background(), make([]int16, 10))
		done <- n
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, src.Close())

	select {
	case n := <-done:
		assert.Equal(t, 2, n)
	case <-time.After(time.Second):
		t.Fatal("reader blocked after close")
	}

	n, err := src.Read(context.Background(), make([]int16, 10))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSource_EnqueueAfterClose(t *testing.T) {
	src := newS16()
	require.NoError(t, src.Enqueue([]int16{1, 2}))
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	err := src.Enqueue([]int16{3})
	assert.ErrorIs(t, err, ErrSourceClosed)
	assert.Equal(t, 2, src.WriteIndex())
	assert.True(t, src.Closed())
}

func TestSource_ReadContextCancel(t *testing.T) {
	src := newS16()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n, err := src.Read(ctx, make([]int16, 4))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, src.ReadIndex())
}

func TestSource_Seek(t *testing.T) {
	src := newS16()
	require.NoError(t, src.Enqueue([]int16{1, 2, 3, 4, 5}))

	pos, err := src.Seek(2, SeekStart)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	pos, err = src.Seek(1, SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	pos, err = src.Seek(-1, SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, 4, pos)

	pos, err = src.Seek(0, SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, 5, pos)

	_, err = src.Seek(1, SeekEnd)
	assert.ErrorIs(t, err, ErrSeekOutOfBounds)
	_, err = src.Seek(-1, SeekStart)
	assert.ErrorIs(t, err, ErrSeekOutOfBounds)
	_, err = src.Seek(0, Whence(9))
	assert.ErrorIs(t, err, ErrInvalidWhence)

	assert.Equal(t, 5, src.ReadIndex())
	assert.Equal(t, 5, src.WriteIndex())
}

func TestSource_DurationToSampleCount(t *testing.T) {
	src := NewSource[float32](DefaultFormat())
	assert.Equal(t, 441, src.DurationToSampleCount(10*time.Millisecond))
	assert.Equal(t, 141120, src.DurationToSampleCount(3200*time.Millisecond))
	assert.Equal(t, 0, src.DurationToSampleCount(0))
	assert.Equal(t, 0, src.DurationToSampleCount(-time.Second))
	// floor
	assert.Equal(t, 0, DurationToSampleCount(time.Microsecond, 44100))
}

func TestSource_Events(t *testing.T) {
	src := newS16()
	var mu sync.Mutex
	var seen []SourceEventType
	src.Events().On(func(ev SourceEvent) {
		mu.Lock()
		seen = append(seen, ev.Type)
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = src.Read(context.Background(), make([]int16, 1))
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, src.Enqueue([]int16{1}))
	<-done
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []SourceEventType{SourceWait, SourceEnqueue, SourceRead, SourceClose}, seen)
}

func TestStream_EnqueueChunkAndReadFloat32(t *testing.T) {
	s, err := NewStream(Format{Container: ContainerRaw, Encoding: EncodingS16LE, SampleRate: 16000})
	require.NoError(t, err)

	require.NoError(t, s.EnqueueChunk(EncodeChunk([]int16{16384, -16384})))
	require.NoError(t, s.EnqueueChunk(Sentinel()))
	assert.True(t, s.Closed())

	dst := make([]float32, 4)
	n, err := s.ReadFloat32(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{0.5, -0.5}, dst[:n])

	typed, err := As[int16](s)
	require.NoError(t, err)
	assert.Equal(t, 2, typed.ReadIndex())

	_, err = As[float32](s)
	assert.ErrorIs(t, err, ErrUnsupportedElement)
}

func TestNewStream_RejectsUnknownEncoding(t *testing.T) {
	_, err := NewStream(Format{Container: ContainerMP3, SampleRate: 44100, BitRate: 128})
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

// 任意写入/读取交错下读位置单调且不超过写位置。
func TestProperty_SourceMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("readIndex is non-decreasing and bounded by writeIndex", prop.ForAll(
		func(ops []int) bool {
			src := newS16()
			prev := 0
			for _, op := range ops {
				if op >= 0 {
					if err := src.Enqueue(make([]int16, op)); err != nil {
						return false
					}
				} else {
					// 只请求已有数据量以内，保证不阻塞
					want := min(-op, src.WriteIndex()-src.ReadIndex())
					if _, err := src.Read(context.Background(), make([]int16, want)); err != nil {
						return false
					}
				}
				r, w := src.ReadIndex(), src.WriteIndex()
				if r < prev || r > w || w > src.Capacity() {
					return false
				}
				prev = r
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-600, 600)),
	))

	properties.TestingRun(t)
}
