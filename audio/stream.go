package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/speechflow/events"
)

// Stream 擦除元素类型后的采样流，会话写入、播放器读取都只依赖它。
type Stream interface {
	// EnqueueChunk 解码片段并追加；哨兵等同于 Close。
	EnqueueChunk(c Chunk) error
	// ReadFloat32 读取并转换为浮点采样，语义同 Source.Read。
	ReadFloat32(ctx context.Context, dst []float32) (int, error)
	Seek(offset int, whence Whence) (int, error)
	Close() error
	Closed() bool
	Format() Format
	SampleRate() int
	ReadIndex() int
	WriteIndex() int
	DurationToSampleCount(d time.Duration) int
	Events() *events.Emitter[SourceEvent]
}

var (
	_ Stream = (*Source[float32])(nil)
	_ Stream = (*Source[int16])(nil)
	_ Stream = (*Source[uint8])(nil)
)

// NewStream 按格式的编码选择元素类型。
func NewStream(format Format) (Stream, error) {
	switch format.Encoding {
	case EncodingF32LE:
		return NewSource[float32](format), nil
	case EncodingS16LE:
		return NewSource[int16](format), nil
	case EncodingMulaw, EncodingAlaw:
		return NewSource[uint8](format), nil
	default:
		return nil, ErrInvalidFormat.WithCause(fmt.Errorf("no sample type for encoding %q", format.Encoding))
	}
}

// As 取回具体类型的 Source。
func As[T Sample](s Stream) (*Source[T], error) {
	src, ok := s.(*Source[T])
	if !ok {
		return nil, ErrUnsupportedElement.WithCause(fmt.Errorf("stream is %T", s))
	}
	return src, nil
}

// EnqueueChunk 实现 Stream。
func (s *Source[T]) EnqueueChunk(c Chunk) error {
	if c.IsSentinel() {
		return s.Close()
	}
	samples, err := DecodeChunks[T]([]Chunk{c})
	if err != nil {
		return err
	}
	return s.Enqueue(samples)
}

// ReadFloat32 实现 Stream。scratch 只被唯一的消费者使用。
func (s *Source[T]) ReadFloat32(ctx context.Context, dst []float32) (int, error) {
	if cap(s.scratch) < len(dst) {
		s.scratch = make([]T, len(dst))
	}
	scratch := s.scratch[:len(dst)]
	n, err := s.Read(ctx, scratch)
	if err != nil {
		return 0, err
	}
	return ToFloat32(dst, scratch[:n], s.format.Encoding), nil
}
