package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// Sample 是缓冲支持的元素类型：f32、s16 以及 8 位律编码字节。
type Sample interface {
	float32 | int16 | uint8
}

func widthOf[T Sample]() int {
	var zero T
	switch any(zero).(type) {
	case float32:
		return 4
	case int16:
		return 2
	default:
		return 1
	}
}

// DecodeChunks 丢弃哨兵，逐个解码 base64 片段并按小端序拼接。
// 片段字节数必须是元素宽度的整数倍。
func DecodeChunks[T Sample](chunks []Chunk) ([]T, error) {
	width := widthOf[T]()
	raws := make([][]byte, 0, len(chunks))
	total := 0
	for i, c := range chunks {
		if c.IsSentinel() {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(c.Data())
		if err != nil {
			return nil, ErrMalformedFragment.WithCause(fmt.Errorf("fragment %d: %w", i, err))
		}
		if len(raw)%width != 0 {
			return nil, ErrMalformedFragment.WithCause(
				fmt.Errorf("fragment %d: %d bytes is not a multiple of %d", i, len(raw), width))
		}
		raws = append(raws, raw)
		total += len(raw) / width
	}

	out := make([]T, 0, total)
	for _, raw := range raws {
		out = appendLE(out, raw)
	}
	return out, nil
}

func appendLE[T Sample](dst []T, raw []byte) []T {
	switch d := any(dst).(type) {
	case []float32:
		for i := 0; i+4 <= len(raw); i += 4 {
			d = append(d, math.Float32frombits(binary.LittleEndian.Uint32(raw[i:])))
		}
		return any(d).([]T)
	case []int16:
		for i := 0; i+2 <= len(raw); i += 2 {
			d = append(d, int16(binary.LittleEndian.Uint16(raw[i:])))
		}
		return any(d).([]T)
	case []uint8:
		return any(append(d, raw...)).([]T)
	}
	return dst
}

// Decode 按编码返回 []float32、[]int16 或 []uint8。
func Decode(chunks []Chunk, enc Encoding) (any, error) {
	switch enc {
	case EncodingF32LE:
		return DecodeChunks[float32](chunks)
	case EncodingS16LE:
		return DecodeChunks[int16](chunks)
	case EncodingMulaw, EncodingAlaw:
		return DecodeChunks[uint8](chunks)
	default:
		return nil, ErrInvalidFormat.WithCause(fmt.Errorf("unsupported encoding %q", enc))
	}
}

// EncodeChunk 把采样编码为 base64 片段，测试服务端与回放工具使用。
func EncodeChunk[T Sample](samples []T) Chunk {
	width := widthOf[T]()
	raw := make([]byte, len(samples)*width)
	switch s := any(samples).(type) {
	case []float32:
		for i, v := range s {
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
		}
	case []int16:
		for i, v := range s {
			binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
		}
	case []uint8:
		copy(raw, s)
	}
	return DataChunk(base64.StdEncoding.EncodeToString(raw))
}
