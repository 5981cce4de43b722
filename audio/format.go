package audio

import (
	"fmt"

	"github.com/BaSui01/speechflow/types"
)

// Container 输出容器类型。
type Container string

const (
	ContainerRaw Container = "raw"
	ContainerWAV Container = "wav"
	ContainerMP3 Container = "mp3"
)

// Encoding PCM 编码。
type Encoding string

const (
	EncodingF32LE Encoding = "pcm_f32le"
	EncodingS16LE Encoding = "pcm_s16le"
	EncodingMulaw Encoding = "pcm_mulaw"
	EncodingAlaw  Encoding = "pcm_alaw"
)

// 默认输出参数。
const (
	DefaultContainer  = ContainerRaw
	DefaultEncoding   = EncodingF32LE
	DefaultSampleRate = 44100
	DefaultMP3BitRate = 128
)

// BytesPerSample 返回编码的元素宽度，未知编码返回 0。
func (e Encoding) BytesPerSample() int {
	switch e {
	case EncodingF32LE:
		return 4
	case EncodingS16LE:
		return 2
	case EncodingMulaw, EncodingAlaw:
		return 1
	default:
		return 0
	}
}

// Valid 判断编码是否受支持。
func (e Encoding) Valid() bool { return e.BytesPerSample() > 0 }

// Format 是输出格式描述，对应线上 output_format 字段。
type Format struct {
	Container  Container `json:"container" yaml:"container"`
	Encoding   Encoding  `json:"encoding,omitempty" yaml:"encoding"`
	SampleRate int       `json:"sample_rate" yaml:"sample_rate"`
	BitRate    int       `json:"bit_rate,omitempty" yaml:"bit_rate"`
}

// ResolveFormat 按容器补全格式，mp3 使用默认码率。
func ResolveFormat(container Container, encoding Encoding, sampleRate int) (Format, error) {
	f := Format{Container: container, Encoding: encoding, SampleRate: sampleRate}
	switch container {
	case ContainerRaw, ContainerWAV:
	case ContainerMP3:
		f.BitRate = DefaultMP3BitRate
	default:
		return Format{}, ErrInvalidFormat.WithCause(fmt.Errorf("unsupported container %q", container))
	}
	return f, f.Validate()
}

// DefaultFormat 返回 raw/pcm_f32le/44100。
func DefaultFormat() Format {
	return Format{Container: DefaultContainer, Encoding: DefaultEncoding, SampleRate: DefaultSampleRate}
}

// Validate 校验格式。bit_rate 当且仅当 mp3 容器时出现。
func (f Format) Validate() error {
	switch f.Container {
	case ContainerRaw, ContainerWAV:
		if f.BitRate != 0 {
			return ErrInvalidFormat.WithCause(fmt.Errorf("bit_rate is only valid for mp3, got container %q", f.Container))
		}
		if !f.Encoding.Valid() {
			return ErrInvalidFormat.WithCause(fmt.Errorf("unsupported encoding %q", f.Encoding))
		}
	case ContainerMP3:
		if f.BitRate <= 0 {
			return ErrInvalidFormat.WithCause(fmt.Errorf("mp3 requires a positive bit_rate"))
		}
		if f.Encoding != "" && !f.Encoding.Valid() {
			return ErrInvalidFormat.WithCause(fmt.Errorf("unsupported encoding %q", f.Encoding))
		}
	default:
		return ErrInvalidFormat.WithCause(fmt.Errorf("unsupported container %q", f.Container))
	}
	if f.SampleRate <= 0 {
		return ErrInvalidFormat.WithCause(fmt.Errorf("sample_rate must be positive, got %d", f.SampleRate))
	}
	return nil
}

// 包级错误。
var (
	ErrInvalidFormat      = types.NewError(types.ErrUsage, "invalid output format")
	ErrMalformedFragment  = types.NewError(types.ErrProtocol, "malformed audio fragment")
	ErrSourceClosed       = types.NewError(types.ErrUsage, "source is closed")
	ErrSeekOutOfBounds    = types.NewError(types.ErrUsage, "seek position out of bounds")
	ErrInvalidWhence      = types.NewError(types.ErrUsage, "invalid seek whence")
	ErrUnsupportedElement = types.NewError(types.ErrUsage, "encoding does not match sample type")
)
