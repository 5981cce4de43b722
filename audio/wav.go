package audio

import (
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// WAVWriter 以 16 位单声道 PCM 增量写入 WAV。
type WAVWriter struct {
	enc        *wav.Encoder
	sampleRate int
	frames     int
	buf        *goaudio.IntBuffer
}

// NewWAVWriter 创建写入器，w 需要支持 Seek 以便回写头部长度。
func NewWAVWriter(w io.WriteSeeker, sampleRate int) *WAVWriter {
	return &WAVWriter{
		enc:        wav.NewEncoder(w, sampleRate, wavBitDepth, 1, 1),
		sampleRate: sampleRate,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: wavBitDepth,
		},
	}
}

// WriteFloat32 写入浮点采样，超出 [-1, 1] 的值被截断。
func (w *WAVWriter) WriteFloat32(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = floatToPCM16(v)
	}
	return w.write(data)
}

// WriteSilence 写入 n 个静音采样。
func (w *WAVWriter) WriteSilence(n int) error {
	if n <= 0 {
		return nil
	}
	return w.write(make([]int, n))
}

func (w *WAVWriter) write(data []int) error {
	w.buf.Data = data
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	w.frames += len(data)
	return nil
}

// Frames 已写入的采样数。
func (w *WAVWriter) Frames() int { return w.frames }

// Close 回写头部。
func (w *WAVWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteWAV 一次性导出采样。
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	ww := NewWAVWriter(w, sampleRate)
	if err := ww.WriteFloat32(samples); err != nil {
		return err
	}
	return ww.Close()
}

func floatToPCM16(v float32) int {
	x := math.Round(float64(v) * 32767)
	return int(math.Max(-32768, math.Min(32767, x)))
}
