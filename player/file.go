package player

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/speechflow/audio"
)

// FileRenderer 离线渲染器：按调度时刻把分段写入 16 位单声道 WAV。
// 时钟即已写入的时长，分段之间的空隙以静音填充，写入完成即视为播放结束。
type FileRenderer struct {
	mu         sync.Mutex
	file       *os.File
	wav        *audio.WAVWriter
	sampleRate int
	state      RendererState
	logger     *zap.Logger
}

// NewFileRenderer 创建 path 并准备写入
func NewFileRenderer(path string, sampleRate int, logger *zap.Logger) (*FileRenderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &FileRenderer{
		file:       f,
		wav:        audio.NewWAVWriter(f, sampleRate),
		sampleRate: sampleRate,
		state:      RendererRunning,
		logger:     logger.With(zap.String("component", "file_renderer"), zap.String("path", path)),
	}, nil
}

// FileRendererFactory 每次 Play 覆盖写入 path
func FileRendererFactory(path string, logger *zap.Logger) RendererFactory {
	return func(sampleRate int) (Renderer, error) {
		return NewFileRenderer(path, sampleRate, logger)
	}
}

// Now 实现 Renderer
func (r *FileRenderer) Now() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(r.wav.Frames()) / float64(r.sampleRate)
}

// State 实现 Renderer
func (r *FileRenderer) State() RendererState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Schedule 实现 Renderer
func (r *FileRenderer) Schedule(samples []float32, startAt float64) (<-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RendererClosed {
		return nil, ErrRendererClosed
	}

	gap := int(math.Round(startAt*float64(r.sampleRate))) - r.wav.Frames()
	if gap > 0 {
		if err := r.wav.WriteSilence(gap); err != nil {
			return nil, err
		}
	}
	if err := r.wav.WriteFloat32(samples); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	close(done)
	return done, nil
}

// Suspend 实现 Renderer。离线写入不受暂停影响，只记录状态。
func (r *FileRenderer) Suspend(context.Context) error {
	return r.setState(RendererSuspended)
}

// Resume 实现 Renderer
func (r *FileRenderer) Resume(context.Context) error {
	return r.setState(RendererRunning)
}

func (r *FileRenderer) setState(s RendererState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RendererClosed {
		return ErrRendererClosed
	}
	r.state = s
	return nil
}

// Close 补写 WAV 头并关闭文件。可重复调用。
func (r *FileRenderer) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RendererClosed {
		return nil
	}
	r.state = RendererClosed

	frames := r.wav.Frames()
	if err := r.wav.Close(); err != nil {
		_ = r.file.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return err
	}
	r.logger.Info("wav written", zap.Int("frames", frames))
	return nil
}
