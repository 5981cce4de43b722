package player

import (
	"context"
	"time"
)

// RendererState 渲染时钟状态
type RendererState string

const (
	RendererRunning   RendererState = "running"
	RendererSuspended RendererState = "suspended"
	RendererClosed    RendererState = "closed"
)

// Renderer 渲染时钟。时间单位为秒，从创建时刻起算。
type Renderer interface {
	// Now 当前渲染时刻
	Now() float64
	// Schedule 在 startAt 开始播放单声道采样，返回的通道在播放结束
	// 或渲染器关闭时关闭。
	Schedule(samples []float32, startAt float64) (<-chan struct{}, error)
	Suspend(ctx context.Context) error
	Resume(ctx context.Context) error
	Close(ctx context.Context) error
	State() RendererState
}

// RendererFactory 按采样率创建渲染器，每次 Play 调用一次。
type RendererFactory func(sampleRate int) (Renderer, error)

// DurationSource 提供分段时长，每个分段读取一次，可随时变化。
type DurationSource interface {
	BufferDuration() time.Duration
}

// FixedDuration 固定分段时长
type FixedDuration time.Duration

// BufferDuration 实现 DurationSource
func (d FixedDuration) BufferDuration() time.Duration { return time.Duration(d) }
