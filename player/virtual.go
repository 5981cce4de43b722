package player

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/speechflow/types"
)

// ErrRendererClosed 渲染器已关闭
var ErrRendererClosed = types.NewError(types.ErrUsage, "renderer is closed")

type scheduledSegment struct {
	end  float64
	done chan struct{}
}

// VirtualRenderer 软件实时时钟：按墙钟推进，挂起期间停止计时，
// 分段在时钟越过其结束时刻时完成。不产生实际声音输出。
//
// 后台 goroutine 只在有未完成分段时存在，最后一段完成或 Close 后退出。
type VirtualRenderer struct {
	sampleRate int

	mu      sync.Mutex
	now     func() time.Time
	elapsed float64   // 挂起前累计的秒数
	resumed time.Time // 最近一次开始计时的时刻
	state   RendererState
	pending []scheduledSegment
	active  bool // run goroutine 是否存在
	wake    chan struct{}
}

// NewVirtualRenderer 创建虚拟渲染器，时钟从 0 开始计时
func NewVirtualRenderer(sampleRate int) *VirtualRenderer {
	v := &VirtualRenderer{
		sampleRate: sampleRate,
		now:        time.Now,
		state:      RendererRunning,
		wake:       make(chan struct{}, 1),
	}
	v.resumed = v.now()
	return v
}

func (v *VirtualRenderer) nowLocked() float64 {
	if v.state != RendererRunning {
		return v.elapsed
	}
	return v.elapsed + v.now().Sub(v.resumed).Seconds()
}

// Now 实现 Renderer
func (v *VirtualRenderer) Now() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.nowLocked()
}

// State 实现 Renderer
func (v *VirtualRenderer) State() RendererState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Schedule 实现 Renderer
func (v *VirtualRenderer) Schedule(samples []float32, startAt float64) (<-chan struct{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == RendererClosed {
		return nil, ErrRendererClosed
	}
	seg := scheduledSegment{
		end:  startAt + float64(len(samples))/float64(v.sampleRate),
		done: make(chan struct{}),
	}
	v.pending = append(v.pending, seg)
	if !v.active {
		v.active = true
		go v.run()
	} else {
		v.notify()
	}
	return seg.done, nil
}

// Suspend 实现 Renderer
func (v *VirtualRenderer) Suspend(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch v.state {
	case RendererClosed:
		return ErrRendererClosed
	case RendererRunning:
		v.elapsed = v.nowLocked()
		v.state = RendererSuspended
		v.notify()
	}
	return nil
}

// Resume 实现 Renderer
func (v *VirtualRenderer) Resume(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch v.state {
	case RendererClosed:
		return ErrRendererClosed
	case RendererSuspended:
		v.resumed = v.now()
		v.state = RendererRunning
		v.notify()
	}
	return nil
}

// Close 实现 Renderer，未完成分段立即结束。可重复调用。
func (v *VirtualRenderer) Close(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == RendererClosed {
		return nil
	}
	v.elapsed = v.nowLocked()
	v.state = RendererClosed
	v.notify()
	return nil
}

func (v *VirtualRenderer) notify() {
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

// run 完成到期的分段，挂起时只等待状态变化；没有未完成分段时退出。
func (v *VirtualRenderer) run() {
	for {
		v.mu.Lock()
		if v.state == RendererClosed {
			for _, seg := range v.pending {
				close(seg.done)
			}
			v.pending = nil
			v.active = false
			v.mu.Unlock()
			return
		}

		now := v.nowLocked()
		kept := v.pending[:0]
		next := -1.0
		for _, seg := range v.pending {
			if seg.end <= now {
				close(seg.done)
				continue
			}
			kept = append(kept, seg)
			if next < 0 || seg.end < next {
				next = seg.end
			}
		}
		v.pending = kept
		if len(kept) == 0 {
			v.active = false
			v.mu.Unlock()
			return
		}
		running := v.state == RendererRunning
		v.mu.Unlock()

		if !running {
			<-v.wake
			continue
		}

		timer := time.NewTimer(time.Duration((next - now) * float64(time.Second)))
		select {
		case <-timer.C:
		case <-v.wake:
			timer.Stop()
		}
	}
}
