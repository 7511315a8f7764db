package simulation

import (
	"context"
	"time"
)

// FrameFunc renders one animation frame. elapsed is the wall time since the
// previous frame.
type FrameFunc func(frame uint64, elapsed time.Duration)

// Loop calls a FrameFunc at a target frame rate. Frames missed while the
// callback runs long are dropped rather than replayed.
type Loop struct {
	interval time.Duration
	frame    FrameFunc
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewLoop configures a loop that targets the provided frames per second.
func NewLoop(targetFPS float64, frame FrameFunc) *Loop {
	if targetFPS <= 0 {
		targetFPS = 60
	}
	if frame == nil {
		frame = func(uint64, time.Duration) {}
	}
	interval := time.Duration(float64(time.Second) / targetFPS)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{interval: interval, frame: frame}
}

// Start begins ticking until the context is cancelled or Stop is invoked.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.frame == nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	ticker := time.NewTicker(l.interval)
	go func() {
		defer close(l.done)
		defer ticker.Stop()
		last := time.Now()
		var frame uint64
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				//1.- One callback per tick; time.Ticker already drops ticks a slow callback missed.
				frame++
				l.frame(frame, now.Sub(last))
				last = now
			}
		}
	}()
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
		l.done = nil
	}
}

// Interval exposes the configured frame interval.
func (l *Loop) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
