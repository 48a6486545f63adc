package stream

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/matt-g-everett/bustx/route"
	"github.com/matt-g-everett/bustx/util"
)

// Glide streams eased intermediate camera centres for renderers that cannot
// animate a pan themselves. Only the most recent Run emits.
type Glide struct {
	frameRate float64
	easing    util.Easing

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewGlide(frameRate float64, easing util.Easing) *Glide {
	return &Glide{frameRate: frameRate, easing: easing}
}

// Frames returns the eased points from one waypoint to another, excluding
// from and ending exactly on to.
func (g *Glide) Frames(from, to route.Waypoint, duration time.Duration) []route.Waypoint {
	n := int(math.Ceil(g.frameRate * duration.Seconds()))
	if n < 1 {
		return []route.Waypoint{to}
	}

	lut := util.GenerateLut(n, g.easing)
	frames := make([]route.Waypoint, n)
	for i, t := range lut {
		frames[i] = route.Lerp(from, to, t)
	}
	return frames
}

// Run emits the frames from one waypoint to another, spaced evenly over
// duration. It cancels any glide already running and returns ctx.Err() or
// context.Canceled when it is itself cancelled.
func (g *Glide) Run(ctx context.Context, from, to route.Waypoint, duration time.Duration, emit func(route.Waypoint)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
	}
	g.gen++
	gen := g.gen
	g.cancel = cancel
	g.mu.Unlock()

	frames := g.Frames(from, to, duration)
	step := duration / time.Duration(len(frames))
	if step <= 0 {
		step = time.Millisecond
	}

	t := time.NewTicker(step)
	defer t.Stop()

	for _, p := range frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		g.mu.Lock()
		if g.gen != gen {
			g.mu.Unlock()
			return context.Canceled
		}
		emit(p)
		g.mu.Unlock()
	}
	return nil
}

// Stop cancels the running glide, if any.
func (g *Glide) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.gen++
}
