package stream

import (
	"context"
	"sync"
	"time"

	"github.com/matt-g-everett/bustx/route"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultInterval    = 3 * time.Second
	DefaultPanDuration = 2 * time.Second
)

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// AnimatorOptions sets the emission cadence. A zero Interval or a negative
// PanDuration takes the default.
type AnimatorOptions struct {
	Interval    time.Duration
	PanDuration time.Duration
}

// Animator walks a route backward, moving a marker and panning the view to
// each waypoint on a fixed interval.
//
// Exactly one schedule is active at a time. Ticks run on the schedule's own
// goroutine and are serialised with Start, Stop and Bind. Collaborators must
// not call back into the Animator from SetPosition or PanTo.
type Animator struct {
	interval    time.Duration
	panDuration time.Duration
	newTicker   func(time.Duration) ticker
	ticks       metric.Int64Counter
	logger      zerolog.Logger

	// lifecycle serialises Start and Stop.
	lifecycle sync.Mutex

	mu      sync.Mutex
	route   route.Route
	cursor  int
	view    View
	marker  Marker
	running bool
	gen     uint64
	stopCh  chan struct{}
	done    chan struct{}
}

func NewAnimator(opts AnimatorOptions, logger zerolog.Logger) *Animator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PanDuration < 0 {
		opts.PanDuration = DefaultPanDuration
	}
	return &Animator{
		interval:    opts.Interval,
		panDuration: opts.PanDuration,
		newTicker:   newTimeTicker,
		ticks:       counter("animator.ticks", "Bus positions emitted"),
		logger:      logger,
	}
}

// Bind sets the view and marker that ticks drive.
func (a *Animator) Bind(v View, m Marker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.view = v
	a.marker = m
}

// Unbind releases the view and marker. Later ticks are no-ops.
func (a *Animator) Unbind() {
	a.Bind(nil, nil)
}

// Start walks r from its last waypoint. It emits the first position
// immediately and then once per interval, replacing any running schedule.
// An empty route is ignored.
func (a *Animator) Start(r route.Route) {
	if len(r) == 0 {
		a.logger.Debug().Msg("Empty route, not starting")
		return
	}

	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.stop()

	a.mu.Lock()
	a.route = r.Clone()
	a.cursor = len(r) - 1
	a.gen++
	gen := a.gen
	a.running = true
	stop := make(chan struct{})
	done := make(chan struct{})
	a.stopCh, a.done = stop, done
	a.tick()
	t := a.newTicker(a.interval)
	a.mu.Unlock()

	a.logger.Info().Int("waypoints", len(r)).Dur("interval", a.interval).Msg("Animation started")
	go a.loop(gen, t, stop, done)
}

// Stop cancels the schedule. It is idempotent and no tick runs once it has
// returned.
func (a *Animator) Stop() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	a.stop()
}

func (a *Animator) stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.gen++
	stop, done := a.stopCh, a.done
	a.stopCh, a.done = nil, nil
	a.mu.Unlock()

	close(stop)
	<-done
	a.logger.Info().Msg("Animation stopped")
}

func (a *Animator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Cursor returns the index of the next waypoint to emit.
func (a *Animator) Cursor() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

func (a *Animator) loop(gen uint64, t ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C():
			a.mu.Lock()
			if a.running && a.gen == gen {
				a.tick()
			}
			a.mu.Unlock()
		}
	}
}

// tick emits route[cursor] and steps the cursor back with wrap-around.
// Callers hold a.mu.
func (a *Animator) tick() {
	if a.view == nil || a.marker == nil || len(a.route) == 0 {
		return
	}

	wp := a.route[a.cursor]
	a.marker.SetPosition(wp)
	a.view.PanTo(wp, PanOptions{Duration: a.panDuration, Essential: true})

	a.ticks.Add(context.Background(), 1)
	a.logger.Debug().Int("cursor", a.cursor).Stringer("position", wp).Msg("Tick")

	a.cursor = stepBack(a.cursor, len(a.route))
}

// stepBack decrements i modulo n, never going negative.
func stepBack(i, n int) int {
	return ((i-1)%n + n) % n
}
