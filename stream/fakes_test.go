package stream

import (
	"errors"
	"sync"
	"time"

	"github.com/matt-g-everett/bustx/route"
)

type fakeTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
	periods []time.Duration
}

func (f *tickerFactory) new(d time.Duration) ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	f.periods = append(f.periods, d)
	return t
}

func (f *tickerFactory) all() []*fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTicker(nil), f.tickers...)
}

func (f *tickerFactory) last() *fakeTicker {
	all := f.all()
	return all[len(all)-1]
}

type panCall struct {
	Position route.Waypoint
	Options  PanOptions
}

// recorder is a View and Marker that records what it is told and signals
// every SetPosition on moved.
type recorder struct {
	mu        sync.Mutex
	positions []route.Waypoint
	pans      []panCall
	controls  []NavigationControl
	placement string
	attached  []View
	readyFns  []func()
	destroyed int
	moved     chan route.Waypoint
}

func newRecorder() *recorder {
	return &recorder{moved: make(chan route.Waypoint, 64)}
}

func (r *recorder) SetPosition(wp route.Waypoint) {
	r.mu.Lock()
	r.positions = append(r.positions, wp)
	r.mu.Unlock()
	r.moved <- wp
}

func (r *recorder) AttachTo(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = append(r.attached, v)
}

func (r *recorder) PanTo(wp route.Waypoint, opts PanOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pans = append(r.pans, panCall{Position: wp, Options: opts})
}

func (r *recorder) AddControl(control NavigationControl, placement string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controls = append(r.controls, control)
	r.placement = placement
}

func (r *recorder) OnReady(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readyFns = append(r.readyFns, fn)
}

func (r *recorder) fireReady() {
	r.mu.Lock()
	fns := append([]func(){}, r.readyFns...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (r *recorder) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed++
}

func (r *recorder) panCalls() []panCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]panCall(nil), r.pans...)
}

func (r *recorder) setPositions() []route.Waypoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]route.Waypoint(nil), r.positions...)
}

func (r *recorder) controlCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controls)
}

func (r *recorder) destroyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// fakeFactory hands out recorders as views and markers.
type fakeFactory struct {
	mu        sync.Mutex
	view      *recorder
	markers   []*recorder
	styles    []MarkerStyle
	viewErr   error
	markerErr error

	container string
	center    route.Waypoint
	zoom      float64
	style     string
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{view: newRecorder()}
}

func (f *fakeFactory) CreateView(container string, center route.Waypoint, zoom float64, style string) (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.viewErr != nil {
		return nil, f.viewErr
	}
	f.container, f.center, f.zoom, f.style = container, center, zoom, style
	return f.view, nil
}

func (f *fakeFactory) CreateMarker(style MarkerStyle) (Marker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markerErr != nil {
		return nil, f.markerErr
	}
	m := newRecorder()
	f.markers = append(f.markers, m)
	f.styles = append(f.styles, style)
	return m, nil
}

func (f *fakeFactory) markerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markers)
}

func (f *fakeFactory) marker(i int) (*recorder, MarkerStyle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markers[i], f.styles[i]
}

var errBoom = errors.New("boom")
