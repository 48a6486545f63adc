package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/matt-g-everett/bustx/config"
	"github.com/matt-g-everett/bustx/geolocate"
	"github.com/matt-g-everett/bustx/route"
	"github.com/rs/zerolog"
)

// ControlPlacement is where the navigation control is drawn.
const ControlPlacement = "top-left"

// ControllerOptions describes the session's view and markers.
type ControllerOptions struct {
	Container  string
	Zoom       float64
	Style      string
	BusMarker  MarkerStyle
	UserMarker MarkerStyle
	LocateZoom float64
	// BusID is the requested bus. It is logged but does not select a route.
	BusID string
}

// ControllerOptionsFromConfig maps the loaded config onto ControllerOptions.
func ControllerOptionsFromConfig(cfg *config.Config, busID string) ControllerOptions {
	opts := ControllerOptions{
		Container: cfg.Map.Container,
		Zoom:      cfg.Map.Zoom,
		Style:     cfg.Map.Style,
		BusMarker: MarkerStyle{
			Icon: cfg.Marker.BusIcon,
			Size: cfg.Marker.Size,
		},
		UserMarker: MarkerStyle{
			Colour: cfg.Marker.UserColour,
		},
		LocateZoom: cfg.Geolocation.Zoom,
		BusID:      busID,
	}
	if cfg.Feed.Enabled {
		opts.BusMarker.VehicleID = cfg.Feed.VehicleID
	}
	return opts
}

// Controller runs one map session: it creates the view, starts the bus
// animation once the view is ready, centres on the viewer's position and
// tears everything down on exit.
type Controller struct {
	opts     ControllerOptions
	factory  MapFactory
	locator  geolocate.Locator
	animator *Animator
	route    route.Route
	logger   zerolog.Logger

	mu           sync.Mutex
	view         View
	closed       bool
	cancelLocate context.CancelFunc
	located      chan struct{}
	locatedOnce  sync.Once
}

// NewController creates a Controller. Nothing happens until Init or Run.
func NewController(opts ControllerOptions, factory MapFactory, locator geolocate.Locator,
	animator *Animator, r route.Route, logger zerolog.Logger) *Controller {

	return &Controller{
		opts:     opts,
		factory:  factory,
		locator:  locator,
		animator: animator,
		route:    r.Clone(),
		logger:   logger,
		located:  make(chan struct{}),
	}
}

// Init creates the view and starts the session. An empty route leaves the
// session idle. If the view cannot be created the error is logged, the
// session is torn down and the error returned.
func (c *Controller) Init(ctx context.Context) error {
	if c.opts.BusID != "" {
		c.logger.Info().Str("bus", c.opts.BusID).Msg("Bus requested")
	}

	if len(c.route) == 0 {
		c.logger.Warn().Msg("Route is empty, nothing to show")
		c.markLocated()
		return nil
	}

	view, err := c.factory.CreateView(c.opts.Container, c.route.First(), c.opts.Zoom, c.opts.Style)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error initializing map")
		c.markLocated()
		c.Close()
		return err
	}

	locateCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		c.markLocated()
		view.Destroy()
		return nil
	}
	c.view = view
	c.cancelLocate = cancel
	c.mu.Unlock()

	view.AddControl(NavigationControl{VisualizePitch: false, ShowCompass: true}, ControlPlacement)
	view.OnReady(c.handleReady)

	go c.locate(locateCtx)

	return nil
}

// Run initialises the session, blocks until ctx is done and then tears the
// session down. A view that fails to initialise leaves the container blank;
// Run still waits for ctx.
func (c *Controller) Run(ctx context.Context) error {
	_ = c.Init(ctx)
	<-ctx.Done()
	c.Close()
	return nil
}

// Located is closed once the geolocation request has been handled.
func (c *Controller) Located() <-chan struct{} {
	return c.located
}

func (c *Controller) markLocated() {
	c.locatedOnce.Do(func() { close(c.located) })
}

func (c *Controller) handleReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.view == nil {
		return
	}

	bus, err := c.factory.CreateMarker(c.opts.BusMarker)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to create bus marker")
		return
	}
	bus.SetPosition(c.route.Last())
	bus.AttachTo(c.view)

	c.animator.Bind(c.view, bus)
	c.animator.Start(c.route)
}

func (c *Controller) locate(ctx context.Context) {
	defer c.markLocated()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("Geolocation handling panicked")
		}
	}()

	res := <-geolocate.Request(ctx, c.locator)
	if !res.OK() {
		if errors.Is(res.Err, context.Canceled) {
			return
		}
		c.logger.Warn().Err(res.Err).Str("outcome", geolocate.Outcome(res)).Msg("Error getting location")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.view == nil {
		return
	}

	user, err := c.factory.CreateMarker(c.opts.UserMarker)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to create user marker")
	} else {
		user.SetPosition(res.Position)
		user.AttachTo(c.view)
	}

	c.view.PanTo(res.Position, PanOptions{Zoom: c.opts.LocateZoom})
	c.logger.Info().Stringer("position", res.Position).Msg("Centred on viewer")
}

// Close stops the animation and destroys the view. It is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	view := c.view
	c.view = nil
	cancel := c.cancelLocate
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.animator.Stop()
	c.animator.Unbind()
	if view != nil {
		view.Destroy()
	}
	c.logger.Info().Msg("Session closed")
}
