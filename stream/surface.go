package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matt-g-everett/bustx/route"
	"github.com/matt-g-everett/bustx/transport"
	"github.com/matt-g-everett/bustx/util"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type SurfaceOptions struct {
	CommandsTopic         string
	ReadyTopic            string
	VehiclePositionsTopic string
	APIKey                string
	// ReadyOnCreate treats views as loaded as soon as they are created.
	ReadyOnCreate bool
	// Route is drawn on every view created.
	Route route.Route
	// Glide, when set, replaces renderer-side pan transitions.
	Glide *Glide
}

// Surface is a MapFactory that drives a remote renderer by publishing
// Commands over a transport.
type Surface struct {
	transport transport.Transport
	opts      SurfaceOptions
	logger    zerolog.Logger
	now       func() time.Time

	commands      metric.Int64Counter
	publishErrors metric.Int64Counter

	seq atomic.Int64
}

func NewSurface(t transport.Transport, opts SurfaceOptions, logger zerolog.Logger) *Surface {
	return &Surface{
		transport:     t,
		opts:          opts,
		logger:        logger,
		now:           time.Now,
		commands:      counter("surface.commands", "Render commands published"),
		publishErrors: counter("surface.publish.errors", "Render commands that failed to publish"),
	}
}

func (s *Surface) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, s.seq.Add(1))
}

func (s *Surface) send(cmd Command) error {
	data, err := MarshalCommand(cmd, s.now())
	if err != nil {
		return err
	}

	if err := s.transport.Publish(s.opts.CommandsTopic, data); err != nil {
		s.publishErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", cmd.Type)))
		return err
	}

	s.commands.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", cmd.Type)))
	s.logger.Trace().Str("type", cmd.Type).RawJSON("command", data).Msg("Published")
	return nil
}

func (s *Surface) publish(cmd Command) {
	if err := s.send(cmd); err != nil {
		s.logger.Warn().Err(err).Str("type", cmd.Type).Msg("Failed to publish command")
	}
}

// CreateView asks the renderer to create a view and draws the route on it.
func (s *Surface) CreateView(container string, center route.Waypoint, zoom float64, style string) (View, error) {
	if err := center.Validate(); err != nil {
		return nil, fmt.Errorf("invalid view centre: %w", err)
	}

	v := &remoteView{
		surface: s,
		id:      s.nextID("view"),
		center:  center,
	}
	v.ctx, v.cancel = context.WithCancel(context.Background())

	if !s.opts.ReadyOnCreate {
		if err := s.transport.Subscribe(s.opts.ReadyTopic, v.handleReady); err != nil {
			v.cancel()
			return nil, fmt.Errorf("failed to subscribe to view ready: %w", err)
		}
	}

	err := s.send(Command{
		Type:      CmdCreateView,
		View:      v.id,
		Container: container,
		Position:  position(center),
		Zoom:      zoomLevel(zoom),
		Style:     SignStyleURL(style, s.opts.APIKey),
	})
	if err != nil {
		v.cancel()
		return nil, fmt.Errorf("failed to create view: %w", err)
	}

	if len(s.opts.Route) > 0 {
		geometry, err := s.opts.Route.GeoJSON()
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to encode route")
		} else {
			s.publish(Command{Type: CmdRoute, View: v.id, Geometry: geometry})
		}
	}

	if s.opts.ReadyOnCreate {
		v.markReady()
	}

	s.logger.Info().Str("view", v.id).Str("container", container).Stringer("center", center).Msg("View created")
	return v, nil
}

// CreateMarker asks the renderer to create a detached marker.
func (s *Surface) CreateMarker(style MarkerStyle) (Marker, error) {
	cmd := Command{
		Type: CmdCreateMarker,
		Icon: style.Icon,
		Size: style.Size,
	}
	if style.Colour != "" {
		colour, err := util.NormaliseColour(style.Colour)
		if err != nil {
			return nil, err
		}
		cmd.Colour = colour
	}

	m := &remoteMarker{surface: s, id: s.nextID("marker"), vehicleID: style.VehicleID}
	cmd.Marker = m.id
	if err := s.send(cmd); err != nil {
		return nil, fmt.Errorf("failed to create marker: %w", err)
	}
	return m, nil
}

type remoteView struct {
	surface *Surface
	id      string
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	center    route.Waypoint
	ready     bool
	callbacks []func()
	destroyed bool
}

func (v *remoteView) handleReady(payload []byte) {
	var msg ReadyMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		v.surface.logger.Debug().Err(err).Msg("Ignoring malformed ready message")
		return
	}
	if msg.View != "" && msg.View != v.id {
		return
	}
	// Transport handlers must not block on publishes, so callbacks run apart.
	go v.markReady()
}

func (v *remoteView) markReady() {
	v.mu.Lock()
	if v.ready || v.destroyed {
		v.mu.Unlock()
		return
	}
	v.ready = true
	callbacks := v.callbacks
	v.callbacks = nil
	v.mu.Unlock()

	v.surface.logger.Info().Str("view", v.id).Msg("View ready")
	for _, fn := range callbacks {
		fn()
	}
}

// OnReady runs fn once the view has loaded, immediately if it already has.
func (v *remoteView) OnReady(fn func()) {
	v.mu.Lock()
	if !v.ready {
		v.callbacks = append(v.callbacks, fn)
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()
	fn()
}

func (v *remoteView) AddControl(control NavigationControl, placement string) {
	v.surface.publish(Command{
		Type:      CmdAddControl,
		View:      v.id,
		Control:   &control,
		Placement: placement,
	})
}

func (v *remoteView) PanTo(wp route.Waypoint, opts PanOptions) {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return
	}
	from := v.center
	v.center = wp
	v.mu.Unlock()

	g := v.surface.opts.Glide
	if g == nil {
		cmd := Command{
			Type:      CmdPanTo,
			View:      v.id,
			Position:  position(wp),
			Essential: opts.Essential,
		}
		if opts.Zoom > 0 {
			cmd.Zoom = zoomLevel(opts.Zoom)
		}
		if opts.Duration > 0 {
			cmd.DurationMs = millis(opts.Duration)
		}
		v.surface.publish(cmd)
		return
	}

	go func() {
		_ = g.Run(v.ctx, from, wp, opts.Duration, func(p route.Waypoint) {
			cmd := Command{
				Type:       CmdPanTo,
				View:       v.id,
				Position:   position(p),
				DurationMs: millis(0),
				Essential:  opts.Essential,
			}
			if opts.Zoom > 0 {
				cmd.Zoom = zoomLevel(opts.Zoom)
			}
			v.surface.publish(cmd)
		})
	}()
}

// Destroy removes the view from the renderer. It is idempotent.
func (v *remoteView) Destroy() {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return
	}
	v.destroyed = true
	v.callbacks = nil
	v.mu.Unlock()

	v.cancel()
	if g := v.surface.opts.Glide; g != nil {
		g.Stop()
	}
	v.surface.publish(Command{Type: CmdDestroyView, View: v.id})
	v.surface.logger.Info().Str("view", v.id).Msg("View destroyed")
}

type remoteMarker struct {
	surface   *Surface
	id        string
	vehicleID string
}

func (m *remoteMarker) SetPosition(wp route.Waypoint) {
	s := m.surface
	s.publish(Command{Type: CmdSetPosition, Marker: m.id, Position: position(wp)})

	if m.vehicleID == "" || s.opts.VehiclePositionsTopic == "" {
		return
	}
	data, err := VehiclePositionFeed(m.vehicleID, wp, s.now())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode vehicle position")
		return
	}
	if err := s.transport.Publish(s.opts.VehiclePositionsTopic, data); err != nil {
		s.publishErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", "vehicle_position")))
		s.logger.Warn().Err(err).Msg("Failed to publish vehicle position")
	}
}

func (m *remoteMarker) AttachTo(v View) {
	rv, ok := v.(*remoteView)
	if !ok {
		m.surface.logger.Warn().Str("marker", m.id).Msg("Cannot attach marker to a foreign view")
		return
	}
	m.surface.publish(Command{Type: CmdAttachMarker, Marker: m.id, View: rv.id})
}
