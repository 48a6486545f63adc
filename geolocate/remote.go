package geolocate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matt-g-everett/bustx/route"
	"github.com/matt-g-everett/bustx/transport"
	"github.com/rs/zerolog"
)

type RemoteOptions struct {
	RequestTopic string
	ReplyTopic   string
	Timeout      time.Duration
}

// LocateRequest asks the renderer for the viewer's position.
type LocateRequest struct {
	ID        string `json:"id"`
	TimeoutMs int64  `json:"timeoutMs"`
}

// LocateReply carries either a position or an error code from the renderer.
// A reply without an id answers every pending request.
type LocateReply struct {
	ID    string   `json:"id,omitempty"`
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Remote asks the renderer, which owns the browser geolocation API, for the
// viewer's position over the transport.
type Remote struct {
	transport transport.Transport
	opts      RemoteOptions
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan LocateReply
}

// NewRemote subscribes to the reply topic and returns a ready locator.
func NewRemote(t transport.Transport, opts RemoteOptions, logger zerolog.Logger) (*Remote, error) {
	r := &Remote{
		transport: t,
		opts:      opts,
		logger:    logger,
		pending:   make(map[string]chan LocateReply),
	}
	if err := t.Subscribe(opts.ReplyTopic, r.handleReply); err != nil {
		return nil, fmt.Errorf("failed to subscribe to geolocation replies: %w", err)
	}
	return r, nil
}

func (r *Remote) handleReply(payload []byte) {
	var reply LocateReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		r.logger.Debug().Err(err).Msg("Ignoring malformed geolocation reply")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if reply.ID == "" {
		for _, ch := range r.pending {
			deliver(ch, reply)
		}
		return
	}
	if ch, ok := r.pending[reply.ID]; ok {
		deliver(ch, reply)
	}
}

func deliver(ch chan LocateReply, reply LocateReply) {
	select {
	case ch <- reply:
	default:
	}
}

// Locate publishes a request and waits for the first reply, the timeout or
// ctx, whichever comes first.
func (r *Remote) Locate(ctx context.Context) (route.Waypoint, error) {
	id := uuid.NewString()
	ch := make(chan LocateReply, 1)

	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	payload, err := json.Marshal(LocateRequest{ID: id, TimeoutMs: r.opts.Timeout.Milliseconds()})
	if err != nil {
		return route.Waypoint{}, fmt.Errorf("failed to encode geolocation request: %w", err)
	}
	if err := r.transport.Publish(r.opts.RequestTopic, payload); err != nil {
		return route.Waypoint{}, fmt.Errorf("failed to publish geolocation request: %w", err)
	}
	r.logger.Debug().Str("id", id).Msg("Geolocation requested")

	timer := time.NewTimer(r.opts.Timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply.position()
	case <-timer.C:
		return route.Waypoint{}, ErrTimeout
	case <-ctx.Done():
		return route.Waypoint{}, ctx.Err()
	}
}

func (reply LocateReply) position() (route.Waypoint, error) {
	switch reply.Error {
	case "":
	case "denied", "permission_denied":
		return route.Waypoint{}, ErrDenied
	case "unsupported":
		return route.Waypoint{}, ErrUnsupported
	case "timeout":
		return route.Waypoint{}, ErrTimeout
	default:
		return route.Waypoint{}, fmt.Errorf("geolocation failed: %s", reply.Error)
	}

	if reply.Lat == nil || reply.Lng == nil {
		return route.Waypoint{}, fmt.Errorf("%w: missing coordinates", ErrInvalidPosition)
	}
	return route.Waypoint{Lat: *reply.Lat, Lng: *reply.Lng}, nil
}
