// Package geolocate resolves the viewer's position with a one-shot
// asynchronous request.
package geolocate

import (
	"context"
	"errors"
	"fmt"

	"github.com/matt-g-everett/bustx/config"
	"github.com/matt-g-everett/bustx/route"
	"github.com/matt-g-everett/bustx/transport"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/matt-g-everett/bustx/geolocate"

var (
	ErrTimeout         = errors.New("geolocation timed out")
	ErrDenied          = errors.New("geolocation permission denied")
	ErrUnsupported     = errors.New("geolocation not supported")
	ErrInvalidPosition = errors.New("invalid geolocation position")
)

// Locator produces the viewer's current position.
type Locator interface {
	Locate(ctx context.Context) (route.Waypoint, error)
}

// Result is the outcome of a geolocation request. Exactly one of Position
// and Err is meaningful.
type Result struct {
	Position route.Waypoint
	Err      error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Request runs l in its own goroutine and delivers exactly one Result on the
// returned channel, which is then closed. The channel is buffered so the
// request never blocks on an absent reader.
func Request(ctx context.Context, l Locator) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		res := locate(ctx, l)
		record(res)
		ch <- res
	}()
	return ch
}

func locate(ctx context.Context, l Locator) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("locator panicked: %v", r)}
		}
	}()

	wp, err := l.Locate(ctx)
	if err != nil {
		return Result{Err: err}
	}
	if err := wp.Validate(); err != nil {
		return Result{Err: fmt.Errorf("%w: %w", ErrInvalidPosition, err)}
	}
	return Result{Position: wp}
}

// Outcome names a result for logs and metrics.
func Outcome(res Result) string {
	switch {
	case res.Err == nil:
		return "success"
	case errors.Is(res.Err, ErrTimeout), errors.Is(res.Err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(res.Err, ErrDenied):
		return "denied"
	case errors.Is(res.Err, ErrUnsupported):
		return "unsupported"
	case errors.Is(res.Err, ErrInvalidPosition):
		return "invalid"
	case errors.Is(res.Err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func record(res Result) {
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"geolocation.results",
		metric.WithDescription("Geolocation requests by outcome"),
	)
	if err != nil {
		return
	}
	counter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", Outcome(res))))
}

type Static struct {
	Position route.Waypoint
}

func (s Static) Locate(context.Context) (route.Waypoint, error) {
	return s.Position, nil
}

// Unsupported stands in when no geolocation source is available.
type Unsupported struct{}

func (Unsupported) Locate(context.Context) (route.Waypoint, error) {
	return route.Waypoint{}, ErrUnsupported
}

// New selects a Locator from cfg.Geolocation.Mode.
func New(cfg *config.Config, t transport.Transport, logger zerolog.Logger) (Locator, error) {
	switch cfg.Geolocation.Mode {
	case "remote":
		return NewRemote(t, RemoteOptions{
			RequestTopic: cfg.Topics.GeolocationRequest,
			ReplyTopic:   cfg.Topics.GeolocationReply,
			Timeout:      cfg.Geolocation.Timeout,
		}, logger)
	case "static":
		return Static{Position: route.Waypoint{Lat: cfg.Geolocation.Lat, Lng: cfg.Geolocation.Lng}}, nil
	case "none":
		return Unsupported{}, nil
	default:
		return nil, fmt.Errorf("unknown geolocation mode %q", cfg.Geolocation.Mode)
	}
}
