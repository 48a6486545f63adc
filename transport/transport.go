package transport

import (
	"errors"
	"fmt"

	"github.com/matt-g-everett/bustx/config"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")
	// ErrSendBufferFull is returned when an outbound message cannot be queued.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("transport timed out")
)

type Handler func(payload []byte)

// Transport moves opaque payloads between this process and the renderer.
type Transport interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// New creates and connects the transport selected by cfg.Transport.Type.
func New(cfg *config.Config, logger zerolog.Logger) (Transport, error) {
	logger = logger.With().Str("type", cfg.Transport.Type).Logger()

	switch cfg.Transport.Type {
	case "mqtt":
		m := NewMQTT(cfg.Mqtt, logger)
		if err := m.Connect(); err != nil {
			return nil, err
		}
		return m, nil
	case "websocket":
		return DialWebsocket(cfg.Websocket.URL, cfg.Websocket.Secret, logger)
	case "loopback":
		return NewLoopback(), nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Transport.Type)
	}
}
