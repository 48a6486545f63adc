package transport

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendChSize   = 1024
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Envelope types exchanged with the relay.
const (
	TypePublish   = "publish"
	TypeSubscribe = "subscribe"
)

// Envelope wraps a payload with its topic on the websocket relay.
type Envelope struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Payload []byte `json:"payload,omitempty"`
}

// Websocket talks to a renderer relay over a single websocket connection
// with one write goroutine per connection.
type Websocket struct {
	mu     sync.Mutex
	conn   *wsConn
	sendCh chan []byte
	done   chan struct{}
	closed bool
	subs   map[string]Handler

	wsURL  string
	secret string

	backoff time.Duration
	logger  zerolog.Logger
}

// wsConn is one dialled connection. down is closed exactly once, by whichever
// loop sees it fail first or by Close.
type wsConn struct {
	*ws.Conn
	down chan struct{}
	once sync.Once
}

func newWsConn(c *ws.Conn) *wsConn {
	return &wsConn{Conn: c, down: make(chan struct{})}
}

// shutdown marks the connection dead and closes it. It reports whether this
// call did so.
func (c *wsConn) shutdown() bool {
	first := false
	c.once.Do(func() {
		first = true
		close(c.down)
		_ = c.Close()
	})
	return first
}

// DialWebsocket connects to rawURL and starts the read and write loops.
func DialWebsocket(rawURL, secret string, logger zerolog.Logger) (*Websocket, error) {
	w := &Websocket{
		sendCh:  make(chan []byte, sendChSize),
		done:    make(chan struct{}),
		subs:    make(map[string]Handler),
		wsURL:   rawURL,
		secret:  secret,
		backoff: time.Second,
		logger:  logger,
	}

	conn, err := w.dialOnce()
	if err != nil {
		return nil, err
	}
	w.start(newWsConn(conn))

	return w, nil
}

func (w *Websocket) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(w.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if w.secret != "" {
		q := u.Query()
		q.Set("secret", w.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (w *Websocket) start(c *wsConn) {
	w.mu.Lock()
	w.conn = c
	w.mu.Unlock()

	go w.writeLoop(c)
	go w.readLoop(c)
}

// fail tears c down and starts a single reconnect for it.
func (w *Websocket) fail(c *wsConn, err error) {
	if !c.shutdown() {
		return
	}
	w.logger.Warn().Err(err).Msg("Connection lost")
	go w.reconnect()
}

// writeLoop is the only writer on c. Queued messages wait in sendCh while
// no connection is up.
func (w *Websocket) writeLoop(c *wsConn) {
	for {
		select {
		case <-w.done:
			return
		case <-c.down:
			return
		case data := <-w.sendCh:
			if err := c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				w.fail(c, err)
				return
			}
			if err := c.WriteMessage(ws.TextMessage, data); err != nil {
				w.fail(c, err)
				return
			}
		}
	}
}

// readLoop routes published envelopes to the handler subscribed on their topic.
func (w *Websocket) readLoop(c *wsConn) {
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			w.fail(c, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			w.logger.Debug().Str("raw", string(message)).Msg("Non-envelope message received")
			continue
		}
		if env.Type != TypePublish {
			continue
		}

		w.mu.Lock()
		h, ok := w.subs[env.Topic]
		w.mu.Unlock()
		if ok {
			h(env.Payload)
		}
	}
}

// reconnect re-dials with exponential backoff, replays subscriptions and
// restarts the loops.
func (w *Websocket) reconnect() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.conn = nil
	backoff := w.backoff
	w.mu.Unlock()

	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-w.done:
			return
		case <-time.After(backoff):
		}

		w.logger.Info().Int("attempt", attempt).Msg("Reconnecting")

		conn, err := w.dialOnce()
		if err != nil {
			w.logger.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect dial failed")
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		w.mu.Lock()
		topics := make([]string, 0, len(w.subs))
		for topic := range w.subs {
			topics = append(topics, topic)
		}
		w.mu.Unlock()

		if err := replay(conn, topics); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to replay subscriptions")
			_ = conn.Close()
			continue
		}

		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			_ = conn.Close()
			return
		}
		w.mu.Unlock()

		w.logger.Info().Int("attempt", attempt).Msg("Reconnected")
		w.start(newWsConn(conn))
		return
	}

	w.logger.Error().Int("maxAttempts", maxReconnect).Msg("Reconnect failed after max attempts")
}

// replay announces topics on a connection no loop is using yet.
func replay(conn *ws.Conn, topics []string) error {
	for _, topic := range topics {
		data, err := json.Marshal(Envelope{Type: TypeSubscribe, Topic: topic})
		if err != nil {
			return err
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
			return fmt.Errorf("replay %s: %w", topic, err)
		}
	}
	return nil
}

func (w *Websocket) send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case w.sendCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Publish queues payload for topic. It does not wait for delivery.
func (w *Websocket) Publish(topic string, payload []byte) error {
	return w.send(Envelope{Type: TypePublish, Topic: topic, Payload: payload})
}

func (w *Websocket) Subscribe(topic string, handler Handler) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.subs[topic] = handler
	w.mu.Unlock()

	return w.send(Envelope{Type: TypeSubscribe, Topic: topic})
}

// Close sends a close frame and stops all goroutines.
func (w *Websocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	c := w.conn
	w.conn = nil
	w.mu.Unlock()

	if c == nil {
		return nil
	}
	_ = c.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	c.shutdown()
	return nil
}
