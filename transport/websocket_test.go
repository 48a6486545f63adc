package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relay records envelopes from the client and lets the test push envelopes back.
type relay struct {
	mu       sync.Mutex
	received []Envelope
	secret   string
	conn     *ws.Conn
	ready    chan struct{}
}

func (r *relay) all() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Envelope, len(r.received))
	copy(cp, r.received)
	return cp
}

func (r *relay) push(t *testing.T, env Envelope) {
	t.Helper()
	<-r.ready
	data, err := json.Marshal(env)
	require.NoError(t, err)
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NoError(t, r.conn.WriteMessage(ws.TextMessage, data))
}

func testRelay(t *testing.T) (*httptest.Server, *relay) {
	t.Helper()
	rl := &relay{ready: make(chan struct{})}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		rl.mu.Lock()
		rl.secret = r.URL.Query().Get("secret")
		rl.conn = c
		rl.mu.Unlock()
		close(rl.ready)

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			rl.mu.Lock()
			rl.received = append(rl.received, env)
			rl.mu.Unlock()
		}
	}))
	t.Cleanup(srv.Close)

	return srv, rl
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocket_Publish(t *testing.T) {
	srv, rl := testRelay(t)

	w, err := DialWebsocket(wsURL(srv), "s3cret", zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Publish("bustx/map/commands", []byte(`{"type":"pan_to"}`)))

	require.Eventually(t, func() bool { return len(rl.all()) == 1 }, time.Second, 10*time.Millisecond)
	env := rl.all()[0]
	assert.Equal(t, TypePublish, env.Type)
	assert.Equal(t, "bustx/map/commands", env.Topic)
	assert.JSONEq(t, `{"type":"pan_to"}`, string(env.Payload))

	rl.mu.Lock()
	assert.Equal(t, "s3cret", rl.secret)
	rl.mu.Unlock()
}

func TestWebsocket_SubscribeRoutesByTopic(t *testing.T) {
	srv, rl := testRelay(t)

	w, err := DialWebsocket(wsURL(srv), "", zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	got := make(chan []byte, 1)
	require.NoError(t, w.Subscribe("bustx/map/ready", func(p []byte) { got <- p }))

	require.Eventually(t, func() bool { return len(rl.all()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, Envelope{Type: TypeSubscribe, Topic: "bustx/map/ready"}, rl.all()[0])

	rl.push(t, Envelope{Type: TypePublish, Topic: "other", Payload: []byte("no")})
	rl.push(t, Envelope{Type: TypePublish, Topic: "bustx/map/ready", Payload: []byte("yes")})

	select {
	case p := <-got:
		assert.Equal(t, []byte("yes"), p)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestWebsocket_DialFailure(t *testing.T) {
	_, err := DialWebsocket("ws://127.0.0.1:1/none", "", zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket dial failed")
}

func TestWebsocket_InvalidURL(t *testing.T) {
	_, err := DialWebsocket("://bad", "", zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid websocket URL")
}

func TestWebsocket_Close(t *testing.T) {
	srv, _ := testRelay(t)

	w, err := DialWebsocket(wsURL(srv), "", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.ErrorIs(t, w.Publish("t", nil), ErrClosed)
	assert.ErrorIs(t, w.Subscribe("t", func([]byte) {}), ErrClosed)
}

// flakyRelay drops its first connection once the client has subscribed and
// records envelopes per connection afterwards.
type flakyRelay struct {
	mu    sync.Mutex
	conns [][]Envelope
	live  *ws.Conn
}

func (r *flakyRelay) received(i int) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.conns) {
		return nil
	}
	cp := make([]Envelope, len(r.conns[i]))
	copy(cp, r.conns[i])
	return cp
}

func (r *flakyRelay) push(t *testing.T, env Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotNil(t, r.live)
	require.NoError(t, r.live.WriteMessage(ws.TextMessage, data))
}

func testFlakyRelay(t *testing.T) (*httptest.Server, *flakyRelay) {
	t.Helper()
	rl := &flakyRelay{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		rl.mu.Lock()
		idx := len(rl.conns)
		rl.conns = append(rl.conns, nil)
		rl.live = c
		rl.mu.Unlock()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			rl.mu.Lock()
			rl.conns[idx] = append(rl.conns[idx], env)
			rl.mu.Unlock()
			if idx == 0 && env.Type == TypeSubscribe {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv, rl
}

func TestWebsocket_ReconnectReplaysSubscriptions(t *testing.T) {
	srv, rl := testFlakyRelay(t)

	w, err := DialWebsocket(wsURL(srv), "", zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	w.mu.Lock()
	w.backoff = 10 * time.Millisecond
	w.mu.Unlock()

	got := make(chan []byte, 1)
	require.NoError(t, w.Subscribe("bustx/map/ready", func(p []byte) { got <- p }))

	sub := Envelope{Type: TypeSubscribe, Topic: "bustx/map/ready"}
	require.Eventually(t, func() bool {
		envs := rl.received(1)
		return len(envs) == 1 && assert.ObjectsAreEqual(sub, envs[0])
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []Envelope{sub}, rl.received(0))

	require.NoError(t, w.Publish("bustx/map/commands", []byte(`{}`)))
	require.Eventually(t, func() bool { return len(rl.received(1)) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, TypePublish, rl.received(1)[1].Type)

	rl.push(t, Envelope{Type: TypePublish, Topic: "bustx/map/ready", Payload: []byte("yes")})
	select {
	case p := <-got:
		assert.Equal(t, []byte("yes"), p)
	case <-time.After(time.Second):
		t.Fatal("handler not called after reconnect")
	}

	rl.mu.Lock()
	conns := len(rl.conns)
	rl.mu.Unlock()
	assert.Equal(t, 2, conns)
}

func TestWebsocket_CloseWhilePublishing(t *testing.T) {
	srv, _ := testRelay(t)

	w, err := DialWebsocket(wsURL(srv), "", zerolog.Nop())
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = w.Publish("t", []byte("x"))
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, w.Close())
	close(stop)
	wg.Wait()
}
