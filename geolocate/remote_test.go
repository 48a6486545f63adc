package geolocate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/matt-g-everett/bustx/route"
	"github.com/matt-g-everett/bustx/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRemote(t *testing.T, timeout time.Duration) (*Remote, *transport.Loopback) {
	t.Helper()
	lb := transport.NewLoopback()
	r, err := NewRemote(lb, RemoteOptions{
		RequestTopic: "req",
		ReplyTopic:   "reply",
		Timeout:      timeout,
	}, zerolog.Nop())
	require.NoError(t, err)
	return r, lb
}

// answer makes the loopback renderer reply to every request with reply,
// echoing the request id.
func answer(t *testing.T, lb *transport.Loopback, reply LocateReply) {
	t.Helper()
	require.NoError(t, lb.Subscribe("req", func(p []byte) {
		var req LocateRequest
		require.NoError(t, json.Unmarshal(p, &req))
		reply.ID = req.ID
		data, err := json.Marshal(reply)
		require.NoError(t, err)
		require.NoError(t, lb.Publish("reply", data))
	}))
}

func ptr(f float64) *float64 { return &f }

func TestRemote_Success(t *testing.T) {
	r, lb := newTestRemote(t, time.Second)
	answer(t, lb, LocateReply{Lat: ptr(8.52), Lng: ptr(76.93)})

	wp, err := r.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, route.Waypoint{Lat: 8.52, Lng: 76.93}, wp)

	reqs := lb.Published("req")
	require.Len(t, reqs, 1)
	var req LocateRequest
	require.NoError(t, json.Unmarshal(reqs[0].Payload, &req))
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, int64(1000), req.TimeoutMs)
}

func TestRemote_ErrorCodes(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"denied", ErrDenied},
		{"permission_denied", ErrDenied},
		{"unsupported", ErrUnsupported},
		{"timeout", ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			r, lb := newTestRemote(t, time.Second)
			answer(t, lb, LocateReply{Error: tt.code})

			_, err := r.Locate(context.Background())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRemote_UnknownErrorCode(t *testing.T) {
	r, lb := newTestRemote(t, time.Second)
	answer(t, lb, LocateReply{Error: "position_unavailable"})

	_, err := r.Locate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position_unavailable")
}

func TestRemote_MissingCoordinates(t *testing.T) {
	r, lb := newTestRemote(t, time.Second)
	answer(t, lb, LocateReply{Lat: ptr(1)})

	_, err := r.Locate(context.Background())
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestRemote_Timeout(t *testing.T) {
	r, _ := newTestRemote(t, 20*time.Millisecond)

	_, err := r.Locate(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRemote_ContextCanceled(t *testing.T) {
	r, _ := newTestRemote(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Locate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemote_ReplyWithoutIDAnswersPending(t *testing.T) {
	r, lb := newTestRemote(t, time.Second)

	go func() {
		for len(lb.Published("req")) == 0 {
			time.Sleep(time.Millisecond)
		}
		_ = lb.Publish("reply", []byte(`{"lat": 1.5, "lng": 2.5}`))
	}()

	wp, err := r.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, route.Waypoint{Lat: 1.5, Lng: 2.5}, wp)
}

func TestRemote_IgnoresOtherIDsAndGarbage(t *testing.T) {
	r, lb := newTestRemote(t, 50*time.Millisecond)
	require.NoError(t, lb.Subscribe("req", func([]byte) {
		_ = lb.Publish("reply", []byte(`not json`))
		_ = lb.Publish("reply", []byte(`{"id": "someone-else", "lat": 1, "lng": 1}`))
	}))

	_, err := r.Locate(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

type failingTransport struct {
	transport.Transport
	subscribeErr error
	publishErr   error
}

func (f failingTransport) Subscribe(string, transport.Handler) error { return f.subscribeErr }
func (f failingTransport) Publish(string, []byte) error              { return f.publishErr }

func TestNewRemote_SubscribeError(t *testing.T) {
	_, err := NewRemote(failingTransport{subscribeErr: errors.New("down")}, RemoteOptions{}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to subscribe")
}

func TestRemote_PublishError(t *testing.T) {
	r, err := NewRemote(failingTransport{publishErr: errors.New("down")}, RemoteOptions{Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)

	_, err = r.Locate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish geolocation request")
}
