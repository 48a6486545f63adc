package transport

import "sync"

// Message is a payload recorded by Loopback.
type Message struct {
	Topic   string
	Payload []byte
}

// Loopback delivers published payloads to in-process subscribers. It runs the
// animator without a broker and records everything published.
type Loopback struct {
	mu        sync.Mutex
	subs      map[string][]Handler
	published []Message
	closed    bool
}

func NewLoopback() *Loopback {
	return &Loopback{subs: make(map[string][]Handler)}
}

// Publish records payload and hands it to every subscriber of topic on the
// caller's goroutine.
func (l *Loopback) Publish(topic string, payload []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	cp := append([]byte(nil), payload...)
	l.published = append(l.published, Message{Topic: topic, Payload: cp})
	handlers := append([]Handler(nil), l.subs[topic]...)
	l.mu.Unlock()

	for _, h := range handlers {
		h(cp)
	}
	return nil
}

func (l *Loopback) Subscribe(topic string, handler Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.subs[topic] = append(l.subs[topic], handler)
	return nil
}

// Published returns a copy of every message published on topic so far.
func (l *Loopback) Published(topic string) []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Message
	for _, m := range l.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
