package transport

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/matt-g-everett/bustx/config"
	"github.com/rs/zerolog"
)

// MQTT publishes and subscribes through a broker.
type MQTT struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.Mutex
	subs   map[string]Handler
	closed bool
}

// NewMQTT builds an MQTT transport. Call Connect before publishing.
func NewMQTT(cfg config.MqttConfig, logger zerolog.Logger) *MQTT {
	m := newMQTT(nil, cfg.QoS, cfg.PublishTimeout, logger)

	options := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(cfg.KeepAlive).
		SetPingTimeout(5 * time.Second).
		SetAutoReconnect(true).
		SetOnConnectHandler(m.handleOnConnect).
		SetConnectionLostHandler(m.handleConnectionLost)
	m.client = mqtt.NewClient(options)

	return m
}

func newMQTT(client mqtt.Client, qos byte, timeout time.Duration, logger zerolog.Logger) *MQTT {
	return &MQTT{
		client:  client,
		qos:     qos,
		timeout: timeout,
		logger:  logger,
		subs:    make(map[string]Handler),
	}
}

// wait bounds a token so a broker outage never stalls the caller.
func (m *MQTT) wait(token mqtt.Token) error {
	if !token.WaitTimeout(m.timeout) {
		return ErrTimeout
	}
	return token.Error()
}

// Connect blocks until the broker accepts the connection.
func (m *MQTT) Connect() error {
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect failed: %w", token.Error())
	}
	return nil
}

func (m *MQTT) handleOnConnect(client mqtt.Client) {
	m.logger.Info().Msg("Connected")

	m.mu.Lock()
	subs := make(map[string]Handler, len(m.subs))
	for topic, h := range m.subs {
		subs[topic] = h
	}
	m.mu.Unlock()

	for topic, h := range subs {
		if err := m.subscribe(topic, h); err != nil {
			m.logger.Error().Err(err).Str("topic", topic).Msg("Resubscribe failed")
		}
	}
}

func (m *MQTT) handleConnectionLost(_ mqtt.Client, err error) {
	m.logger.Warn().Err(err).Msg("Connection lost")
}

// Publish sends payload on topic and waits, at most the publish timeout, for
// the broker to take it.
func (m *MQTT) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	token := m.client.Publish(topic, m.qos, false, payload)
	if err := m.wait(token); err != nil {
		return fmt.Errorf("mqtt publish to %s failed: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription is renewed on
// every reconnect.
func (m *MQTT) Subscribe(topic string, handler Handler) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.subs[topic] = handler
	m.mu.Unlock()

	if !m.client.IsConnected() {
		return nil
	}
	return m.subscribe(topic, handler)
}

func (m *MQTT) subscribe(topic string, handler Handler) error {
	token := m.client.Subscribe(topic, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
		m.logger.Trace().Str("topic", msg.Topic()).Int("bytes", len(msg.Payload())).Msg("Received")
		handler(msg.Payload())
	})
	if err := m.wait(token); err != nil {
		return fmt.Errorf("mqtt subscribe to %s failed: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.client.Disconnect(250)
	return nil
}

type pahoLogger struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	l.logger.WithLevel(l.level).Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.logger.WithLevel(l.level).Msgf(format, v...)
}

// SetPahoLogger routes the paho client's own warnings and errors to logger.
func SetPahoLogger(logger zerolog.Logger) {
	mqtt.CRITICAL = pahoLogger{logger: logger, level: zerolog.ErrorLevel}
	mqtt.ERROR = pahoLogger{logger: logger, level: zerolog.ErrorLevel}
	mqtt.WARN = pahoLogger{logger: logger, level: zerolog.WarnLevel}
}
