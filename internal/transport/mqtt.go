package transport

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/HerbHall/hostpanel/internal/frame"
)

// disconnectQuiesceMs lets the client flush in-flight work on disconnect.
const disconnectQuiesceMs = 250

// MQTTConfig identifies the broker and topic a network display subscribes to.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retained bool
	Timeout  time.Duration
}

// MQTTSink publishes each frame as one message, connecting per frame. The
// payload is the line without terminator.
type MQTTSink struct {
	cfg       MQTTConfig
	newClient func(*mqtt.ClientOptions) mqtt.Client
	logger    *zap.Logger
}

// Compile-time guard.
var _ Sink = (*MQTTSink)(nil)

// NewMQTTSink creates a sink publishing to cfg.Topic on cfg.Broker.
func NewMQTTSink(cfg MQTTConfig, logger *zap.Logger) *MQTTSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &MQTTSink{cfg: cfg, newClient: mqtt.NewClient, logger: logger}
}

func (s *MQTTSink) Endpoint() string { return "mqtt:" + s.cfg.Broker + "/" + s.cfg.Topic }

func (s *MQTTSink) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetConnectTimeout(s.cfg.Timeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	return opts
}

// Send connects, publishes and disconnects. A publish that does not complete
// within the timeout is reported as failed.
func (s *MQTTSink) Send(ctx context.Context, f frame.Frame) error {
	if err := ctx.Err(); err != nil {
		return &Error{Endpoint: s.Endpoint(), Op: "connect", Err: err}
	}

	client := s.newClient(s.options())
	if err := wait(client.Connect(), s.cfg.Timeout); err != nil {
		return &Error{Endpoint: s.Endpoint(), Op: "connect", Err: err}
	}
	defer client.Disconnect(disconnectQuiesceMs)

	payload := f.String()
	if err := wait(client.Publish(s.cfg.Topic, s.cfg.QoS, s.cfg.Retained, payload), s.cfg.Timeout); err != nil {
		return &Error{Endpoint: s.Endpoint(), Op: "publish", Err: err}
	}

	s.logger.Debug("frame published",
		zap.String("endpoint", s.Endpoint()),
		zap.Int("bytes", len(payload)),
	)
	return nil
}

func wait(tok mqtt.Token, timeout time.Duration) error {
	if !tok.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return tok.Error()
}
