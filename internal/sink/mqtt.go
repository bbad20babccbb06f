// Package sink forwards decoded MIDI events to an MQTT broker.
package sink

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/leandrodaf/midiscan/internal/config"
	"github.com/leandrodaf/midiscan/sdk/contracts"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	defaultKeepAlive         = 60 * time.Second
)

// Error definitions for the MQTT sink.
var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrUnknownFormat    = errors.New("unknown payload format")
)

// mqttClient is the part of pahomqtt.Client the sink uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes every decoded event to <prefix>/<device>/<kind>.
type MQTTSink struct {
	client  mqttClient
	prefix  string
	qos     byte
	format  string
	logger  contracts.Logger
	now     func() time.Time
	pending sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Connect dials the broker described by cfg.
func Connect(cfg config.MQTTConfig, logger contracts.Logger) (*MQTTSink, error) {
	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		logger.Info("MQTT connection established", logger.Field().String("broker", cfg.Broker))
		c.Publish(statusTopic(cfg.TopicPrefix), 1, true, "online")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost, will auto-reconnect", logger.Field().Error("error", err))
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return newMQTTSink(client, cfg, logger), nil
}

func newMQTTSink(client mqttClient, cfg config.MQTTConfig, logger contracts.Logger) *MQTTSink {
	return &MQTTSink{
		client: client,
		prefix: strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:    byte(cfg.QoS),
		format: cfg.Format,
		logger: logger,
		now:    time.Now,
	}
}

// buildClientOptions creates paho options from the sink config, with
// auto-reconnect and a retained offline will on <prefix>/status.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(statusTopic(cfg.TopicPrefix), "offline", 1, true)
	return opts
}

func statusTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/status"
}

// topicSegment makes a device ID usable as a single topic level.
var topicSegment = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// Topic returns the topic an event from deviceID of the given kind goes to.
func (s *MQTTSink) Topic(deviceID string, kind contracts.MessageKind) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, topicSegment.Replace(deviceID), kind)
}

// Handle publishes ev. It matches contracts.EventHandler and never blocks on
// the broker; delivery failures are logged.
func (s *MQTTSink) Handle(deviceID string, ev contracts.DecodedEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending.Add(1)
	s.mu.Unlock()

	rec := NewRecord(deviceID, ev, uint64(s.now().UTC().UnixNano()))
	payload, err := Encode(s.format, rec)
	if err != nil {
		s.pending.Done()
		s.logger.Error("Failed to encode MIDI event", s.logger.Field().Error("error", err))
		return
	}

	topic := s.Topic(deviceID, ev.Kind())
	token := s.client.Publish(topic, s.qos, false, payload)
	go func() {
		defer s.pending.Done()
		if !token.WaitTimeout(defaultPublishTimeout) {
			s.logger.Warn("MQTT publish timed out", s.logger.Field().String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Warn("MQTT publish failed",
				s.logger.Field().String("topic", topic),
				s.logger.Field().Error("error", err))
			return
		}
		s.logger.Debug("MIDI event published",
			s.logger.Field().String("topic", topic),
			s.logger.Field().Int("size", len(payload)))
	}()
}

// Close waits for in-flight publishes, marks the sink offline and disconnects.
func (s *MQTTSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.pending.Wait()
	s.client.Publish(statusTopic(s.prefix), 1, true, "offline").WaitTimeout(defaultPublishTimeout)
	s.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}
