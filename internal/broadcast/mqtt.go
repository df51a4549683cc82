package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/JaimeStill/headcount/internal/config"
	"github.com/JaimeStill/headcount/pkg/lifecycle"
)

const mqttPublishTimeout = 2 * time.Second

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	IsConnectionOpen() bool
}

// Relay republishes live counts to an MQTT topic as retained messages. It
// subscribes to the hub like any other sink and never reports a send error,
// so a lost broker connection does not detach it.
type Relay struct {
	client  mqtt.Client
	pub     mqttClient
	topic   string
	qos     byte
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	last Message
	sent bool
}

// NewRelay creates a Relay for cfg. The connection opens on Start.
func NewRelay(cfg *config.MQTTConfig, logger *slog.Logger) *Relay {
	logger = logger.With("system", "mqtt", "broker", cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetConnectTimeout(cfg.ConnectTimeoutDuration())
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, reconnecting", "error", err)
	}

	client := mqtt.NewClient(opts)
	r := newRelay(client, cfg.Topic, byte(cfg.QoS), logger)
	r.client = client
	r.timeout = cfg.ConnectTimeoutDuration()
	return r
}

func newRelay(pub mqttClient, topic string, qos byte, logger *slog.Logger) *Relay {
	return &Relay{
		pub:     pub,
		topic:   topic,
		qos:     qos,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// Start connects to the broker and subscribes the relay to hub once the
// lifecycle begins.
func (r *Relay) Start(lc *lifecycle.Coordinator, hub *Hub) error {
	r.logger.Info("starting mqtt relay", "topic", r.topic)

	lc.OnStartup(func() {
		token := r.client.Connect()
		if !token.WaitTimeout(r.timeout) {
			r.logger.Warn("mqtt connect timed out, retrying in background")
		} else if err := token.Error(); err != nil {
			r.logger.Error("mqtt connect failed", "error", err)
		}

		if _, err := hub.Subscribe(r); err != nil {
			r.logger.Error("mqtt relay subscription failed", "error", err)
		}
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		r.client.Disconnect(250)
		r.logger.Info("mqtt relay disconnected")
	})

	return nil
}

// Send publishes msg unless it repeats the last published value.
func (r *Relay) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sent && r.last == msg {
		return nil
	}
	if !r.pub.IsConnectionOpen() {
		r.logger.Debug("mqtt not connected, count skipped", "count", msg.Count)
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mqtt payload: %w", err)
	}

	token := r.pub.Publish(r.topic, r.qos, true, payload)
	timer := time.NewTimer(mqttPublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		r.logger.Warn("mqtt publish timed out", "count", msg.Count)
		return nil
	case <-ctx.Done():
		return nil
	}
	if err := token.Error(); err != nil {
		r.logger.Warn("mqtt publish failed", "count", msg.Count, "error", err)
		return nil
	}

	r.last, r.sent = msg, true
	return nil
}

func (r *Relay) Close() error {
	return nil
}
