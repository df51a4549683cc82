package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// BroadcastConfig holds live count fan-out settings.
type BroadcastConfig struct {
	Interval string     `toml:"interval"`
	MQTT     MQTTConfig `toml:"mqtt"`
}

// MQTTConfig configures the optional MQTT relay. An empty Broker disables it.
type MQTTConfig struct {
	Broker         string `toml:"broker"`
	Topic          string `toml:"topic"`
	QoS            int    `toml:"qos"`
	ClientID       string `toml:"client_id"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	ConnectTimeout string `toml:"connect_timeout"`
}

// IntervalDuration returns Interval as a time.Duration.
func (c *BroadcastConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

// Enabled reports whether a broker is configured.
func (c *MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// ConnectTimeoutDuration returns ConnectTimeout as a time.Duration.
func (c *MQTTConfig) ConnectTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnectTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *BroadcastConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *BroadcastConfig) Merge(overlay *BroadcastConfig) {
	if overlay.Interval != "" {
		c.Interval = overlay.Interval
	}

	m, o := &c.MQTT, &overlay.MQTT
	if o.Broker != "" {
		m.Broker = o.Broker
	}
	if o.Topic != "" {
		m.Topic = o.Topic
	}
	if o.QoS != 0 {
		m.QoS = o.QoS
	}
	if o.ClientID != "" {
		m.ClientID = o.ClientID
	}
	if o.Username != "" {
		m.Username = o.Username
	}
	if o.Password != "" {
		m.Password = o.Password
	}
	if o.ConnectTimeout != "" {
		m.ConnectTimeout = o.ConnectTimeout
	}
}

func (c *BroadcastConfig) loadDefaults() {
	if c.Interval == "" {
		c.Interval = "2s"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "headcount/live-count"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "headcount"
	}
	if c.MQTT.ConnectTimeout == "" {
		c.MQTT.ConnectTimeout = "10s"
	}
}

func (c *BroadcastConfig) loadEnv() {
	if v := os.Getenv("HEADCOUNT_BROADCAST_INTERVAL"); v != "" {
		c.Interval = v
	}
	if v := os.Getenv("HEADCOUNT_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("HEADCOUNT_MQTT_TOPIC"); v != "" {
		c.MQTT.Topic = v
	}
	if v := os.Getenv("HEADCOUNT_MQTT_QOS"); v != "" {
		if q, err := strconv.Atoi(v); err == nil {
			c.MQTT.QoS = q
		}
	}
	if v := os.Getenv("HEADCOUNT_MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := os.Getenv("HEADCOUNT_MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("HEADCOUNT_MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
}

func (c *BroadcastConfig) validate() error {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("interval must be positive: %s", c.Interval)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2: %d", c.MQTT.QoS)
	}
	if _, err := time.ParseDuration(c.MQTT.ConnectTimeout); err != nil {
		return fmt.Errorf("invalid mqtt connect_timeout: %w", err)
	}
	return nil
}
