package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nugget/hamqtt/internal/config"
	"github.com/nugget/hamqtt/internal/discovery"
)

// ErrNotConnected is returned by Publish before Connect has succeeded.
var ErrNotConnected = errors.New("mqtt client not connected")

// Availability payloads.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Conn is a broker connection usable by the discovery layer.
type Conn interface {
	discovery.Publisher

	// Connect dials the broker and blocks until the first connection
	// is up or ctx expires.
	Connect(ctx context.Context) error

	// Close publishes the offline availability status and
	// disconnects.
	Close(ctx context.Context) error

	// AvailabilityTopic returns the topic birth and will messages
	// are published to.
	AvailabilityTopic() string
}

// NewConn returns the client implementation selected by
// cfg.Protocol. It does not connect.
func NewConn(cfg config.MQTTConfig, logger *slog.Logger) Conn {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Protocol == config.ProtocolV311 {
		return NewLegacy(cfg, logger)
	}
	return New(cfg, logger)
}

// --- helpers shared by both clients ---

func baseTopic(cfg config.MQTTConfig) string {
	return "hamqtt/" + cfg.DeviceName
}

func availabilityTopic(cfg config.MQTTConfig) string {
	return baseTopic(cfg) + "/availability"
}

func clientID(cfg config.MQTTConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return "hamqtt-" + cfg.DeviceName
}

func timeout(cfg config.MQTTConfig) time.Duration {
	if cfg.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.TimeoutSec) * time.Second
}

// logPublish records the outcome of a publish. Payloads only appear at
// trace level.
func logPublish(ctx context.Context, logger *slog.Logger, topic string, payload []byte, retain bool, qos byte, err error) {
	if err != nil {
		logger.Warn("mqtt publish failed",
			"topic", topic, "qos", qos, "retain", retain, "error", err)
		return
	}
	logger.Debug("mqtt published",
		"topic", topic, "qos", qos, "retain", retain, "bytes", len(payload))
	logger.Log(ctx, config.LevelTrace, "mqtt payload",
		"topic", topic, "payload", string(payload))
}
