package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nugget/hamqtt/internal/config"
)

// LegacyClient is an MQTT 3.1.1 connection for brokers without MQTT 5
// support. Reconnection is left to the paho client.
type LegacyClient struct {
	cfg    config.MQTTConfig
	logger *slog.Logger

	mu     sync.Mutex
	client pahomqtt.Client
}

// NewLegacy creates a LegacyClient but does not connect.
func NewLegacy(cfg config.MQTTConfig, logger *slog.Logger) *LegacyClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LegacyClient{
		cfg:    cfg,
		logger: logger,
	}
}

// AvailabilityTopic returns the birth/will topic.
func (l *LegacyClient) AvailabilityTopic() string {
	return availabilityTopic(l.cfg)
}

func (l *LegacyClient) clientOptions() (*pahomqtt.ClientOptions, error) {
	brokerURL, err := url.Parse(l.cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := l.AvailabilityTopic()

	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL.String()).
		SetClientID(clientID(l.cfg)).
		SetConnectTimeout(timeout(l.cfg)).
		SetAutoReconnect(true).
		SetWill(availTopic, StatusOffline, 1, true)

	if l.cfg.Username != "" {
		opts.SetUsername(l.cfg.Username)
	}
	if l.cfg.Password != "" {
		opts.SetPassword(l.cfg.Password)
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetOnConnectHandler(func(client pahomqtt.Client) {
		l.logger.Info("mqtt connected to broker", "broker", l.cfg.Broker, "protocol", "3.1.1")
		l.publishAvailability(context.Background(), client, StatusOnline)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		l.logger.Warn("mqtt connection lost", "error", err)
	})

	return opts, nil
}

// Connect dials the broker and waits for the CONNACK.
func (l *LegacyClient) Connect(ctx context.Context) error {
	opts, err := l.clientOptions()
	if err != nil {
		return err
	}

	client := pahomqtt.NewClient(opts)
	connCtx, cancel := context.WithTimeout(ctx, timeout(l.cfg))
	defer cancel()
	if err := waitToken(connCtx, client.Connect()); err != nil {
		// A timed-out token can still complete later.
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect to %s: %w", l.cfg.Broker, err)
	}

	l.mu.Lock()
	l.client = client
	l.mu.Unlock()
	return nil
}

// Publish sends one message and waits for the token to complete.
func (l *LegacyClient) Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error {
	l.mu.Lock()
	client := l.client
	l.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	pubCtx, cancel := context.WithTimeout(ctx, timeout(l.cfg))
	defer cancel()

	err := waitToken(pubCtx, client.Publish(topic, qos, retain, payload))
	logPublish(ctx, l.logger, topic, payload, retain, qos, err)
	if err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close publishes "offline" and disconnects, allowing 250ms for
// in-flight work to drain.
func (l *LegacyClient) Close(ctx context.Context) error {
	l.mu.Lock()
	client := l.client
	l.client = nil
	l.mu.Unlock()
	if client == nil {
		return nil
	}
	l.publishAvailability(ctx, client, StatusOffline)
	client.Disconnect(250)
	return nil
}

func (l *LegacyClient) publishAvailability(ctx context.Context, client pahomqtt.Client, status string) {
	pubCtx, cancel := context.WithTimeout(ctx, timeout(l.cfg))
	defer cancel()
	if err := waitToken(pubCtx, client.Publish(l.AvailabilityTopic(), 1, true, status)); err != nil {
		l.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		l.logger.Info("mqtt availability published", "status", status)
	}
}

// waitToken blocks until tok completes or ctx is done.
func waitToken(ctx context.Context, tok pahomqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
