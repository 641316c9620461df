package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/hamqtt/internal/config"
)

// Client is an MQTT 5 connection managed by autopaho. It reconnects on
// its own; publishes made while the link is down fail and are returned
// to the caller.
type Client struct {
	cfg    config.MQTTConfig
	logger *slog.Logger

	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

// New creates a Client but does not connect. Call [Client.Connect].
func New(cfg config.MQTTConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

// AvailabilityTopic returns the birth/will topic.
func (c *Client) AvailabilityTopic() string {
	return availabilityTopic(c.cfg)
}

// clientConfig builds the autopaho configuration. It is split out of
// Connect so tests can inspect it without a broker.
func (c *Client) clientConfig(ctx context.Context) (autopaho.ClientConfig, error) {
	brokerURL, err := url.Parse(c.cfg.Broker)
	if err != nil {
		return autopaho.ClientConfig{}, fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := c.AvailabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: c.cfg.Username,
		ConnectPassword: []byte(c.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte(StatusOffline),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("mqtt connected to broker", "broker", c.cfg.Broker)
			c.publishAvailability(ctx, cm, StatusOnline)
		},
		OnConnectError: func(err error) {
			c.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID(c.cfg),
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return pahoCfg, nil
}

// Connect starts the connection manager and waits for the first
// connection, bounded by the configured timeout.
func (c *Client) Connect(ctx context.Context) error {
	pahoCfg, err := c.clientConfig(ctx)
	if err != nil {
		return err
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	connCtx, connCancel := context.WithTimeout(ctx, timeout(c.cfg))
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// Stop the manager's retry loop; the client stays unconnected.
		stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout(c.cfg))
		defer stopCancel()
		if derr := cm.Disconnect(stopCtx); derr != nil {
			c.logger.Debug("mqtt connection manager stop failed", "error", derr)
		}
		return fmt.Errorf("mqtt await connection to %s: %w", c.cfg.Broker, err)
	}

	c.mu.Lock()
	c.cm = cm
	c.mu.Unlock()
	return nil
}

// Publish sends one message and waits for the broker to accept it
// (QoS 1) or for it to be written (QoS 0).
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error {
	c.mu.Lock()
	cm := c.cm
	c.mu.Unlock()
	if cm == nil {
		return ErrNotConnected
	}

	pubCtx, cancel := context.WithTimeout(ctx, timeout(c.cfg))
	defer cancel()

	_, err := cm.Publish(pubCtx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  retain,
	})
	logPublish(ctx, c.logger, topic, payload, retain, qos, err)
	if err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close gracefully disconnects by publishing an "offline" availability
// message before closing the MQTT connection. The provided context
// controls how long to wait for the publish and disconnect to complete.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	cm := c.cm
	c.cm = nil
	c.mu.Unlock()
	if cm == nil {
		return nil
	}
	c.publishAvailability(ctx, cm, StatusOffline)
	return cm.Disconnect(ctx)
}

func (c *Client) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   c.AvailabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		c.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		c.logger.Info("mqtt availability published", "status", status)
	}
}
