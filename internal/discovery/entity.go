package discovery

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is the MQTT capability the discovery layer needs. A nil
// error means the client accepted the message; anything else is
// returned to the caller unchanged in kind.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error
}

// Delivery levels used by this package.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
)

// EntityOptions holds the optional construction inputs shared by every
// entity kind.
type EntityOptions struct {
	// NodeID inserts a node segment into the entity's topics. Empty
	// omits it.
	NodeID string

	// DiscoveryPrefix defaults to [DefaultPrefix] when empty.
	DiscoveryPrefix string

	// Extra is merged over the base {name, state_topic} config. Its
	// keys win on conflict, state_topic included.
	Extra *Conf
}

func (o EntityOptions) prefix() string {
	if o.DiscoveryPrefix == "" {
		return DefaultPrefix
	}
	return o.DiscoveryPrefix
}

// Entity is one published attribute of a device. The config is fixed
// once the discovery message has been published.
type Entity struct {
	pub         Publisher
	component   Component
	configTopic string
	stateTopic  string
	config      *Conf
}

// NewEntity computes the entity's topics, builds its config and
// publishes it retained at QoS 1. The entity is only returned once the
// publisher has accepted the config. Most callers want
// [NewBinarySensor] or [NewSensor].
func NewEntity(ctx context.Context, pub Publisher, component Component, name, objectID string, opts EntityOptions) (*Entity, error) {
	prefix := opts.prefix()
	e := &Entity{
		pub:         pub,
		component:   component,
		configTopic: ConfigTopic(prefix, component, objectID, opts.NodeID),
		stateTopic:  StateTopic(prefix, component, objectID, opts.NodeID),
	}

	e.config = NewConf("name", name, "state_topic", e.stateTopic)
	e.config.Update(opts.Extra.Clone())
	if st, ok := e.config.GetString("state_topic"); ok {
		e.stateTopic = st
	}

	payload, err := json.Marshal(e.config)
	if err != nil {
		return nil, fmt.Errorf("marshal %s %s config: %w", component, objectID, err)
	}
	if err := pub.Publish(ctx, e.configTopic, payload, true, QoSAtLeastOnce); err != nil {
		return nil, fmt.Errorf("publish %s %s config: %w", component, objectID, err)
	}
	return e, nil
}

// Component returns the entity's platform.
func (e *Entity) Component() Component { return e.component }

// ConfigTopic returns the discovery config topic.
func (e *Entity) ConfigTopic() string { return e.configTopic }

// StateTopic returns the topic state updates go to. It always matches
// the state_topic of the published config, so an override in the
// extra config (or a group's shared topic) moves it too.
func (e *Entity) StateTopic() string { return e.stateTopic }

// Config returns a copy of the published discovery config.
func (e *Entity) Config() *Conf { return e.config.Clone() }

// PublishState publishes payload unmodified to the state topic,
// unretained at QoS 0.
func (e *Entity) PublishState(ctx context.Context, payload []byte) error {
	if err := e.pub.Publish(ctx, e.stateTopic, payload, false, QoSAtMostOnce); err != nil {
		return fmt.Errorf("publish %s state: %w", e.stateTopic, err)
	}
	return nil
}

// Remove publishes an empty payload to the config topic at QoS 1,
// which tells Home Assistant to drop the entity. Unlike construction
// the removal is not retained.
func (e *Entity) Remove(ctx context.Context) error {
	if err := e.pub.Publish(ctx, e.configTopic, []byte{}, false, QoSAtLeastOnce); err != nil {
		return fmt.Errorf("remove %s: %w", e.configTopic, err)
	}
	return nil
}

// BinarySensor is an on/off entity.
type BinarySensor struct {
	*Entity
}

// Binary sensor payloads, matching HA's default payload_on/payload_off.
var (
	PayloadOn  = []byte("ON")
	PayloadOff = []byte("OFF")
)

// NewBinarySensor publishes a binary_sensor discovery config and
// returns the entity.
func NewBinarySensor(ctx context.Context, pub Publisher, name, objectID string, opts EntityOptions) (*BinarySensor, error) {
	e, err := NewEntity(ctx, pub, ComponentBinarySensor, name, objectID, opts)
	if err != nil {
		return nil, err
	}
	return &BinarySensor{Entity: e}, nil
}

// PublishState publishes "ON" for true and "OFF" for false.
func (b *BinarySensor) PublishState(ctx context.Context, on bool) error {
	payload := PayloadOff
	if on {
		payload = PayloadOn
	}
	return b.Entity.PublishState(ctx, payload)
}

// On publishes the "ON" state.
func (b *BinarySensor) On(ctx context.Context) error { return b.PublishState(ctx, true) }

// Off publishes the "OFF" state.
func (b *BinarySensor) Off(ctx context.Context) error { return b.PublishState(ctx, false) }

// Sensor is a value entity. Its state payload is passed through as-is.
type Sensor struct {
	*Entity
}

// NewSensor publishes a sensor discovery config and returns the entity.
func NewSensor(ctx context.Context, pub Publisher, name, objectID string, opts EntityOptions) (*Sensor, error) {
	e, err := NewEntity(ctx, pub, ComponentSensor, name, objectID, opts)
	if err != nil {
		return nil, err
	}
	return &Sensor{Entity: e}, nil
}
