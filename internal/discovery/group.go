package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrValueTemplateRequired is returned when a grouped entity is
// created without a value_template. Grouped entities share one state
// topic, so each needs a template to pick its value out of the shared
// payload.
var ErrValueTemplateRequired = errors.New("grouped sensor requires value_template")

// Group owns a node's shared state topic and the entities created
// under it.
type Group struct {
	pub        Publisher
	nodeID     string
	prefix     string
	extra      *Conf
	stateTopic string
	entities   []*Entity
}

// NewGroup creates a group for nodeID. Nothing is published.
//
// extra is required and must not be nil. If it has a state_topic that
// topic becomes the group's state topic. Otherwise the default
// <prefix>/sensor/<nodeID>/state is computed and written back into
// extra itself: the caller's *Conf is mutated, and every later use of
// it sees the injected state_topic. Sharing one extra between groups
// built concurrently is not supported.
//
// An empty prefix means [DefaultPrefix].
func NewGroup(pub Publisher, nodeID, prefix string, extra *Conf) *Group {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	g := &Group{
		pub:    pub,
		nodeID: nodeID,
		prefix: prefix,
		extra:  extra,
	}
	if v, ok := extra.Get("state_topic"); ok {
		g.stateTopic = fmt.Sprint(v)
	} else {
		g.stateTopic = GroupStateTopic(prefix, nodeID)
		extra.Set("state_topic", g.stateTopic)
	}
	return g
}

// NodeID returns the node segment shared by the group's entities.
func (g *Group) NodeID() string { return g.nodeID }

// DiscoveryPrefix returns the group's discovery prefix.
func (g *Group) DiscoveryPrefix() string { return g.prefix }

// StateTopic returns the topic [Group.PublishState] writes to.
func (g *Group) StateTopic() string { return g.stateTopic }

// Entities returns the entities created so far, in creation order.
func (g *Group) Entities() []*Entity {
	out := make([]*Entity, len(g.entities))
	copy(out, g.entities)
	return out
}

// mergeExtra checks that extra carries a value_template and then
// overlays the group config onto it. Group keys win, which is what
// pins every grouped entity to the shared state topic. extra is
// modified in place.
func (g *Group) mergeExtra(extra *Conf) error {
	if !extra.Has("value_template") {
		return ErrValueTemplateRequired
	}
	extra.Update(g.extra)
	return nil
}

func (g *Group) entityOptions(extra *Conf) EntityOptions {
	return EntityOptions{
		NodeID:          g.nodeID,
		DiscoveryPrefix: g.prefix,
		Extra:           extra,
	}
}

// CreateBinarySensor creates a binary sensor under the group's node.
// extra must contain value_template; the group config is merged into
// it before the entity publishes its discovery config.
func (g *Group) CreateBinarySensor(ctx context.Context, name, objectID string, extra *Conf) (*BinarySensor, error) {
	if err := g.mergeExtra(extra); err != nil {
		return nil, fmt.Errorf("create binary sensor %s: %w", objectID, err)
	}
	bs, err := NewBinarySensor(ctx, g.pub, name, objectID, g.entityOptions(extra))
	if err != nil {
		return nil, err
	}
	g.entities = append(g.entities, bs.Entity)
	return bs, nil
}

// CreateSensor creates a sensor under the group's node. See
// [Group.CreateBinarySensor] for the extra contract.
func (g *Group) CreateSensor(ctx context.Context, name, objectID string, extra *Conf) (*Sensor, error) {
	if err := g.mergeExtra(extra); err != nil {
		return nil, fmt.Errorf("create sensor %s: %w", objectID, err)
	}
	s, err := NewSensor(ctx, g.pub, name, objectID, g.entityOptions(extra))
	if err != nil {
		return nil, err
	}
	g.entities = append(g.entities, s.Entity)
	return s, nil
}

// PublishState JSON-encodes state and publishes it to the group's
// state topic, unretained at QoS 0. Consumers tell entities apart by
// their value_template.
func (g *Group) PublishState(ctx context.Context, state any) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal %s group state: %w", g.nodeID, err)
	}
	if err := g.pub.Publish(ctx, g.stateTopic, payload, false, QoSAtMostOnce); err != nil {
		return fmt.Errorf("publish %s group state: %w", g.nodeID, err)
	}
	return nil
}

// Remove removes every entity in creation order and stops at the first
// failure. The entity list is kept, so calling Remove again publishes
// the removals again.
func (g *Group) Remove(ctx context.Context) error {
	for _, e := range g.entities {
		if err := e.Remove(ctx); err != nil {
			return err
		}
	}
	return nil
}
