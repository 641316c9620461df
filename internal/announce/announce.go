// Package announce turns the configured groups and entities into
// published discovery entities and routes state updates to them.
package announce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nugget/hamqtt/internal/config"
	"github.com/nugget/hamqtt/internal/device"
	"github.com/nugget/hamqtt/internal/discovery"
)

// ErrUnknownEntity is returned when a state targets an object ID that
// was not announced.
var ErrUnknownEntity = errors.New("unknown entity")

// ErrGroupedEntity is returned when a single-entity state targets an
// entity that reads from its group's shared JSON document. Such states
// must go out through [Announcer.PublishGroupState].
var ErrGroupedEntity = errors.New("entity reads from its group's state document")

// ErrInvalidState is returned when a binary sensor state is not a
// recognizable boolean.
var ErrInvalidState = errors.New("invalid binary sensor state")

// entry is one announced entity. Exactly one of binary and sensor is
// set. nodeID is the owning group's node for grouped entities.
type entry struct {
	binary *discovery.BinarySensor
	sensor *discovery.Sensor
	nodeID string
}

func (e entry) entity() *discovery.Entity {
	if e.binary != nil {
		return e.binary.Entity
	}
	return e.sensor.Entity
}

// Announcer owns every entity built from a [config.Config].
type Announcer struct {
	pub        discovery.Publisher
	prefix     string
	device     device.Info
	availTopic string
	logger     *slog.Logger

	groups     []*discovery.Group
	standalone []*discovery.Entity
	byID       map[string]entry
}

// New creates an Announcer. availTopic may be empty, in which case no
// availability_topic is added to the configs.
func New(pub discovery.Publisher, prefix string, dev device.Info, availTopic string, logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{
		pub:        pub,
		prefix:     prefix,
		device:     dev,
		availTopic: availTopic,
		logger:     logger,
		byID:       make(map[string]entry),
	}
}

// baseExtra returns a fresh extra config for one entity: the
// configured extra plus unique_id, device and availability_topic where
// the configured extra does not already set them.
func (a *Announcer) baseExtra(e config.EntityConfig) *discovery.Conf {
	extra := e.Extra.Clone()
	if extra == nil {
		extra = discovery.NewConf()
	}
	if !extra.Has("unique_id") {
		extra.Set("unique_id", a.device.UniqueID(e.ObjectID))
	}
	if !extra.Has("device") {
		extra.Set("device", a.device.Conf())
	}
	if a.availTopic != "" && !extra.Has("availability_topic") {
		extra.Set("availability_topic", a.availTopic)
	}
	return extra
}

// Announce publishes the discovery config of every group entity and
// standalone entity in cfg. It stops at the first failure; entities
// announced before it stay registered and are removed by
// [Announcer.Remove].
func (a *Announcer) Announce(ctx context.Context, cfg *config.Config) error {
	for _, gc := range cfg.Groups {
		g := discovery.NewGroup(a.pub, gc.NodeID, a.prefix, groupExtra(gc))
		a.groups = append(a.groups, g)

		for _, ec := range gc.Entities {
			if err := a.announceGrouped(ctx, g, ec); err != nil {
				return fmt.Errorf("group %s: %w", gc.NodeID, err)
			}
		}
		a.logger.Info("group announced",
			"node_id", gc.NodeID, "state_topic", g.StateTopic(), "entities", len(gc.Entities))
	}

	for _, ec := range cfg.Entities {
		if err := a.announceStandalone(ctx, ec); err != nil {
			return err
		}
	}
	return nil
}

// groupExtra copies the configured group extra so the group's
// state_topic injection does not leak back into the loaded config.
func groupExtra(gc config.GroupConfig) *discovery.Conf {
	if extra := gc.Extra.Clone(); extra != nil {
		return extra
	}
	return discovery.NewConf()
}

func (a *Announcer) announceGrouped(ctx context.Context, g *discovery.Group, ec config.EntityConfig) error {
	component, err := ec.Component()
	if err != nil {
		return err
	}
	extra := a.baseExtra(ec)

	en := entry{nodeID: g.NodeID()}
	switch component {
	case discovery.ComponentBinarySensor:
		en.binary, err = g.CreateBinarySensor(ctx, ec.Name, ec.ObjectID, extra)
	default:
		en.sensor, err = g.CreateSensor(ctx, ec.Name, ec.ObjectID, extra)
	}
	if err != nil {
		return err
	}
	a.register(ec.ObjectID, en)
	return nil
}

func (a *Announcer) announceStandalone(ctx context.Context, ec config.EntityConfig) error {
	component, err := ec.Component()
	if err != nil {
		return err
	}
	opts := discovery.EntityOptions{
		NodeID:          ec.NodeID,
		DiscoveryPrefix: a.prefix,
		Extra:           a.baseExtra(ec),
	}

	var en entry
	switch component {
	case discovery.ComponentBinarySensor:
		en.binary, err = discovery.NewBinarySensor(ctx, a.pub, ec.Name, ec.ObjectID, opts)
	default:
		en.sensor, err = discovery.NewSensor(ctx, a.pub, ec.Name, ec.ObjectID, opts)
	}
	if err != nil {
		return err
	}
	a.standalone = append(a.standalone, en.entity())
	a.register(ec.ObjectID, en)
	return nil
}

func (a *Announcer) register(objectID string, en entry) {
	a.byID[objectID] = en
	e := en.entity()
	a.logger.Debug("entity announced",
		"object_id", objectID, "component", e.Component(), "config_topic", e.ConfigTopic())
}

// Entity returns the announced entity for objectID.
func (a *Announcer) Entity(objectID string) (*discovery.Entity, bool) {
	en, ok := a.byID[objectID]
	if !ok {
		return nil, false
	}
	return en.entity(), true
}

// Groups returns the announced groups in configuration order.
func (a *Announcer) Groups() []*discovery.Group {
	out := make([]*discovery.Group, len(a.groups))
	copy(out, a.groups)
	return out
}

// PublishState publishes raw as the state of a standalone objectID.
// Binary sensors accept the usual boolean spellings plus ON/OFF;
// sensors get raw unmodified. Grouped entities share a JSON state
// topic with their siblings, so they are refused with
// [ErrGroupedEntity].
func (a *Announcer) PublishState(ctx context.Context, objectID, raw string) error {
	en, ok := a.byID[objectID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, objectID)
	}
	if en.nodeID != "" {
		return fmt.Errorf("%s: %w; publish a JSON document with group-state %s instead",
			objectID, ErrGroupedEntity, en.nodeID)
	}
	if en.binary != nil {
		on, err := ParseBinaryState(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", objectID, err)
		}
		return en.binary.PublishState(ctx, on)
	}
	return en.sensor.PublishState(ctx, []byte(raw))
}

// PublishGroupState publishes state as JSON on the shared topic of the
// group for nodeID.
func (a *Announcer) PublishGroupState(ctx context.Context, nodeID string, state any) error {
	for _, g := range a.groups {
		if g.NodeID() == nodeID {
			return g.PublishState(ctx, state)
		}
	}
	return fmt.Errorf("%w: group %s", ErrUnknownEntity, nodeID)
}

// Remove unpublishes every group entity and then every standalone
// entity. It stops at the first failure.
func (a *Announcer) Remove(ctx context.Context) error {
	for _, g := range a.groups {
		if err := g.Remove(ctx); err != nil {
			return fmt.Errorf("remove group %s: %w", g.NodeID(), err)
		}
	}
	for _, e := range a.standalone {
		if err := e.Remove(ctx); err != nil {
			return err
		}
	}
	a.logger.Info("entities removed", "count", len(a.byID))
	return nil
}

// ParseBinaryState converts a textual state to a bool. It accepts
// everything [strconv.ParseBool] does plus ON and OFF in any case.
func ParseBinaryState(raw string) (bool, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	on, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %q", ErrInvalidState, raw)
	}
	return on, nil
}
