// Package discovery publishes Home Assistant MQTT discovery config and
// state messages for binary sensors and sensors.
//
// Topics follow the HA discovery layout:
//
//	<prefix>/<component>/[<node_id>/]<object_id>/config
//	<prefix>/<component>/[<node_id>/]<object_id>/state
//
// Constructing an entity publishes its retained discovery config
// immediately. Entities created through a [Group] share the group's
// state topic, so the group publishes one JSON document and each
// entity's value_template picks its own field out of it.
//
// The package never connects to a broker. Callers hand it a
// [Publisher]; the concrete MQTT clients live in internal/mqtt.
package discovery
