package discovery

// DefaultPrefix is the discovery prefix Home Assistant listens on out
// of the box.
const DefaultPrefix = "homeassistant"

// Component is the HA entity platform segment of a discovery topic.
type Component string

// Supported components.
const (
	ComponentBinarySensor Component = "binary_sensor"
	ComponentSensor       Component = "sensor"
)

// String returns the topic segment for c.
func (c Component) String() string { return string(c) }

// ConfigTopic returns the discovery config topic for an entity. An
// empty nodeID is omitted entirely rather than leaving an empty
// segment. Segments are not validated; a "/" or "+" inside objectID
// ends up in the topic verbatim.
func ConfigTopic(prefix string, component Component, objectID, nodeID string) string {
	return baseTopic(prefix, component, objectID, nodeID) + "config"
}

// StateTopic returns the state topic for an entity. It differs from
// [ConfigTopic] only in the final segment.
func StateTopic(prefix string, component Component, objectID, nodeID string) string {
	return baseTopic(prefix, component, objectID, nodeID) + "state"
}

// GroupStateTopic returns the default shared state topic for a node.
func GroupStateTopic(prefix, nodeID string) string {
	return prefix + "/" + string(ComponentSensor) + "/" + nodeID + "/state"
}

func baseTopic(prefix string, component Component, objectID, nodeID string) string {
	t := prefix + "/" + string(component) + "/"
	if nodeID != "" {
		t += nodeID + "/"
	}
	return t + objectID + "/"
}
