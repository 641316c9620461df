// Package device describes the Home Assistant device that discovered
// entities belong to, and the stable instance ID that identifies it.
package device

import (
	"github.com/nugget/hamqtt/internal/buildinfo"
	"github.com/nugget/hamqtt/internal/discovery"
)

// Info holds the HA device registry fields attached to every
// discovery config. Entities that carry the same identifiers are shown
// together on one device page in HA.
type Info struct {
	Identifiers  []string
	Name         string
	Manufacturer string
	Model        string
	SWVersion    string
}

// NewInfo creates an Info from the persistent instance ID and the
// human-readable device name. The instance ID is the primary HA device
// identifier, so renaming the device keeps its entity history.
func NewInfo(instanceID, deviceName string) Info {
	return Info{
		Identifiers:  []string{instanceID},
		Name:         deviceName,
		Manufacturer: "Hollow Oak",
		Model:        "hamqtt",
		SWVersion:    buildinfo.Version,
	}
}

// Conf renders the device block as a discovery config mapping. Empty
// optional fields are left out.
func (i Info) Conf() *discovery.Conf {
	ids := make([]any, len(i.Identifiers))
	for n, id := range i.Identifiers {
		ids[n] = id
	}
	c := discovery.NewConf("identifiers", ids, "name", i.Name)
	if i.Manufacturer != "" {
		c.Set("manufacturer", i.Manufacturer)
	}
	if i.Model != "" {
		c.Set("model", i.Model)
	}
	if i.SWVersion != "" {
		c.Set("sw_version", i.SWVersion)
	}
	return c
}

// UniqueID returns the unique_id HA should use for an entity of this
// device. It is derived from the first identifier so it survives
// device renames.
func (i Info) UniqueID(objectID string) string {
	if len(i.Identifiers) == 0 {
		return objectID
	}
	return i.Identifiers[0] + "_" + objectID
}
