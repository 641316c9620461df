package discovery

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestConf_MarshalKeepsInsertionOrder(t *testing.T) {
	c := NewConf("name", "Door", "state_topic", "a/b/state")
	c.Set("device_class", "door")
	c.Set("name", "Front Door") // replacing keeps position

	got, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"name":"Front Door","state_topic":"a/b/state","device_class":"door"}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestConf_MarshalNested(t *testing.T) {
	c := NewConf(
		"device", NewConf("identifiers", []any{"abc"}, "name", "Garage"),
		"expire_after", 300,
		"force_update", true,
		"precision", 1.5,
	)
	got, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"device":{"identifiers":["abc"],"name":"Garage"},"expire_after":300,"force_update":true,"precision":1.5}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestConf_MarshalRejectsUnsupported(t *testing.T) {
	c := NewConf("bad", map[string]int{"x": 1})
	if _, err := json.Marshal(c); err == nil {
		t.Fatal("Marshal with map value should error")
	}
}

func TestConf_Update(t *testing.T) {
	c := NewConf("name", "a", "state_topic", "mine")
	c.Update(NewConf("state_topic", "theirs", "icon", "mdi:x"))

	if got := c.Keys(); !reflect.DeepEqual(got, []string{"name", "state_topic", "icon"}) {
		t.Errorf("Keys() = %v", got)
	}
	if got, _ := c.GetString("state_topic"); got != "theirs" {
		t.Errorf("state_topic = %q, want %q", got, "theirs")
	}

	c.Update(nil)
	if c.Len() != 3 {
		t.Errorf("Update(nil) changed Len to %d", c.Len())
	}
}

func TestConf_NilReads(t *testing.T) {
	var c *Conf
	if c.Has("x") {
		t.Error("nil Conf Has = true")
	}
	if c.Len() != 0 {
		t.Errorf("nil Conf Len = %d", c.Len())
	}
	if c.Keys() != nil {
		t.Errorf("nil Conf Keys = %v", c.Keys())
	}
	if c.Clone() != nil {
		t.Error("nil Conf Clone should be nil")
	}
	b, err := json.Marshal(c)
	if err != nil || string(b) != "null" {
		t.Errorf("Marshal(nil) = %s, %v", b, err)
	}
}

func TestConf_Delete(t *testing.T) {
	c := NewConf("a", 1, "b", 2, "c", 3)
	c.Delete("b")
	c.Delete("missing")
	if got := c.Keys(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("Keys() after Delete = %v", got)
	}
}

func TestConf_CloneIsDeep(t *testing.T) {
	inner := NewConf("name", "Garage")
	c := NewConf("device", inner, "list", []any{"x"})

	clone := c.Clone()
	inner.Set("name", "Changed")
	clone.Set("extra", true)

	v, _ := clone.Get("device")
	if name, _ := v.(*Conf).GetString("name"); name != "Garage" {
		t.Errorf("clone nested name = %q, want %q", name, "Garage")
	}
	if c.Has("extra") {
		t.Error("writing to clone leaked into original")
	}
}

func TestConf_UnmarshalYAMLKeepsOrder(t *testing.T) {
	doc := `
value_template: "{{ value_json.temp }}"
unit_of_measurement: "°C"
expire_after: 600
force_update: false
device:
  name: Garage
  identifiers: [abc, def]
`
	var c Conf
	if err := yaml.Unmarshal([]byte(doc), &c); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	want := []string{"value_template", "unit_of_measurement", "expire_after", "force_update", "device"}
	if got := c.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}

	if v, _ := c.Get("expire_after"); v != 600 {
		t.Errorf("expire_after = %#v, want 600", v)
	}
	if v, _ := c.Get("force_update"); v != false {
		t.Errorf("force_update = %#v, want false", v)
	}

	b, err := json.Marshal(&c)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if !strings.Contains(string(b), `"device":{"name":"Garage","identifiers":["abc","def"]}`) {
		t.Errorf("nested device not preserved in order: %s", b)
	}
}

func TestConf_UnmarshalYAMLRejectsScalar(t *testing.T) {
	var c Conf
	if err := yaml.Unmarshal([]byte(`just a string`), &c); err == nil {
		t.Fatal("Unmarshal of scalar into Conf should error")
	}
}
