package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Conf is an insertion-ordered discovery configuration mapping. Values
// are limited to what a discovery payload can carry: strings, bools,
// integers, floats, nested *Conf and []any slices of the same. Keys
// are serialized in the order they were first set, so a payload reads
// the same way every time it is published.
//
// A nil *Conf behaves as an empty mapping for every read. Writing to
// a nil *Conf panics.
//
// Conf is not safe for concurrent use.
type Conf struct {
	keys   []string
	values map[string]any
}

// NewConf builds a Conf from alternating key/value arguments. It
// panics if a key is not a string or the argument count is odd, which
// makes it suitable for literals in code and tests.
func NewConf(kv ...any) *Conf {
	if len(kv)%2 != 0 {
		panic("discovery.NewConf: odd number of arguments")
	}
	c := &Conf{values: make(map[string]any, len(kv)/2)}
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("discovery.NewConf: key %v is %T, not string", kv[i], kv[i]))
		}
		c.Set(k, kv[i+1])
	}
	return c
}

// Set stores v under key. Replacing an existing key keeps its original
// position.
func (c *Conf) Set(key string, v any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = v
}

// Get returns the value stored under key.
func (c *Conf) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.values[key]
	return v, ok
}

// GetString returns the value under key if it is a string.
func (c *Conf) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Has reports whether key is present.
func (c *Conf) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key if present.
func (c *Conf) Delete(key string) {
	if c == nil {
		return
	}
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (c *Conf) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of keys.
func (c *Conf) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Update copies every key of other into c, overwriting on conflict.
// Keys new to c are appended in other's order. A nil other is a no-op.
func (c *Conf) Update(other *Conf) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		c.Set(k, other.values[k])
	}
}

// Clone returns a deep copy of c. Nested mappings and slices are
// copied so the clone can be mutated independently.
func (c *Conf) Clone() *Conf {
	if c == nil {
		return nil
	}
	out := &Conf{
		keys:   make([]string, len(c.keys)),
		values: make(map[string]any, len(c.values)),
	}
	copy(out.keys, c.keys)
	for k, v := range c.values {
		out.values[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case *Conf:
		return tv.Clone()
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(tv))
		copy(out, tv)
		return out
	default:
		return v
	}
}

// MarshalJSON renders c as a JSON object with keys in insertion order.
// A value outside the supported set is an error.
func (c *Conf) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := writeValue(&buf, c.values[k]); err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch tv := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, []string:
		b, err := json.Marshal(tv)
		if err != nil {
			return err
		}
		buf.Write(b)
	case *Conf:
		b, err := tv.MarshalJSON()
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, e := range tv {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, e); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("unsupported conf value type %T", v)
	}
	return nil
}

// UnmarshalYAML decodes a YAML mapping into c, keeping the document's
// key order. Nested mappings become *Conf and sequences become []any.
func (c *Conf) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping, got %s", node.Line, kindName(node.Kind))
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return fmt.Errorf("line %d: %w", node.Content[i].Line, err)
		}
		v, err := yamlValue(node.Content[i+1])
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		c.Set(key, v)
	}
	return nil
}

func yamlValue(node *yaml.Node) (any, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.MappingNode:
		nested := &Conf{}
		if err := nested.UnmarshalYAML(node); err != nil {
			return nil, err
		}
		return nested, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, n := range node.Content {
			v, err := yamlValue(n)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported %s", node.Line, kindName(node.Kind))
	}
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown node"
	}
}
