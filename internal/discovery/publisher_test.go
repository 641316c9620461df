package discovery

import (
	"context"
	"encoding/json"
	"testing"
)

// publishCall is one recorded Publish invocation.
type publishCall struct {
	Topic   string
	Payload string
	Retain  bool
	QoS     byte
}

// recordingPublisher records every publish and optionally fails.
type recordingPublisher struct {
	calls []publishCall
	err   error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, payload []byte, retain bool, qos byte) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, publishCall{
		Topic:   topic,
		Payload: string(payload),
		Retain:  retain,
		QoS:     qos,
	})
	return nil
}

func (r *recordingPublisher) last(t *testing.T) publishCall {
	t.Helper()
	if len(r.calls) == 0 {
		t.Fatal("no publish calls recorded")
	}
	return r.calls[len(r.calls)-1]
}

// decodeConfig parses a recorded discovery payload.
func decodeConfig(t *testing.T, payload string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		t.Fatalf("config payload %q is not JSON: %v", payload, err)
	}
	return m
}
