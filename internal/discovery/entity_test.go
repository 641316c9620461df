package discovery

import (
	"context"
	"errors"
	"testing"
)

func TestNewBinarySensor_PublishesRetainedConfig(t *testing.T) {
	pub := &recordingPublisher{}
	bs, err := NewBinarySensor(context.Background(), pub, "Front Door", "front_door", EntityOptions{NodeID: "house"})
	if err != nil {
		t.Fatalf("NewBinarySensor() error = %v", err)
	}

	if len(pub.calls) != 1 {
		t.Fatalf("publish calls = %d, want 1", len(pub.calls))
	}
	call := pub.calls[0]

	wantTopic := "homeassistant/binary_sensor/house/front_door/config"
	if call.Topic != wantTopic {
		t.Errorf("topic = %q, want %q", call.Topic, wantTopic)
	}
	if !call.Retain {
		t.Error("config publish should be retained")
	}
	if call.QoS != 1 {
		t.Errorf("qos = %d, want 1", call.QoS)
	}

	cfg := decodeConfig(t, call.Payload)
	if cfg["name"] != "Front Door" {
		t.Errorf("name = %v, want %q", cfg["name"], "Front Door")
	}
	if cfg["state_topic"] != bs.StateTopic() {
		t.Errorf("state_topic = %v, want %q", cfg["state_topic"], bs.StateTopic())
	}
	if bs.StateTopic() != "homeassistant/binary_sensor/house/front_door/state" {
		t.Errorf("StateTopic() = %q", bs.StateTopic())
	}
	if bs.Component() != ComponentBinarySensor {
		t.Errorf("Component() = %q", bs.Component())
	}
}

func TestNewSensor_DefaultsAndExtra(t *testing.T) {
	pub := &recordingPublisher{}
	extra := NewConf("unit_of_measurement", "°C", "name", "Overridden")
	s, err := NewSensor(context.Background(), pub, "Temp", "temp", EntityOptions{
		DiscoveryPrefix: "ha",
		Extra:           extra,
	})
	if err != nil {
		t.Fatalf("NewSensor() error = %v", err)
	}

	if got := s.ConfigTopic(); got != "ha/sensor/temp/config" {
		t.Errorf("ConfigTopic() = %q", got)
	}
	want := `{"name":"Overridden","state_topic":"ha/sensor/temp/state","unit_of_measurement":"°C"}`
	if got := pub.last(t).Payload; got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
}

func TestNewSensor_ExtraStateTopicOverrideAccepted(t *testing.T) {
	pub := &recordingPublisher{}
	s, err := NewSensor(context.Background(), pub, "Temp", "temp", EntityOptions{
		Extra: NewConf("state_topic", "somewhere/else"),
	})
	if err != nil {
		t.Fatalf("NewSensor() error = %v", err)
	}
	if got, _ := s.Config().GetString("state_topic"); got != "somewhere/else" {
		t.Errorf("config state_topic = %q, want %q", got, "somewhere/else")
	}
	if s.StateTopic() != "somewhere/else" {
		t.Errorf("StateTopic() = %q, want it to follow the config", s.StateTopic())
	}
}

func TestNewEntity_PublishErrorPropagates(t *testing.T) {
	boom := errors.New("broker gone")
	pub := &recordingPublisher{err: boom}

	s, err := NewSensor(context.Background(), pub, "Temp", "temp", EntityOptions{})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapping %v", err, boom)
	}
	if s != nil {
		t.Error("entity should not be returned when config publish fails")
	}
}

func TestNewEntity_ConfigIsImmutable(t *testing.T) {
	pub := &recordingPublisher{}
	extra := NewConf("icon", "mdi:a")
	s, err := NewSensor(context.Background(), pub, "Temp", "temp", EntityOptions{Extra: extra})
	if err != nil {
		t.Fatalf("NewSensor() error = %v", err)
	}

	extra.Set("icon", "mdi:b")
	s.Config().Set("icon", "mdi:c")

	if got, _ := s.Config().GetString("icon"); got != "mdi:a" {
		t.Errorf("icon = %q, want %q", got, "mdi:a")
	}
}

func TestBinarySensor_PublishState(t *testing.T) {
	pub := &recordingPublisher{}
	ctx := context.Background()
	bs, err := NewBinarySensor(ctx, pub, "Motion", "motion", EntityOptions{})
	if err != nil {
		t.Fatalf("NewBinarySensor() error = %v", err)
	}

	tests := []struct {
		name    string
		publish func() error
		want    string
	}{
		{"true", func() error { return bs.PublishState(ctx, true) }, "ON"},
		{"false", func() error { return bs.PublishState(ctx, false) }, "OFF"},
		{"On", func() error { return bs.On(ctx) }, "ON"},
		{"Off", func() error { return bs.Off(ctx) }, "OFF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.publish(); err != nil {
				t.Fatalf("publish error = %v", err)
			}
			call := pub.last(t)
			if call.Payload != tt.want {
				t.Errorf("payload = %q, want %q", call.Payload, tt.want)
			}
			if call.Topic != bs.StateTopic() {
				t.Errorf("topic = %q, want %q", call.Topic, bs.StateTopic())
			}
			if call.Retain {
				t.Error("state publish should not be retained")
			}
			if call.QoS != 0 {
				t.Errorf("qos = %d, want 0", call.QoS)
			}
		})
	}
}

func TestSensor_PublishStatePassesPayloadThrough(t *testing.T) {
	pub := &recordingPublisher{}
	ctx := context.Background()
	s, err := NewSensor(ctx, pub, "Temp", "temp", EntityOptions{})
	if err != nil {
		t.Fatalf("NewSensor() error = %v", err)
	}
	if err := s.PublishState(ctx, []byte("21.5")); err != nil {
		t.Fatalf("PublishState() error = %v", err)
	}
	if got := pub.last(t); got.Payload != "21.5" || got.Retain || got.QoS != 0 {
		t.Errorf("state publish = %+v", got)
	}
}

func TestEntity_Remove(t *testing.T) {
	pub := &recordingPublisher{}
	ctx := context.Background()
	s, err := NewSensor(ctx, pub, "Temp", "temp", EntityOptions{NodeID: "n"})
	if err != nil {
		t.Fatalf("NewSensor() error = %v", err)
	}
	if err := s.Remove(ctx); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	call := pub.last(t)
	if call.Topic != s.ConfigTopic() {
		t.Errorf("topic = %q, want %q", call.Topic, s.ConfigTopic())
	}
	if call.Payload != "" {
		t.Errorf("payload = %q, want empty", call.Payload)
	}
	if call.QoS != 1 {
		t.Errorf("qos = %d, want 1", call.QoS)
	}
	if call.Retain {
		t.Error("removal should not be retained")
	}
}
