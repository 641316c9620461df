package announce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/hamqtt/internal/device"
	"github.com/nugget/hamqtt/internal/discovery"
)

// StatsSource provides the runtime data published by [Diagnostics].
type StatsSource interface {
	// Uptime returns the process uptime.
	Uptime() time.Duration
	// Version returns the software version string.
	Version() string
}

// Diagnostics announces hamqtt itself as a node: one group whose
// sensors all read from a single JSON state document.
type Diagnostics struct {
	group  *discovery.Group
	device device.Info
	stats  StatsSource
	logger *slog.Logger
}

type diagnosticDef struct {
	objectID string
	name     string
	extra    *discovery.Conf
}

func diagnosticDefinitions() []diagnosticDef {
	return []diagnosticDef{
		{
			objectID: "uptime",
			name:     "Uptime",
			extra: discovery.NewConf(
				"value_template", "{{ value_json.uptime }}",
				"unit_of_measurement", "s",
				"device_class", "duration",
				"state_class", "measurement",
				"icon", "mdi:clock-outline",
			),
		},
		{
			objectID: "version",
			name:     "Version",
			extra: discovery.NewConf(
				"value_template", "{{ value_json.version }}",
				"icon", "mdi:tag",
			),
		},
		{
			objectID: "last_publish",
			name:     "Last Publish",
			extra: discovery.NewConf(
				"value_template", "{{ value_json.last_publish }}",
				"device_class", "timestamp",
				"icon", "mdi:clock-check",
			),
		},
	}
}

// NewDiagnostics creates the diagnostics group under the device's
// name. Nothing is published until [Diagnostics.Announce].
func NewDiagnostics(pub discovery.Publisher, prefix string, dev device.Info, availTopic string, stats StatsSource, logger *slog.Logger) *Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	extra := discovery.NewConf(
		"device", dev.Conf(),
		"entity_category", "diagnostic",
	)
	if availTopic != "" {
		extra.Set("availability_topic", availTopic)
	}
	return &Diagnostics{
		group:  discovery.NewGroup(pub, dev.Name, prefix, extra),
		device: dev,
		stats:  stats,
		logger: logger,
	}
}

// Group returns the underlying entity group.
func (d *Diagnostics) Group() *discovery.Group { return d.group }

// Announce publishes the diagnostic sensors' discovery configs.
func (d *Diagnostics) Announce(ctx context.Context) error {
	for _, def := range diagnosticDefinitions() {
		extra := def.extra
		extra.Set("unique_id", d.device.UniqueID(def.objectID))
		if _, err := d.group.CreateSensor(ctx, def.name, def.objectID, extra); err != nil {
			return fmt.Errorf("announce diagnostic %s: %w", def.objectID, err)
		}
	}
	return nil
}

// State returns the JSON document the diagnostic sensors read from.
func (d *Diagnostics) State(now time.Time) map[string]any {
	return map[string]any{
		"uptime":       int64(d.stats.Uptime() / time.Second),
		"version":      d.stats.Version(),
		"last_publish": now.UTC().Format(time.RFC3339),
	}
}

// Run publishes the diagnostics state immediately and then every
// interval until ctx is cancelled. Publish failures are logged and the
// loop carries on.
func (d *Diagnostics) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.publish(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.publish(ctx)
		}
	}
}

func (d *Diagnostics) publish(ctx context.Context) {
	if err := d.group.PublishState(ctx, d.State(time.Now())); err != nil {
		if ctx.Err() == nil {
			d.logger.Warn("diagnostics publish failed", "error", err)
		}
		return
	}
	d.logger.Debug("diagnostics published", "topic", d.group.StateTopic())
}
