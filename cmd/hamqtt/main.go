// hamqtt announces Home Assistant MQTT discovery entities and publishes
// their state.
//
// Entities and groups are declared in a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]). Every command that
// touches the broker first announces the configured entities, since
// constructing an entity is what publishes its discovery config.
//
// Usage:
//
//	hamqtt serve                         Announce, then publish diagnostics until stopped
//	hamqtt announce                      Publish discovery configs and exit
//	hamqtt publish <object_id> <state>   Publish one standalone entity state
//	hamqtt group-state <node_id> <json>  Publish a JSON document on a group's state topic
//	hamqtt remove                        Remove every configured entity from HA
//	hamqtt init [dir]                    Write an example config
//	hamqtt version                       Print version and build information
//	hamqtt -o json version               Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/hamqtt/internal/announce"
	"github.com/nugget/hamqtt/internal/buildinfo"
	"github.com/nugget/hamqtt/internal/config"
	"github.com/nugget/hamqtt/internal/device"
	"github.com/nugget/hamqtt/internal/mqtt"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run].
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Structured logs go to stdout; the
// caller prints the returned error to stderr. Arguments are parsed by
// hand so run can be driven concurrently from tests without touching
// flag.CommandLine.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "announce":
		return runAnnounce(ctx, stdout, configPath)
	case "publish":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: hamqtt publish <object_id> <state>")
		}
		return runPublish(ctx, stdout, configPath, cmdArgs[0], cmdArgs[1])
	case "group-state":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: hamqtt group-state <node_id> <json>")
		}
		return runGroupState(ctx, stdout, configPath, cmdArgs[0], cmdArgs[1])
	case "remove":
		return runRemove(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "hamqtt - Home Assistant MQTT discovery publisher")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: hamqtt [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                         Announce entities and publish diagnostics until stopped")
	fmt.Fprintln(w, "  announce                      Publish discovery configs and exit")
	fmt.Fprintln(w, "  publish <object_id> <state>   Publish one standalone entity state")
	fmt.Fprintln(w, "  group-state <node_id> <json>  Publish a JSON state document for a group")
	fmt.Fprintln(w, "  remove                        Remove all configured entities from Home Assistant")
	fmt.Fprintln(w, "  init [dir]                    Write an example config (default: .)")
	fmt.Fprintln(w, "  version                       Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	for _, p := range config.DefaultSearchPaths() {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}

// loadConfig locates, parses and validates the YAML configuration.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// session is a connected broker plus the announcer built on it.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	conn      mqtt.Conn
	device    device.Info
	announcer *announce.Announcer
}

// openSession loads the config, connects to the broker and announces
// every configured entity.
func openSession(ctx context.Context, stdout io.Writer, configPath string) (*session, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(stdout, level, cfg.LogFormat)
	logger.Debug("config loaded", "path", cfgPath)

	instanceID, err := device.LoadOrCreateInstanceID(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load instance id: %w", err)
	}
	logger.Debug("instance ID loaded", "instance_id", instanceID)
	dev := device.NewInfo(instanceID, cfg.MQTT.DeviceName)

	conn := mqtt.NewConn(cfg.MQTT, logger)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	s := &session{
		cfg:       cfg,
		logger:    logger,
		conn:      conn,
		device:    dev,
		announcer: announce.New(conn, cfg.MQTT.DiscoveryPrefix, dev, conn.AvailabilityTopic(), logger),
	}
	if err := s.announcer.Announce(ctx, cfg); err != nil {
		s.close()
		return nil, fmt.Errorf("announce: %w", err)
	}
	return s, nil
}

// close disconnects with a fresh deadline so a cancelled run context
// still lets the offline status go out.
func (s *session) close() {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.conn.Close(closeCtx); err != nil {
		s.logger.Error("mqtt shutdown failed", "error", err)
	}
}

func runAnnounce(ctx context.Context, stdout io.Writer, configPath string) error {
	s, err := openSession(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer s.close()
	s.logger.Info("entities announced",
		"groups", len(s.cfg.Groups), "entities", countEntities(s.cfg))
	return nil
}

func runPublish(ctx context.Context, stdout io.Writer, configPath, objectID, state string) error {
	s, err := openSession(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer s.close()
	return s.announcer.PublishState(ctx, objectID, state)
}

func runGroupState(ctx context.Context, stdout io.Writer, configPath, nodeID, doc string) error {
	var state any
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		return fmt.Errorf("parse group state: %w", err)
	}
	s, err := openSession(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer s.close()
	return s.announcer.PublishGroupState(ctx, nodeID, state)
}

func runRemove(ctx context.Context, stdout io.Writer, configPath string) error {
	s, err := openSession(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer s.close()
	return s.announcer.Remove(ctx)
}

// runServe announces everything, then publishes the diagnostics group
// on an interval until SIGINT or SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := openSession(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer s.close()

	s.logger.Info("starting hamqtt",
		"version", buildinfo.Version,
		"broker", s.cfg.MQTT.Broker,
		"protocol", s.cfg.MQTT.Protocol,
		"device", s.device.Name,
	)

	diag := announce.NewDiagnostics(s.conn, s.cfg.MQTT.DiscoveryPrefix, s.device,
		s.conn.AvailabilityTopic(), buildStats{}, s.logger)
	if err := diag.Announce(ctx); err != nil {
		return err
	}

	interval := time.Duration(s.cfg.MQTT.PublishIntervalSec) * time.Second
	diag.Run(ctx, interval)

	s.logger.Info("shutdown signal received")

	if s.cfg.MQTT.RemoveOnShutdown {
		removeCtx, removeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer removeCancel()
		if err := s.announcer.Remove(removeCtx); err != nil {
			s.logger.Error("remove entities failed", "error", err)
		}
		if err := diag.Group().Remove(removeCtx); err != nil {
			s.logger.Error("remove diagnostics failed", "error", err)
		}
	}

	s.logger.Info("hamqtt stopped")
	return nil
}

func countEntities(cfg *config.Config) int {
	n := len(cfg.Entities)
	for _, g := range cfg.Groups {
		n += len(g.Entities)
	}
	return n
}

// buildStats adapts [buildinfo] to [announce.StatsSource].
type buildStats struct{}

func (buildStats) Uptime() time.Duration { return buildinfo.Uptime() }
func (buildStats) Version() string       { return buildinfo.Version }
