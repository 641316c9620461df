// Package buildinfo exposes the version stamped into the hamqtt binary
// and the process start time. The diagnostics group reports both to
// Home Assistant, and the version command prints them.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Overridden by the release build, e.g.
//
//	-ldflags "-X github.com/nugget/hamqtt/internal/buildinfo.Version=v1.2.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Info is the version command's view of the binary, keyed by the names
// it prints.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     Uptime().String(),
	}
}

// Uptime is whole seconds since the process started, the value of the
// diagnostics uptime sensor.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// String is the version command's headline.
func String() string {
	return fmt.Sprintf("hamqtt %s (%s) built %s", Version, GitCommit, BuildTime)
}
