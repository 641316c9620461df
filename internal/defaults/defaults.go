// Package defaults provides an embedded copy of the example
// configuration for the hamqtt init subcommand.
package defaults

import _ "embed"

// ConfigYAML is the annotated example configuration.
//
//go:embed hamqtt.example.yaml
var ConfigYAML []byte
