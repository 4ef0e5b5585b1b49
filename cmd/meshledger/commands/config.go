package commands

import (
	"github.com/meshledger/meshledger/config"
)

// CLIConfig wraps config.Config so viper can bind flags and config-file
// values directly onto the node configuration via the squashed mapstructure
// tag.
type CLIConfig struct {
	Node config.Config `mapstructure:",squash"`
}

// NewDefaultCLIConfig returns a CLIConfig with every default value set.
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Node: *config.NewDefaultConfig(),
	}
}
