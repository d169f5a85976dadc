package commands

import (
	"github.com/mosaicnetworks/ballotguard/src/config"
)

// DefaultEnvFile is the dotenv file loaded from the working directory.
const DefaultEnvFile = ".env"

// CLIConfig contains configuration for the Run command
type CLIConfig struct {
	BallotGuard config.Config `mapstructure:",squash"`
	EnvFile     string        `mapstructure:"env-file"`
}

// NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		BallotGuard: *config.NewDefaultConfig(),
		EnvFile:     DefaultEnvFile,
	}
}
