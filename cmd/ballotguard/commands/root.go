package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

// RootCmd is the root command for BallotGuard
var RootCmd = &cobra.Command{
	Use:              "ballotguard",
	Short:            "vote intake with fraud scoring",
	TraverseChildren: true,
}
