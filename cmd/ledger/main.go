// Command ledger serves an in-memory chain over the HTTP protocol expected by
// the ledger hand-off of BallotGuard. It is meant for development and demos.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mosaicnetworks/ballotguard/src/config"
	"github.com/mosaicnetworks/ballotguard/src/ledger/inmem"
	"github.com/mosaicnetworks/ballotguard/src/ledger/node"
	"github.com/mosaicnetworks/ballotguard/src/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var _config = config.NewDefaultConfig()

func main() {
	rootCmd := &cobra.Command{
		Use:     "ledger",
		Short:   "in-memory ledger node",
		Version: version.Version,
		PreRunE: loadConfig,
		RunE:    runLedger,
	}

	rootCmd.Flags().StringP("ledger.listen", "l", _config.Ledger.Listen, "Listen IP:Port for the ledger node")
	rootCmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")

	// Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the flags and BALLOTGUARD_LEDGER_LISTEN / BALLOTGUARD_LOG
// into the config.
func loadConfig(cmd *cobra.Command, args []string) error {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix("BALLOTGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v.Unmarshal(_config)
}

func runLedger(cmd *cobra.Command, args []string) error {
	logger := _config.Logger().WithField("prefix", "ledger")

	chain, err := inmem.NewChain(logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return node.NewServer(_config.Ledger.Listen, chain, logger).Serve(ctx)
}
