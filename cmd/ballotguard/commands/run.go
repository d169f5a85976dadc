package commands

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mosaicnetworks/ballotguard/src/ballotguard"
	"github.com/mosaicnetworks/ballotguard/src/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables read by viper, eg.
// BALLOTGUARD_LEDGER_ADDR for --ledger.addr.
const EnvPrefix = "BALLOTGUARD"

// NewRunCmd returns the command that starts a BallotGuard server
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run server",
		PreRunE: loadConfig,
		RunE:    runBallotGuard,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runBallotGuard(cmd *cobra.Command, args []string) error {
	logger := _config.BallotGuard.Logger()

	engine := ballotguard.NewBallotGuard(&_config.BallotGuard)

	if err := engine.Init(); err != nil {
		logger.WithError(err).Error("Cannot initialize engine")
		engine.Shutdown()
		return err
	}
	defer engine.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return engine.Run(ctx)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	c := &_config.BallotGuard

	cmd.Flags().String("datadir", c.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", c.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", c.LogFile, "Copy info and above to this file")
	cmd.Flags().String("env-file", _config.EnvFile, "Dotenv file loaded before reading the environment")

	// Service
	cmd.Flags().StringP("service-listen", "s", c.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", c.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", c.DatabaseDir, "Database directory")

	// Policy
	cmd.Flags().StringSlice("roster", c.Roster, "Identities eligible to vote")
	cmd.Flags().StringSlice("choices", c.Choices, "Options on the ballot")
	cmd.Flags().Int("max-flags", c.MaxFlags, "Lock an identity after that many flagged attempts (0 disables)")
	cmd.Flags().String("admin-token", c.AdminToken, "Bearer token of the /admin routes (empty disables them)")

	// Scorer
	cmd.Flags().Int("scorer.window-size", c.Scorer.WindowSize, "Accepted vectors the forest is fitted on")
	cmd.Flags().Int("scorer.min-samples", c.Scorer.MinSamples, "Window size below which rules are used")
	cmd.Flags().Int("scorer.trees", c.Scorer.Trees, "Number of isolation trees")
	cmd.Flags().Int("scorer.sample-size", c.Scorer.SampleSize, "Points per isolation tree")
	cmd.Flags().Float64("scorer.contamination", c.Scorer.Contamination, "Expected share of anomalies")
	cmd.Flags().Float64("scorer.score-threshold", c.Scorer.ScoreThreshold, "Minimum score of an anomaly")
	cmd.Flags().Int64("scorer.seed", c.Scorer.Seed, "Seed of tree construction")
	cmd.Flags().Int("scorer.burst-count", c.Scorer.BurstCount, "Origin attempts that make a burst")
	cmd.Flags().Duration("scorer.burst-gap", c.Scorer.BurstGap, "Maximum gap inside a burst")

	// Ledger
	cmd.Flags().Bool("standalone", c.Standalone, "Run the ledger in-process")
	cmd.Flags().String("ledger.addr", c.Ledger.Addr, "Base URL of the ledger node")
	cmd.Flags().Duration("ledger.timeout", c.Ledger.Timeout, "Timeout of ledger calls")
	cmd.Flags().Int("ledger.retry-attempts", c.Ledger.RetryAttempts, "Tries per ledger call")
	cmd.Flags().Duration("ledger.retry-base-delay", c.Ledger.RetryBaseDelay, "Backoff before the second try")
	cmd.Flags().Duration("ledger.retry-max-delay", c.Ledger.RetryMaxDelay, "Backoff cap")
	cmd.Flags().Duration("ledger.reconcile-interval", c.Ledger.ReconcileInterval, "Period of hand-off reconciliation (0 disables)")

	// Events
	cmd.Flags().StringSlice("events.kafka-brokers", c.Events.KafkaBrokers, "Kafka brokers receiving decisions")
	cmd.Flags().String("events.kafka-topic", c.Events.KafkaTopic, "Kafka topic receiving decisions")
	cmd.Flags().String("events.postgres-dsn", c.Events.PostgresDSN, "Postgres mirror of decisions")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.BallotGuard.SetDataDir(_config.BallotGuard.DataDir)

	c := &_config.BallotGuard

	c.NormalizeCredentials()

	logFields := logrus.Fields{
		"DataDir":                  c.DataDir,
		"ServiceAddr":              c.ServiceAddr,
		"Store":                    c.Store,
		"LogLevel":                 c.LogLevel,
		"Standalone":               c.Standalone,
		"MaxFlags":                 c.MaxFlags,
		"AdminRoutes":              c.AdminToken != "",
		"Roster":                   len(c.Roster),
		"Choices":                  c.Choices,
		"Scorer.WindowSize":        c.Scorer.WindowSize,
		"Scorer.MinSamples":        c.Scorer.MinSamples,
		"Scorer.ScoreThreshold":    c.Scorer.ScoreThreshold,
		"Ledger.ReconcileInterval": c.Ledger.ReconcileInterval,
	}

	if c.Store {
		logFields["DatabaseDir"] = c.DatabaseDir
	}
	if !c.Standalone {
		logFields["Ledger.Addr"] = c.Ledger.Addr
	}
	if len(c.Events.KafkaBrokers) > 0 {
		logFields["Events.KafkaBrokers"] = c.Events.KafkaBrokers
	}

	c.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Environment variables override the config file, eg.
	// BALLOTGUARD_EVENTS_POSTGRES_DSN
	envFile := viper.GetString("env-file")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return err
		}
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/ballotguard.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigFile)    // name of config file (without extension)
	viper.AddConfigPath(_config.BallotGuard.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.BallotGuard.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.BallotGuard.Logger().Debugf("No config file found in: %s", _config.BallotGuard.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
