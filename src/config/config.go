package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/ballotguard/src/common"
	"github.com/mosaicnetworks/ballotguard/src/scorer"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultConfigFile is the base name of the optional configuration file
	// read from the data directory.
	DefaultConfigFile = "ballotguard"
)

// Default configuration values.
const (
	DefaultLogLevel          = "debug"
	DefaultServiceAddr       = "127.0.0.1:8000"
	DefaultStore             = false
	DefaultStandalone        = false
	DefaultMaxFlags          = 0
	DefaultLedgerAddr        = "http://127.0.0.1:8800"
	DefaultLedgerListen      = "127.0.0.1:8800"
	DefaultLedgerTimeout     = 5 * time.Second
	DefaultRetryAttempts     = 3
	DefaultRetryBaseDelay    = 100 * time.Millisecond
	DefaultRetryMaxDelay     = 2 * time.Second
	DefaultReconcileInterval = 30 * time.Second
	DefaultKafkaTopic        = "ballotguard.decisions"
)

// DefaultChoices is the list of parties on the ballot.
var DefaultChoices = []string{"Democratic", "Republican", "Socialist"}

// DefaultRoster returns the identities eligible to vote when none are
// configured: VOID001 to VOID015.
func DefaultRoster() []string {
	roster := make([]string, 0, 15)
	for i := 1; i <= 15; i++ {
		roster = append(roster, voterID(i))
	}
	return roster
}

// DefaultCredentials returns the demo login table. Only the first five voters
// of the default roster have a password.
func DefaultCredentials() map[string]string {
	creds := make(map[string]string, 5)
	for i := 1; i <= 5; i++ {
		creds[voterID(i)] = fmt.Sprintf("pass%03d", i)
	}
	return creds
}

func voterID(i int) string {
	return fmt.Sprintf("VOID%03d", i)
}

// LedgerConfig groups the options of the ledger hand-off.
type LedgerConfig struct {
	// Addr is the base URL of the ledger node.
	Addr string `mapstructure:"addr"`

	// Listen is the address:port where cmd/ledger serves the in-memory chain.
	Listen string `mapstructure:"listen"`

	// Timeout bounds every HTTP call to the ledger node.
	Timeout time.Duration `mapstructure:"timeout"`

	// RetryAttempts is the number of tries for each ledger call during a
	// hand-off, including the first one.
	RetryAttempts int `mapstructure:"retry-attempts"`

	// RetryBaseDelay is the backoff before the second attempt. It doubles on
	// each further attempt.
	RetryBaseDelay time.Duration `mapstructure:"retry-base-delay"`

	// RetryMaxDelay caps the backoff.
	RetryMaxDelay time.Duration `mapstructure:"retry-max-delay"`

	// ReconcileInterval is the period of the loop that re-hands accepted votes
	// whose hand-off failed. Zero disables the loop.
	ReconcileInterval time.Duration `mapstructure:"reconcile-interval"`
}

// EventsConfig groups the options of the decision mirrors. Each sink is
// enabled by setting its address.
type EventsConfig struct {
	// KafkaBrokers is a comma separated list of Kafka brokers.
	KafkaBrokers []string `mapstructure:"kafka-brokers"`

	// KafkaTopic is the topic receiving decision envelopes.
	KafkaTopic string `mapstructure:"kafka-topic"`

	// PostgresDSN is the connection string of the Postgres mirror.
	PostgresDSN string `mapstructure:"postgres-dsn"`
}

// Config contains all the configuration properties of a BallotGuard server.
type Config struct {
	// DataDir is the top-level directory containing BallotGuard configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every entry at info level and
	// above.
	LogFile string `mapstructure:"log-file"`

	// ServiceAddr is the address:port of the HTTP API.
	ServiceAddr string `mapstructure:"service-listen"`

	// Store activates persistant storage of the vote and fraud logs.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Standalone runs the ledger in-process instead of calling a ledger node
	// over HTTP.
	Standalone bool `mapstructure:"standalone"`

	// MaxFlags locks an identity after that many flagged attempts, until an
	// administrator unlocks it. Zero disables the lockout.
	MaxFlags int `mapstructure:"max-flags"`

	// AdminToken is the bearer token required by the /admin routes. The
	// routes are disabled while it is empty.
	AdminToken string `mapstructure:"admin-token"`

	// Roster lists the identities eligible to vote. An empty roster accepts
	// any authenticated identity.
	Roster []string `mapstructure:"roster"`

	// Credentials maps identities to their login password.
	Credentials map[string]string `mapstructure:"credentials"`

	// Choices lists the options on the ballot.
	Choices []string `mapstructure:"choices"`

	// Scorer configures the anomaly scorer.
	Scorer scorer.Config `mapstructure:"scorer"`

	// Ledger configures the ledger hand-off.
	Ledger LedgerConfig `mapstructure:"ledger"`

	// Events configures the decision mirrors.
	Events EventsConfig `mapstructure:"events"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:     DefaultDataDir(),
		LogLevel:    DefaultLogLevel,
		ServiceAddr: DefaultServiceAddr,
		Store:       DefaultStore,
		DatabaseDir: DefaultDatabaseDir(),
		Standalone:  DefaultStandalone,
		MaxFlags:    DefaultMaxFlags,
		Roster:      DefaultRoster(),
		Credentials: DefaultCredentials(),
		Choices:     append([]string{}, DefaultChoices...),
		Scorer:      scorer.DefaultConfig(),
		Ledger: LedgerConfig{
			Addr:              DefaultLedgerAddr,
			Listen:            DefaultLedgerListen,
			Timeout:           DefaultLedgerTimeout,
			RetryAttempts:     DefaultRetryAttempts,
			RetryBaseDelay:    DefaultRetryBaseDelay,
			RetryMaxDelay:     DefaultRetryMaxDelay,
			ReconcileInterval: DefaultReconcileInterval,
		},
		Events: EventsConfig{
			KafkaTopic: DefaultKafkaTopic,
		},
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.SetDataDir(t.TempDir())
	config.Standalone = true
	config.Ledger.ReconcileInterval = 0
	config.Ledger.RetryBaseDelay = time.Millisecond
	config.Ledger.RetryMaxDelay = 5 * time.Millisecond
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level BallotGuard directory, and updates the
// database directory if it is currently set to the default value.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// NormalizeCredentials rewrites the keys of Credentials to the spelling used
// in Roster, or to upper case when the identity is not on the roster. Config
// files lose the case of map keys.
func (c *Config) NormalizeCredentials() {
	if len(c.Credentials) == 0 {
		return
	}

	creds := make(map[string]string, len(c.Credentials))
	for id, password := range c.Credentials {
		key := strings.ToUpper(id)
		for _, r := range c.Roster {
			if strings.EqualFold(r, id) {
				key = r
				break
			}
		}
		creds[key] = password
	}
	c.Credentials = creds
}

// Logger returns a formatted logrus Entry, with prefix set to "ballotguard".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				lfshook.PathMap{
					logrus.InfoLevel:  c.LogFile,
					logrus.WarnLevel:  c.LogFile,
					logrus.ErrorLevel: c.LogFile,
					logrus.FatalLevel: c.LogFile,
					logrus.PanicLevel: c.LogFile,
				},
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "ballotguard")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level BallotGuard
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".BallotGuard")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "BallotGuard")
		} else {
			return filepath.Join(home, ".ballotguard")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
