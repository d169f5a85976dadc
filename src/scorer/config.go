package scorer

import (
	"time"

	"github.com/mosaicnetworks/ballotguard/src/vote"
)

// Default scorer values.
const (
	DefaultWindowSize     = 256
	DefaultMinSamples     = 10
	DefaultTrees          = 100
	DefaultSampleSize     = 256
	DefaultContamination  = 0.1
	DefaultScoreThreshold = 0.6
	DefaultSeed           = 42
	DefaultBurstCount     = 5
	DefaultBurstGap       = 5 * time.Second
)

// Config controls the anomaly scorer.
type Config struct {
	// WindowSize is the number of most recent accepted vectors the forest is
	// fitted on.
	WindowSize int `mapstructure:"window-size"`

	// MinSamples is the window size below which the rule fallback is used.
	MinSamples int `mapstructure:"min-samples"`

	// Trees is the number of isolation trees.
	Trees int `mapstructure:"trees"`

	// SampleSize is the number of points each tree is built on.
	SampleSize int `mapstructure:"sample-size"`

	// Contamination is the expected share of anomalies. A candidate can only
	// be anomalous if its score ranks within that share of the fitted set.
	Contamination float64 `mapstructure:"contamination"`

	// ScoreThreshold is the minimum score of an anomalous candidate.
	ScoreThreshold float64 `mapstructure:"score-threshold"`

	// Seed makes tree construction reproducible.
	Seed int64 `mapstructure:"seed"`

	// BurstCount and BurstGap define the origin burst rule of the fallback.
	BurstCount int           `mapstructure:"burst-count"`
	BurstGap   time.Duration `mapstructure:"burst-gap"`

	// Sentinel is the time gap reported for origins without prior attempts.
	Sentinel float64 `mapstructure:"sentinel"`
}

// DefaultConfig returns the default scorer configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:     DefaultWindowSize,
		MinSamples:     DefaultMinSamples,
		Trees:          DefaultTrees,
		SampleSize:     DefaultSampleSize,
		Contamination:  DefaultContamination,
		ScoreThreshold: DefaultScoreThreshold,
		Seed:           DefaultSeed,
		BurstCount:     DefaultBurstCount,
		BurstGap:       DefaultBurstGap,
		Sentinel:       vote.DefaultSentinel,
	}
}

// withDefaults replaces unset values with defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MinSamples <= 0 {
		c.MinSamples = d.MinSamples
	}
	if c.Trees <= 0 {
		c.Trees = d.Trees
	}
	if c.SampleSize <= 1 {
		c.SampleSize = d.SampleSize
	}
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		c.Contamination = d.Contamination
	}
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = d.ScoreThreshold
	}
	if c.BurstCount <= 0 {
		c.BurstCount = d.BurstCount
	}
	if c.BurstGap <= 0 {
		c.BurstGap = d.BurstGap
	}
	if c.Sentinel <= 0 {
		c.Sentinel = d.Sentinel
	}
	return c
}
