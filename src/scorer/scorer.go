// Package scorer decides whether a submission looks anomalous.
//
// The Scorer fits an isolation forest on a sliding window of recently accepted
// FeatureVectors plus the candidate, and reports the candidate as anomalous
// when it ranks among the most isolated points, its score clears a floor, and
// it lies on the fraud side of the window: a repeated identity, or at least
// the typical origin count with a shorter gap than typical.
// Until the window holds enough samples, a small set of rules is used instead.
// Identical inputs always yield identical verdicts.
package scorer

import (
	"fmt"
	"sort"
	"sync"

	cm "github.com/mosaicnetworks/ballotguard/src/common"
	"github.com/mosaicnetworks/ballotguard/src/vote"
	"github.com/sirupsen/logrus"
)

// Model names reported in verdicts.
const (
	ModelForest = "forest"
	ModelRules  = "rules"
)

// Verdict is the outcome of scoring one FeatureVector.
type Verdict struct {
	Anomalous bool    `json:"anomalous"`
	Score     float64 `json:"score"`
	Model     string  `json:"model"`
	Reason    string  `json:"reason,omitempty"`
}

// Reason formats the explanation attached to flagged attempts.
func Reason(fv vote.FeatureVector) string {
	return fmt.Sprintf("Anomalous behavior detected (IP count: %d, Time gap: %.2fs, same voter: %d)",
		fv.OriginRepeatCount, fv.TimeSinceLastSameOrigin, fv.IdentityRepeatCount)
}

// Scorer scores FeatureVectors against a window of accepted vectors.
type Scorer struct {
	sync.RWMutex

	conf   Config
	window *cm.RollingWindow[vote.FeatureVector]
	logger *logrus.Entry
}

// NewScorer creates a Scorer with an empty window.
func NewScorer(conf Config, logger *logrus.Entry) *Scorer {
	conf = conf.withDefaults()
	return &Scorer{
		conf:   conf,
		window: cm.NewRollingWindow[vote.FeatureVector](conf.WindowSize),
		logger: logger.WithField("component", "scorer"),
	}
}

// Config returns the effective configuration.
func (s *Scorer) Config() Config {
	return s.conf
}

// Observe adds the vector of an accepted vote to the window.
func (s *Scorer) Observe(fv vote.FeatureVector) {
	s.Lock()
	defer s.Unlock()
	s.window.Push(fv)
}

// WindowLen returns the number of vectors in the window.
func (s *Scorer) WindowLen() int {
	s.RLock()
	defer s.RUnlock()
	return s.window.Len()
}

// Score returns the verdict for a candidate vector. It does not modify the
// window.
func (s *Scorer) Score(fv vote.FeatureVector) Verdict {
	s.RLock()
	window := s.window.Window()
	s.RUnlock()

	var v Verdict
	if len(window) < s.conf.MinSamples {
		v = s.scoreRules(fv)
	} else {
		v = s.scoreForest(window, fv)
	}

	if v.Anomalous {
		v.Reason = Reason(fv)
	}

	s.logger.WithFields(logrus.Fields{
		"features":  fv.String(),
		"window":    len(window),
		"model":     v.Model,
		"score":     v.Score,
		"anomalous": v.Anomalous,
	}).Debug("Score")

	return v
}

func (s *Scorer) scoreRules(fv vote.FeatureVector) Verdict {
	v := Verdict{Model: ModelRules}

	burst := fv.OriginRepeatCount >= s.conf.BurstCount &&
		!fv.Unbounded &&
		fv.TimeSinceLastSameOrigin < s.conf.BurstGap.Seconds()

	if fv.IdentityRepeatCount > 0 || burst {
		v.Anomalous = true
		v.Score = 1
	}
	return v
}

func (s *Scorer) scoreForest(window []vote.FeatureVector, fv vote.FeatureVector) Verdict {
	points := make([][]float64, 0, len(window)+1)
	for _, w := range window {
		points = append(points, w.Point())
	}
	candidate := fv.Point()
	points = append(points, candidate)

	forest := FitForest(points, s.conf.Trees, s.conf.SampleSize, s.conf.Seed)

	score := forest.Score(candidate)

	// Rank the candidate among the fitted points.
	higher := 0
	for _, p := range points[:len(points)-1] {
		if forest.Score(p) > score {
			higher++
		}
	}
	inTop := float64(higher) < s.conf.Contamination*float64(len(points))

	return Verdict{
		Anomalous: inTop && score >= s.conf.ScoreThreshold && fraudSide(window, fv),
		Score:     score,
		Model:     ModelForest,
	}
}

// fraudSide reports whether fv deviates from the window medians in the
// direction of fraud. Isolation alone is two-sided: a quiet origin in a busy
// window is as isolated as a burst in a quiet one.
func fraudSide(window []vote.FeatureVector, fv vote.FeatureVector) bool {
	origins := make([]float64, len(window))
	gaps := make([]float64, len(window))
	identities := make([]float64, len(window))
	for i, w := range window {
		origins[i] = float64(w.OriginRepeatCount)
		gaps[i] = w.TimeSinceLastSameOrigin
		identities[i] = float64(w.IdentityRepeatCount)
	}

	if float64(fv.IdentityRepeatCount) > median(identities) {
		return true
	}
	return float64(fv.OriginRepeatCount) >= median(origins) &&
		fv.TimeSinceLastSameOrigin < median(gaps)
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sort.Float64s(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}
