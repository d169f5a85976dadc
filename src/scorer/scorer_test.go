package scorer

import (
	"math"
	"testing"

	cm "github.com/mosaicnetworks/ballotguard/src/common"
	"github.com/mosaicnetworks/ballotguard/src/vote"
)

// labelled rows: ip_count, time_gap, same_voter
var (
	normalRows = [][]float64{
		{1, 120, 0},
		{2, 300, 0},
		{1, 250, 0},
		{1, 600, 0},
		{1, 200, 0},
		{2, 500, 0},
	}
	fraudRows = [][]float64{
		{10, 5, 1},
		{12, 3, 1},
		{8, 10, 1},
		{9, 2, 1},
	}
)

func firstVote() vote.FeatureVector {
	return vote.FeatureVector{
		TimeSinceLastSameOrigin: vote.DefaultSentinel,
		Unbounded:               true,
	}
}

func newTestScorer(t *testing.T) *Scorer {
	return NewScorer(DefaultConfig(), cm.NewTestEntry(t, cm.TestLogLevel))
}

func TestAveragePathLength(t *testing.T) {
	cases := []struct {
		n        int
		expected float64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{10, 3.7488},
		{256, 10.2448},
	}
	for _, c := range cases {
		if got := averagePathLength(c.n); math.Abs(got-c.expected) > 1e-3 {
			t.Fatalf("c(%d) should be %v, not %v", c.n, c.expected, got)
		}
	}
}

func TestForestLabelledRows(t *testing.T) {
	for _, fraud := range fraudRows {
		points := append([][]float64{}, normalRows...)
		points = append(points, fraud)

		forest := FitForest(points, DefaultTrees, DefaultSampleSize, DefaultSeed)

		fraudScore := forest.Score(fraud)
		if fraudScore < DefaultScoreThreshold {
			t.Fatalf("score of %v should be at least %v, not %v", fraud, DefaultScoreThreshold, fraudScore)
		}
		for _, n := range normalRows {
			if s := forest.Score(n); s >= fraudScore {
				t.Fatalf("score of normal row %v (%v) should be below score of %v (%v)", n, s, fraud, fraudScore)
			}
		}
	}
}

func TestForestIdenticalPoints(t *testing.T) {
	points := make([][]float64, 20)
	for i := range points {
		points[i] = []float64{3, 42, 0}
	}
	forest := FitForest(points, DefaultTrees, DefaultSampleSize, DefaultSeed)
	if s := forest.Score(points[0]); math.Abs(s-0.5) > 1e-9 {
		t.Fatalf("score of identical points should be 0.5, not %v", s)
	}
}

func TestForestDeterminism(t *testing.T) {
	points := append(append([][]float64{}, normalRows...), fraudRows...)

	a := FitForest(points, DefaultTrees, 8, 7)
	b := FitForest(points, DefaultTrees, 8, 7)

	for _, p := range points {
		if sa, sb := a.Score(p), b.Score(p); sa != sb {
			t.Fatalf("scores of %v should be identical, got %v and %v", p, sa, sb)
		}
	}
}

func TestRules(t *testing.T) {
	s := newTestScorer(t)

	cases := []struct {
		name      string
		fv        vote.FeatureVector
		anomalous bool
	}{
		{"first vote", firstVote(), false},
		{"identity repeat", vote.FeatureVector{IdentityRepeatCount: 1, TimeSinceLastSameOrigin: vote.DefaultSentinel, Unbounded: true}, true},
		{"burst", vote.FeatureVector{OriginRepeatCount: 5, TimeSinceLastSameOrigin: 1}, true},
		{"slow repeats", vote.FeatureVector{OriginRepeatCount: 5, TimeSinceLastSameOrigin: 60}, false},
		{"few repeats", vote.FeatureVector{OriginRepeatCount: 4, TimeSinceLastSameOrigin: 1}, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := s.Score(c.fv)
			if v.Model != ModelRules {
				t.Fatalf("Model should be %s, not %s", ModelRules, v.Model)
			}
			if v.Anomalous != c.anomalous {
				t.Fatalf("Anomalous should be %v, not %v", c.anomalous, v.Anomalous)
			}
			if c.anomalous && v.Reason != Reason(c.fv) {
				t.Fatalf("Reason should be %q, not %q", Reason(c.fv), v.Reason)
			}
		})
	}
}

func TestForestVerdict(t *testing.T) {
	s := newTestScorer(t)
	for i := 0; i < DefaultMinSamples; i++ {
		s.Observe(firstVote())
	}

	if l := s.WindowLen(); l != DefaultMinSamples {
		t.Fatalf("WindowLen should be %d, not %d", DefaultMinSamples, l)
	}

	t.Run("typical", func(t *testing.T) {
		v := s.Score(firstVote())
		if v.Model != ModelForest {
			t.Fatalf("Model should be %s, not %s", ModelForest, v.Model)
		}
		if v.Anomalous {
			t.Fatalf("a vector identical to the window should not be anomalous (score %v)", v.Score)
		}
		if math.Abs(v.Score-0.5) > 1e-9 {
			t.Fatalf("Score should be 0.5, not %v", v.Score)
		}
	})

	t.Run("outlier", func(t *testing.T) {
		fv := vote.FeatureVector{OriginRepeatCount: 1, TimeSinceLastSameOrigin: 0.5}
		v := s.Score(fv)
		if !v.Anomalous {
			t.Fatalf("outlier should be anomalous (score %v)", v.Score)
		}
		// Isolated by the first split of every tree.
		expected := math.Pow(2, -1/averagePathLength(DefaultMinSamples+1))
		if math.Abs(v.Score-expected) > 1e-9 {
			t.Fatalf("Score should be %v, not %v", expected, v.Score)
		}
		if v.Reason != "Anomalous behavior detected (IP count: 1, Time gap: 0.50s, same voter: 0)" {
			t.Fatalf("unexpected Reason %q", v.Reason)
		}
	})

	t.Run("score does not observe", func(t *testing.T) {
		if l := s.WindowLen(); l != DefaultMinSamples {
			t.Fatalf("WindowLen should still be %d, not %d", DefaultMinSamples, l)
		}
	})
}

func TestForestIgnoresQuietOutliers(t *testing.T) {
	s := newTestScorer(t)
	for i := 0; i < DefaultMinSamples; i++ {
		s.Observe(vote.FeatureVector{OriginRepeatCount: 3, TimeSinceLastSameOrigin: 1})
	}

	cases := []struct {
		name string
		fv   vote.FeatureVector
	}{
		{"fresh origin", firstVote()},
		{"returning origin", vote.FeatureVector{OriginRepeatCount: 8, TimeSinceLastSameOrigin: vote.DefaultSentinel}},
		{"fewer repeats", vote.FeatureVector{OriginRepeatCount: 0, TimeSinceLastSameOrigin: 0.5}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := s.Score(c.fv)
			if v.Model != ModelForest {
				t.Fatalf("Model should be %s, not %s", ModelForest, v.Model)
			}
			if v.Anomalous {
				t.Fatalf("%v is less suspicious than the window and should not be anomalous (score %v)", c.fv, v.Score)
			}
		})
	}

	t.Run("repeat identity", func(t *testing.T) {
		fv := vote.FeatureVector{OriginRepeatCount: 3, TimeSinceLastSameOrigin: 1, IdentityRepeatCount: 1}
		if v := s.Score(fv); !v.Anomalous {
			t.Fatalf("a repeated identity should be anomalous (score %v)", v.Score)
		}
	})
}

func TestMedian(t *testing.T) {
	cases := []struct {
		xs       []float64
		expected float64
	}{
		{nil, 0},
		{[]float64{7}, 7},
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
	}
	for _, c := range cases {
		if got := median(c.xs); got != c.expected {
			t.Fatalf("median(%v) should be %v, not %v", c.xs, c.expected, got)
		}
	}
}

func TestScorerDeterminism(t *testing.T) {
	a := newTestScorer(t)
	b := newTestScorer(t)

	window := []vote.FeatureVector{firstVote()}
	for i := 1; i < 30; i++ {
		window = append(window, vote.FeatureVector{
			OriginRepeatCount:       i % 4,
			TimeSinceLastSameOrigin: float64(30 + 7*i),
		})
	}
	for _, fv := range window {
		a.Observe(fv)
		b.Observe(fv)
	}

	candidate := vote.FeatureVector{OriginRepeatCount: 9, TimeSinceLastSameOrigin: 0.4}
	va := a.Score(candidate)
	vb := b.Score(candidate)
	if va != vb {
		t.Fatalf("verdicts should be identical: %+v, %+v", va, vb)
	}
	if again := a.Score(candidate); again != va {
		t.Fatalf("repeated scoring should be identical: %+v, %+v", va, again)
	}
}

func TestWindowSlides(t *testing.T) {
	conf := DefaultConfig()
	conf.WindowSize = 12
	s := NewScorer(conf, cm.NewTestEntry(t, cm.TestLogLevel))

	for i := 0; i < 40; i++ {
		s.Observe(vote.FeatureVector{OriginRepeatCount: i})
	}
	if l := s.WindowLen(); l != 12 {
		t.Fatalf("WindowLen should be 12, not %d", l)
	}
}
