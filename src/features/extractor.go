// Package features derives the behavioral signals of a submission from the
// history of accepted votes.
//
// The Extractor keeps an index of the Vote Event Log: counts per origin and
// per identity, and the latest submission time per origin. Extract only reads
// the index, so the vector of a candidate reflects the log as it stood before
// the candidate. The index is advanced with Add once the candidate has been
// appended to the log.
package features

import (
	"sync"
	"time"

	"github.com/mosaicnetworks/ballotguard/src/vote"
)

// Candidate is the part of a submission the extractor needs.
type Candidate struct {
	IdentityID    string
	OriginAddress string
	SubmittedAt   time.Time
}

// Extractor computes FeatureVectors against an incrementally maintained index
// of accepted votes.
type Extractor struct {
	sync.RWMutex

	sentinel      float64
	originCount   map[string]int
	identityCount map[string]int
	lastOrigin    map[string]time.Time
	total         int
}

// NewExtractor creates an Extractor with an empty index. sentinel is the gap
// reported for origins without prior attempts.
func NewExtractor(sentinel float64) *Extractor {
	return &Extractor{
		sentinel:      sentinel,
		originCount:   make(map[string]int),
		identityCount: make(map[string]int),
		lastOrigin:    make(map[string]time.Time),
	}
}

// Extract returns the FeatureVector of the candidate. It does not modify the
// index.
func (e *Extractor) Extract(c Candidate) vote.FeatureVector {
	e.RLock()
	defer e.RUnlock()

	fv := vote.FeatureVector{
		OriginRepeatCount:   e.originCount[c.OriginAddress],
		IdentityRepeatCount: e.identityCount[c.IdentityID],
	}

	last, ok := e.lastOrigin[c.OriginAddress]
	if !ok {
		fv.Unbounded = true
		fv.TimeSinceLastSameOrigin = e.sentinel
		return fv
	}

	// Gaps beyond the sentinel are as good as no prior attempt.
	gap := c.SubmittedAt.Sub(last).Seconds()
	if gap < 0 {
		gap = 0
	}
	if gap > e.sentinel {
		gap = e.sentinel
	}
	fv.TimeSinceLastSameOrigin = gap
	return fv
}

// Add advances the index with an attempt that has been appended to the Vote
// Event Log.
func (e *Extractor) Add(v *vote.VoteAttempt) {
	e.Lock()
	defer e.Unlock()

	e.originCount[v.OriginAddress]++
	e.identityCount[v.IdentityID]++
	if last, ok := e.lastOrigin[v.OriginAddress]; !ok || v.SubmittedAt.After(last) {
		e.lastOrigin[v.OriginAddress] = v.SubmittedAt
	}
	e.total++
}

// IdentityCount returns the number of accepted attempts of an identity.
func (e *Extractor) IdentityCount(identityID string) int {
	e.RLock()
	defer e.RUnlock()
	return e.identityCount[identityID]
}

// Len returns the number of attempts indexed.
func (e *Extractor) Len() int {
	e.RLock()
	defer e.RUnlock()
	return e.total
}
