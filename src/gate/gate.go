// Package gate implements the Decision Gate: exactly-once enforcement and
// routing of vote submissions.
//
// A submission goes through the following steps, serialized per identity:
//
//  1. If the identity has already voted, the outcome is Duplicate and nothing
//     is recorded.
//  2. The FeatureVector is extracted from the Vote Event Log as it stands.
//  3. The Anomaly Scorer classifies the vector.
//  4. Anomalous attempts are appended to the Fraud Audit Log and the outcome
//     is Flagged. The identity stays eligible.
//  5. Normal attempts are appended to the Vote Event Log, the identity joins
//     the VotedSet, and the vote is handed to the ledger. The outcome is
//     Accepted.
//
// Submissions of different identities run concurrently. The appends and index
// updates of step 5 happen under a single commit lock, and the ledger call is
// made after every lock has been released.
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/ballotguard/src/events"
	"github.com/mosaicnetworks/ballotguard/src/features"
	"github.com/mosaicnetworks/ballotguard/src/scorer"
	"github.com/mosaicnetworks/ballotguard/src/store"
	"github.com/mosaicnetworks/ballotguard/src/vote"
	"github.com/sirupsen/logrus"
)

// LockedReason is the FraudRecord reason of attempts made by a locked
// identity.
const LockedReason = "Identity locked pending manual review"

// Outcome is the result of a submission.
type Outcome string

// Outcomes.
const (
	Accepted     Outcome = "accepted"
	Duplicate    Outcome = "duplicate"
	Flagged      Outcome = "flagged"
	Unauthorized Outcome = "unauthorized"
)

// Request is an authenticated vote submission. Session is the identity the
// session collaborator vouches for, IdentityID the one claimed by the form.
type Request struct {
	Session       string
	IdentityID    string
	OriginAddress string
	Choice        string
	SubmittedAt   time.Time
}

// Result describes how a submission was routed.
type Result struct {
	Outcome  Outcome
	Features vote.FeatureVector
	Verdict  scorer.Verdict
	// Seq is the position of the new record in the Vote Event Log when
	// Accepted, or in the Fraud Audit Log when Flagged. It is -1 otherwise.
	Seq    int
	Reason string
	// LedgerErr is set when an accepted vote could not be handed to the
	// ledger. It does not undo the acceptance.
	LedgerErr error
}

// Err returns the VoteErr corresponding to the outcome. Accepted votes
// return LedgerErr, which is nil when the hand-off succeeded.
func (r Result) Err(identityID string) error {
	switch r.Outcome {
	case Accepted:
		return r.LedgerErr
	case Duplicate:
		return NewVoteErr(DuplicateVote, identityID, "")
	case Flagged:
		return NewVoteErr(FraudFlagged, identityID, r.Reason)
	default:
		return NewVoteErr(UnauthorizedIdentity, identityID, r.Reason)
	}
}

// Ledger hands accepted votes to the external ledger.
type Ledger interface {
	Handoff(ctx context.Context, v *vote.VoteAttempt) error
}

// Config holds the policy options of the gate.
type Config struct {
	// Roster lists the eligible identities. Empty means everyone.
	Roster []string
	// MaxFlags locks an identity after that many flagged attempts. Zero
	// disables the lockout.
	MaxFlags int
}

// Gate is the Decision Gate.
type Gate struct {
	store     store.Store
	extractor *features.Extractor
	scorer    *scorer.Scorer
	ledger    Ledger
	sink      events.Sink

	roster   map[string]bool
	maxFlags int

	identityLocks *keyedMutex

	// commitLock guards voted and flags, and orders the writes to the logs,
	// the extractor index and the scorer window.
	commitLock sync.Mutex
	voted      map[string]int
	flags      map[string]int

	logger *logrus.Entry
}

// NewGate creates a Gate and rebuilds the VotedSet, the extractor index and
// the scorer window from the Vote Event Log.
func NewGate(conf Config,
	st store.Store,
	extractor *features.Extractor,
	sc *scorer.Scorer,
	ledger Ledger,
	sink events.Sink,
	logger *logrus.Entry) (*Gate, error) {

	if sink == nil {
		sink = events.Nop{}
	}

	g := &Gate{
		store:         st,
		extractor:     extractor,
		scorer:        sc,
		ledger:        ledger,
		sink:          sink,
		maxFlags:      conf.MaxFlags,
		identityLocks: newKeyedMutex(),
		voted:         make(map[string]int),
		flags:         make(map[string]int),
		logger:        logger.WithField("component", "gate"),
	}

	if len(conf.Roster) > 0 {
		g.roster = make(map[string]bool, len(conf.Roster))
		for _, id := range conf.Roster {
			g.roster[id] = true
		}
	}

	if err := g.replay(); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *Gate) replay() error {
	votes, err := g.store.Votes(-1)
	if err != nil {
		return fmt.Errorf("reading vote log: %w", err)
	}

	for _, v := range votes {
		if prev, ok := g.voted[v.IdentityID]; ok {
			return fmt.Errorf("vote log holds two votes for %s (seq %d and %d)", v.IdentityID, prev, v.Seq)
		}
		g.voted[v.IdentityID] = v.Seq
		g.extractor.Add(v)
		g.scorer.Observe(v.Features)
	}

	// Flags only count towards the lockout, which needs the whole history.
	frauds, err := g.store.FraudRecords(-1)
	if err != nil {
		return fmt.Errorf("reading fraud log: %w", err)
	}
	for _, r := range frauds {
		g.flags[r.IdentityID]++
	}

	g.logger.WithFields(logrus.Fields{
		"votes":  len(votes),
		"frauds": len(frauds),
	}).Debug("Replayed logs")

	return nil
}

// Submit runs a submission through the gate.
func (g *Gate) Submit(ctx context.Context, req Request) Result {
	if req.IdentityID == "" || req.Session != req.IdentityID {
		return g.unauthorized(req, "session does not match identity")
	}
	if g.roster != nil && !g.roster[req.IdentityID] {
		return g.unauthorized(req, "identity is not on the roster")
	}

	res, attempt, fraud := g.decide(req)

	// Internal locks are released from here on.
	switch res.Outcome {
	case Accepted:
		if err := g.ledger.Handoff(ctx, attempt); err != nil {
			res.LedgerErr = NewVoteErr(LedgerUnavailable, req.IdentityID, err.Error())
			g.logger.WithError(err).WithFields(logrus.Fields{
				"voter_id": req.IdentityID,
				"seq":      attempt.Seq,
			}).Error("Ledger hand-off failed, vote left for reconciliation")
		}
		g.emit(ctx, events.TypeVoteAccepted, attempt)
	case Flagged:
		g.emit(ctx, events.TypeVoteFlagged, fraud)
	}

	return res
}

func (g *Gate) unauthorized(req Request, reason string) Result {
	g.logger.WithFields(logrus.Fields{
		"voter_id": req.IdentityID,
		"session":  req.Session,
	}).Warn("Unauthorized submission: " + reason)

	return Result{
		Outcome: Unauthorized,
		Seq:     -1,
		Reason:  reason,
	}
}

// decide runs steps 1 to 5, up to but excluding the ledger hand-off, while
// holding the identity lock.
func (g *Gate) decide(req Request) (Result, *vote.VoteAttempt, *vote.FraudRecord) {
	unlock := g.identityLocks.Lock(req.IdentityID)
	defer unlock()

	if g.hasVoted(req.IdentityID) {
		g.logger.WithField("voter_id", req.IdentityID).Debug("Duplicate vote")
		return Result{Outcome: Duplicate, Seq: -1}, nil, nil
	}

	if g.locked(req.IdentityID) {
		fraud, res := g.flag(req, vote.FeatureVector{}, scorer.Verdict{Anomalous: true}, LockedReason)
		return res, nil, fraud
	}

	fv := g.extractor.Extract(features.Candidate{
		IdentityID:    req.IdentityID,
		OriginAddress: req.OriginAddress,
		SubmittedAt:   req.SubmittedAt,
	})

	verdict := g.scorer.Score(fv)

	if verdict.Anomalous {
		fraud, res := g.flag(req, fv, verdict, verdict.Reason)
		return res, nil, fraud
	}

	attempt, res := g.accept(req, fv, verdict)
	return res, attempt, nil
}

func (g *Gate) flag(req Request, fv vote.FeatureVector, verdict scorer.Verdict, reason string) (*vote.FraudRecord, Result) {
	g.commitLock.Lock()
	defer g.commitLock.Unlock()

	fraud := &vote.FraudRecord{
		IdentityID:    req.IdentityID,
		OriginAddress: req.OriginAddress,
		SubmittedAt:   req.SubmittedAt,
		Reason:        reason,
	}

	seq, err := g.store.AppendFraud(fraud)
	if err != nil {
		// Without a FraudRecord the attempt cannot be reported as Flagged.
		panic(fmt.Sprintf("appending fraud record for %s: %v", req.IdentityID, err))
	}
	g.flags[req.IdentityID]++

	g.logger.WithFields(logrus.Fields{
		"voter_id":   req.IdentityID,
		"ip_address": req.OriginAddress,
		"features":   fv.String(),
		"score":      verdict.Score,
		"model":      verdict.Model,
		"fraud_seq":  seq,
	}).Warn("Vote flagged")

	return fraud, Result{
		Outcome:  Flagged,
		Features: fv,
		Verdict:  verdict,
		Seq:      seq,
		Reason:   reason,
	}
}

func (g *Gate) accept(req Request, fv vote.FeatureVector, verdict scorer.Verdict) (*vote.VoteAttempt, Result) {
	g.commitLock.Lock()
	defer g.commitLock.Unlock()

	if _, ok := g.voted[req.IdentityID]; ok {
		panic(fmt.Sprintf("%s joined the VotedSet while holding its identity lock", req.IdentityID))
	}
	if n := g.extractor.IdentityCount(req.IdentityID); n != 0 {
		panic(fmt.Sprintf("VotedSet does not hold %s but the vote log has %d votes from it", req.IdentityID, n))
	}

	attempt := &vote.VoteAttempt{
		IdentityID:    req.IdentityID,
		OriginAddress: req.OriginAddress,
		SubmittedAt:   req.SubmittedAt,
		Choice:        req.Choice,
		Features:      fv,
	}

	seq, err := g.store.AppendVote(attempt)
	if err != nil {
		panic(fmt.Sprintf("appending vote for %s: %v", req.IdentityID, err))
	}

	g.extractor.Add(attempt)
	g.voted[req.IdentityID] = seq
	g.scorer.Observe(fv)

	g.logger.WithFields(logrus.Fields{
		"voter_id": req.IdentityID,
		"party":    req.Choice,
		"features": fv.String(),
		"score":    verdict.Score,
		"model":    verdict.Model,
		"seq":      seq,
	}).Info("Vote accepted")

	return attempt, Result{
		Outcome:  Accepted,
		Features: fv,
		Verdict:  verdict,
		Seq:      seq,
	}
}

func (g *Gate) emit(ctx context.Context, typ string, v interface{}) {
	if err := g.sink.Emit(ctx, typ, v); err != nil {
		g.logger.WithError(err).WithField("type", typ).Warn("Emitting decision event")
	}
}

func (g *Gate) hasVoted(identityID string) bool {
	g.commitLock.Lock()
	defer g.commitLock.Unlock()
	_, ok := g.voted[identityID]
	return ok
}

func (g *Gate) locked(identityID string) bool {
	if g.maxFlags <= 0 {
		return false
	}
	g.commitLock.Lock()
	defer g.commitLock.Unlock()
	return g.flags[identityID] >= g.maxFlags
}

// HasVoted reports whether the identity is in the VotedSet.
func (g *Gate) HasVoted(identityID string) bool {
	return g.hasVoted(identityID)
}

// VotedCount returns the size of the VotedSet.
func (g *Gate) VotedCount() int {
	g.commitLock.Lock()
	defer g.commitLock.Unlock()
	return len(g.voted)
}

// Flags returns the number of flagged attempts of an identity since its last
// unlock.
func (g *Gate) Flags(identityID string) int {
	g.commitLock.Lock()
	defer g.commitLock.Unlock()
	return g.flags[identityID]
}

// Unlock resets the flag counter of an identity, lifting the lockout.
func (g *Gate) Unlock(identityID string) {
	g.commitLock.Lock()
	defer g.commitLock.Unlock()
	delete(g.flags, identityID)

	g.logger.WithField("voter_id", identityID).Info("Identity unlocked")
}
