package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/ballotguard/src/store"
	"github.com/mosaicnetworks/ballotguard/src/vote"
	"github.com/sirupsen/logrus"
)

// ErrInFlight is returned by Handoff when another hand-off of the same vote
// is under way. The vote stays pending until that one completes.
var ErrInFlight = errors.New("hand-off already in flight")

// Dispatcher hands accepted votes to an Adapter and tracks which ones the
// ledger has confirmed.
type Dispatcher struct {
	adapter Adapter
	store   store.Store
	policy  RetryPolicy

	// inflight holds the sequence numbers currently being handed off, so
	// that the reconciliation loop never races a live hand-off.
	inflightLock sync.Mutex
	inflight     map[int]bool

	logger *logrus.Entry
}

// NewDispatcher creates a Dispatcher. The policy applies to each remote call
// of a hand-off separately.
func NewDispatcher(adapter Adapter, st store.Store, policy RetryPolicy, logger *logrus.Entry) *Dispatcher {
	d := &Dispatcher{
		adapter:  adapter,
		store:    st,
		policy:   policy,
		inflight: make(map[int]bool),
		logger:   logger.WithField("component", "ledger"),
	}
	if d.policy.Retryable == nil {
		d.policy.Retryable = IsRetryable
	}
	if d.policy.OnRetry == nil {
		d.policy.OnRetry = func(attempt int, wait time.Duration, err error) {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"wait":    wait,
			}).Debug("Retrying ledger call")
		}
	}
	return d
}

// Adapter returns the underlying ledger adapter.
func (d *Dispatcher) Adapter() Adapter {
	return d.adapter
}

// Handoff submits the transaction of an accepted vote, finalizes a block and
// marks the vote as handed off. It returns ErrInFlight if the vote is already
// being handed off.
func (d *Dispatcher) Handoff(ctx context.Context, v *vote.VoteAttempt) error {
	if !d.acquire(v.Seq) {
		return ErrInFlight
	}
	defer d.release(v.Seq)

	return d.handoff(ctx, v)
}

func (d *Dispatcher) handoff(ctx context.Context, v *vote.VoteAttempt) error {
	tx := v.Transaction()

	err := Do(ctx, d.policy, func(ctx context.Context) error {
		return d.adapter.SubmitTransaction(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("submitting transaction of vote %d: %w", v.Seq, err)
	}

	err = Do(ctx, d.policy, func(ctx context.Context) error {
		return d.adapter.FinalizeBlock(ctx)
	})
	if err != nil {
		return fmt.Errorf("finalizing block for vote %d: %w", v.Seq, err)
	}

	if err := d.store.MarkHandedOff(v.Seq); err != nil {
		return fmt.Errorf("marking vote %d handed off: %w", v.Seq, err)
	}

	d.logger.WithFields(logrus.Fields{
		"seq":      v.Seq,
		"voter_id": v.IdentityID,
	}).Debug("Vote handed off")

	return nil
}

// Reconcile hands off every accepted vote the ledger has not confirmed yet.
// It returns the number of votes handed off, and the first error met.
func (d *Dispatcher) Reconcile(ctx context.Context) (int, error) {
	pending, err := d.store.PendingHandoffs()
	if err != nil {
		return 0, err
	}

	done := 0
	var firstErr error
	for _, v := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if !d.acquire(v.Seq) {
			continue
		}
		// A live hand-off may have confirmed the vote since the snapshot.
		if d.store.HandedOff(v.Seq) {
			d.release(v.Seq)
			continue
		}
		err := d.handoff(ctx, v)
		d.release(v.Seq)

		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			d.logger.WithError(err).WithField("seq", v.Seq).Warn("Reconciliation failed")
			continue
		}
		done++
	}

	if len(pending) > 0 {
		d.logger.WithFields(logrus.Fields{
			"pending":    len(pending),
			"handed_off": done,
		}).Info("Reconciled ledger hand-offs")
	}

	return done, firstErr
}

// Run calls Reconcile every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Reconcile(ctx)
		}
	}
}

func (d *Dispatcher) acquire(seq int) bool {
	d.inflightLock.Lock()
	defer d.inflightLock.Unlock()
	if d.inflight[seq] {
		return false
	}
	d.inflight[seq] = true
	return true
}

func (d *Dispatcher) release(seq int) {
	d.inflightLock.Lock()
	defer d.inflightLock.Unlock()
	delete(d.inflight, seq)
}
