// Package events mirrors the decisions of the Decision Gate to downstream
// systems. Sinks are best effort: the gate logs their errors and never lets
// them change an outcome.
package events

import (
	"context"
	"encoding/json"
	"errors"
)

// Event types.
const (
	TypeVoteAccepted = "vote_accepted"
	TypeVoteFlagged  = "vote_flagged"
)

// Envelope wraps an event on the wire.
type Envelope struct {
	Type string          `json:"type"`
	TS   int64           `json:"ts"` // unix milli
	Data json.RawMessage `json:"data"`
}

// Sink receives decision events. v is a *vote.VoteAttempt for
// TypeVoteAccepted and a *vote.FraudRecord for TypeVoteFlagged.
type Sink interface {
	Emit(ctx context.Context, typ string, v interface{}) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Emit implements the Sink interface.
func (Nop) Emit(context.Context, string, interface{}) error { return nil }

// Close implements the Sink interface.
func (Nop) Close() error { return nil }

// Multi fans events out to several sinks. Every sink receives every event,
// even when an earlier one fails.
type Multi []Sink

// Emit implements the Sink interface.
func (m Multi) Emit(ctx context.Context, typ string, v interface{}) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, typ, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
