package store

import "github.com/mosaicnetworks/ballotguard/src/vote"

// Store is the persistence layer of the Vote Event Log and the Fraud Audit
// Log. Both logs are append-only: records are never updated or removed, and
// sequence numbers are dense and start at 0. The hand-off markers are the
// only mutable state, and they only ever go from pending to handed off.
type Store interface {
	// AppendVote assigns the next sequence number to the attempt, records it
	// and returns the sequence number.
	AppendVote(*vote.VoteAttempt) (int, error)
	// Votes returns the attempts with a sequence number greater than skip, in
	// append order. Use -1 to read the whole log.
	Votes(skip int) ([]*vote.VoteAttempt, error)
	VoteCount() int

	AppendFraud(*vote.FraudRecord) (int, error)
	FraudRecords(skip int) ([]*vote.FraudRecord, error)
	FraudCount() int

	// MarkHandedOff records that the vote with the given sequence number has
	// reached the ledger.
	MarkHandedOff(seq int) error
	HandedOff(seq int) bool
	// PendingHandoffs returns the accepted votes that have not reached the
	// ledger yet, in append order.
	PendingHandoffs() ([]*vote.VoteAttempt, error)

	Close() error
	StorePath() string
}
