package gate

import "fmt"

// VoteErrType enumerates the outcomes of a submission that are not a plain
// acceptance.
type VoteErrType uint32

const (
	// DuplicateVote is returned when the identity has already voted. It is
	// terminal for that identity.
	DuplicateVote VoteErrType = iota
	// UnauthorizedIdentity is returned when the identity does not match the
	// session, or is not on the roster.
	UnauthorizedIdentity
	// FraudFlagged is returned when the attempt was routed to the Fraud Audit
	// Log. The identity may retry.
	FraudFlagged
	// LedgerUnavailable is attached to accepted votes whose hand-off to the
	// ledger failed. The acceptance stands.
	LedgerUnavailable
)

// VoteErr is the error type of the Decision Gate.
type VoteErr struct {
	Type       VoteErrType
	IdentityID string
	Msg        string
}

// NewVoteErr creates a VoteErr.
func NewVoteErr(t VoteErrType, identityID, msg string) VoteErr {
	return VoteErr{
		Type:       t,
		IdentityID: identityID,
		Msg:        msg,
	}
}

// Error implements the error interface.
func (e VoteErr) Error() string {
	m := ""
	switch e.Type {
	case DuplicateVote:
		m = "Duplicate Vote"
	case UnauthorizedIdentity:
		m = "Unauthorized Identity"
	case FraudFlagged:
		m = "Fraud Flagged"
	case LedgerUnavailable:
		m = "Ledger Unavailable"
	}

	if e.Msg == "" {
		return fmt.Sprintf("%s, %s", e.IdentityID, m)
	}
	return fmt.Sprintf("%s, %s: %s", e.IdentityID, m, e.Msg)
}

// IsVoteErr checks that an error is of type VoteErr and that its type matches
// the provided VoteErrType.
func IsVoteErr(err error, t VoteErrType) bool {
	voteErr, ok := err.(VoteErr)
	return ok && voteErr.Type == t
}
