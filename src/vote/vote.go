package vote

import (
	"fmt"
	"time"
)

// ReadableLayout is the timestamp layout shown to reviewers.
const ReadableLayout = "2006-01-02 15:04"

// DefaultSentinel is the time gap, in seconds, reported when an origin has no
// prior attempt.
const DefaultSentinel = 9999.0

// FeatureVector holds the behavioral signals of one submission. It is
// computed from the Vote Event Log as it stood before the submission.
type FeatureVector struct {
	// OriginRepeatCount is the number of prior attempts from the same origin.
	OriginRepeatCount int `json:"ip_count"`

	// IdentityRepeatCount is the number of prior attempts from the same
	// identity.
	IdentityRepeatCount int `json:"same_voter"`

	// TimeSinceLastSameOrigin is the gap, in seconds, since the most recent
	// prior attempt from the same origin. It holds the sentinel when Unbounded.
	TimeSinceLastSameOrigin float64 `json:"time_gap"`

	// Unbounded is set when the origin has no prior attempt.
	Unbounded bool `json:"unbounded"`
}

// Point returns the vector as the numeric attributes used by the scorer:
// origin count, time gap and identity count.
func (fv FeatureVector) Point() []float64 {
	return []float64{
		float64(fv.OriginRepeatCount),
		fv.TimeSinceLastSameOrigin,
		float64(fv.IdentityRepeatCount),
	}
}

// String ...
func (fv FeatureVector) String() string {
	gap := fmt.Sprintf("%.2fs", fv.TimeSinceLastSameOrigin)
	if fv.Unbounded {
		gap = "none"
	}
	return fmt.Sprintf("ip_count=%d same_voter=%d time_gap=%s",
		fv.OriginRepeatCount, fv.IdentityRepeatCount, gap)
}

// VoteAttempt is an accepted submission as recorded in the Vote Event Log.
type VoteAttempt struct {
	Seq           int           `json:"seq"`
	IdentityID    string        `json:"voter_id"`
	OriginAddress string        `json:"ip_address"`
	SubmittedAt   time.Time     `json:"timestamp"`
	Choice        string        `json:"party"`
	Features      FeatureVector `json:"features"`
}

// Transaction returns the ledger transaction carrying this vote.
func (v *VoteAttempt) Transaction() Transaction {
	return NewTransaction(v.IdentityID, v.Choice, v.OriginAddress, v.SubmittedAt)
}

// Marshal returns the canonical JSON encoding of the attempt.
func (v *VoteAttempt) Marshal() ([]byte, error) {
	return encode(v)
}

// Unmarshal ...
func (v *VoteAttempt) Unmarshal(data []byte) error {
	return decode(data, v)
}

// FraudRecord is an entry of the Fraud Audit Log.
type FraudRecord struct {
	Seq           int       `json:"seq"`
	IdentityID    string    `json:"voter_id"`
	OriginAddress string    `json:"ip_address"`
	SubmittedAt   time.Time `json:"timestamp"`
	Reason        string    `json:"reason"`
}

// ReadableTimestamp returns SubmittedAt in the reviewer layout.
func (r *FraudRecord) ReadableTimestamp() string {
	return r.SubmittedAt.Format(ReadableLayout)
}

// Marshal returns the canonical JSON encoding of the record.
func (r *FraudRecord) Marshal() ([]byte, error) {
	return encode(r)
}

// Unmarshal ...
func (r *FraudRecord) Unmarshal(data []byte) error {
	return decode(data, r)
}
