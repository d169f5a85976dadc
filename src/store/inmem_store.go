package store

import (
	"strconv"
	"sync"

	cm "github.com/mosaicnetworks/ballotguard/src/common"
	"github.com/mosaicnetworks/ballotguard/src/vote"
)

// InmemStore implements the Store interface with in-memory slices. It is also
// the read cache of the BadgerStore.
type InmemStore struct {
	sync.RWMutex

	votes     []*vote.VoteAttempt
	frauds    []*vote.FraudRecord
	handedOff map[int]bool
}

// NewInmemStore creates an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		votes:     []*vote.VoteAttempt{},
		frauds:    []*vote.FraudRecord{},
		handedOff: make(map[int]bool),
	}
}

// AppendVote implements the Store interface.
func (s *InmemStore) AppendVote(v *vote.VoteAttempt) (int, error) {
	s.Lock()
	defer s.Unlock()

	v.Seq = len(s.votes)
	s.votes = append(s.votes, v)
	return v.Seq, nil
}

// Votes implements the Store interface.
func (s *InmemStore) Votes(skip int) ([]*vote.VoteAttempt, error) {
	s.RLock()
	defer s.RUnlock()

	start := skip + 1
	if start < 0 {
		start = 0
	}
	if start >= len(s.votes) {
		return []*vote.VoteAttempt{}, nil
	}
	res := make([]*vote.VoteAttempt, len(s.votes)-start)
	copy(res, s.votes[start:])
	return res, nil
}

// VoteCount implements the Store interface.
func (s *InmemStore) VoteCount() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.votes)
}

// AppendFraud implements the Store interface.
func (s *InmemStore) AppendFraud(r *vote.FraudRecord) (int, error) {
	s.Lock()
	defer s.Unlock()

	r.Seq = len(s.frauds)
	s.frauds = append(s.frauds, r)
	return r.Seq, nil
}

// FraudRecords implements the Store interface.
func (s *InmemStore) FraudRecords(skip int) ([]*vote.FraudRecord, error) {
	s.RLock()
	defer s.RUnlock()

	start := skip + 1
	if start < 0 {
		start = 0
	}
	if start >= len(s.frauds) {
		return []*vote.FraudRecord{}, nil
	}
	res := make([]*vote.FraudRecord, len(s.frauds)-start)
	copy(res, s.frauds[start:])
	return res, nil
}

// FraudCount implements the Store interface.
func (s *InmemStore) FraudCount() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.frauds)
}

// MarkHandedOff implements the Store interface.
func (s *InmemStore) MarkHandedOff(seq int) error {
	s.Lock()
	defer s.Unlock()

	if seq < 0 || seq >= len(s.votes) {
		return cm.NewStoreErr("Vote", cm.KeyNotFound, strconv.Itoa(seq))
	}
	s.handedOff[seq] = true
	return nil
}

// HandedOff implements the Store interface.
func (s *InmemStore) HandedOff(seq int) bool {
	s.RLock()
	defer s.RUnlock()
	return s.handedOff[seq]
}

// PendingHandoffs implements the Store interface.
func (s *InmemStore) PendingHandoffs() ([]*vote.VoteAttempt, error) {
	s.RLock()
	defer s.RUnlock()

	res := []*vote.VoteAttempt{}
	for _, v := range s.votes {
		if !s.handedOff[v.Seq] {
			res = append(res, v)
		}
	}
	return res, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}

// load is used by the BadgerStore to rebuild the cache. Records must come in
// sequence order without gaps.
func (s *InmemStore) load(votes []*vote.VoteAttempt, frauds []*vote.FraudRecord, handedOff []int) error {
	s.Lock()
	defer s.Unlock()

	for i, v := range votes {
		if v.Seq != i {
			return cm.NewStoreErr("Vote", cm.SkippedIndex, strconv.Itoa(v.Seq))
		}
	}
	for i, r := range frauds {
		if r.Seq != i {
			return cm.NewStoreErr("FraudRecord", cm.SkippedIndex, strconv.Itoa(r.Seq))
		}
	}

	s.votes = votes
	s.frauds = frauds
	s.handedOff = make(map[int]bool, len(handedOff))
	for _, seq := range handedOff {
		s.handedOff[seq] = true
	}
	return nil
}
