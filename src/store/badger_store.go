package store

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/ballotguard/src/common"
	"github.com/mosaicnetworks/ballotguard/src/vote"
	"github.com/sirupsen/logrus"
)

const (
	votePrefix    = "vote"
	fraudPrefix   = "fraud"
	handoffPrefix = "handoff"
)

// BadgerStore persists the logs in a Badger database and serves reads from an
// InmemStore cache that is rebuilt when the database is loaded.
type BadgerStore struct {
	// writeLock orders writes so that database keys and cache positions agree.
	writeLock  sync.Mutex
	inmemStore *InmemStore
	db         *badger.DB
	path       string
	logger     *logrus.Entry
}

// NewBadgerStore opens, or creates, the database under path and loads its
// contents into the cache.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithTruncate(true).
		WithLogger(logger.WithField("component", "badger"))

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
		logger:     logger,
	}

	if err := store.loadCache(); err != nil {
		handle.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"path":   path,
		"votes":  store.VoteCount(),
		"frauds": store.FraudCount(),
	}).Debug("Loaded BadgerStore")

	return store, nil
}

//==============================================================================
//Keys

func voteKey(seq int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", votePrefix, seq))
}

func fraudKey(seq int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", fraudPrefix, seq))
}

func handoffKey(seq int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", handoffPrefix, seq))
}

//==============================================================================
//Implement the Store interface

// AppendVote implements the Store interface.
func (s *BadgerStore) AppendVote(v *vote.VoteAttempt) (int, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	v.Seq = s.inmemStore.VoteCount()
	val, err := v.Marshal()
	if err != nil {
		return -1, err
	}
	if err := s.dbSet(voteKey(v.Seq), val); err != nil {
		return -1, err
	}
	return s.inmemStore.AppendVote(v)
}

// Votes implements the Store interface.
func (s *BadgerStore) Votes(skip int) ([]*vote.VoteAttempt, error) {
	return s.inmemStore.Votes(skip)
}

// VoteCount implements the Store interface.
func (s *BadgerStore) VoteCount() int {
	return s.inmemStore.VoteCount()
}

// AppendFraud implements the Store interface.
func (s *BadgerStore) AppendFraud(r *vote.FraudRecord) (int, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	r.Seq = s.inmemStore.FraudCount()
	val, err := r.Marshal()
	if err != nil {
		return -1, err
	}
	if err := s.dbSet(fraudKey(r.Seq), val); err != nil {
		return -1, err
	}
	return s.inmemStore.AppendFraud(r)
}

// FraudRecords implements the Store interface.
func (s *BadgerStore) FraudRecords(skip int) ([]*vote.FraudRecord, error) {
	return s.inmemStore.FraudRecords(skip)
}

// FraudCount implements the Store interface.
func (s *BadgerStore) FraudCount() int {
	return s.inmemStore.FraudCount()
}

// MarkHandedOff implements the Store interface.
func (s *BadgerStore) MarkHandedOff(seq int) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if seq < 0 || seq >= s.inmemStore.VoteCount() {
		return cm.NewStoreErr("Vote", cm.KeyNotFound, strconv.Itoa(seq))
	}
	if err := s.dbSet(handoffKey(seq), []byte{1}); err != nil {
		return err
	}
	return s.inmemStore.MarkHandedOff(seq)
}

// HandedOff implements the Store interface.
func (s *BadgerStore) HandedOff(seq int) bool {
	return s.inmemStore.HandedOff(seq)
}

// PendingHandoffs implements the Store interface.
func (s *BadgerStore) PendingHandoffs() ([]*vote.VoteAttempt, error) {
	return s.inmemStore.PendingHandoffs()
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbSet(key, val []byte) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(key, val); err != nil {
		return err
	}
	return tx.Commit()
}

// dbScan calls fn with the value of every key under prefix, in key order.
// Zero-padded sequence numbers make key order equal to append order.
func (s *BadgerStore) dbScan(prefix string, fn func(key, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix + "_")
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) dbVotes() ([]*vote.VoteAttempt, error) {
	res := []*vote.VoteAttempt{}
	err := s.dbScan(votePrefix, func(key, val []byte) error {
		v := new(vote.VoteAttempt)
		if err := v.Unmarshal(val); err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}
		res = append(res, v)
		return nil
	})
	return res, err
}

func (s *BadgerStore) dbFraudRecords() ([]*vote.FraudRecord, error) {
	res := []*vote.FraudRecord{}
	err := s.dbScan(fraudPrefix, func(key, val []byte) error {
		r := new(vote.FraudRecord)
		if err := r.Unmarshal(val); err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}
		res = append(res, r)
		return nil
	})
	return res, err
}

func (s *BadgerStore) dbHandoffs() ([]int, error) {
	res := []int{}
	err := s.dbScan(handoffPrefix, func(key, _ []byte) error {
		var seq int
		if _, err := fmt.Sscanf(string(key), handoffPrefix+"_%09d", &seq); err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		res = append(res, seq)
		return nil
	})
	return res, err
}

func (s *BadgerStore) loadCache() error {
	votes, err := s.dbVotes()
	if err != nil {
		return err
	}
	frauds, err := s.dbFraudRecords()
	if err != nil {
		return err
	}
	handoffs, err := s.dbHandoffs()
	if err != nil {
		return err
	}
	return s.inmemStore.load(votes, frauds, handoffs)
}
