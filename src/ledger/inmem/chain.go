// Package inmem implements an in-memory ledger: a hash-linked chain of blocks
// and a pool of pending transactions.
package inmem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/ballotguard/src/vote"
	"github.com/sirupsen/logrus"
)

// Chain is an in-memory ledger. It implements ledger.Adapter.
//
// Transactions are idempotent per voter: a transaction whose voter is already
// pending or sealed in a block is acknowledged and dropped, so that retried
// hand-offs never record a vote twice.
type Chain struct {
	sync.RWMutex

	blocks  []vote.Block
	pending []vote.Transaction
	voters  map[string]bool
	now     func() time.Time

	logger *logrus.Entry
}

// NewChain creates a chain holding the genesis block.
func NewChain(logger *logrus.Entry) (*Chain, error) {
	c := &Chain{
		voters: make(map[string]bool),
		now:    time.Now,
		logger: logger.WithField("component", "chain"),
	}

	genesis, err := vote.NewBlock(0, vote.GenesisPreviousHash, 0, nil)
	if err != nil {
		return nil, err
	}
	c.blocks = []vote.Block{*genesis}

	return c, nil
}

// SubmitTransaction implements ledger.Adapter.
func (c *Chain) SubmitTransaction(_ context.Context, tx vote.Transaction) error {
	if tx.IdentityID == "" || tx.Choice == "" {
		return fmt.Errorf("invalid transaction: voter_id and party are required")
	}

	c.Lock()
	defer c.Unlock()

	if c.voters[tx.IdentityID] {
		c.logger.WithField("voter_id", tx.IdentityID).Debug("Transaction already recorded")
		return nil
	}
	c.voters[tx.IdentityID] = true
	c.pending = append(c.pending, tx)

	return nil
}

// FinalizeBlock implements ledger.Adapter.
func (c *Chain) FinalizeBlock(_ context.Context) error {
	_, err := c.Mine()
	return err
}

// FetchChain implements ledger.Adapter.
func (c *Chain) FetchChain(_ context.Context) ([]vote.Block, error) {
	c.RLock()
	defer c.RUnlock()

	res := make([]vote.Block, len(c.blocks))
	copy(res, c.blocks)
	return res, nil
}

// Mine seals the pending transactions into a new block and returns its
// index. It returns -1 and no error when nothing is pending.
func (c *Chain) Mine() (int, error) {
	c.Lock()
	defer c.Unlock()

	if len(c.pending) == 0 {
		return -1, nil
	}

	last := c.blocks[len(c.blocks)-1]
	block, err := vote.NewBlock(last.Index+1, last.Hash, c.now().Unix(), c.pending)
	if err != nil {
		return -1, err
	}

	c.blocks = append(c.blocks, *block)
	c.pending = nil

	c.logger.WithFields(logrus.Fields{
		"index":        block.Index,
		"hash":         block.Hash,
		"transactions": len(block.Transactions),
	}).Info("Mined block")

	return block.Index, nil
}

// Pending returns the transactions waiting for the next block.
func (c *Chain) Pending() []vote.Transaction {
	c.RLock()
	defer c.RUnlock()

	res := make([]vote.Transaction, len(c.pending))
	copy(res, c.pending)
	return res
}

// Length returns the number of blocks, genesis included.
func (c *Chain) Length() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.blocks)
}
