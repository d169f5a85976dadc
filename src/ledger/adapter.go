// Package ledger hands accepted votes to the external ledger.
//
// The ledger is reached through three remote calls: submit a transaction,
// finalize a block and fetch the chain. They are best effort. A failed
// hand-off never undoes a local acceptance: the vote stays pending in the
// store and the Dispatcher retries it until the ledger confirms it.
package ledger

import (
	"context"

	"github.com/mosaicnetworks/ballotguard/src/vote"
)

// Adapter is the call contract of the external ledger service.
type Adapter interface {
	// SubmitTransaction adds a transaction to the ledger's pending pool.
	SubmitTransaction(ctx context.Context, tx vote.Transaction) error
	// FinalizeBlock asks the ledger to seal the pending pool into a block.
	FinalizeBlock(ctx context.Context) error
	// FetchChain returns the blocks of the ledger, genesis first.
	FetchChain(ctx context.Context) ([]vote.Block, error)
}

// ChainResponse is the body of GET /chain.
type ChainResponse struct {
	Length int          `json:"length"`
	Chain  []vote.Block `json:"chain"`
}
