package vote

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// GenesisPreviousHash is the PreviousHash of the first block of a chain.
const GenesisPreviousHash = "0"

// Transaction is the payload handed to the ledger for an accepted vote. Its
// JSON form is the wire format of the ledger node.
type Transaction struct {
	IdentityID    string `json:"voter_id"`
	Choice        string `json:"party"`
	OriginAddress string `json:"ip_address"`
	// Timestamp is SubmittedAt in Unix seconds.
	Timestamp int64 `json:"timestamp"`
}

// NewTransaction ...
func NewTransaction(identityID, choice, origin string, submittedAt time.Time) Transaction {
	return Transaction{
		IdentityID:    identityID,
		Choice:        choice,
		OriginAddress: origin,
		Timestamp:     submittedAt.Unix(),
	}
}

// SubmittedAt returns the transaction timestamp as a time.Time.
func (t Transaction) SubmittedAt() time.Time {
	return time.Unix(t.Timestamp, 0)
}

// BlockBody is the hashed part of a Block.
type BlockBody struct {
	Index        int           `json:"index"`
	PreviousHash string        `json:"previous_hash"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
}

// Block is an element of the ledger chain. Blocks link to their parent through
// PreviousHash.
type Block struct {
	BlockBody
	Hash string `json:"hash"`
}

// NewBlock creates a block and computes its hash.
func NewBlock(index int, previousHash string, timestamp int64, txs []Transaction) (*Block, error) {
	if txs == nil {
		txs = []Transaction{}
	}
	b := &Block{
		BlockBody: BlockBody{
			Index:        index,
			PreviousHash: previousHash,
			Timestamp:    timestamp,
			Transactions: txs,
		},
	}
	h, err := b.BlockBody.Hash()
	if err != nil {
		return nil, err
	}
	b.Hash = h
	return b, nil
}

// Marshal returns the canonical JSON encoding of the body.
func (bb *BlockBody) Marshal() ([]byte, error) {
	return encode(bb)
}

// Hash returns the hex encoded SHA-256 of the canonical body.
func (bb *BlockBody) Hash() (string, error) {
	data, err := bb.Marshal()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Verify checks that the stored hash matches the body.
func (b *Block) Verify() (bool, error) {
	h, err := b.BlockBody.Hash()
	if err != nil {
		return false, err
	}
	return h == b.Hash, nil
}

// Marshal ...
func (b *Block) Marshal() ([]byte, error) {
	return encode(b)
}

// Unmarshal ...
func (b *Block) Unmarshal(data []byte) error {
	return decode(data, b)
}

// VerifyChain checks that every block hashes correctly and links to its
// predecessor.
func VerifyChain(chain []Block) (bool, error) {
	for i := range chain {
		ok, err := chain[i].Verify()
		if err != nil || !ok {
			return false, err
		}
		if i == 0 {
			if chain[i].PreviousHash != GenesisPreviousHash {
				return false, nil
			}
			continue
		}
		if chain[i].PreviousHash != chain[i-1].Hash || chain[i].Index != chain[i-1].Index+1 {
			return false, nil
		}
	}
	return true, nil
}
