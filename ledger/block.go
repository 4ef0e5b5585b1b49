package ledger

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/meshledger/meshledger/crypto"
)

// GenesisPreviousHash is the sentinel previous_hash value of the genesis
// block.
const GenesisPreviousHash = "0"

// GenesisAuthor is the sentinel author of the genesis block.
const GenesisAuthor = "genesis"

// Block is one entry in the hash-chained ledger. Hash is computed over the
// canonical serialization of {index, timestamp, transactions,
// previous_hash, nonce, author}; Signature and Hash itself are excluded
// from what's hashed.
type Block struct {
	Index        uint64         `json:"index"`
	TimestampMs  int64          `json:"timestamp_ms"`
	Transactions []*Transaction `json:"transactions"`
	PreviousHash string         `json:"previous_hash"`
	Hash         string         `json:"hash"`
	Nonce        uint64         `json:"nonce"`
	Author       string         `json:"author"`
	Signature    string         `json:"signature,omitempty"`
}

// Genesis builds the fixed, unsigned genesis block.
func Genesis() *Block {
	b := &Block{
		Index:        0,
		TimestampMs:  0,
		Transactions: nil,
		PreviousHash: GenesisPreviousHash,
		Nonce:        0,
		Author:       GenesisAuthor,
	}
	b.Hash = b.computeHash()
	return b
}

func (b *Block) computeHash() string {
	payload, err := b.canonicalBytes()
	if err != nil {
		// canonicalBytes only fails on a json.Marshal error, which cannot
		// happen for this fixed, already-valid shape.
		panic(fmt.Sprintf("ledger: computing block hash: %v", err))
	}
	return crypto.SHA256Hex(payload)
}

// NewBlock constructs the next block at height from up to 10 mempool
// transactions, filtering out any without a valid signature from its own
// "from" (Open Question 2: unsigned transactions never reach a block),
// and signs it with kp.
func NewBlock(height uint64, previousHash string, candidates []*Transaction, author crypto.NodeID, kp *crypto.KeyPair, resolvePubKey func(nodeID string) (string, bool)) (*Block, error) {
	const maxTxPerBlock = 10

	txs := make([]*Transaction, 0, maxTxPerBlock)
	for _, tx := range candidates {
		if len(txs) >= maxTxPerBlock {
			break
		}
		if !tx.HasSignature() {
			continue
		}
		pubKeyHex, ok := resolvePubKey(tx.From)
		if !ok || !tx.VerifySignature(pubKeyHex) {
			continue
		}
		txs = append(txs, tx)
	}

	b := &Block{
		Index:        height,
		TimestampMs:  time.Now().UnixMilli(),
		Transactions: txs,
		PreviousHash: previousHash,
		Nonce:        0,
		Author:       string(author),
	}
	b.Hash = b.computeHash()

	sig, err := kp.Sign(b.hashBytes())
	if err != nil {
		return nil, fmt.Errorf("signing block: %w", err)
	}
	b.Signature = sig

	return b, nil
}

// hashBytes decodes the block's hex-encoded Hash back to raw digest bytes,
// the payload that gets signed/verified directly (the hash is already a
// SHA-256 digest, so it is not re-hashed before signing).
func (b *Block) hashBytes() []byte {
	raw, err := hex.DecodeString(b.Hash)
	if err != nil {
		return nil
	}
	return raw
}

// VerifySignature reports whether Signature verifies against the author's
// public key.
func (b *Block) VerifySignature(authorPubKeyHex string) bool {
	if b.Signature == "" {
		return false
	}
	return crypto.Verify(authorPubKeyHex, b.hashBytes(), b.Signature)
}

// TransactionIDs returns the ids of every transaction the block contains,
// for mempool purging on commit.
func (b *Block) TransactionIDs() []string {
	ids := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID
	}
	return ids
}
