package ledger

import (
	"fmt"
	"sync"
)

// BlockSink is invoked after a block commits locally, letting an embedder
// add persistence or an application-level state transition without
// changing ledger semantics — mirroring the teacher's proxy.AppProxy
// pattern of externalizing storage concerns behind an interface.
type BlockSink interface {
	BlockCommitted(b *Block)
}

// NoopBlockSink is the default BlockSink: it does nothing, matching the
// spec's in-memory-only default (persistence is a pluggable hook, not a
// feature this core implements itself).
type NoopBlockSink struct{}

// BlockCommitted implements BlockSink.
func (NoopBlockSink) BlockCommitted(*Block) {}

// Blockchain is the node's local, append-only, hash-chained sequence of
// blocks, always starting from the fixed genesis block.
type Blockchain struct {
	l      sync.RWMutex
	chain  []*Block
	sink   BlockSink
}

// NewBlockchain creates a Blockchain seeded with the genesis block. A nil
// sink is replaced with NoopBlockSink.
func NewBlockchain(sink BlockSink) *Blockchain {
	if sink == nil {
		sink = NoopBlockSink{}
	}
	return &Blockchain{
		chain: []*Block{Genesis()},
		sink:  sink,
	}
}

// Height returns the current chain length (the index the next block must
// carry).
func (bc *Blockchain) Height() uint64 {
	bc.l.RLock()
	defer bc.l.RUnlock()
	return uint64(len(bc.chain))
}

// Tip returns the most recently appended block.
func (bc *Blockchain) Tip() *Block {
	bc.l.RLock()
	defer bc.l.RUnlock()
	return bc.chain[len(bc.chain)-1]
}

// At returns the block at a given index.
func (bc *Blockchain) At(index uint64) (*Block, bool) {
	bc.l.RLock()
	defer bc.l.RUnlock()
	if index >= uint64(len(bc.chain)) {
		return nil, false
	}
	return bc.chain[index], true
}

// Slice returns every block from fromIndex to the tip, inclusive, for
// catch-up sync responses.
func (bc *Blockchain) Slice(fromIndex uint64) []*Block {
	bc.l.RLock()
	defer bc.l.RUnlock()

	if fromIndex >= uint64(len(bc.chain)) {
		return nil
	}
	out := make([]*Block, len(bc.chain)-int(fromIndex))
	copy(out, bc.chain[fromIndex:])
	return out
}

// ResolvePubKey is supplied by the node to look up a NodeId's bound public
// key (from the whitelist) for signature verification during block
// validation.
type ResolvePubKey func(nodeID string) (string, bool)

// Validate checks a candidate block against the current tip per the six
// rules in §4.6 "Block validation". It does not mutate the chain.
func (bc *Blockchain) Validate(b *Block, resolvePubKey ResolvePubKey) error {
	if b.Hash == "" || b.PreviousHash == "" {
		return fmt.Errorf("invalid block: missing hash or previous_hash")
	}

	tip := bc.Tip()

	if b.Index != bc.Height() {
		return fmt.Errorf("invalid block: index %d does not extend tip at height %d", b.Index, bc.Height())
	}

	if b.PreviousHash != tip.Hash {
		return fmt.Errorf("invalid block: previous_hash does not match tip")
	}

	if b.computeHash() != b.Hash {
		return fmt.Errorf("invalid block: hash does not match recomputed value")
	}

	if b.Signature != "" {
		pubKeyHex, ok := resolvePubKey(b.Author)
		if !ok || !b.VerifySignature(pubKeyHex) {
			return fmt.Errorf("invalid block: signature does not verify against author")
		}
	}

	for _, tx := range b.Transactions {
		if err := tx.ValidateShape(); err != nil {
			return fmt.Errorf("invalid block: %w", err)
		}
	}

	return nil
}

// AppendBlock validates b against the tip, appends it, invokes the
// BlockSink, and returns the transaction ids to purge from the mempool.
// The chain is strictly append-only: a block that does not extend the tip
// is rejected rather than triggering a reorg (Open Question 3).
func (bc *Blockchain) AppendBlock(b *Block, resolvePubKey ResolvePubKey) ([]string, error) {
	if err := bc.Validate(b, resolvePubKey); err != nil {
		return nil, err
	}

	bc.l.Lock()
	bc.chain = append(bc.chain, b)
	bc.l.Unlock()

	bc.sink.BlockCommitted(b)

	return b.TransactionIDs(), nil
}
