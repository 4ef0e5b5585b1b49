package ledger

import (
	"testing"

	"github.com/meshledger/meshledger/crypto"
	"github.com/meshledger/meshledger/peers"
)

func mustKeyPair(t *testing.T) *crypto.KeyPair {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return kp
}

func resolverFor(kps ...*crypto.KeyPair) ResolvePubKey {
	byID := make(map[string]string)
	for _, kp := range kps {
		byID[string(kp.ID)] = kp.PublicKeyHex()
	}
	return func(nodeID string) (string, bool) {
		pk, ok := byID[nodeID]
		return pk, ok
	}
}

func TestGenesisBlock(t *testing.T) {
	g := Genesis()

	if g.Index != 0 {
		t.Fatalf("expected genesis index 0, got %d", g.Index)
	}
	if g.PreviousHash != GenesisPreviousHash {
		t.Fatalf("expected previous_hash %q, got %q", GenesisPreviousHash, g.PreviousHash)
	}
	if g.Author != GenesisAuthor {
		t.Fatalf("expected author %q, got %q", GenesisAuthor, g.Author)
	}
	if len(g.Transactions) != 0 {
		t.Fatalf("expected genesis to have no transactions")
	}
	if g.Signature != "" {
		t.Fatalf("expected genesis to be unsigned")
	}
}

func TestBlockchainChainLinkage(t *testing.T) {
	kp := mustKeyPair(t)
	resolver := resolverFor(kp)

	bc := NewBlockchain(nil)

	tip := bc.Tip()
	block, err := NewBlock(bc.Height(), tip.Hash, nil, kp.ID, kp, resolver)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := bc.AppendBlock(block, resolver); err != nil {
		t.Fatalf("err: %v", err)
	}

	if bc.Height() != 2 {
		t.Fatalf("expected height 2 after appending one block, got %d", bc.Height())
	}

	b1, ok := bc.At(1)
	if !ok || b1.PreviousHash != tip.Hash {
		t.Fatalf("expected block 1 to link to genesis hash")
	}
}

func TestBlockchainRejectsNonExtendingBlock(t *testing.T) {
	kp := mustKeyPair(t)
	resolver := resolverFor(kp)

	bc := NewBlockchain(nil)

	// a block claiming to be index 5 when the chain height is 1 does not
	// extend the tip and must be rejected outright (no reorg).
	stale, err := NewBlock(5, bc.Tip().Hash, nil, kp.ID, kp, resolver)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := bc.AppendBlock(stale, resolver); err == nil {
		t.Fatalf("expected non-extending block to be rejected")
	}
}

func TestNewBlockFiltersUnsignedTransactions(t *testing.T) {
	kp := mustKeyPair(t)
	resolver := resolverFor(kp)

	signed := NewTransaction(string(kp.ID), "bob", nil, 1)
	if err := signed.Sign(kp); err != nil {
		t.Fatalf("err: %v", err)
	}

	unsigned := NewTransaction(string(kp.ID), "carol", nil, 2)

	block, err := NewBlock(0, GenesisPreviousHash, []*Transaction{signed, unsigned}, kp.ID, kp, resolver)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(block.Transactions) != 1 {
		t.Fatalf("expected unsigned transaction to be filtered out, got %d transactions", len(block.Transactions))
	}
	if block.Transactions[0].ID != signed.ID {
		t.Fatalf("expected the signed transaction to survive filtering")
	}
}

func TestConsensusSingleNodeQuorum(t *testing.T) {
	kp := mustKeyPair(t)
	resolver := resolverFor(kp)

	whitelist := peers.NewWhitelist(nil)
	p, err := peers.NewPeer(kp.PublicKeyHex(), "")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	whitelist.AddPeer(p)

	mempool := NewMempool()
	tx := NewTransaction(string(kp.ID), "bob", nil, 1)
	if err := tx.Sign(kp); err != nil {
		t.Fatalf("err: %v", err)
	}
	mempool.Add(tx)

	bc := NewBlockchain(nil)
	consensus := NewConsensus(kp.ID, kp, bc, mempool, whitelist)

	result, err := consensus.Propose(resolver)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if result == nil {
		t.Fatalf("expected a proposal from a non-empty mempool")
	}

	finalize, err := consensus.Finalize(resolver)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !finalize.Committed {
		t.Fatalf("expected single-node whitelist to self-commit")
	}
	if bc.Height() != 2 {
		t.Fatalf("expected height 2 after commit, got %d", bc.Height())
	}
	if mempool.Len() != 0 {
		t.Fatalf("expected mempool to be purged after commit")
	}
}

func TestConsensusDropsWithoutQuorum(t *testing.T) {
	a := mustKeyPair(t)
	b := mustKeyPair(t)
	resolver := resolverFor(a, b)

	whitelist := peers.NewWhitelist(nil)
	for _, kp := range []*crypto.KeyPair{a, b} {
		p, err := peers.NewPeer(kp.PublicKeyHex(), "")
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		whitelist.AddPeer(p)
	}
	whitelist.MinVotes = 2 // force a requirement neither peer alone can reach

	mempool := NewMempool()
	tx := NewTransaction(string(a.ID), "bob", nil, 1)
	tx.Sign(a)
	mempool.Add(tx)

	bc := NewBlockchain(nil)
	consensus := NewConsensus(a.ID, a, bc, mempool, whitelist)

	if _, err := consensus.Propose(resolver); err != nil {
		t.Fatalf("err: %v", err)
	}

	finalize, err := consensus.Finalize(resolver)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if finalize.Committed {
		t.Fatalf("expected proposal with only 1/2 required votes to be dropped")
	}
	if bc.Height() != 1 {
		t.Fatalf("expected chain height unchanged at 1, got %d", bc.Height())
	}
	if consensus.State() != Idle {
		t.Fatalf("expected consensus to return to Idle after finalize, got %s", consensus.State())
	}
}

func TestApplySyncBatchAbortsAtFirstInvalidBlock(t *testing.T) {
	kp := mustKeyPair(t)
	resolver := resolverFor(kp)

	bc := NewBlockchain(nil)
	mempool := NewMempool()

	good, err := NewBlock(bc.Height(), bc.Tip().Hash, nil, kp.ID, kp, resolver)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// bad extends nothing real: wrong previous_hash
	bad := &Block{
		Index:        1,
		PreviousHash: "not-the-real-hash",
		Author:       string(kp.ID),
	}
	bad.Hash = bad.computeHash()

	applied, err := bc.ApplySyncBatch([]*Block{good, bad}, mempool, resolver)
	if err == nil {
		t.Fatalf("expected sync batch to abort on the invalid second block")
	}
	if applied != 1 {
		t.Fatalf("expected exactly 1 block applied before abort, got %d", applied)
	}
	if bc.Height() != 2 {
		t.Fatalf("expected the valid first block to remain applied, height=%d", bc.Height())
	}
}
