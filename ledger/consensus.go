package ledger

import (
	"sync"
	"time"

	"github.com/meshledger/meshledger/crypto"
	"github.com/meshledger/meshledger/peers"
)

// ConsensusState is the per-node block-production state, mirroring the
// node package's atomic-state pattern applied to the propose/vote/commit
// cycle instead of the whole node's lifecycle.
type ConsensusState uint32

const (
	// Idle means no block is currently being proposed or voted on.
	Idle ConsensusState = iota
	// Proposing means this node is the leader and has broadcast a proposal,
	// awaiting votes.
	Proposing
	// Voting means this node is voting on another leader's proposal.
	Voting
)

func (s ConsensusState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Proposing:
		return "Proposing"
	case Voting:
		return "Voting"
	default:
		return "Unknown"
	}
}

// VotingWindow is the single-shot timer armed after a proposal is
// broadcast; Finalize runs when it fires.
const VotingWindow = 5 * time.Second

// Consensus drives the leader-rotated propose/vote/commit state machine
// described in §4.6. It holds no network code itself — the node wires its
// outputs (proposals, votes, commits) to the registry's broadcast.
type Consensus struct {
	l sync.Mutex

	selfID crypto.NodeID
	kp     *crypto.KeyPair

	chain     *Blockchain
	mempool   *Mempool
	whitelist *peers.Whitelist

	state        ConsensusState
	pendingBlock *Block
	votes        map[string]map[string]bool // blockHash -> voter -> approve
}

// NewConsensus wires a Consensus engine to the node's identity, chain,
// mempool, and whitelist.
func NewConsensus(selfID crypto.NodeID, kp *crypto.KeyPair, chain *Blockchain, mempool *Mempool, whitelist *peers.Whitelist) *Consensus {
	return &Consensus{
		selfID:    selfID,
		kp:        kp,
		chain:     chain,
		mempool:   mempool,
		whitelist: whitelist,
		state:     Idle,
		votes:     make(map[string]map[string]bool),
	}
}

// State returns the current consensus state.
func (c *Consensus) State() ConsensusState {
	c.l.Lock()
	defer c.l.Unlock()
	return c.state
}

// ProposeResult carries what the node must do as a side effect of a
// successful Propose call: broadcast the proposal and arm the voting
// timer.
type ProposeResult struct {
	Block *Block
}

// Propose is called when the block-production timer fires while this node
// is the leader. It is a no-op (returns nil) if consensus is not Idle, or
// the mempool is empty.
func (c *Consensus) Propose(resolvePubKey ResolvePubKey) (*ProposeResult, error) {
	c.l.Lock()
	defer c.l.Unlock()

	if c.state != Idle {
		return nil, nil
	}

	candidates := c.mempool.Take(10)
	if len(candidates) == 0 {
		return nil, nil
	}

	block, err := NewBlock(c.chain.Height(), c.chain.Tip().Hash, candidates, c.selfID, c.kp, resolvePubKey)
	if err != nil {
		return nil, err
	}

	c.pendingBlock = block
	c.votes[block.Hash] = map[string]bool{string(c.selfID): true}
	c.state = Proposing

	return &ProposeResult{Block: block}, nil
}

// VoteResult carries what the node must do in response to a proposal: cast
// and broadcast a vote.
type VoteResult struct {
	BlockHash string
	Approve   bool
}

// OnProposal is called when a block-proposal frame arrives from peerID. It
// returns an error (to be logged, not raised) if peerID is not the current
// leader, in which case the proposal is dropped without voting.
func (c *Consensus) OnProposal(peerID string, currentLeader crypto.NodeID, block *Block, resolvePubKey ResolvePubKey) (*VoteResult, error) {
	c.l.Lock()
	defer c.l.Unlock()

	if peerID != string(currentLeader) {
		return nil, errNotLeader(peerID)
	}

	approve := c.chain.Validate(block, resolvePubKey) == nil

	c.pendingBlock = block
	if c.votes[block.Hash] == nil {
		c.votes[block.Hash] = make(map[string]bool)
	}
	c.votes[block.Hash][string(c.selfID)] = approve
	c.state = Voting

	return &VoteResult{BlockHash: block.Hash, Approve: approve}, nil
}

// OnVote records a vote from a whitelisted peer. Votes for a block hash
// this node has never heard proposed are still recorded, so a vote that
// arrives before the proposal (re-ordered across peers) is not lost.
func (c *Consensus) OnVote(voterID, blockHash string, approve bool) {
	c.l.Lock()
	defer c.l.Unlock()

	if !c.whitelist.Contains(voterID) {
		return
	}

	if c.votes[blockHash] == nil {
		c.votes[blockHash] = make(map[string]bool)
	}
	c.votes[blockHash][voterID] = approve
}

// FinalizeResult reports the outcome of a voting window's expiry.
type FinalizeResult struct {
	Committed bool
	Block     *Block
	PurgedIDs []string
}

// Finalize is called when the 5-second voting timer fires. It tallies
// votes for the pending block, commits if quorum is reached, and in
// either case clears pending_block and returns to Idle.
func (c *Consensus) Finalize(resolvePubKey ResolvePubKey) (*FinalizeResult, error) {
	c.l.Lock()

	block := c.pendingBlock
	if block == nil {
		c.state = Idle
		c.l.Unlock()
		return &FinalizeResult{Committed: false}, nil
	}

	approvals := 0
	for _, approve := range c.votes[block.Hash] {
		if approve {
			approvals++
		}
	}
	required := c.whitelist.Quorum()

	c.pendingBlock = nil
	delete(c.votes, block.Hash)
	c.state = Idle

	c.l.Unlock()

	if approvals < required {
		return &FinalizeResult{Committed: false, Block: block}, nil
	}

	purged, err := c.chain.AppendBlock(block, resolvePubKey)
	if err != nil {
		return &FinalizeResult{Committed: false, Block: block}, err
	}

	c.mempool.Remove(purged...)

	return &FinalizeResult{Committed: true, Block: block, PurgedIDs: purged}, nil
}

type notLeaderError string

func (e notLeaderError) Error() string { return "block-proposal from non-leader peer " + string(e) }

func errNotLeader(peerID string) error { return notLeaderError(peerID) }
