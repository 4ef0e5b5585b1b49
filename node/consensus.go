package node

import (
	"time"

	"github.com/meshledger/meshledger/crypto"
	"github.com/meshledger/meshledger/events"
	"github.com/meshledger/meshledger/ledger"
	"github.com/meshledger/meshledger/net"
)

// blockProposalWire and its siblings give node/ concrete types to decode
// block-proposal/new-block/sync-response frames into, since net/messages.go
// keeps those bodies as interface{} to avoid importing ledger.
type blockProposalWire struct {
	Block *ledger.Block `json:"block"`
}

type newBlockWire struct {
	Block *ledger.Block `json:"block"`
}

type syncResponseWire struct {
	RequestID   string          `json:"request_id"`
	Blocks      []*ledger.Block `json:"blocks"`
	TotalBlocks int             `json:"total_blocks"`
}

// recomputeLeader runs on every leader-rotation tick (and once at startup)
// to recompute the current slot's leader and arm or park the block
// production timer accordingly.
func (n *Node) recomputeLeader() {
	slot := uint64(time.Now().UnixMilli()) / uint64(leaderRotationInterval/time.Millisecond)

	leader, ok := n.whitelist.LeaderAt(n.chain.Height(), slot)
	if !ok {
		return
	}

	changed := n.currentLeader != crypto.NodeID(leader.NodeID)
	n.currentLeader = crypto.NodeID(leader.NodeID)
	n.isLeader = leader.NodeID == string(n.keyPair.ID)

	if n.isLeader {
		n.productionTimer.Reset(blockProductionInterval)
	} else {
		n.productionTimer.Stop()
	}

	if !changed {
		return
	}

	n.events.Emit(events.LeaderChanged, leader.NodeID)
	n.registry.Broadcast(net.TypeLeaderAnnouncement, &net.LeaderAnnouncementBody{
		Leader:      leader.NodeID,
		BlockHeight: n.chain.Height(),
		Timestamp:   time.Now().UnixMilli(),
	})
}

// armVoteTimer cancels any still-pending vote window and starts a fresh
// one, whether this node is the proposer or a follower voting on someone
// else's proposal.
func (n *Node) armVoteTimer() {
	if n.voteTimer != nil {
		n.voteTimer.Cancel()
	}
	n.voteTimer = NewOneShotTimer(ledger.VotingWindow)
	n.voteTimerC = n.voteTimer.C()
}

// produceBlock runs when the block production timer fires while this node
// is the slot leader. A no-op Propose (empty mempool, or consensus already
// mid-round) leaves the timer parked for the next tick.
func (n *Node) produceBlock() {
	if !n.isLeader {
		return
	}

	result, err := n.consensus.Propose(n.resolvePubKey)
	if err != nil {
		n.logger.WithError(err).Warn("proposing block failed")
		return
	}
	if result == nil {
		return
	}

	n.registry.Broadcast(net.TypeBlockProposal, &blockProposalWire{Block: result.Block})
	n.armVoteTimer()
}

func (n *Node) onBlockProposal(peerID string, frame *net.Frame) {
	var body blockProposalWire
	if err := frame.Decode(&body); err != nil || body.Block == nil {
		return
	}

	result, err := n.consensus.OnProposal(peerID, n.currentLeader, body.Block, n.resolvePubKey)
	if err != nil {
		n.logger.WithError(err).WithField("peer", peerID).Debug("dropping block proposal")
		return
	}
	if result == nil {
		return
	}

	n.registry.Broadcast(net.TypeBlockVote, &net.BlockVoteBody{
		BlockHash: result.BlockHash,
		Voter:     string(n.keyPair.ID),
		Approve:   result.Approve,
		Timestamp: time.Now().UnixMilli(),
	})
	n.armVoteTimer()
}

func (n *Node) onBlockVote(frame *net.Frame) {
	var body net.BlockVoteBody
	if err := frame.Decode(&body); err != nil {
		return
	}
	n.consensus.OnVote(body.Voter, body.BlockHash, body.Approve)
}

// finalizeVote runs when the vote window expires: it tallies votes for the
// pending block and commits on quorum. Only a committed block is
// broadcast (as new-block), so peers that missed the proposal still learn
// of it; a dropped proposal is not announced.
func (n *Node) finalizeVote() {
	result, err := n.consensus.Finalize(n.resolvePubKey)
	if err != nil {
		n.logger.WithError(err).Warn("finalizing block failed")
		return
	}
	if result == nil || !result.Committed {
		return
	}

	n.mempool.Remove(result.PurgedIDs...)
	n.events.Emit(events.BlockAdded, result.Block)
	n.registry.Broadcast(net.TypeNewBlock, &newBlockWire{Block: result.Block})
}

func (n *Node) onNewBlock(frame *net.Frame) {
	var body newBlockWire
	if err := frame.Decode(&body); err != nil || body.Block == nil {
		return
	}

	if body.Block.Index < n.chain.Height() {
		return
	}

	if _, err := n.chain.AppendBlock(body.Block, n.resolvePubKey); err != nil {
		n.logger.WithError(err).Debug("dropping announced block that does not extend the tip")
		return
	}

	n.mempool.Remove(body.Block.TransactionIDs()...)
	n.events.Emit(events.BlockAdded, body.Block)
}

func (n *Node) onLeaderAnnouncement(peerID string, frame *net.Frame) {
	var body net.LeaderAnnouncementBody
	if err := frame.Decode(&body); err != nil {
		return
	}
	if body.Leader == "" || n.currentLeader == crypto.NodeID(body.Leader) {
		return
	}
	if !n.whitelist.Contains(peerID) {
		return
	}
	if body.BlockHeight < n.chain.Height() {
		return
	}

	n.currentLeader = crypto.NodeID(body.Leader)
	n.isLeader = body.Leader == string(n.keyPair.ID)

	if n.isLeader {
		n.productionTimer.Reset(blockProductionInterval)
	} else {
		n.productionTimer.Stop()
	}

	n.events.Emit(events.LeaderChanged, body.Leader)
}

// requestSync asks a newly-opened, whitelisted peer for every block past
// this node's current tip, 1 second after its session opens.
func (n *Node) requestSync(peerID string) {
	n.registry.Send(peerID, net.TypeBlockchainSyncRequest, &net.BlockchainSyncRequestBody{
		FromIndex: n.chain.Height(),
		RequestID: syncRequestID(peerID),
	})
}

func syncRequestID(peerID string) string {
	return peerID + "-" + time.Now().UTC().Format("150405.000000")
}

func (n *Node) onSyncRequest(peerID string, frame *net.Frame) {
	var body net.BlockchainSyncRequestBody
	if err := frame.Decode(&body); err != nil {
		return
	}

	blocks := n.chain.Slice(body.FromIndex)
	wire := &syncResponseWire{
		RequestID:   body.RequestID,
		Blocks:      blocks,
		TotalBlocks: len(blocks),
	}
	n.registry.Send(peerID, net.TypeBlockchainSyncResponse, wire)
}

func (n *Node) onSyncResponse(frame *net.Frame) {
	var body syncResponseWire
	if err := frame.Decode(&body); err != nil || len(body.Blocks) == 0 {
		return
	}

	applied, err := n.chain.ApplySyncBatch(body.Blocks, n.mempool, n.resolvePubKey)
	if err != nil {
		n.logger.WithError(err).WithField("applied", applied).Debug("sync batch only partially applied")
	}
	for _, b := range body.Blocks[:applied] {
		n.events.Emit(events.BlockAdded, b)
	}
}
