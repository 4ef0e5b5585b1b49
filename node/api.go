package node

import (
	"fmt"

	"github.com/meshledger/meshledger/catalog"
	"github.com/meshledger/meshledger/events"
	"github.com/meshledger/meshledger/ledger"
	"github.com/meshledger/meshledger/net"
)

// Share registers content as a locally shared file and advertises it to
// every connected peer. It is safe to call from any goroutine.
func (n *Node) Share(name string, content []byte, mimeType string) *catalog.FileEntry {
	var entry *catalog.FileEntry
	n.do(func() {
		entry = n.catalog.Share(name, content, mimeType)
		n.content[entry.ID] = content

		n.registry.Broadcast(net.TypeFileOffer, &net.FileOfferBody{
			FileID:     entry.ID,
			Name:       entry.Name,
			Size:       entry.Size,
			MimeType:   entry.MimeType,
			SHA256Hash: entry.SHA256Hash,
		})
		n.events.Emit(events.FileShared, entry)
	})
	return entry
}

// StopShare withdraws a locally shared file and tells every connected peer
// it is no longer available.
func (n *Node) StopShare(fileID string) bool {
	var ok bool
	n.do(func() {
		_, ok = n.catalog.StopShare(fileID)
		if !ok {
			return
		}
		delete(n.content, fileID)
		n.registry.Broadcast(net.TypeFileUnavailable, &net.FileUnavailableBody{FileID: fileID})
	})
	return ok
}

// ErrUnknownFile is returned by Download when fileID has no known offer.
var ErrUnknownFile = fmt.Errorf("node: no known offer for file id")

// Download starts a chunked transfer for a file this node has seen offered
// by some peer, subject to the concurrent-download cap.
func (n *Node) Download(fileID string) error {
	var err error
	n.do(func() {
		offer, ok := n.catalog.Offer(fileID)
		if !ok {
			err = ErrUnknownFile
			return
		}

		if startErr := n.transfers.StartDownload(offer); startErr != nil {
			err = startErr
			return
		}

		n.registry.Send(offer.Advertiser, net.TypeFileRequest, &net.FileRequestBody{
			FileID:    fileID,
			Requester: string(n.keyPair.ID),
		})
	})
	return err
}

// Cancel aborts an in-progress download, discarding any chunks received so
// far.
func (n *Node) Cancel(fileID string) {
	n.do(func() {
		n.transfers.Cancel(fileID)
	})
}

// SubmitTransaction builds, signs, adds to the local mempool, and
// broadcasts a transaction from this node's identity.
func (n *Node) SubmitTransaction(to string, data []byte, amount float64) (*ledger.Transaction, error) {
	var (
		tx  *ledger.Transaction
		err error
	)
	n.do(func() {
		tx = ledger.NewTransaction(string(n.keyPair.ID), to, data, amount)
		if signErr := tx.Sign(n.keyPair); signErr != nil {
			err = fmt.Errorf("signing transaction: %w", signErr)
			tx = nil
			return
		}

		n.mempool.Add(tx)
		n.registry.Broadcast(net.TypeTransaction, &net.TransactionBody{Transaction: tx})
		n.events.Emit(events.TransactionSubmitted, tx)
	})
	return tx, err
}

// PeerStatus summarizes one connected or whitelisted peer for the status
// API.
type PeerStatus struct {
	NodeID      string `json:"node_id"`
	Connected   bool   `json:"connected"`
	Whitelisted bool   `json:"whitelisted"`
}

// Stats summarizes the node's current state for the status API.
type Stats struct {
	NodeID        string `json:"node_id"`
	State         string `json:"state"`
	ChainHeight   uint64 `json:"chain_height"`
	IsLeader      bool   `json:"is_leader"`
	CurrentLeader string `json:"current_leader"`
	MempoolSize   int    `json:"mempool_size"`
	PeerCount     int    `json:"peer_count"`
}

// Stats reports a snapshot of node-level status.
func (n *Node) Stats() Stats {
	var s Stats
	n.do(func() {
		s = Stats{
			NodeID:        string(n.keyPair.ID),
			State:         n.getState().String(),
			ChainHeight:   n.chain.Height(),
			IsLeader:      n.isLeader,
			CurrentLeader: string(n.currentLeader),
			MempoolSize:   n.mempool.Len(),
			PeerCount:     len(n.registry.ConnectedPeers()),
		}
	})
	return s
}

// Peers reports every connected and whitelisted peer.
func (n *Node) Peers() []PeerStatus {
	var out []PeerStatus
	n.do(func() {
		connected := make(map[string]bool)
		for _, id := range n.registry.ConnectedPeers() {
			connected[id] = true
		}

		seen := make(map[string]bool)
		for _, p := range n.whitelist.Peers() {
			out = append(out, PeerStatus{NodeID: p.NodeID, Connected: connected[p.NodeID], Whitelisted: true})
			seen[p.NodeID] = true
		}
		for id := range connected {
			if !seen[id] {
				out = append(out, PeerStatus{NodeID: id, Connected: true, Whitelisted: false})
			}
		}
	})
	return out
}

// Chain returns the block at index, if any.
func (n *Node) Chain(index uint64) (*ledger.Block, bool) {
	return n.chain.At(index)
}

// ChainHeight returns the current chain length.
func (n *Node) ChainHeight() uint64 {
	return n.chain.Height()
}

// Files reports every file this node is locally sharing.
func (n *Node) Files() []*catalog.FileEntry {
	return n.catalog.LocalEntries()
}

// Offers reports every remote file offer this node has learned of.
func (n *Node) Offers() []*catalog.FileOffer {
	return n.catalog.Offers()
}
