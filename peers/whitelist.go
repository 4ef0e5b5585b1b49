package peers

import (
	"math"
	"sync"

	"github.com/meshledger/meshledger/crypto"
)

// Whitelist is the sorted-insertion-order set of peers authorized to lead
// and vote in consensus. Insertion order is preserved because the leader
// schedule formula indexes into it deterministically; removing a peer
// shifts every later peer's index, which is accepted per spec rather than
// worked around with stable IDs.
type Whitelist struct {
	l        sync.RWMutex
	ordered  []*Peer
	byNodeID map[string]*Peer
	// MinVotes is the floor on approvals required to reach quorum,
	// independent of whitelist size. It defaults to 1 so a single-node
	// whitelist still commits blocks.
	MinVotes int
}

// NewWhitelist builds a Whitelist from an ordered slice of peers.
func NewWhitelist(peers []*Peer) *Whitelist {
	w := &Whitelist{
		byNodeID: make(map[string]*Peer),
		MinVotes: 1,
	}

	for _, p := range peers {
		w.addRaw(p)
	}

	return w
}

func (w *Whitelist) addRaw(p *Peer) {
	if _, ok := w.byNodeID[p.NodeID]; ok {
		return
	}
	w.byNodeID[p.NodeID] = p
	w.ordered = append(w.ordered, p)
}

// AddPeer adds a peer to the whitelist if it is not already present.
func (w *Whitelist) AddPeer(p *Peer) {
	w.l.Lock()
	defer w.l.Unlock()
	w.addRaw(p)
}

// RemovePeer removes a peer by NodeId, if present.
func (w *Whitelist) RemovePeer(nodeID string) {
	w.l.Lock()
	defer w.l.Unlock()

	if _, ok := w.byNodeID[nodeID]; !ok {
		return
	}
	delete(w.byNodeID, nodeID)

	kept := w.ordered[:0:0]
	for _, p := range w.ordered {
		if p.NodeID != nodeID {
			kept = append(kept, p)
		}
	}
	w.ordered = kept
}

// Contains reports whether nodeID is in the whitelist.
func (w *Whitelist) Contains(nodeID string) bool {
	w.l.RLock()
	defer w.l.RUnlock()
	_, ok := w.byNodeID[nodeID]
	return ok
}

// Get returns the Peer for nodeID, if present.
func (w *Whitelist) Get(nodeID string) (*Peer, bool) {
	w.l.RLock()
	defer w.l.RUnlock()
	p, ok := w.byNodeID[nodeID]
	return p, ok
}

// Len returns the number of whitelisted peers.
func (w *Whitelist) Len() int {
	w.l.RLock()
	defer w.l.RUnlock()
	return len(w.ordered)
}

// Peers returns a snapshot of the whitelist in insertion order.
func (w *Whitelist) Peers() []*Peer {
	w.l.RLock()
	defer w.l.RUnlock()
	out := make([]*Peer, len(w.ordered))
	copy(out, w.ordered)
	return out
}

// LeaderAt computes the leader NodeId for a given chain height and slot,
// using the deterministic schedule leader_index = (height + slot) mod n. It
// returns ok=false if the whitelist is empty: no leader, no block
// production.
func (w *Whitelist) LeaderAt(height, slot uint64) (peer *Peer, ok bool) {
	w.l.RLock()
	defer w.l.RUnlock()

	n := len(w.ordered)
	if n == 0 {
		return nil, false
	}

	idx := (height + slot) % uint64(n)
	return w.ordered[idx], true
}

// Quorum returns the number of approvals required to commit a proposed
// block: max(MinVotes, ceil(|whitelist| / 2)).
func (w *Whitelist) Quorum() int {
	w.l.RLock()
	n := len(w.ordered)
	minVotes := w.MinVotes
	w.l.RUnlock()

	half := int(math.Ceil(float64(n) / 2))
	if minVotes > half {
		return minVotes
	}
	return half
}

// Hash identifies the whitelist's current membership, by hashing NodeIds in
// insertion order. Two peers with the same membership in the same order get
// the same hash; catch-up sync does not compare it.
func (w *Whitelist) Hash() string {
	w.l.RLock()
	defer w.l.RUnlock()

	h := []byte{}
	for _, p := range w.ordered {
		h = append(h, []byte(p.NodeID)...)
	}
	return crypto.SHA256Hex(h)
}
