package node

import (
	"encoding/json"
	"time"

	"github.com/meshledger/meshledger/crypto"
	"github.com/meshledger/meshledger/crypto/keys"
	"github.com/meshledger/meshledger/events"
	"github.com/meshledger/meshledger/ledger"
	"github.com/meshledger/meshledger/net"
)

func (n *Node) handleSessionEvent(ev sessionEvent) {
	if ev.opened {
		n.events.Emit(events.PeerConnected, ev.peerID)

		for _, entry := range n.catalog.LocalEntries() {
			n.registry.Send(ev.peerID, net.TypeFileOffer, &net.FileOfferBody{
				FileID:     entry.ID,
				Name:       entry.Name,
				Size:       entry.Size,
				MimeType:   entry.MimeType,
				SHA256Hash: entry.SHA256Hash,
			})
		}

		if n.whitelist.Contains(ev.peerID) {
			peerID := ev.peerID
			n.goFunc(func() {
				select {
				case <-time.After(catchUpSyncDelay):
				case <-n.shutdownCh:
					return
				}
				select {
				case n.syncRequestCh <- peerID:
				case <-n.shutdownCh:
				}
			})
		}
		return
	}

	n.events.Emit(events.PeerDisconnected, ev.peerID)
	n.addressBook.Remove(ev.peerID)
	n.catalog.OnPeerDisconnect(ev.peerID)
	for _, fileID := range n.transfers.OnSourceDisconnect(ev.peerID) {
		n.logger.WithField("file_id", fileID).Debug("download source disconnected")
	}
}

func (n *Node) handleSignalEvent(ev signalEvent) {
	switch ev.kind {
	case "peerlist":
		for _, id := range ev.peerIDs {
			n.greet(id)
		}
	case "joined":
		n.greet(ev.peerID)
	case "left":
		n.registry.Drop(ev.peerID)
		n.addressBook.Remove(ev.peerID)
	case "signal":
		n.handlePeerSignal(ev.sigType, ev.peerID, ev.signal)
	case "error":
		n.logger.WithField("message", ev.message).Warn("rendezvous error")
	}
}

// greet sends an address offer to a newly-seen peer. Both sides of a pair
// send one; the tie-break rule (ShouldInitiate) decides which side's Dial
// actually proceeds.
func (n *Node) greet(peerID string) {
	if peerID == string(n.keyPair.ID) {
		return
	}
	n.rendezvous.SendSignal("offer", peerID, &addressSignal{
		PublicKey: n.keyPair.PublicKeyHex(),
		Address:   n.stream.AdvertiseAddr(),
	})
}

func (n *Node) handlePeerSignal(typ, from string, signal interface{}) {
	raw, err := json.Marshal(signal)
	if err != nil {
		return
	}
	var sig addressSignal
	if err := json.Unmarshal(raw, &sig); err != nil {
		n.logger.WithError(err).Debug("malformed peer signal")
		return
	}

	pub, err := keys.PublicKeyFromHex(sig.PublicKey)
	if err != nil || pub == nil || !crypto.VerifyBinding(crypto.NodeID(from), pub) {
		n.logger.WithField("from", from).Warn("rejecting signal with unbound public key")
		return
	}

	n.pubKeys.Set(from, sig.PublicKey)
	n.addressBook.Set(from, sig.Address)

	switch typ {
	case "offer":
		n.rendezvous.SendSignal("answer", from, &addressSignal{
			PublicKey: n.keyPair.PublicKeyHex(),
			Address:   n.stream.AdvertiseAddr(),
		})
		if net.ShouldInitiate(string(n.keyPair.ID), from) {
			n.registry.Dial(from)
		}
	case "answer":
		if net.ShouldInitiate(string(n.keyPair.ID), from) {
			n.registry.Dial(from)
		}
	}
}

func (n *Node) handleFrame(peerID string, frame *net.Frame) {
	switch frame.Type {
	case net.TypeFileOffer:
		n.onFileOffer(peerID, frame)
	case net.TypeFileUnavailable:
		n.onFileUnavailable(frame)
	case net.TypeFileRequest:
		n.onFileRequest(peerID, frame)
	case net.TypeFileMetadata:
		n.onFileMetadata(peerID, frame)
	case net.TypeFileChunk:
		n.onFileChunk(frame)
	case net.TypeFileError:
		n.onFileError(frame)
	case net.TypeTransaction:
		n.onTransaction(frame)
	case net.TypeBlockProposal:
		n.onBlockProposal(peerID, frame)
	case net.TypeBlockVote:
		n.onBlockVote(frame)
	case net.TypeNewBlock:
		n.onNewBlock(frame)
	case net.TypeLeaderAnnouncement:
		n.onLeaderAnnouncement(peerID, frame)
	case net.TypeBlockchainSyncRequest:
		n.onSyncRequest(peerID, frame)
	case net.TypeBlockchainSyncResponse:
		n.onSyncResponse(frame)
	default:
		n.logger.WithField("type", frame.Type).Debug("unhandled frame type")
	}
}

func (n *Node) onTransaction(frame *net.Frame) {
	var body struct {
		Transaction *ledger.Transaction `json:"transaction"`
	}
	if err := frame.Decode(&body); err != nil || body.Transaction == nil {
		return
	}

	tx := body.Transaction
	if err := tx.ValidateShape(); err != nil {
		n.logger.WithError(err).Debug("dropping malformed transaction")
		return
	}

	if tx.HasSignature() {
		pubKeyHex, ok := n.resolvePubKey(tx.From)
		if !ok || !tx.VerifySignature(pubKeyHex) {
			n.logger.WithField("from", tx.From).Warn("dropping transaction with invalid signature")
			return
		}
	}

	if n.mempool.Add(tx) {
		n.events.Emit(events.TransactionReceived, tx)
	}
}
