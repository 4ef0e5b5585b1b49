package peers

import (
	"fmt"

	"github.com/meshledger/meshledger/crypto"
	"github.com/meshledger/meshledger/crypto/keys"
)

// Peer is a whitelist entry: a NodeId bound to the public key used to
// verify that peer's signatures on transactions, block proposals and votes.
type Peer struct {
	NodeID    string `json:"node_id"`
	PubKeyHex string `json:"public_key_hex"`
	Moniker   string `json:"moniker,omitempty"`
}

// NewPeer builds a Peer from a hex-encoded public key, deriving and
// validating its NodeId binding. It returns an error if pubKeyHex does not
// decode to a valid secp256k1 point.
func NewPeer(pubKeyHex, moniker string) (*Peer, error) {
	pub, err := keys.PublicKeyFromHex(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("building peer: %w", err)
	}

	return &Peer{
		NodeID:    string(crypto.DeriveNodeID(pub)),
		PubKeyHex: pubKeyHex,
		Moniker:   moniker,
	}, nil
}
