package crypto

import (
	"crypto/ecdsa"

	"github.com/meshledger/meshledger/crypto/keys"
)

// NodeID is a 16-character opaque identifier bound to a node's public key. It
// is derived once, at key generation time, and never changes for the
// lifetime of the underlying key pair.
//
// Open Question 1 in the originating design notes left the NodeId/public-key
// binding unspecified. This package resolves it: NodeId is the first 16
// hex characters of SHA256(pubkey), so that any peer holding the raw public
// key can recompute and verify the binding without a separate handshake
// message.
type NodeID string

// DeriveNodeID computes the NodeID bound to a public key.
func DeriveNodeID(pub *ecdsa.PublicKey) NodeID {
	raw := keys.FromPublicKey(pub)
	return NodeID(SHA256Hex(raw)[:16])
}

// VerifyBinding reports whether id is the NodeID bound to pub.
func VerifyBinding(id NodeID, pub *ecdsa.PublicKey) bool {
	return DeriveNodeID(pub) == id
}

// KeyPair bundles a node's private key together with its derived identity,
// mirroring the role of validator identity in the teacher's node package but
// scoped to a single peer-to-peer identity rather than a consensus seat.
type KeyPair struct {
	Private *ecdsa.PrivateKey
	ID      NodeID
}

// GenerateKeyPair creates a new secp256k1 key pair and derives its NodeID.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		Private: priv,
		ID:      DeriveNodeID(&priv.PublicKey),
	}, nil
}

// Sign signs data (typically the SHA-256 digest of a canonical payload) with
// the key pair's private key.
func (kp *KeyPair) Sign(data []byte) (string, error) {
	r, s, err := keys.Sign(kp.Private, data)
	if err != nil {
		return "", err
	}
	return keys.EncodeSignature(r, s), nil
}

// PublicKeyHex returns the hex-encoded uncompressed public key, exchanged
// during the rendezvous offer/answer handshake so peers can bind it to a
// claimed NodeID.
func (kp *KeyPair) PublicKeyHex() string {
	return keys.PublicKeyHex(&kp.Private.PublicKey)
}

// Verify verifies sig over data against the public key encoded in pubKeyHex.
func Verify(pubKeyHex string, data []byte, sig string) bool {
	pub, err := keys.PublicKeyFromHex(pubKeyHex)
	if err != nil || pub == nil {
		return false
	}

	r, s, err := keys.DecodeSignature(sig)
	if err != nil {
		return false
	}

	return keys.Verify(pub, data, r, s)
}
