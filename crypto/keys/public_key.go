package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"fmt"
)

// ToPublicKey is a wrapper around elliptic.Unmarshal which uses Curve() to
// determine which elliptic.Curve to use. pub is expected to be the
// uncompressed form of a point on the curve, as returned by FromPublicKey.
func ToPublicKey(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	if x == nil {
		return nil
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}
}

// FromPublicKey is a wrapper around elliptic.Marshal which uses Curve() to
// determine which elliptic.Curve to use. It outputs the point in
// uncompressed form.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PublicKeyHex returns the lowercase hex representation of the uncompressed
// form of the public key, as exchanged during the rendezvous offer/answer
// handshake.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return hex.EncodeToString(FromPublicKey(pub))
}

// PublicKeyFromHex parses the hex representation produced by PublicKeyHex.
func PublicKeyFromHex(s string) (*ecdsa.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding public key hex: %w", err)
	}

	pub := ToPublicKey(raw)
	if pub == nil {
		return nil, fmt.Errorf("invalid public key encoding")
	}

	return pub, nil
}
