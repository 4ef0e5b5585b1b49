package keys

import (
	"crypto/elliptic"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

/*
Node identities and signatures are based on elliptic curve cryptography
(ECDSA) using the secp256k1 curve, the same curve used by Bitcoin and
Ethereum.
*/

// Parameters of the secp256k1 curve, used to validate that a private key's D
// value falls within the group order.
var (
	secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
)

// Curve returns the elliptic.Curve implementation used throughout this
// package: btcsuite's Go implementation of secp256k1.
func Curve() elliptic.Curve {
	return btcec.S256()
}
