package crypto

import (
	"crypto/ecdsa"

	"github.com/meshledger/meshledger/crypto/keys"
)

// KeyStore persists a node's private key on disk. A node generates its key
// pair at most once: the identity binding in identity.go makes the NodeID a
// function of the key, so regenerating the key regenerates the NodeID, and a
// running node's identity is therefore stable only for as long as the
// keyfile is stable.
type KeyStore struct {
	rw keys.KeyReaderWriter
}

// NewKeyStore wraps a SimpleKeyfile located at path.
func NewKeyStore(path string) *KeyStore {
	return &KeyStore{rw: keys.NewSimpleKeyfile(path)}
}

// LoadOrCreate reads the existing key at the store's path, or generates and
// persists a new one if none exists yet.
func (ks *KeyStore) LoadOrCreate() (*KeyPair, error) {
	priv, err := ks.rw.ReadKey()
	if err == nil && priv != nil {
		return keyPairFromPrivate(priv), nil
	}

	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	if err := ks.rw.WriteKey(kp.Private); err != nil {
		return nil, err
	}

	return kp, nil
}

func keyPairFromPrivate(priv *ecdsa.PrivateKey) *KeyPair {
	return &KeyPair{
		Private: priv,
		ID:      DeriveNodeID(&priv.PublicKey),
	}
}
