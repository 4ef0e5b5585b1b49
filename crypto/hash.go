package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// SHA256Hex returns the lowercase hex-encoded SHA256 digest of data. The wire
// protocol uses this form for file hashes and block/transaction identifiers.
func SHA256Hex(data []byte) string {
	return hex.EncodeToString(SHA256(data))
}
