package catalog

import (
	"encoding/base64"

	"github.com/meshledger/meshledger/crypto"
)

func sha256HexFor(data []byte) string {
	return crypto.SHA256Hex(data)
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func decodeB64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
