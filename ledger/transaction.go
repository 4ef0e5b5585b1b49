package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meshledger/meshledger/crypto"
)

// Transaction is a signed (or, for system-internal use, unsigned) transfer
// recorded by the ledger. The signature covers the canonical serialization
// of {from, to, data, amount, timestamp}.
type Transaction struct {
	ID          string  `json:"id"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Data        []byte  `json:"data"`
	Amount      float64 `json:"amount"`
	TimestampMs int64   `json:"timestamp_ms"`
	Signature   string  `json:"signature,omitempty"`
}

// NewTransaction builds an unsigned transaction with a fresh UUIDv4 id and
// the current timestamp.
func NewTransaction(from, to string, data []byte, amount float64) *Transaction {
	return &Transaction{
		ID:          uuid.New().String(),
		From:        from,
		To:          to,
		Data:        data,
		Amount:      amount,
		TimestampMs: time.Now().UnixMilli(),
	}
}

// Sign signs the transaction's canonical payload with kp, setting
// Signature. It is the caller's responsibility to only sign transactions
// where From == kp.ID (see submit_transaction in §4.6).
func (tx *Transaction) Sign(kp *crypto.KeyPair) error {
	payload, err := tx.canonicalBytes()
	if err != nil {
		return err
	}

	sig, err := kp.Sign(crypto.SHA256(payload))
	if err != nil {
		return err
	}

	tx.Signature = sig
	return nil
}

// VerifySignature reports whether Signature verifies against fromPubKeyHex
// over the transaction's canonical payload. It returns false, not an
// error, for an absent signature — callers distinguish "present but
// invalid" from "absent" via HasSignature.
func (tx *Transaction) VerifySignature(fromPubKeyHex string) bool {
	if tx.Signature == "" {
		return false
	}

	payload, err := tx.canonicalBytes()
	if err != nil {
		return false
	}

	return crypto.Verify(fromPubKeyHex, crypto.SHA256(payload), tx.Signature)
}

// HasSignature reports whether a signature is present, independent of its
// validity.
func (tx *Transaction) HasSignature() bool {
	return tx.Signature != ""
}

// ValidateShape checks the structural validity rules from §4.6: id, from,
// and timestamp present. It does not check signature validity against a
// specific key, since that requires the whitelist's pubkey binding — see
// VerifySignature and its callers for the full check.
func (tx *Transaction) ValidateShape() error {
	if tx.ID == "" {
		return fmt.Errorf("transaction missing id")
	}
	if tx.From == "" {
		return fmt.Errorf("transaction missing from")
	}
	if tx.TimestampMs == 0 {
		return fmt.Errorf("transaction missing timestamp")
	}
	return nil
}
