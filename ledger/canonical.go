package ledger

import (
	"encoding/json"
	"strconv"
)

// canonicalTransaction mirrors the fixed key order SPEC_FULL.md §6 requires
// for signing and hashing a Transaction: {from, to, data, amount, timestamp}.
// encoding/json preserves struct-field declaration order for object keys,
// so the exact field order below is load-bearing.
type canonicalTransaction struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Data      string `json:"data"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// canonicalAmount formats amount as a fixed-point decimal string with no
// exponent, per the canonical serialization rule.
func canonicalAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func (tx *Transaction) canonicalBytes() ([]byte, error) {
	return json.Marshal(&canonicalTransaction{
		From:      string(tx.From),
		To:        tx.To,
		Data:      string(tx.Data),
		Amount:    canonicalAmount(tx.Amount),
		Timestamp: tx.TimestampMs,
	})
}

// canonicalBlock mirrors the fixed key order for Block signing/hashing:
// {index, timestamp, transactions, previousHash, nonce, author}. Signature
// and hash are excluded, as required.
type canonicalBlock struct {
	Index        uint64                  `json:"index"`
	Timestamp    int64                   `json:"timestamp"`
	Transactions []canonicalTransaction  `json:"transactions"`
	PreviousHash string                  `json:"previousHash"`
	Nonce        uint64                  `json:"nonce"`
	Author       string                  `json:"author"`
}

func (b *Block) canonicalBytes() ([]byte, error) {
	txs := make([]canonicalTransaction, len(b.Transactions))
	for i, tx := range b.Transactions {
		txs[i] = canonicalTransaction{
			From:      string(tx.From),
			To:        tx.To,
			Data:      string(tx.Data),
			Amount:    canonicalAmount(tx.Amount),
			Timestamp: tx.TimestampMs,
		}
	}

	return json.Marshal(&canonicalBlock{
		Index:        b.Index,
		Timestamp:    b.TimestampMs,
		Transactions: txs,
		PreviousHash: b.PreviousHash,
		Nonce:        b.Nonce,
		Author:       string(b.Author),
	})
}
