package ledger

import "fmt"

// ApplySyncBatch applies a sequence of blocks received from a peer's
// blockchain-sync-response, validating each against the current tip in
// order. It aborts at the first invalid block rather than applying a
// partial reorg, per §4.6's catch-up synchronization rules, and returns
// every purged transaction id across the blocks it did manage to apply.
func (bc *Blockchain) ApplySyncBatch(blocks []*Block, mempool *Mempool, resolvePubKey ResolvePubKey) (applied int, err error) {
	var purged []string

	for _, b := range blocks {
		ids, verr := bc.AppendBlock(b, resolvePubKey)
		if verr != nil {
			mempool.Remove(purged...)
			return applied, fmt.Errorf("sync batch aborted at block %d: %w", b.Index, verr)
		}
		purged = append(purged, ids...)
		applied++
	}

	mempool.Remove(purged...)

	return applied, nil
}
