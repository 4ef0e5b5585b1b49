// Package ledger implements the permissioned, leader-rotated replicated
// ledger: the mempool, the hash-chained block structure, the
// propose/vote/commit consensus state machine, and catch-up
// synchronization between peers.
package ledger
