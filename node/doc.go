// Package node wires the peer-connection fabric, file catalog, and ledger
// packages into a single running node. A Node owns exactly one goroutine
// that mutates its state — registry, catalog, ledger, and timer callbacks
// all communicate into that loop over channels rather than touching state
// directly, the concrete rendering of the single-actor scheduling model.
package node
