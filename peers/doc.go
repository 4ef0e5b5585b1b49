// Package peers implements the whitelist of NodeIds authorized to lead and
// vote in the ledger's consensus, and its on-disk persistence.
//
// A whitelist entry binds a NodeId to the public key used to verify that
// peer's signatures; a NodeId alone cannot verify anything. The whitelist is
// administered locally (AddPeer/RemovePeer) and changes take effect
// immediately for leader scheduling and vote-quorum decisions — there is no
// on-chain governance for membership.
package peers
