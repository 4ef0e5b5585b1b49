// Package keys implements the public key cryptography used to identify and
// authenticate nodes.
//
// Every node owns a cryptographic key-pair that it uses to sign and verify
// messages. The private key is secret; the public key is published (via the
// rendezvous handshake) so that other nodes can verify signatures and bind
// it to the signer's NodeID.
//
// Keys use elliptic curve cryptography (ECDSA) with the secp256k1 curve, the
// same curve used by Bitcoin and Ethereum.
package keys
