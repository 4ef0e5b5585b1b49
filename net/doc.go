// Package net implements the peer-connection fabric: the rendezvous
// signaling client, per-peer framed sessions with heartbeat and liveness
// detection, and the registry that owns sessions and performs unicast and
// broadcast send.
package net
