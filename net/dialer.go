package net

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// AddressBook maps NodeIds to dialable addresses, populated as the node
// learns peer addresses via the rendezvous offer/answer exchange. The
// Registry only knows peer ids; this is the seam that turns an id into
// something a StreamLayer can Dial.
type AddressBook struct {
	l         sync.RWMutex
	addresses map[string]string
}

// NewAddressBook creates an empty AddressBook.
func NewAddressBook() *AddressBook {
	return &AddressBook{addresses: make(map[string]string)}
}

// Set records the dialable address for a peer id.
func (b *AddressBook) Set(peerID, addr string) {
	b.l.Lock()
	defer b.l.Unlock()
	b.addresses[peerID] = addr
}

// Remove forgets a peer's address, e.g. on disconnect.
func (b *AddressBook) Remove(peerID string) {
	b.l.Lock()
	defer b.l.Unlock()
	delete(b.addresses, peerID)
}

// Resolve looks up a peer's dialable address.
func (b *AddressBook) Resolve(peerID string) (string, bool) {
	b.l.RLock()
	defer b.l.RUnlock()
	addr, ok := b.addresses[peerID]
	return addr, ok
}

// streamDialer adapts a StreamLayer + AddressBook into the Registry's
// Dialer interface, which dials by peer id rather than raw address.
type streamDialer struct {
	stream StreamLayer
	book   *AddressBook
}

// NewStreamDialer builds a Dialer that resolves peer ids to addresses via
// book before delegating to stream.
func NewStreamDialer(stream StreamLayer, book *AddressBook) Dialer {
	return &streamDialer{stream: stream, book: book}
}

func (d *streamDialer) Dial(peerID string, timeout time.Duration) (net.Conn, error) {
	addr, ok := d.book.Resolve(peerID)
	if !ok {
		return nil, fmt.Errorf("no known address for peer %s", peerID)
	}
	return d.stream.Dial(addr, timeout)
}
