package ledger

import "sync"

// Mempool holds pending transactions keyed by id. Entries are removed when
// their transaction is committed in a block.
type Mempool struct {
	l    sync.Mutex
	byID map[string]*Transaction
	// order preserves insertion order so block production can take "the
	// first N received" transactions, per §4.6.
	order []string
}

// NewMempool creates an empty Mempool.
func NewMempool() *Mempool {
	return &Mempool{byID: make(map[string]*Transaction)}
}

// Add inserts tx if its id is not already present. It returns false if the
// transaction was already known (a duplicate receive, not an error).
func (m *Mempool) Add(tx *Transaction) bool {
	m.l.Lock()
	defer m.l.Unlock()

	if _, ok := m.byID[tx.ID]; ok {
		return false
	}

	m.byID[tx.ID] = tx
	m.order = append(m.order, tx.ID)
	return true
}

// Contains reports whether a transaction id is already in the mempool.
func (m *Mempool) Contains(id string) bool {
	m.l.Lock()
	defer m.l.Unlock()
	_, ok := m.byID[id]
	return ok
}

// Take returns up to n transactions in first-received order, without
// removing them — removal happens only on commit, via Remove.
func (m *Mempool) Take(n int) []*Transaction {
	m.l.Lock()
	defer m.l.Unlock()

	if n > len(m.order) {
		n = len(m.order)
	}

	out := make([]*Transaction, 0, n)
	for _, id := range m.order[:n] {
		out = append(out, m.byID[id])
	}
	return out
}

// Remove purges committed transaction ids from the mempool.
func (m *Mempool) Remove(ids ...string) {
	m.l.Lock()
	defer m.l.Unlock()

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
		delete(m.byID, id)
	}

	kept := m.order[:0:0]
	for _, id := range m.order {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	m.order = kept
}

// Len returns the number of pending transactions.
func (m *Mempool) Len() int {
	m.l.Lock()
	defer m.l.Unlock()
	return len(m.order)
}
