package catalog

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meshledger/meshledger/crypto"
)

// Catalog tracks locally shared files and remotely offered ones. It holds
// no network code itself — the node wires Share/StopShare/OnOffer/
// OnPeerDisconnect to broadcasts and events.
type Catalog struct {
	l sync.Mutex

	local  map[string]*FileEntry
	offers map[string]*FileOffer
	// byAdvertiser indexes offer ids by advertiser, so a disconnect can
	// drop every offer that peer made without a linear scan.
	byAdvertiser map[string]map[string]bool
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		local:        make(map[string]*FileEntry),
		offers:       make(map[string]*FileOffer),
		byAdvertiser: make(map[string]map[string]bool),
	}
}

// Share registers a locally shared file, computing its SHA-256 hash and
// assigning it a UUIDv4 id.
func (c *Catalog) Share(name string, content []byte, mimeType string) *FileEntry {
	entry := &FileEntry{
		ID:         uuid.New().String(),
		Name:       name,
		Size:       int64(len(content)),
		MimeType:   mimeType,
		SHA256Hash: crypto.SHA256Hex(content),
		SharedAt:   time.Now(),
	}

	c.l.Lock()
	c.local[entry.ID] = entry
	c.l.Unlock()

	return entry
}

// StopShare removes a locally shared file, returning it if it existed.
func (c *Catalog) StopShare(fileID string) (*FileEntry, bool) {
	c.l.Lock()
	defer c.l.Unlock()

	entry, ok := c.local[fileID]
	if ok {
		delete(c.local, fileID)
	}
	return entry, ok
}

// LocalEntry returns a locally shared file by id.
func (c *Catalog) LocalEntry(fileID string) (*FileEntry, bool) {
	c.l.Lock()
	defer c.l.Unlock()
	e, ok := c.local[fileID]
	return e, ok
}

// LocalEntries returns every locally shared file, for re-sending the full
// catalog to a newly opened peer session.
func (c *Catalog) LocalEntries() []*FileEntry {
	c.l.Lock()
	defer c.l.Unlock()

	out := make([]*FileEntry, 0, len(c.local))
	for _, e := range c.local {
		out = append(out, e)
	}
	return out
}

// IncrementDownloadCount bumps the download counter for a locally shared
// file that just finished being served, if it is still shared.
func (c *Catalog) IncrementDownloadCount(fileID string) {
	c.l.Lock()
	defer c.l.Unlock()
	if e, ok := c.local[fileID]; ok {
		e.DownloadCount++
	}
}

// OnOffer records a remote file-offer. It returns (offer, true) if the
// offer is new and should be surfaced as file-available, or (nil, false)
// if it is a duplicate of a known id (per §4.5, duplicate offers are
// ignored).
func (c *Catalog) OnOffer(fileID, name string, size int64, mimeType, sha256Hash, advertiser string) (*FileOffer, bool) {
	c.l.Lock()
	defer c.l.Unlock()

	if _, known := c.offers[fileID]; known {
		return nil, false
	}

	offer := &FileOffer{
		ID:         fileID,
		Name:       name,
		Size:       size,
		MimeType:   mimeType,
		SHA256Hash: sha256Hash,
		Advertiser: advertiser,
		SeenAt:     time.Now(),
	}
	c.offers[fileID] = offer

	if c.byAdvertiser[advertiser] == nil {
		c.byAdvertiser[advertiser] = make(map[string]bool)
	}
	c.byAdvertiser[advertiser][fileID] = true

	return offer, true
}

// Offers returns every known remote file offer, for reporting the full
// catalog (local and remote) to the status API.
func (c *Catalog) Offers() []*FileOffer {
	c.l.Lock()
	defer c.l.Unlock()

	out := make([]*FileOffer, 0, len(c.offers))
	for _, o := range c.offers {
		out = append(out, o)
	}
	return out
}

// Offer returns a known remote file offer by id.
func (c *Catalog) Offer(fileID string) (*FileOffer, bool) {
	c.l.Lock()
	defer c.l.Unlock()
	o, ok := c.offers[fileID]
	return o, ok
}

// RemoveOffer drops a single offer (on explicit file-unavailable).
func (c *Catalog) RemoveOffer(fileID string) (*FileOffer, bool) {
	c.l.Lock()
	defer c.l.Unlock()

	offer, ok := c.offers[fileID]
	if !ok {
		return nil, false
	}
	delete(c.offers, fileID)
	delete(c.byAdvertiser[offer.Advertiser], fileID)
	return offer, true
}

// OnPeerDisconnect drops every offer the disconnected peer advertised and
// returns them, so the caller can emit file-unavailable for each.
func (c *Catalog) OnPeerDisconnect(peerID string) []*FileOffer {
	c.l.Lock()
	defer c.l.Unlock()

	ids := c.byAdvertiser[peerID]
	if len(ids) == 0 {
		return nil
	}

	dropped := make([]*FileOffer, 0, len(ids))
	for id := range ids {
		if offer, ok := c.offers[id]; ok {
			dropped = append(dropped, offer)
			delete(c.offers, id)
		}
	}
	delete(c.byAdvertiser, peerID)

	return dropped
}
