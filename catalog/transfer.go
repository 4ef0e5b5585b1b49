package catalog

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/meshledger/meshledger/crypto"
)

// ErrTooManyTransfers is returned by StartDownload when the concurrent
// download cap is already reached.
var ErrTooManyTransfers = fmt.Errorf("catalog: too many concurrent transfers")

// ErrIntegrityFailure is returned when a reassembled file's hash does not
// match the offer's advertised hash.
var ErrIntegrityFailure = fmt.Errorf("catalog: reassembled file failed integrity check")

// TransferEngine schedules downloads under MaxConcurrentDownloads and
// serves uploads under MaxConcurrentUploadsPerPeer. It holds no network
// code itself: callers drive it with inbound frame fields and act on its
// return values (what chunk to send next, whether a download completed).
type TransferEngine struct {
	l sync.Mutex

	downloads map[string]*TransferState // fileID -> state
	uploads   map[string]int            // peerID -> concurrent upload count
}

// NewTransferEngine creates an empty TransferEngine.
func NewTransferEngine() *TransferEngine {
	return &TransferEngine{
		downloads: make(map[string]*TransferState),
		uploads:   make(map[string]int),
	}
}

// ActiveDownloads returns the number of downloads currently in flight.
func (t *TransferEngine) ActiveDownloads() int {
	t.l.Lock()
	defer t.l.Unlock()
	return len(t.downloads)
}

// StartDownload begins tracking a download for a known offer, enforcing
// the 3-concurrent-download cap.
func (t *TransferEngine) StartDownload(offer *FileOffer) error {
	t.l.Lock()
	defer t.l.Unlock()

	if _, exists := t.downloads[offer.ID]; exists {
		return nil
	}

	if len(t.downloads) >= MaxConcurrentDownloads {
		return ErrTooManyTransfers
	}

	// total_chunks/chunk_size are not known until file-metadata arrives;
	// the transfer is provisionally tracked so a second download() call
	// for the same file id before metadata arrives is still a no-op.
	t.downloads[offer.ID] = nil
	return nil
}

// OnMetadata records the expected shape of a download once file-metadata
// arrives, replacing the provisional placeholder from StartDownload.
func (t *TransferEngine) OnMetadata(fileID string, totalChunks, chunkSize int, sourcePeer string) {
	t.l.Lock()
	defer t.l.Unlock()

	if _, tracked := t.downloads[fileID]; !tracked {
		return
	}
	t.downloads[fileID] = NewTransferState(fileID, totalChunks, chunkSize, sourcePeer)
}

// ChunkResult reports the outcome of applying one received chunk.
type ChunkResult struct {
	Received int
	Total    int
	Done     bool
	Assembled []byte
}

// OnChunk applies a received chunk to its TransferState. Duplicate chunks
// (same index) are idempotent; chunks for an unknown or already-completed
// transfer are ignored (nil, nil). On the final chunk it reassembles and
// verifies the file's SHA-256 against expectedHash, returning
// ErrIntegrityFailure (and discarding the transfer) on mismatch.
func (t *TransferEngine) OnChunk(fileID string, chunkIndex int, chunkDataB64 string, expectedHash string) (*ChunkResult, error) {
	t.l.Lock()

	state, tracked := t.downloads[fileID]
	if !tracked || state == nil {
		t.l.Unlock()
		return nil, nil
	}

	if _, dup := state.ChunksReceived[chunkIndex]; dup {
		res := &ChunkResult{Received: len(state.ChunksReceived), Total: state.TotalChunks}
		t.l.Unlock()
		return res, nil
	}

	data, err := base64.StdEncoding.DecodeString(chunkDataB64)
	if err != nil {
		t.l.Unlock()
		return nil, fmt.Errorf("decoding chunk %d of %s: %w", chunkIndex, fileID, err)
	}
	state.ChunksReceived[chunkIndex] = data

	if !state.Complete() {
		res := &ChunkResult{Received: len(state.ChunksReceived), Total: state.TotalChunks}
		t.l.Unlock()
		return res, nil
	}

	assembled := state.Assemble()
	delete(t.downloads, fileID)
	t.l.Unlock()

	if crypto.SHA256Hex(assembled) != expectedHash {
		return nil, ErrIntegrityFailure
	}

	return &ChunkResult{
		Received:  state.TotalChunks,
		Total:     state.TotalChunks,
		Done:      true,
		Assembled: assembled,
	}, nil
}

// Cancel drops a download's TransferState, discarding any chunks received
// so far. Subsequent chunks for fileID are ignored.
func (t *TransferEngine) Cancel(fileID string) {
	t.l.Lock()
	defer t.l.Unlock()
	delete(t.downloads, fileID)
}

// OnSourceDisconnect drops every download sourced from peerID and returns
// their file ids, so the caller can surface DownloadFailed{SourceLost} for
// each.
func (t *TransferEngine) OnSourceDisconnect(peerID string) []string {
	t.l.Lock()
	defer t.l.Unlock()

	var lost []string
	for fileID, state := range t.downloads {
		if state != nil && state.SourcePeer == peerID {
			lost = append(lost, fileID)
			delete(t.downloads, fileID)
		}
	}
	return lost
}

// BeginUpload reserves an upload slot for peerID, enforcing the per-peer
// cap. It returns false if the peer already has MaxConcurrentUploadsPerPeer
// uploads in flight, in which case the caller responds with
// file-error{reason:"TooManyRequests"} instead of queuing.
func (t *TransferEngine) BeginUpload(peerID string) bool {
	t.l.Lock()
	defer t.l.Unlock()

	if t.uploads[peerID] >= MaxConcurrentUploadsPerPeer {
		return false
	}
	t.uploads[peerID]++
	return true
}

// EndUpload releases an upload slot for peerID.
func (t *TransferEngine) EndUpload(peerID string) {
	t.l.Lock()
	defer t.l.Unlock()

	if t.uploads[peerID] > 0 {
		t.uploads[peerID]--
	}
	if t.uploads[peerID] == 0 {
		delete(t.uploads, peerID)
	}
}

// ChunkSender delivers one outbound chunk frame; the node supplies this as
// a thin wrapper over Registry.Send.
type ChunkSender func(chunkIndex int, dataB64 string, isLast bool)

// SendFile streams content as base64 chunks via send, yielding for
// yieldDuration after every chunksPerYield chunks to relieve backpressure,
// per §4.5.
func SendFile(content []byte, chunkSize int, send ChunkSender) int {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	total := (len(content) + chunkSize - 1) / chunkSize
	if total == 0 {
		total = 1
	}

	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(content) {
			end = len(content)
		}

		isLast := i == total-1
		send(i, base64.StdEncoding.EncodeToString(content[start:end]), isLast)

		if (i+1)%chunksPerYield == 0 && !isLast {
			time.Sleep(yieldDuration)
		}
	}

	return total
}
