package net

import "encoding/json"

// Frame is the envelope every peer-to-peer wire message arrives in. Frames
// self-describe via Type instead of the single-byte RPC-type prefix the
// teacher's transport layer used, since the underlying channel here already
// preserves message boundaries. Body is decoded lazily: the registry reads
// Type first and only then unmarshals Body into the concrete struct that
// type implies.
type Frame struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// NewFrame marshals body and wraps it with its type tag.
func NewFrame(typ string, body interface{}) (*Frame, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: typ, Body: raw}, nil
}

// Decode unmarshals the frame's body into out.
func (f *Frame) Decode(out interface{}) error {
	return json.Unmarshal(f.Body, out)
}

// Message type constants for the peer-to-peer protocol (§6 of the wire
// protocol table).
const (
	// TypeHello is the first frame an initiator sends after a raw
	// connection is established. It exists because the rendezvous
	// offer/answer exchange binds a NodeId to an address, not to a
	// specific accepted socket; the listener learns which peer just
	// connected from this frame instead.
	TypeHello                  = "hello"
	TypePing                   = "ping"
	TypePong                   = "pong"
	TypeFileOffer              = "file-offer"
	TypeFileUnavailable        = "file-unavailable"
	TypeFileRequest            = "file-request"
	TypeFileMetadata           = "file-metadata"
	TypeFileChunk              = "file-chunk"
	TypeFileError              = "file-error"
	TypeTransaction            = "transaction"
	TypeBlockProposal          = "block-proposal"
	TypeBlockVote              = "block-vote"
	TypeNewBlock               = "new-block"
	TypeBlockchainSyncRequest  = "blockchain-sync-request"
	TypeBlockchainSyncResponse = "blockchain-sync-response"
	TypeLeaderAnnouncement     = "leader-announcement"
)

// HelloBody announces the dialing peer's identity on a freshly opened
// connection, since the accepting side only knows the remote socket, not
// which rendezvous-negotiated peer it belongs to.
type HelloBody struct {
	NodeID string `json:"node_id"`
}

// PingBody carries the sender's timestamp, so the receiving session's pong
// can echo it back for round-trip measurement.
type PingBody struct {
	Timestamp int64 `json:"timestamp"`
}

// PongBody echoes the originating ping's timestamp so the sender can measure
// round-trip liveness.
type PongBody struct {
	Timestamp int64 `json:"timestamp"`
}

// FileOfferBody announces a locally or remotely shared file.
type FileOfferBody struct {
	FileID     string `json:"file_id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	MimeType   string `json:"mime_type"`
	SHA256Hash string `json:"sha256_hash"`
}

// FileUnavailableBody withdraws a prior offer.
type FileUnavailableBody struct {
	FileID string `json:"file_id"`
}

// FileRequestBody asks the advertiser to begin a chunked transfer.
type FileRequestBody struct {
	FileID    string `json:"file_id"`
	Requester string `json:"requester"`
}

// FileMetadataBody precedes a chunk stream, describing how many chunks of
// what size to expect.
type FileMetadataBody struct {
	FileID      string `json:"file_id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mime_type"`
	TotalChunks int    `json:"total_chunks"`
	ChunkSize   int    `json:"chunk_size"`
	// Version is a deliberately unused placeholder reserving room for an
	// alternate binary chunk framing, without committing to one now.
	Version int `json:"version"`
}

// FileChunkBody carries one base64-encoded chunk of a file transfer.
type FileChunkBody struct {
	FileID       string `json:"file_id"`
	ChunkIndex   int    `json:"chunk_index"`
	ChunkDataB64 string `json:"chunk_data_b64"`
	IsLast       bool   `json:"is_last"`
}

// FileErrorBody reports a transfer-level failure to the peer on the other
// end of the stream (e.g. TooManyRequests for the per-peer upload cap).
type FileErrorBody struct {
	FileID string `json:"file_id"`
	Reason string `json:"reason"`
}

// TransactionBody wraps a signed or unsigned transaction for gossip.
type TransactionBody struct {
	Transaction interface{} `json:"transaction"`
}

// BlockProposalBody carries a leader's proposed block to followers.
type BlockProposalBody struct {
	Block interface{} `json:"block"`
}

// BlockVoteBody carries one peer's vote on a proposed block's hash.
type BlockVoteBody struct {
	BlockHash string `json:"block_hash"`
	Voter     string `json:"voter"`
	Approve   bool   `json:"approve"`
	Timestamp int64  `json:"timestamp"`
}

// NewBlockBody announces a committed block.
type NewBlockBody struct {
	Block interface{} `json:"block"`
}

// BlockchainSyncRequestBody asks a peer for every block past fromIndex.
type BlockchainSyncRequestBody struct {
	FromIndex uint64 `json:"from_index"`
	RequestID string `json:"request_id"`
}

// BlockchainSyncResponseBody answers a sync request with the requested
// block range.
type BlockchainSyncResponseBody struct {
	RequestID   string        `json:"request_id"`
	Blocks      []interface{} `json:"blocks"`
	TotalBlocks int           `json:"total_blocks"`
}

// LeaderAnnouncementBody announces the sender believes itself (or another
// peer) is the current leader at a given height.
type LeaderAnnouncementBody struct {
	Leader      string `json:"leader"`
	BlockHeight uint64 `json:"block_height"`
	Timestamp   int64  `json:"timestamp"`
}
