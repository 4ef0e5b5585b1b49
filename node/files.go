package node

import (
	"github.com/meshledger/meshledger/catalog"
	"github.com/meshledger/meshledger/events"
	"github.com/meshledger/meshledger/net"
)

func (n *Node) onFileOffer(peerID string, frame *net.Frame) {
	var body net.FileOfferBody
	if err := frame.Decode(&body); err != nil {
		return
	}
	if _, isNew := n.catalog.OnOffer(body.FileID, body.Name, body.Size, body.MimeType, body.SHA256Hash, peerID); isNew {
		n.events.Emit(events.FileAvailable, body.FileID)
	}
}

func (n *Node) onFileUnavailable(frame *net.Frame) {
	var body net.FileUnavailableBody
	if err := frame.Decode(&body); err != nil {
		return
	}
	n.catalog.RemoveOffer(body.FileID)
}

func (n *Node) onFileRequest(peerID string, frame *net.Frame) {
	var body net.FileRequestBody
	if err := frame.Decode(&body); err != nil {
		return
	}

	entry, ok := n.catalog.LocalEntry(body.FileID)
	if !ok {
		n.registry.Send(peerID, net.TypeFileError, &net.FileErrorBody{FileID: body.FileID, Reason: "NotFound"})
		return
	}

	if !n.transfers.BeginUpload(peerID) {
		n.registry.Send(peerID, net.TypeFileError, &net.FileErrorBody{FileID: body.FileID, Reason: "TooManyRequests"})
		return
	}

	content := n.content[body.FileID]
	fileID := body.FileID

	n.registry.Send(peerID, net.TypeFileMetadata, &net.FileMetadataBody{
		FileID:      entry.ID,
		Name:        entry.Name,
		Size:        entry.Size,
		MimeType:    entry.MimeType,
		TotalChunks: chunkCount(len(content), catalog.DefaultChunkSize),
		ChunkSize:   catalog.DefaultChunkSize,
	})

	n.goFunc(func() {
		catalog.SendFile(content, catalog.DefaultChunkSize, func(chunkIndex int, dataB64 string, isLast bool) {
			n.do(func() {
				n.registry.Send(peerID, net.TypeFileChunk, &net.FileChunkBody{
					FileID:       fileID,
					ChunkIndex:   chunkIndex,
					ChunkDataB64: dataB64,
					IsLast:       isLast,
				})
			})
		})
		n.do(func() {
			n.transfers.EndUpload(peerID)
			n.catalog.IncrementDownloadCount(fileID)
		})
	})
}

func chunkCount(size, chunkSize int) int {
	if size == 0 {
		return 1
	}
	return (size + chunkSize - 1) / chunkSize
}

func (n *Node) onFileMetadata(peerID string, frame *net.Frame) {
	var body net.FileMetadataBody
	if err := frame.Decode(&body); err != nil {
		return
	}
	n.transfers.OnMetadata(body.FileID, body.TotalChunks, body.ChunkSize, peerID)
}

func (n *Node) onFileChunk(frame *net.Frame) {
	var body net.FileChunkBody
	if err := frame.Decode(&body); err != nil {
		return
	}

	offer, ok := n.catalog.Offer(body.FileID)
	if !ok {
		return
	}

	result, err := n.transfers.OnChunk(body.FileID, body.ChunkIndex, body.ChunkDataB64, offer.SHA256Hash)
	if err != nil {
		n.logger.WithError(err).WithField("file_id", body.FileID).Warn("transfer failed")
		return
	}
	if result == nil {
		return
	}

	n.events.Emit(events.DownloadProgress, map[string]interface{}{
		"file_id":  body.FileID,
		"received": result.Received,
		"total":    result.Total,
	})

	if result.Done {
		n.content[body.FileID] = result.Assembled
		n.events.Emit(events.DownloadCompleted, body.FileID)
	}
}

func (n *Node) onFileError(frame *net.Frame) {
	var body net.FileErrorBody
	if err := frame.Decode(&body); err != nil {
		return
	}
	n.logger.WithField("file_id", body.FileID).WithField("reason", body.Reason).Warn("transfer rejected by peer")
	n.transfers.Cancel(body.FileID)
}
