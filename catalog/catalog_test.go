package catalog

import "testing"

func TestShareAndStopShare(t *testing.T) {
	c := NewCatalog()

	entry := c.Share("report.pdf", []byte("pdf-bytes"), "application/pdf")

	if entry.Size != int64(len("pdf-bytes")) {
		t.Fatalf("unexpected size %d", entry.Size)
	}

	if _, ok := c.LocalEntry(entry.ID); !ok {
		t.Fatalf("expected shared entry to be retrievable")
	}

	removed, ok := c.StopShare(entry.ID)
	if !ok || removed.ID != entry.ID {
		t.Fatalf("expected StopShare to return the removed entry")
	}

	if _, ok := c.LocalEntry(entry.ID); ok {
		t.Fatalf("expected entry to be gone after StopShare")
	}
}

func TestOnOfferIgnoresDuplicates(t *testing.T) {
	c := NewCatalog()

	offer, isNew := c.OnOffer("f1", "a.txt", 10, "text/plain", "deadbeef", "peer-a")
	if !isNew || offer == nil {
		t.Fatalf("expected first offer to be new")
	}

	_, isNew = c.OnOffer("f1", "a.txt", 10, "text/plain", "deadbeef", "peer-b")
	if isNew {
		t.Fatalf("expected duplicate offer id to be ignored")
	}

	// first advertiser still wins since duplicates are ignored outright
	got, ok := c.Offer("f1")
	if !ok || got.Advertiser != "peer-a" {
		t.Fatalf("expected original advertiser to be retained")
	}
}

func TestOnPeerDisconnectDropsOffers(t *testing.T) {
	c := NewCatalog()

	c.OnOffer("f1", "a.txt", 1, "text/plain", "h1", "peer-a")
	c.OnOffer("f2", "b.txt", 2, "text/plain", "h2", "peer-a")
	c.OnOffer("f3", "c.txt", 3, "text/plain", "h3", "peer-b")

	dropped := c.OnPeerDisconnect("peer-a")
	if len(dropped) != 2 {
		t.Fatalf("expected 2 dropped offers, got %d", len(dropped))
	}

	if _, ok := c.Offer("f1"); ok {
		t.Fatalf("expected f1 to be dropped")
	}
	if _, ok := c.Offer("f3"); !ok {
		t.Fatalf("expected f3 (peer-b's offer) to survive")
	}
}

func TestDownloadConcurrencyCap(t *testing.T) {
	te := NewTransferEngine()

	for i := 0; i < MaxConcurrentDownloads; i++ {
		offer := &FileOffer{ID: string(rune('a' + i))}
		if err := te.StartDownload(offer); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	overflow := &FileOffer{ID: "overflow"}
	if err := te.StartDownload(overflow); err != ErrTooManyTransfers {
		t.Fatalf("expected ErrTooManyTransfers, got %v", err)
	}
}

func TestChunkReassemblyAndIntegrity(t *testing.T) {
	te := NewTransferEngine()

	content := []byte("the quick brown fox jumps over the lazy dog")
	offer := &FileOffer{ID: "file-1", SHA256Hash: sha256HexFor(content)}

	if err := te.StartDownload(offer); err != nil {
		t.Fatalf("err: %v", err)
	}
	te.OnMetadata(offer.ID, 1, len(content), "peer-a")

	result, err := te.OnChunk(offer.ID, 0, b64(content), offer.SHA256Hash)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !result.Done {
		t.Fatalf("expected single-chunk transfer to complete")
	}
	if string(result.Assembled) != string(content) {
		t.Fatalf("assembled content mismatch")
	}
}

func TestChunkIntegrityFailureDiscardsTransfer(t *testing.T) {
	te := NewTransferEngine()

	content := []byte("authentic content")
	offer := &FileOffer{ID: "file-2", SHA256Hash: "not-the-real-hash"}

	te.StartDownload(offer)
	te.OnMetadata(offer.ID, 1, len(content), "peer-a")

	_, err := te.OnChunk(offer.ID, 0, b64(content), offer.SHA256Hash)
	if err != ErrIntegrityFailure {
		t.Fatalf("expected ErrIntegrityFailure, got %v", err)
	}

	if te.ActiveDownloads() != 0 {
		t.Fatalf("expected transfer to be discarded after integrity failure")
	}
}

func TestDuplicateChunkIsIdempotent(t *testing.T) {
	te := NewTransferEngine()

	content := []byte("ab")
	offer := &FileOffer{ID: "file-3", SHA256Hash: sha256HexFor(content)}

	te.StartDownload(offer)
	te.OnMetadata(offer.ID, 2, 1, "peer-a")

	te.OnChunk(offer.ID, 0, b64([]byte("a")), offer.SHA256Hash)
	result, err := te.OnChunk(offer.ID, 0, b64([]byte("a")), offer.SHA256Hash)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if result.Received != 1 {
		t.Fatalf("expected duplicate chunk to not double-count, got %d", result.Received)
	}
}

func TestUploadPerPeerCap(t *testing.T) {
	te := NewTransferEngine()

	for i := 0; i < MaxConcurrentUploadsPerPeer; i++ {
		if !te.BeginUpload("peer-a") {
			t.Fatalf("expected upload %d to be admitted", i)
		}
	}

	if te.BeginUpload("peer-a") {
		t.Fatalf("expected the 9th concurrent upload to the same peer to be rejected")
	}

	te.EndUpload("peer-a")
	if !te.BeginUpload("peer-a") {
		t.Fatalf("expected a freed slot to admit another upload")
	}
}

func TestSendFileChunking(t *testing.T) {
	content := make([]byte, 25)
	for i := range content {
		content[i] = byte(i)
	}

	var chunks [][]byte
	var lastFlags []bool
	total := SendFile(content, 10, func(index int, dataB64 string, isLast bool) {
		data, err := decodeB64(dataB64)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		chunks = append(chunks, data)
		lastFlags = append(lastFlags, isLast)
	})

	if total != 3 {
		t.Fatalf("expected 3 chunks for 25 bytes at chunk size 10, got %d", total)
	}
	if len(chunks[2]) != 5 {
		t.Fatalf("expected final chunk to hold the 5 remaining bytes, got %d", len(chunks[2]))
	}
	for i, isLast := range lastFlags {
		if isLast != (i == total-1) {
			t.Fatalf("expected isLast only on the final chunk, got %v at index %d", isLast, i)
		}
	}
}
