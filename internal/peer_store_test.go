package internal

import (
	"errors"
	"testing"
)

func TestPeerStoreRejectsDuplicateAndFull(t *testing.T) {
	store := CreatePeerStore(2)

	if err := store.CreatePeer(100, "WebSocket", 1); err != nil {
		t.Fatalf("create 100: %v", err)
	}
	var dup *DuplicatePeerIdError
	if err := store.CreatePeer(100, "WebSocket", 2); !errors.As(err, &dup) || dup.Id != 100 {
		t.Fatalf("expected DuplicatePeerIdError for 100, got %v", err)
	}
	if err := store.CreatePeer(200, "WebTransport", 3); err != nil {
		t.Fatalf("create 200: %v", err)
	}
	var full *TooManyPeersError
	if err := store.CreatePeer(300, "WebSocket", 4); !errors.As(err, &full) {
		t.Fatalf("expected TooManyPeersError, got %v", err)
	}

	store.RemovePeer(100)
	if err := store.CreatePeer(300, "WebSocket", 5); err != nil {
		t.Fatalf("create after remove: %v", err)
	}
	if store.Count() != 2 {
		t.Fatalf("count = %d, want 2", store.Count())
	}
}

func TestPeerStoreMetadata(t *testing.T) {
	store := CreatePeerStore(0)
	if err := store.CreatePeer(7, "WebSocket", 10); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ts, err := store.GetLastRecvTimestamp(7); err != nil || ts != 10 {
		t.Fatalf("initial recv = %d, %v", ts, err)
	}
	if err := store.SetRecvTimestamp(7, 99); err != nil {
		t.Fatalf("set recv: %v", err)
	}
	if ts, err := store.GetLastRecvTimestamp(7); err != nil || ts != 99 {
		t.Fatalf("last recv = %d, %v", ts, err)
	}
	if name, err := store.GetHandlerName(7); err != nil || name != "WebSocket" {
		t.Fatalf("handler name = %q, %v", name, err)
	}

	var missing *MissingPeerIdError
	if err := store.SetRecvTimestamp(8, 1); !errors.As(err, &missing) {
		t.Fatalf("expected MissingPeerIdError, got %v", err)
	}
	if _, err := store.GetHandlerName(8); !errors.As(err, &missing) || missing.Id != 8 {
		t.Fatalf("expected MissingPeerIdError for 8, got %v", err)
	}

	store.RemovePeer(7)
	if _, err := store.GetLastRecvTimestamp(7); !errors.As(err, &missing) {
		t.Fatalf("removed peer still has metadata")
	}
}
