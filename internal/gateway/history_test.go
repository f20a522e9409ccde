package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"signal-enginev1/internal/model"
)

func TestHistory_Recent(t *testing.T) {
	h := NewHistory(100)

	for i := 0; i < 10; i++ {
		h.Push([]byte{byte('a' + i)})
	}

	got := h.Recent(5)
	if len(got) != 5 {
		t.Fatalf("Recent(5): expected 5, got %d", len(got))
	}
	// Newest 5 entries, oldest first: f g h i j
	for i, e := range got {
		expected := byte('f' + i)
		if e[0] != expected {
			t.Errorf("entry[%d] = %q, want %q", i, e[0], expected)
		}
	}
}

func TestHistory_Wraparound(t *testing.T) {
	h := NewHistory(5) // tiny buffer

	// Push 8 entries — first 3 should be evicted
	for i := 0; i < 8; i++ {
		h.Push([]byte{byte('a' + i)})
	}

	if h.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", h.Len())
	}

	got := h.Recent(0)
	if len(got) != 5 {
		t.Fatalf("Recent(0): expected 5, got %d", len(got))
	}
	if got[0][0] != 'd' {
		t.Errorf("oldest entry = %q, want %q", got[0][0], byte('d'))
	}
	if got[4][0] != 'h' {
		t.Errorf("newest entry = %q, want %q", got[4][0], byte('h'))
	}
}

func TestHistory_Empty(t *testing.T) {
	h := NewHistory(10)
	if got := h.Recent(100); len(got) != 0 {
		t.Fatalf("empty history Recent should return 0, got %d", len(got))
	}
}

func TestHistory_PushCopiesEnvelope(t *testing.T) {
	h := NewHistory(4)
	buf := []byte("original")
	h.Push(buf)
	copy(buf, "mutated!")

	got := h.Recent(1)
	if string(got[0]) != "original" {
		t.Fatalf("stored envelope = %q, want %q", got[0], "original")
	}
}

func TestHub_DisconnectDuringInitialReplay(t *testing.T) {
	hub := NewHub()
	hub.PublishSignal(context.Background(), &model.Signal{ID: "sig-1", Type: "buy"})

	c := &Client{send: make(chan []byte, 1), hub: hub}
	hub.mu.Lock()
	hub.clients[c] = true
	hub.mu.Unlock()

	hub.RemoveClient(c)

	// The send channel is closed; replay must notice and bail instead of
	// panicking.
	c.sendInitialState()

	if _, open := <-c.send; open {
		t.Fatal("no replay expected after disconnect")
	}
}

func TestHub_RecentEventsAfterPublish(t *testing.T) {
	hub := NewHub()

	sig := &model.Signal{ID: "sig-1", Type: "buy", Pair: "BTC/USD", Confidence: 80}
	hub.PublishSignal(context.Background(), sig)

	events := hub.RecentEvents(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	var envelope struct {
		Type string       `json:"type"`
		Seq  int64        `json:"seq"`
		Data model.Signal `json:"data"`
	}
	if err := json.Unmarshal(events[0], &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Type != "signal.emitted" {
		t.Errorf("type = %q, want signal.emitted", envelope.Type)
	}
	if envelope.Seq != 1 {
		t.Errorf("seq = %d, want 1", envelope.Seq)
	}
	if envelope.Data.ID != "sig-1" {
		t.Errorf("data id = %q, want sig-1", envelope.Data.ID)
	}
}
