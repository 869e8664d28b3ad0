package chat

import (
	"context"
	"fmt"
	"testing"
)

func testMsg(content string) Message {
	return NewMessage(KindText, content, Sender{Nickname: "tester", Color: "#2196F3"})
}

func TestMemStoreAppendAndLoad(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	s.AppendMessage(ctx, "room1", testMsg("hello"), 100)
	s.AppendMessage(ctx, "room1", testMsg("world"), 100)

	msgs, err := s.LoadMessages(ctx, "room1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[1].Content != "world" {
		t.Errorf("wrong order: %q, %q", msgs[0].Content, msgs[1].Content)
	}

	other, _ := s.LoadMessages(ctx, "room2")
	if len(other) != 0 {
		t.Errorf("expected 0 messages for room2, got %d", len(other))
	}
}

func TestMemStoreTrimsFromFront(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		s.AppendMessage(ctx, "room1", testMsg(fmt.Sprintf("msg-%d", i)), 3)
	}

	msgs, _ := s.LoadMessages(ctx, "room1")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "msg-4" || msgs[2].Content != "msg-6" {
		t.Errorf("expected msg-4..msg-6, got %q..%q", msgs[0].Content, msgs[2].Content)
	}
}

func TestMemStoreMetadataRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	meta, err := s.LoadMetadata(ctx, "room1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if meta != nil {
		t.Fatal("expected nil metadata before save")
	}

	saved := &Metadata{Keyword: "room1", CreatedAt: 123, LastActiveAt: 456,
		Settings: Settings{MaxMessages: DefaultMaxMessages}}
	if err := s.SaveMetadata(ctx, "room1", saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	meta, _ = s.LoadMetadata(ctx, "room1")
	if meta == nil || meta.Keyword != "room1" || meta.CreatedAt != 123 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	// The stored copy must not alias the caller's struct.
	saved.CreatedAt = 999
	meta, _ = s.LoadMetadata(ctx, "room1")
	if meta.CreatedAt != 123 {
		t.Error("store returned aliased metadata")
	}
}

func TestMemStoreLock(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	locked, _ := s.LoadLock(ctx, "room1")
	if locked {
		t.Fatal("expected unlocked by default")
	}
	s.SaveLock(ctx, "room1", true)
	locked, _ = s.LoadLock(ctx, "room1")
	if !locked {
		t.Fatal("expected locked after save")
	}
}

func TestMemStoreClearAndDelete(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	s.AppendMessage(ctx, "room1", testMsg("hello"), 100)
	s.SaveMetadata(ctx, "room1", &Metadata{Keyword: "room1"})
	s.SaveLock(ctx, "room1", true)

	s.ClearMessages(ctx, "room1")
	msgs, _ := s.LoadMessages(ctx, "room1")
	if len(msgs) != 0 {
		t.Fatalf("expected 0 messages after clear, got %d", len(msgs))
	}
	if meta, _ := s.LoadMetadata(ctx, "room1"); meta == nil {
		t.Fatal("clear must not remove metadata")
	}

	s.DeleteRoom(ctx, "room1")
	if meta, _ := s.LoadMetadata(ctx, "room1"); meta != nil {
		t.Fatal("expected nil metadata after delete")
	}
	if locked, _ := s.LoadLock(ctx, "room1"); locked {
		t.Fatal("expected lock reset after delete")
	}
}
