package chat

import (
	"context"
	"sync"
)

// Store is the durable backing store for room state. Each room has three
// independent records: the ordered message log, the metadata object, and
// the lock flag. Implementations must make each write individually atomic;
// write errors are fatal for the triggering operation and propagate.
type Store interface {
	LoadMessages(ctx context.Context, keyword string) ([]Message, error)
	AppendMessage(ctx context.Context, keyword string, msg Message, max int) error
	ClearMessages(ctx context.Context, keyword string) error

	LoadMetadata(ctx context.Context, keyword string) (*Metadata, error)
	SaveMetadata(ctx context.Context, keyword string, meta *Metadata) error

	LoadLock(ctx context.Context, keyword string) (bool, error)
	SaveLock(ctx context.Context, keyword string, locked bool) error

	// DeleteRoom removes all three records for the keyword.
	DeleteRoom(ctx context.Context, keyword string) error
}

type memRoom struct {
	messages []Message
	meta     *Metadata
	locked   bool
}

// MemStore keeps room state in memory. It backs tests and single-process
// deployments that can tolerate losing history on restart.
type MemStore struct {
	mu    sync.Mutex
	rooms map[string]*memRoom
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{rooms: make(map[string]*memRoom)}
}

func (s *MemStore) room(keyword string) *memRoom {
	r := s.rooms[keyword]
	if r == nil {
		r = &memRoom{}
		s.rooms[keyword] = r
	}
	return r
}

// LoadMessages returns a copy of the stored log for the keyword.
func (s *MemStore) LoadMessages(_ context.Context, keyword string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rooms[keyword]
	if r == nil {
		return nil, nil
	}
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out, nil
}

// AppendMessage adds one message, trimming the oldest entries past max.
func (s *MemStore) AppendMessage(_ context.Context, keyword string, msg Message, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.room(keyword)
	r.messages = append(r.messages, msg)
	if max > 0 && len(r.messages) > max {
		r.messages = r.messages[len(r.messages)-max:]
	}
	return nil
}

// ClearMessages empties the stored log.
func (s *MemStore) ClearMessages(_ context.Context, keyword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.rooms[keyword]; r != nil {
		r.messages = nil
	}
	return nil
}

// LoadMetadata returns the stored metadata, or nil if the room was never created.
func (s *MemStore) LoadMetadata(_ context.Context, keyword string) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rooms[keyword]
	if r == nil || r.meta == nil {
		return nil, nil
	}
	meta := *r.meta
	return &meta, nil
}

// SaveMetadata stores a copy of the metadata.
func (s *MemStore) SaveMetadata(_ context.Context, keyword string, meta *Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *meta
	s.room(keyword).meta = &m
	return nil
}

// LoadLock returns the stored lock flag.
func (s *MemStore) LoadLock(_ context.Context, keyword string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rooms[keyword]
	if r == nil {
		return false, nil
	}
	return r.locked, nil
}

// SaveLock stores the lock flag.
func (s *MemStore) SaveLock(_ context.Context, keyword string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(keyword).locked = locked
	return nil
}

// DeleteRoom removes all records for the keyword.
func (s *MemStore) DeleteRoom(_ context.Context, keyword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, keyword)
	return nil
}
