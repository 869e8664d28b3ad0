package room

import (
	"log/slog"
	"sync"

	"github.com/christopherjohns/fekoyaha/internal/chat"
)

// Registry hands out the single coordinator instance for each keyword.
// Coordinators are created lazily and load their persisted state on first
// use; the registry itself holds no room state.
type Registry struct {
	mu    sync.Mutex
	store chat.Store
	dir   DirectoryUpdater
	log   *slog.Logger
	rooms map[string]*Room
}

// NewRegistry creates a registry backed by the given store. dir may be nil
// when no room directory is configured.
func NewRegistry(store chat.Store, dir DirectoryUpdater, log *slog.Logger) *Registry {
	return &Registry{
		store: store,
		dir:   dir,
		log:   log,
		rooms: make(map[string]*Room),
	}
}

// Get returns the coordinator for the keyword, creating it if needed.
// The instance persists across room deletion so the keyword stays usable.
func (g *Registry) Get(keyword string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.rooms[keyword]
	if r == nil {
		r = newRoom(keyword, g.store, g.dir, g.log)
		g.rooms[keyword] = r
	}
	return r
}
