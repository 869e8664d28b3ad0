package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/christopherjohns/fekoyaha/internal/chat"
	"github.com/christopherjohns/fekoyaha/internal/metrics"
)

// historyWindow is how many trailing log entries a new connection receives.
const historyWindow = 300

// DirectoryUpdater receives best-effort room index updates. Implementations
// must not block the caller; failures are their own to log.
type DirectoryUpdater interface {
	Touch(keyword string, createdAt, lastActiveAt int64)
	Forget(keyword string)
}

// Info is the answer to a stateless room info query.
type Info struct {
	Exists       bool   `json:"exists"`
	Keyword      string `json:"keyword"`
	CreatedAt    int64  `json:"createdAt,omitempty"`
	MessageCount int    `json:"messageCount"`
	IsLocked     bool   `json:"isLocked"`
}

// InspectReport is the privileged full view of a room, including the
// sensitive connection metadata the client protocol never exposes.
type InspectReport struct {
	Metadata     *chat.Metadata `json:"metadata"`
	Messages     []chat.Message `json:"messages"`
	IsLocked     bool           `json:"isLocked"`
	Participants []Participant  `json:"participants"`
}

// Room is the per-keyword coordinator. It exclusively owns the message log,
// the metadata, the lock flag, and the presence registry for its keyword,
// and serializes every operation behind one mutex so that no two mutations
// of the same room ever interleave. Different rooms share nothing.
type Room struct {
	mu      sync.Mutex
	keyword string
	store   chat.Store
	dir     DirectoryUpdater
	log     *slog.Logger

	loaded   bool
	messages []chat.Message
	meta     *chat.Metadata
	locked   bool
	presence *presence
}

func newRoom(keyword string, store chat.Store, dir DirectoryUpdater, log *slog.Logger) *Room {
	return &Room{
		keyword:  keyword,
		store:    store,
		dir:      dir,
		log:      log.With("room", keyword),
		presence: newPresence(),
	}
}

// ensureLoaded lazily reads the persisted records on first access.
// Must be called with r.mu held.
func (r *Room) ensureLoaded(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	msgs, err := r.store.LoadMessages(ctx, r.keyword)
	if err != nil {
		return err
	}
	meta, err := r.store.LoadMetadata(ctx, r.keyword)
	if err != nil {
		return err
	}
	locked, err := r.store.LoadLock(ctx, r.keyword)
	if err != nil {
		return err
	}
	r.messages = msgs
	r.meta = meta
	r.locked = locked
	r.loaded = true
	return nil
}

// maxMessages returns the room's retention cap.
func (r *Room) maxMessages() int {
	if r.meta != nil && r.meta.Settings.MaxMessages > 0 {
		return r.meta.Settings.MaxMessages
	}
	return chat.DefaultMaxMessages
}

// appendPersist appends a message to the in-memory log and the store,
// trimming both from the front at the retention cap. Must hold r.mu.
func (r *Room) appendPersist(ctx context.Context, msg chat.Message) error {
	max := r.maxMessages()
	if err := r.store.AppendMessage(ctx, r.keyword, msg, max); err != nil {
		return err
	}
	r.messages = append(r.messages, msg)
	if len(r.messages) > max {
		r.messages = r.messages[len(r.messages)-max:]
	}
	return nil
}

// touchActivity bumps lastActiveAt, persists the metadata, and pushes a
// fire-and-forget directory update. Must hold r.mu.
func (r *Room) touchActivity(ctx context.Context) error {
	if r.meta == nil {
		return nil
	}
	r.meta.LastActiveAt = time.Now().UnixMilli()
	if err := r.store.SaveMetadata(ctx, r.keyword, r.meta); err != nil {
		return err
	}
	if r.dir != nil {
		r.dir.Touch(r.keyword, r.meta.CreatedAt, r.meta.LastActiveAt)
	}
	return nil
}

// broadcast sends one encoded event to every registered connection in join
// order. Delivery is best-effort per connection: a failed or slow peer is
// skipped, never aborting delivery to the rest. Must hold r.mu.
func (r *Room) broadcast(typ string, payload any) {
	data, err := encodeEvent(typ, payload)
	if err != nil {
		r.log.Error("encode broadcast", "type", typ, "err", err)
		return
	}
	for _, c := range r.presence.conns() {
		c.Send(data)
	}
}

// sendTo delivers one event to a single connection.
func (r *Room) sendTo(conn Conn, typ string, payload any) {
	data, err := encodeEvent(typ, payload)
	if err != nil {
		r.log.Error("encode event", "type", typ, "err", err)
		return
	}
	conn.Send(data)
}

// broadcastUsers pushes the current participant snapshot to everyone.
// Must hold r.mu.
func (r *Room) broadcastUsers() {
	users := r.presence.senders()
	r.broadcast(EventUsers, UsersPayload{Users: users, Count: len(users)})
}

// Info reports whether the room exists and its headline state. No side effects.
func (r *Room) Info(ctx context.Context) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return Info{}, err
	}
	info := Info{
		Keyword:      r.keyword,
		MessageCount: len(r.messages),
		IsLocked:     r.locked,
	}
	if r.meta != nil {
		info.Exists = true
		info.CreatedAt = r.meta.CreatedAt
	}
	return info, nil
}

// Create initializes the room's metadata and seeds the log with a creation
// system message. Creating a room that already exists is an explicit
// conflict, never a silent success.
func (r *Room) Create(ctx context.Context) (*chat.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if r.meta != nil {
		return nil, chat.ErrRoomExists
	}

	now := time.Now().UnixMilli()
	meta := &chat.Metadata{
		Keyword:      r.keyword,
		CreatedAt:    now,
		LastActiveAt: now,
		Settings: chat.Settings{
			MaxMessages:   chat.DefaultMaxMessages,
			MaxFileSizeMB: 20,
		},
	}
	if err := r.store.SaveMetadata(ctx, r.keyword, meta); err != nil {
		return nil, err
	}
	r.meta = meta

	if err := r.appendPersist(ctx, chat.NewSystemMessage(fmt.Sprintf("Room %q created", r.keyword))); err != nil {
		return nil, err
	}
	if r.dir != nil {
		r.dir.Touch(r.keyword, meta.CreatedAt, meta.LastActiveAt)
	}

	metrics.RoomsCreated.Inc()
	r.log.Info("room created")
	copied := *meta
	return &copied, nil
}

// Connect registers a new live connection, replays the recent log tail to
// it, and announces the join to the whole room. The returned id is the
// handle for HandleEvent and Disconnect. Connecting to a room that does not
// exist is a caller error: the HTTP layer must create or refuse first.
func (r *Room) Connect(ctx context.Context, conn Conn, meta ConnMeta) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return "", err
	}
	if r.meta == nil {
		return "", chat.ErrRoomNotFound
	}

	if meta.JoinedAt.IsZero() {
		meta.JoinedAt = time.Now()
	}
	id := uuid.NewString()
	r.presence.add(id, meta, conn)
	metrics.ActiveConnections.Inc()

	tail := r.messages
	if len(tail) > historyWindow {
		tail = tail[len(tail)-historyWindow:]
	}
	history := make([]chat.Message, len(tail))
	copy(history, tail)
	r.sendTo(conn, EventHistory, HistoryPayload{Messages: history})

	join := chat.NewSystemMessage(meta.Nickname + " joined the room")
	if err := r.appendPersist(ctx, join); err != nil {
		r.presence.remove(id)
		metrics.ActiveConnections.Dec()
		return "", err
	}
	r.broadcast(EventMessage, join)
	r.broadcastUsers()

	if err := r.touchActivity(ctx); err != nil {
		r.log.Error("persist activity on connect", "err", err)
	}

	r.log.Info("client connected", "nickname", meta.Nickname, "conn", id)
	return id, nil
}

// HandleEvent dispatches one inbound client event. Malformed events are
// dropped with a diagnostic and never disturb the room or other connections.
func (r *Room) HandleEvent(ctx context.Context, connID string, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.presence.get(connID)
	if !ok {
		return nil
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.log.Debug("dropping malformed event", "conn", connID, "err", err)
		return nil
	}

	switch env.Type {
	case EventPing:
		r.sendTo(entry.conn, EventPong, nil)
		return nil
	case EventMessage:
		var payload PostPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			r.log.Debug("dropping malformed message payload", "conn", connID, "err", err)
			return nil
		}
		return r.postMessage(ctx, entry, payload)
	default:
		r.log.Debug("dropping unknown event", "conn", connID, "type", env.Type)
		return nil
	}
}

// postMessage appends and fans out one content-bearing message.
// Must hold r.mu.
func (r *Room) postMessage(ctx context.Context, entry *presenceEntry, payload PostPayload) error {
	if r.locked {
		r.sendTo(entry.conn, EventError, ErrorPayload{Message: "Room is read-only."})
		return nil
	}

	content := strings.TrimSpace(payload.Content)
	if content == "" {
		return nil
	}
	kind := payload.Kind
	if kind == "" {
		kind = chat.KindText
	}

	msg := chat.NewMessage(kind, content, chat.Sender{
		Nickname: entry.meta.Nickname,
		Color:    entry.meta.Color,
	})
	if err := r.appendPersist(ctx, msg); err != nil {
		return err
	}
	if err := r.touchActivity(ctx); err != nil {
		return err
	}

	metrics.MessagesPosted.Inc()
	r.broadcast(EventMessage, msg)
	return nil
}

// Disconnect removes the connection from the presence registry and
// announces the departure. It is safe to call more than once per
// connection; only the first call has any effect.
func (r *Room) Disconnect(ctx context.Context, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, ok := r.presence.remove(connID)
	if !ok {
		return
	}
	metrics.ActiveConnections.Dec()

	leave := chat.NewSystemMessage(meta.Nickname + " left the room")
	if err := r.appendPersist(ctx, leave); err != nil {
		r.log.Error("persist leave message", "err", err)
	} else {
		r.broadcast(EventMessage, leave)
	}
	r.broadcastUsers()
	r.log.Info("client disconnected", "nickname", meta.Nickname, "conn", connID)
}

// Inspect returns the privileged full view of the room.
func (r *Room) Inspect(ctx context.Context) (InspectReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return InspectReport{}, err
	}

	report := InspectReport{
		IsLocked:     r.locked,
		Messages:     make([]chat.Message, len(r.messages)),
		Participants: r.presence.list(),
	}
	copy(report.Messages, r.messages)
	if r.meta != nil {
		meta := *r.meta
		report.Metadata = &meta
	}
	return report, nil
}

// ToggleLock flips the persisted lock flag and announces the new state with
// both a room-status event and a system message. Returns the new state.
func (r *Room) ToggleLock(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return false, err
	}
	if r.meta == nil {
		return false, chat.ErrRoomNotFound
	}

	locked := !r.locked
	if err := r.store.SaveLock(ctx, r.keyword, locked); err != nil {
		return r.locked, err
	}
	r.locked = locked

	state := "unlocked"
	if locked {
		state = "locked (read-only)"
	}
	note := chat.NewSystemMessage("Room has been " + state + " by admin")
	if err := r.appendPersist(ctx, note); err != nil {
		return locked, err
	}
	r.broadcast(EventRoomStatus, RoomStatusPayload{IsLocked: locked})
	r.broadcast(EventMessage, note)

	r.log.Info("lock toggled", "locked", locked)
	return locked, nil
}

// ClearHistory irreversibly empties the log and pushes the empty history to
// all connections so they reset their view.
func (r *Room) ClearHistory(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	if r.meta == nil {
		return chat.ErrRoomNotFound
	}

	if err := r.store.ClearMessages(ctx, r.keyword); err != nil {
		return err
	}
	r.messages = nil
	r.broadcast(EventHistory, HistoryPayload{Messages: []chat.Message{}})

	r.log.Info("history cleared")
	return nil
}

// Delete removes all persisted state, notifies and force-closes every
// connection, and resets the room so the keyword is creatable again.
func (r *Room) Delete(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	if r.meta == nil {
		return chat.ErrRoomNotFound
	}

	if err := r.store.DeleteRoom(ctx, r.keyword); err != nil {
		return err
	}
	if r.dir != nil {
		r.dir.Forget(r.keyword)
	}

	r.broadcast(EventError, ErrorPayload{Message: "This room has been deleted by an administrator."})

	// Presence is emptied before closing so the transport-driven Disconnect
	// calls that follow find nothing and stay silent.
	conns := r.presence.clear()
	metrics.ActiveConnections.Sub(float64(len(conns)))
	for _, c := range conns {
		c.Close("Room deleted")
	}

	r.messages = nil
	r.meta = nil
	r.locked = false

	r.log.Info("room deleted", "closedConnections", len(conns))
	return nil
}
