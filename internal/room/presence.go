package room

import (
	"time"

	"github.com/christopherjohns/fekoyaha/internal/chat"
)

// Conn is the transport handle the coordinator pushes events to. Send is
// best-effort and must never block; Close force-disconnects the peer.
type Conn interface {
	Send(data []byte) bool
	Close(reason string)
}

// ConnMeta is the connection-scoped metadata captured at connect time.
// The network/device fields are for administrative inspection only and
// are never shown to other participants.
type ConnMeta struct {
	Nickname   string    `json:"nickname"`
	Color      string    `json:"color"`
	JoinedAt   time.Time `json:"joinedAt"`
	RemoteAddr string    `json:"remoteAddr"`
	UserAgent  string    `json:"userAgent"`
	Geo        string    `json:"geo,omitempty"`
}

// Participant is a presence snapshot entry, keyed by connection id rather
// than nickname (nicknames are not unique; one user with two tabs is two
// participants).
type Participant struct {
	ID string `json:"id"`
	ConnMeta
}

type presenceEntry struct {
	meta ConnMeta
	conn Conn
}

// presence is the live connection registry of one room. It is transient
// state owned by the coordinator and is only touched under the room mutex,
// so it needs no locking of its own. Insertion order is preserved so every
// broadcast reaches connections in the order they joined.
type presence struct {
	order   []string
	entries map[string]*presenceEntry
}

func newPresence() *presence {
	return &presence{entries: make(map[string]*presenceEntry)}
}

func (p *presence) add(id string, meta ConnMeta, conn Conn) {
	p.entries[id] = &presenceEntry{meta: meta, conn: conn}
	p.order = append(p.order, id)
}

// remove deletes the entry and reports the metadata it held.
func (p *presence) remove(id string) (ConnMeta, bool) {
	e, ok := p.entries[id]
	if !ok {
		return ConnMeta{}, false
	}
	delete(p.entries, id)
	for i, other := range p.order {
		if other == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return e.meta, true
}

func (p *presence) get(id string) (*presenceEntry, bool) {
	e, ok := p.entries[id]
	return e, ok
}

func (p *presence) count() int { return len(p.entries) }

// list returns all participants in join order.
func (p *presence) list() []Participant {
	out := make([]Participant, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, Participant{ID: id, ConnMeta: p.entries[id].meta})
	}
	return out
}

// senders returns the nickname/color pairs in join order, for the users broadcast.
func (p *presence) senders() []chat.Sender {
	out := make([]chat.Sender, 0, len(p.order))
	for _, id := range p.order {
		meta := p.entries[id].meta
		out = append(out, chat.Sender{Nickname: meta.Nickname, Color: meta.Color})
	}
	return out
}

// conns returns the transport handles in join order.
func (p *presence) conns() []Conn {
	out := make([]Conn, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.entries[id].conn)
	}
	return out
}

// clear empties the registry and returns the handles that were registered.
func (p *presence) clear() []Conn {
	conns := p.conns()
	p.entries = make(map[string]*presenceEntry)
	p.order = nil
	return conns
}
