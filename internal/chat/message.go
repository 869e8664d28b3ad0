package chat

import (
	"time"

	"github.com/google/uuid"
)

// Kind represents the kind of message content.
type Kind string

const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindVideo  Kind = "video"
	KindPDF    Kind = "pdf"
	KindFile   Kind = "file"
	KindSystem Kind = "system"
)

// Sender is the nickname/color pair stamped onto a message at send time.
// It is a snapshot, not a live reference: historic messages keep the
// values the sender had when the message was posted.
type Sender struct {
	Nickname string `json:"nickname"`
	Color    string `json:"color"`
}

// SystemSender is the sender attached to every system message.
var SystemSender = Sender{Nickname: "System", Color: "#888888"}

// Message is a single immutable entry in a room's log. Content is either
// literal text or a /files/... reference to a stored blob.
type Message struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"type"`
	Content   string `json:"content"`
	Sender    Sender `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// NewMessage builds a message with a server-assigned id and timestamp.
func NewMessage(kind Kind, content string, sender Sender) Message {
	return Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Content:   content,
		Sender:    sender,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewSystemMessage builds a system message with the given content.
func NewSystemMessage(content string) Message {
	return NewMessage(KindSystem, content, SystemSender)
}
