package chat

import "errors"

// DefaultMaxMessages is the retention cap applied to new rooms.
const DefaultMaxMessages = 1000

// Sentinel errors shared by the coordinator and the HTTP layer.
var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room does not exist")
)

// Settings holds per-room tunables, fixed at creation time.
type Settings struct {
	MaxMessages   int `json:"maxMessages"`
	MaxFileSizeMB int `json:"maxFileSizeMB"`
}

// Metadata describes a room. It exists from the first successful create
// until an administrative delete; timestamps are unix milliseconds.
type Metadata struct {
	Keyword      string   `json:"keyword"`
	CreatedAt    int64    `json:"createdAt"`
	LastActiveAt int64    `json:"lastActiveAt"`
	Settings     Settings `json:"settings"`
}
