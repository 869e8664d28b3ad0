package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/christopherjohns/fekoyaha/internal/chat"
	"github.com/christopherjohns/fekoyaha/internal/room"
)

// maxNicknameLen caps self-asserted nicknames.
const maxNicknameLen = 20

// Handler upgrades HTTP requests to WebSocket connections and runs the
// per-connection read loop, forwarding every inbound event to the room
// coordinator.
type Handler struct {
	rooms *room.Registry
	log   *slog.Logger
}

// NewHandler creates a WebSocket handler on the given room registry.
func NewHandler(rooms *room.Registry, log *slog.Logger) *Handler {
	return &Handler{rooms: rooms, log: log}
}

// Serve handles one upgrade request for the given room keyword. The routing
// layer has already validated the keyword and may inject client metadata
// headers (X-Client-IP, X-Client-Geo).
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, keyword string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Error("ws accept", "room", keyword, "err", err)
		return
	}

	client := NewClient(conn)
	defer client.Close("")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.WritePump(ctx)

	rm := h.rooms.Get(keyword)
	connID, err := rm.Connect(r.Context(), client, connMeta(r))
	if err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			conn.Close(websocket.StatusPolicyViolation, "room does not exist")
		} else {
			h.log.Error("ws connect", "room", keyword, "err", err)
			conn.Close(websocket.StatusInternalError, "connect failed")
		}
		return
	}
	// The disconnect must run exactly once whether the close was clean or
	// not; the coordinator ignores ids it no longer knows.
	defer rm.Disconnect(context.Background(), connID)

	for {
		typ, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if err := rm.HandleEvent(r.Context(), connID, data); err != nil {
			h.log.Error("handle event", "room", keyword, "conn", connID, "err", err)
			client.Send(mustEncodeError("message could not be saved"))
		}
	}
}

// connMeta captures the connection-scoped metadata from the request.
func connMeta(r *http.Request) room.ConnMeta {
	nickname := strings.TrimSpace(r.URL.Query().Get("nickname"))
	if nickname == "" {
		nickname = "Anonymous"
	}
	if len(nickname) > maxNicknameLen {
		nickname = nickname[:maxNicknameLen]
	}
	color := r.URL.Query().Get("color")
	if color == "" {
		color = chat.RandomColor()
	}

	addr := r.Header.Get("X-Client-IP")
	if addr == "" {
		addr = r.RemoteAddr
	}

	return room.ConnMeta{
		Nickname:   nickname,
		Color:      color,
		JoinedAt:   time.Now(),
		RemoteAddr: addr,
		UserAgent:  r.UserAgent(),
		Geo:        r.Header.Get("X-Client-Geo"),
	}
}

// mustEncodeError builds an error envelope for direct delivery.
func mustEncodeError(msg string) []byte {
	return []byte(`{"type":"error","payload":{"message":"` + msg + `"}}`)
}
