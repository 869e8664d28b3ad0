// Package directory maintains the best-effort room index used by the
// administrative listing. Updates are fire-and-forget: they never gate a
// room operation, and a stale or missing entry never affects room
// correctness.
package directory

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// indexKey is the Redis hash holding one JSON entry per known room.
const indexKey = "rooms"

const opTimeout = 2 * time.Second

// Entry is one row of the room index.
type Entry struct {
	Keyword      string `json:"keyword"`
	CreatedAt    int64  `json:"createdAt"`
	LastActiveAt int64  `json:"lastActiveAt"`
}

// Directory is a Redis-backed room index.
type Directory struct {
	client redis.Cmdable
	log    *slog.Logger
}

// New creates a Directory on the given Redis client.
func New(client redis.Cmdable, log *slog.Logger) *Directory {
	return &Directory{client: client, log: log}
}

// Touch records the room as existing and active. It returns immediately;
// the write happens in the background and failure is only logged.
func (d *Directory) Touch(keyword string, createdAt, lastActiveAt int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		data, err := json.Marshal(Entry{
			Keyword:      keyword,
			CreatedAt:    createdAt,
			LastActiveAt: lastActiveAt,
		})
		if err != nil {
			d.log.Warn("directory: marshal entry", "room", keyword, "err", err)
			return
		}
		if err := d.client.HSet(ctx, indexKey, keyword, data).Err(); err != nil {
			d.log.Warn("directory: touch failed", "room", keyword, "err", err)
		}
	}()
}

// Forget removes the room from the index, best-effort.
func (d *Directory) Forget(keyword string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := d.client.HDel(ctx, indexKey, keyword).Err(); err != nil {
			d.log.Warn("directory: forget failed", "room", keyword, "err", err)
		}
	}()
}

// List returns all known rooms, most recently active first.
func (d *Directory) List(ctx context.Context) ([]Entry, error) {
	vals, err := d.client.HGetAll(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(vals))
	for _, v := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastActiveAt > entries[j].LastActiveAt
	})
	return entries, nil
}
