// Package blob stores uploaded media. The chat core only ever references
// blobs by key; nothing here inspects content beyond upload validation.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxUploadSize is the upload size cap in bytes.
const MaxUploadSize = 20 << 20

// ErrNotFound is returned when no blob exists under a key.
var ErrNotFound = errors.New("blob not found")

// allowedTypes is the upload content-type allow-list. Content-kind
// validation happens here, at the upload boundary; the room coordinator
// accepts whatever kind tag it is handed once the blob exists.
var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Allowed reports whether the content type may be uploaded.
func Allowed(contentType string) bool {
	return allowedTypes[contentType]
}

// NewKey builds a collision-free storage key scoped to a room.
func NewKey(keyword, filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%d-%s.%s", keyword, time.Now().UnixMilli(), uuid.NewString(), ext)
}

// Object is a stored blob's content plus its metadata.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Store is the object storage contract. Keys are opaque to callers.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}
