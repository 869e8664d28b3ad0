package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamStore keeps blobs in a NATS JetStream object store bucket, for
// deployments where uploads must survive the node the server runs on.
type JetStreamStore struct {
	conn  *nats.Conn
	store jetstream.ObjectStore
}

// NewJetStreamStore connects to NATS and opens (or creates) the bucket.
func NewJetStreamStore(ctx context.Context, natsURL, bucket string) (*JetStreamStore, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("blob: connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("blob: jetstream context: %w", err)
	}

	store, err := js.ObjectStore(ctx, bucket)
	if err != nil {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "fekoyaha uploaded media",
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("blob: create bucket: %w", err)
		}
	}
	return &JetStreamStore{conn: conn, store: store}, nil
}

// Put stores the blob under key with its content type in the object headers.
func (s *JetStreamStore) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	meta := jetstream.ObjectMeta{
		Name:    key,
		Headers: nats.Header{"Content-Type": []string{contentType}},
	}
	if _, err := s.store.Put(ctx, meta, body); err != nil {
		return fmt.Errorf("blob: put %s: %w", key, err)
	}
	return nil
}

// Get opens the blob for reading.
func (s *JetStreamStore) Get(ctx context.Context, key string) (*Object, error) {
	result, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob: get %s: %w", key, err)
	}
	info, err := result.Info()
	if err != nil {
		result.Close()
		return nil, fmt.Errorf("blob: info %s: %w", key, err)
	}
	ct := "application/octet-stream"
	if v := info.Headers.Get("Content-Type"); v != "" {
		ct = v
	}
	return &Object{Body: result, ContentType: ct, Size: int64(info.Size)}, nil
}

// Delete removes the blob. Deleting a missing key is not an error.
func (s *JetStreamStore) Delete(ctx context.Context, key string) error {
	err := s.store.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("blob: delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying NATS connection.
func (s *JetStreamStore) Close() {
	s.conn.Close()
}
