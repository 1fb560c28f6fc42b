package zarr

import (
	"context"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
)

// Store is the key/value surface a zarr tree is written through. Keys use
// forward slashes regardless of layout.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// DirectoryStore writes a zarr tree under a local directory.
type DirectoryStore struct {
	Root string
}

// NewDirectoryStore creates the root directory if needed.
func NewDirectoryStore(root string) (*DirectoryStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DirectoryStore{Root: root}, nil
}

func (s *DirectoryStore) Put(_ context.Context, key string, data []byte) error {
	p := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (s *DirectoryStore) Close() error { return nil }

// BucketStore writes a zarr tree under a prefix in a blob bucket, so
// archives can be written straight to object storage.
type BucketStore struct {
	Bucket *blob.Bucket
	Prefix string
}

func (s *BucketStore) Put(ctx context.Context, key string, data []byte) error {
	k := key
	if s.Prefix != "" {
		k = s.Prefix + "/" + key
	}
	return s.Bucket.WriteAll(ctx, k, data, nil)
}

func (s *BucketStore) Close() error { return s.Bucket.Close() }
