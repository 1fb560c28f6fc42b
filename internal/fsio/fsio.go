// Package fsio abstracts where source files and stores live. Local paths are
// used directly; s3:// URIs are opened through gocloud blob buckets with
// anonymous or environment credentials; URIs wrapped with the simplecache::
// token are fetched once into a local cache directory and reused.
package fsio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/s3blob"

	"github.com/ufs-archive/ufs2arco/internal/replay"
)

// Options configures remote access.
type Options struct {
	// S3Anonymous requests unsigned access, for public buckets like the
	// replay archive.
	S3Anonymous bool
	// S3Region defaults to us-east-1.
	S3Region string
	// CacheDir is where fetched remote objects land. Defaults to a
	// ufs2arco-cache directory under the OS temp dir.
	CacheDir string
}

// FS fetches source objects and opens store buckets.
type FS struct {
	opts   Options
	logger *slog.Logger
}

// New creates an FS. A nil logger falls back to slog.Default.
func New(opts Options, logger *slog.Logger) *FS {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.S3Region == "" {
		opts.S3Region = "us-east-1"
	}
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(os.TempDir(), "ufs2arco-cache")
	}
	return &FS{opts: opts, logger: logger}
}

// IsRemote reports whether the URI names a remote object rather than a local
// path.
func IsRemote(uri string) bool {
	uri, _ = replay.SplitCache(uri)
	return strings.Contains(uri, "://") && !strings.HasPrefix(uri, "file://")
}

// Fetch returns a local filesystem path holding the object named by uri.
// Local paths are returned as-is after an existence probe. Remote objects are
// downloaded into the cache directory; with the simplecache:: token an
// existing cached copy is reused. Failures are not retried.
func (f *FS) Fetch(ctx context.Context, uri string) (string, error) {
	raw, cached := replay.SplitCache(uri)

	if !IsRemote(raw) {
		p := strings.TrimPrefix(raw, "file://")
		if _, err := os.Stat(p); err != nil {
			return "", err
		}
		return p, nil
	}

	local := filepath.Join(f.opts.CacheDir, cacheKey(raw))
	if cached {
		if _, err := os.Stat(local); err == nil {
			f.logger.Debug("using cached object", "uri", raw, "path", local)
			return local, nil
		}
	}

	if err := f.download(ctx, raw, local); err != nil {
		return "", err
	}
	return local, nil
}

func (f *FS) download(ctx context.Context, uri, local string) error {
	bucket, key, err := f.OpenBucket(ctx, uri)
	if err != nil {
		return err
	}
	defer bucket.Close()

	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("fsio: open %s: %w", uri, err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".fetch-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("fsio: fetch %s: %w", uri, err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return err
	}
	f.logger.Info("fetched remote object", "uri", uri, "bytes", n, "path", local)
	return nil
}

// Exists probes a local path or remote prefix. For remote stores the probe
// is a one-key prefix listing, which is how a zarr directory manifests in
// object storage.
func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	if !IsRemote(path) {
		_, err := os.Stat(strings.TrimPrefix(path, "file://"))
		if os.IsNotExist(err) {
			return false, nil
		}
		return err == nil, err
	}

	bucket, key, err := f.OpenBucket(ctx, path)
	if err != nil {
		return false, err
	}
	defer bucket.Close()

	iter := bucket.List(&blob.ListOptions{Prefix: key})
	if _, err := iter.Next(ctx); err == io.EOF {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// OpenBucket opens the blob bucket containing uri and returns the in-bucket
// key. Supported schemes are file:// and s3://; anything else is an error.
func (f *FS) OpenBucket(ctx context.Context, uri string) (*blob.Bucket, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("fsio: parse %s: %w", uri, err)
	}
	key := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "", "file":
		dir := u.Path
		if u.Scheme == "" {
			dir = uri
		}
		bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
		return bucket, "", err
	case "s3":
		bucket, err := f.s3Bucket(ctx, u.Host)
		return bucket, key, err
	default:
		return nil, "", fmt.Errorf("fsio: unsupported scheme %q in %s", u.Scheme, uri)
	}
}

func (f *FS) s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	cfg := &aws.Config{Region: aws.String(f.opts.S3Region)}
	if f.opts.S3Anonymous {
		cfg.Credentials = credentials.AnonymousCredentials
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return s3blob.OpenBucket(ctx, sess, name, nil)
}

// cacheKey flattens a URI into a stable relative path inside the cache dir.
func cacheKey(uri string) string {
	u := strings.NewReplacer("://", "/", "?", "_").Replace(uri)
	return filepath.FromSlash(u)
}
