package fsio

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("s3://bucket/key"))
	assert.True(t, IsRemote("simplecache::s3://bucket/key"))
	assert.False(t, IsRemote("/data/file.nc"))
	assert.False(t, IsRemote("file:///data/file.nc"))
	assert.False(t, IsRemote("relative/path"))
}

func TestFetch_LocalPath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bfg_1994010100_fhr00_control")
	require.NoError(t, os.WriteFile(src, []byte("netcdf"), 0o644))

	f := New(Options{}, nil)

	got, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, src, got)

	got, err = f.Fetch(context.Background(), "file://"+src)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestFetch_LocalMissing(t *testing.T) {
	f := New(Options{}, nil)
	_, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.True(t, os.IsNotExist(err))
}

func TestExists_Local(t *testing.T) {
	dir := t.TempDir()
	f := New(Options{}, nil)

	ok, err := f.Exists(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Exists(context.Background(), filepath.Join(dir, "missing.zarr"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenBucket_File(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "obj"), []byte("payload"), 0o644))

	f := New(Options{}, nil)
	bucket, key, err := f.OpenBucket(context.Background(), dir)
	require.NoError(t, err)
	defer bucket.Close()
	assert.Empty(t, key)

	r, err := bucket.NewReader(context.Background(), "obj", nil)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestOpenBucket_UnsupportedScheme(t *testing.T) {
	f := New(Options{}, nil)
	_, _, err := f.OpenBucket(context.Background(), "gopher://x/y")
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	a := cacheKey("s3://bucket/1deg/1994/01/1994010100/bfg_1994010100_fhr00_control")
	b := cacheKey("s3://bucket/1deg/1994/01/1994010100/bfg_1994010100_fhr00_control")
	assert.Equal(t, a, b)
	assert.NotContains(t, a, "://")
}
