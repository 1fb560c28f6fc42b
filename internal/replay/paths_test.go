package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cycle19940101 = time.Date(1994, 1, 1, 0, 0, 0, 0, time.UTC)

func TestCycleToken(t *testing.T) {
	assert.Equal(t, "1994010100", CycleToken(cycle19940101))
	assert.Equal(t, "2015123118", CycleToken(time.Date(2015, 12, 31, 18, 0, 0, 0, time.UTC)))
}

func TestPaths_ReplayScenario(t *testing.T) {
	r := Resolver{Root: DefaultBucket}
	got := r.Paths(cycle19940101, []int{0, 6}, []string{"bfg_"})

	want := []string{
		"s3://noaa-ufs-gefsv13replay-pds/1deg/1994/01/1994010100/bfg_1994010100_fhr00_control",
		"s3://noaa-ufs-gefsv13replay-pds/1deg/1994/01/1994010100/bfg_1994010100_fhr06_control",
	}
	assert.Equal(t, want, got)
}

func TestPaths_PrefixMajorOrder(t *testing.T) {
	r := Resolver{Root: "/data"}
	got := r.Paths(cycle19940101, []int{0, 3, 6}, []string{"sfg_", "bfg_"})

	require.Len(t, got, 6)
	assert.Equal(t, "/data/1994/01/1994010100/sfg_1994010100_fhr00_control", got[0])
	assert.Equal(t, "/data/1994/01/1994010100/sfg_1994010100_fhr03_control", got[1])
	assert.Equal(t, "/data/1994/01/1994010100/sfg_1994010100_fhr06_control", got[2])
	assert.Equal(t, "/data/1994/01/1994010100/bfg_1994010100_fhr00_control", got[3])
	assert.Equal(t, "/data/1994/01/1994010100/bfg_1994010100_fhr06_control", got[5])
}

func TestPaths_Deterministic(t *testing.T) {
	r := Resolver{Root: DefaultBucket}
	a := r.Paths(cycle19940101, []int{0, 6}, []string{"bfg_", "sfg_"})
	b := r.Paths(cycle19940101, []int{0, 6}, []string{"bfg_", "sfg_"})
	assert.Equal(t, a, b)
}

func TestPaths_TrailingSlashRoot(t *testing.T) {
	a := Resolver{Root: "/data/"}.Paths(cycle19940101, []int{0}, []string{"bfg_"})
	b := Resolver{Root: "/data"}.Paths(cycle19940101, []int{0}, []string{"bfg_"})
	assert.Equal(t, b, a)
}

func TestCachedPaths(t *testing.T) {
	r := Resolver{Root: DefaultBucket}
	got := r.CachedPaths(cycle19940101, []int{0}, []string{"bfg_"})
	require.Len(t, got, 1)
	assert.Equal(t,
		"simplecache::s3://noaa-ufs-gefsv13replay-pds/1deg/1994/01/1994010100/bfg_1994010100_fhr00_control",
		got[0])
}

func TestWithCacheIdempotent(t *testing.T) {
	u := WithCache("s3://bucket/key")
	assert.Equal(t, u, WithCache(u))
}

func TestSplitCache(t *testing.T) {
	uri, cached := SplitCache("simplecache::s3://bucket/key")
	assert.True(t, cached)
	assert.Equal(t, "s3://bucket/key", uri)

	uri, cached = SplitCache("/local/path")
	assert.False(t, cached)
	assert.Equal(t, "/local/path", uri)
}
