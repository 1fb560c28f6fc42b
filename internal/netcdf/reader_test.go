package netcdf

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufs-archive/ufs2arco/internal/cftime"
	"github.com/ufs-archive/ufs2arco/internal/fsio"
	"github.com/ufs-archive/ufs2arco/internal/replay"
)

var (
	testCycle    = time.Date(1994, 1, 1, 0, 0, 0, 0, time.UTC)
	testFhrs     = []int{0, 6}
	testPrefixes = []string{"bfg_", "sfg_"}
)

func TestReader_OpenMergesCycle(t *testing.T) {
	root := t.TempDir()
	_, err := WriteFixtureTree(root, testCycle, testFhrs, testPrefixes, DefaultFixtureGrid)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	r := NewReader(replay.Resolver{Root: root}, fsio.New(fsio.Options{}, logger), false, logger)
	ds, err := r.Open(context.Background(), testCycle, testFhrs, testPrefixes)
	require.NoError(t, err)

	n, ok := ds.DimSize("time")
	require.True(t, ok)
	assert.Equal(t, len(testFhrs), n, "one time step per forecast hour")

	values, err := ds.Var("time").Values()
	require.NoError(t, err)
	dates, ok := values.([]cftime.Date)
	require.True(t, ok)
	assert.Equal(t, []cftime.Date{
		{Year: 1994, Month: 1, Day: 1},
		{Year: 1994, Month: 1, Day: 1, Hour: 6},
	}, dates)

	for _, name := range []string{"pfull", "phalf", "grid_yt", "grid_xt"} {
		assert.True(t, ds.IsCoord(name), "%s should be a coordinate", name)
	}
	assert.True(t, ds.IsCoord("time"))

	// surface pressure survives exactly once, from the physics family
	assert.True(t, ds.Has("pressfc"))
	assert.Equal(t, []string{"time", "grid_yt", "grid_xt"}, ds.Var("pressfc").Dims)

	ak, ok := ds.Attrs["ak"].([]float64)
	require.True(t, ok, "global ak attribute should merge through")
	assert.Len(t, ak, DefaultFixtureGrid.Levels+1)
}

func TestReader_RecordVarsStayLazyAndConcatenate(t *testing.T) {
	root := t.TempDir()
	_, err := WriteFixtureTree(root, testCycle, testFhrs, testPrefixes, DefaultFixtureGrid)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	r := NewReader(replay.Resolver{Root: root}, fsio.New(fsio.Options{}, logger), false, logger)
	ds, err := r.Open(context.Background(), testCycle, testFhrs, testPrefixes)
	require.NoError(t, err)

	tmp := ds.Var("tmp")
	require.NotNil(t, tmp)
	assert.Equal(t, []string{"time", "pfull", "grid_yt", "grid_xt"}, tmp.Dims)
	assert.False(t, tmp.Loaded(), "record variables defer their read")

	values, err := tmp.Values()
	require.NoError(t, err)
	data, ok := values.([]float32)
	require.True(t, ok)

	g := DefaultFixtureGrid
	require.Len(t, data, len(testFhrs)*g.Levels*g.NY*g.NX)
	// spot-check both time steps against the fixture's value function
	assert.Equal(t, fieldValue("tmp", 0, 0, 0, 0), data[0])
	second := g.Levels * g.NY * g.NX
	assert.Equal(t, fieldValue("tmp", 6, 0, 0, 0), data[second])
	assert.Equal(t, fieldValue("tmp", 6, 1, 2, 3), data[second+g.NY*g.NX+2*g.NX+3])
}

func TestReader_MissingFileFails(t *testing.T) {
	root := t.TempDir()
	_, err := WriteFixtureTree(root, testCycle, []int{0}, testPrefixes, DefaultFixtureGrid)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	r := NewReader(replay.Resolver{Root: root}, fsio.New(fsio.Options{}, logger), false, logger)
	_, err = r.Open(context.Background(), testCycle, testFhrs, testPrefixes)
	assert.Error(t, err, "a missing forecast hour is not papered over")
}

func TestPreprocess(t *testing.T) {
	dynamics := []string{"time", "pfull", "tmp", "pressfc", "spfh"}
	assert.NotContains(t, preprocess(dynamics), "pressfc")

	physics := []string{"time", "tmp2m", "pressfc"}
	assert.Equal(t, physics, preprocess(physics), "no dynamics fields, keep surface pressure")
}

func TestFlattenRoundTrip(t *testing.T) {
	nested := [][][]float32{
		{{1, 2, 3}, {4, 5, 6}},
		{{7, 8, 9}, {10, 11, 12}},
	}
	flat, shape, err := flatten(nested)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 3}, shape)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, flat)

	joined, err := concat([]any{flat, flat})
	require.NoError(t, err)
	assert.Len(t, joined.([]float32), 24)

	_, err = concat([]any{[]float32{1}, []float64{1}})
	assert.Error(t, err)
}
