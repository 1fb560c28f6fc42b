package zarr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufs-archive/ufs2arco/internal/dataset"
)

func stagedTestDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	require.NoError(t, ds.AddDim("y", 4))
	require.NoError(t, ds.AddDim("x", 4))
	vals := make([]float64, 16)
	for i := range vals {
		vals[i] = float64(i)
	}
	require.NoError(t, ds.SetVar("v", dataset.NewVariable(vals, []string{"y", "x"}, nil)))
	return ds
}

func TestWriteDatasetStaged_MatchesDirectWrite(t *testing.T) {
	target := map[string]int{"y": 2, "x": 4}
	intermediate := map[string]int{"y": 1, "x": 4}

	directDir := t.TempDir()
	directStore, err := NewDirectoryStore(directDir)
	require.NoError(t, err)
	dw, err := NewWriter(directStore, false, nil)
	require.NoError(t, err)
	_, err = dw.WriteDataset(context.Background(), stagedTestDataset(t), target)
	require.NoError(t, err)

	stagedDir := t.TempDir()
	stagedStore, err := NewDirectoryStore(stagedDir)
	require.NoError(t, err)
	sw, err := NewWriter(stagedStore, false, nil)
	require.NoError(t, err)
	stats, err := sw.WriteDatasetStaged(context.Background(), stagedTestDataset(t),
		target, intermediate, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Arrays)
	assert.Equal(t, 2, stats.Chunks)

	for _, key := range []string{"0.0", "1.0"} {
		want, err := os.ReadFile(filepath.Join(directDir, "v", key))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(stagedDir, "v", key))
		require.NoError(t, err)
		assert.Equal(t, want, got, "chunk %s", key)
	}

	var direct, staged ArrayMeta
	readJSON(t, filepath.Join(directDir, "v", ".zarray"), &direct)
	readJSON(t, filepath.Join(stagedDir, "v", ".zarray"), &staged)
	assert.Equal(t, direct.Chunks, staged.Chunks)
	assert.Equal(t, direct.Shape, staged.Shape)
	assert.Equal(t, direct.DType, staged.DType)
}

func TestWriteDatasetStaged_UnevenEdge(t *testing.T) {
	ds := dataset.New()
	vals := make([]float64, 5)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	require.NoError(t, ds.SetVar("v", dataset.NewVariable(vals, []string{"x"}, nil)))

	dir := t.TempDir()
	store, err := NewDirectoryStore(dir)
	require.NoError(t, err)
	w, err := NewWriter(store, false, nil)
	require.NoError(t, err)

	stats, err := w.WriteDatasetStaged(context.Background(), ds,
		map[string]int{"x": 4}, map[string]int{"x": 2}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)
	assert.FileExists(t, filepath.Join(dir, "v", "0"))
	assert.FileExists(t, filepath.Join(dir, "v", "1"))
}

func TestWriteDatasetStaged_NonDividingChunks(t *testing.T) {
	ds := stagedTestDataset(t)
	store, err := NewDirectoryStore(t.TempDir())
	require.NoError(t, err)
	w, err := NewWriter(store, false, nil)
	require.NoError(t, err)

	_, err = w.WriteDatasetStaged(context.Background(), ds,
		map[string]int{"y": 4}, map[string]int{"y": 3}, t.TempDir())
	assert.Error(t, err)
}
