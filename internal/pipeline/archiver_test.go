package pipeline_test

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufs-archive/ufs2arco/internal/dataset"
	"github.com/ufs-archive/ufs2arco/internal/fsio"
	"github.com/ufs-archive/ufs2arco/internal/netcdf"
	"github.com/ufs-archive/ufs2arco/internal/observability"
	"github.com/ufs-archive/ufs2arco/internal/pipeline"
	"github.com/ufs-archive/ufs2arco/internal/replay"
)

// --- mocks ---

type mockOpener struct {
	opened int
	err    error
}

func (m *mockOpener) Open(_ context.Context, _ time.Time, _ []int, _ []string) (*dataset.Dataset, error) {
	m.opened++
	if m.err != nil {
		return nil, m.err
	}
	ds := dataset.New()
	return ds, nil
}

type mockStorer struct {
	stored int
	err    error
}

func (m *mockStorer) Store(_ context.Context, _ *dataset.Dataset) error {
	m.stored++
	return m.err
}

// mockComponent sidesteps FV3 normalization so the loop can run on an empty
// dataset.
type mockComponent struct{ pipeline.FV3 }

func (mockComponent) Normalize(_ *dataset.Dataset, _ time.Time) error { return nil }

// --- tests ---

func TestArchiver_RunHappyPath(t *testing.T) {
	opener := &mockOpener{}
	storer := &mockStorer{}
	metrics := observability.NewMetricsForTesting()

	a := pipeline.New(mockComponent{}, opener, storer, testConfig(t), slog.New(slog.DiscardHandler), metrics)
	require.Error(t, a.CheckReadiness(context.Background()))

	cycles := []time.Time{cycle, cycle.Add(6 * time.Hour)}
	require.NoError(t, a.Run(context.Background(), cycles))

	assert.Equal(t, 2, opener.opened)
	assert.Equal(t, 2, storer.stored)
	assert.NoError(t, a.CheckReadiness(context.Background()))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CyclesStored))
}

func TestArchiver_RunStopsOnFirstFailure(t *testing.T) {
	opener := &mockOpener{err: errors.New("object not found")}
	storer := &mockStorer{}
	metrics := observability.NewMetricsForTesting()

	a := pipeline.New(mockComponent{}, opener, storer, testConfig(t), slog.New(slog.DiscardHandler), metrics)
	err := a.Run(context.Background(), []time.Time{cycle, cycle.Add(6 * time.Hour)})

	require.Error(t, err)
	assert.Equal(t, 1, opener.opened, "no retry, no second cycle")
	assert.Zero(t, storer.stored)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreErrors))
}

func TestArchiver_RunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := pipeline.New(mockComponent{}, &mockOpener{}, &mockStorer{},
		testConfig(t), slog.New(slog.DiscardHandler), observability.NewMetricsForTesting())
	err := a.Run(ctx, []time.Time{cycle})
	assert.ErrorIs(t, err, context.Canceled)
}

// TestArchiver_EndToEnd exercises the full path on a synthetic 1994-01-01
// cycle with leads 0h and 6h: resolve, fetch, merge, normalize, store.
func TestArchiver_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	_, err := netcdf.WriteFixtureTree(root, cycle, cfg.ForecastHours, cfg.FilePrefixes, netcdf.DefaultFixtureGrid)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	fs := fsio.New(fsio.Options{}, logger)
	reader := netcdf.NewReader(replay.Resolver{Root: root}, fs, false, logger)
	metrics := observability.NewMetricsForTesting()
	store := pipeline.NewStoreWriter(cfg, fs, logger, metrics)

	a := pipeline.New(pipeline.FV3{}, reader, store, cfg, logger, metrics)
	require.NoError(t, a.Run(context.Background(), []time.Time{cycle}))

	// forecast lead time coordinate holds [0h, 6h]
	leads := append(
		readInt64Chunk(t, filepath.Join(cfg.DataPath(), "ftime", "0")),
		readInt64Chunk(t, filepath.Join(cfg.DataPath(), "ftime", "1"))...)
	assert.Equal(t, []int64{0, int64(6 * time.Hour)}, leads)

	// time coordinate holds standard 1994 timestamps
	stamps := append(
		readInt64Chunk(t, filepath.Join(cfg.DataPath(), "time", "0")),
		readInt64Chunk(t, filepath.Join(cfg.DataPath(), "time", "1"))...)
	want := time.Date(1994, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []int64{want.UnixNano(), want.Add(6 * time.Hour).UnixNano()}, stamps)

	assert.FileExists(t, filepath.Join(cfg.CoordsPath(), "ak", ".zarray"))
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.FilesOpened))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CyclesStored))
}

func readInt64Chunk(t *testing.T, path string) []int64 {
	t.Helper()
	compressed, err := os.ReadFile(path)
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)
	out := make([]int64, len(raw)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out
}
