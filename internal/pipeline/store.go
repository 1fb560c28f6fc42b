package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ufs-archive/ufs2arco/internal/chunk"
	"github.com/ufs-archive/ufs2arco/internal/config"
	"github.com/ufs-archive/ufs2arco/internal/dataset"
	"github.com/ufs-archive/ufs2arco/internal/fsio"
	"github.com/ufs-archive/ufs2arco/internal/observability"
	"github.com/ufs-archive/ufs2arco/internal/zarr"
)

// timeCoordNames are the coordinates that stay with the forecast store; all
// other coordinates live in the one-time coordinate store.
var timeCoordNames = []string{"time", "cftime", "ftime"}

// CoordInvariantError reports that the configured coordinate subset still
// contains data variables. Writing it would mix forecast fields into the
// shared coordinate store, so the write is refused.
type CoordInvariantError struct {
	DataVars []string
}

func (e *CoordInvariantError) Error() string {
	return fmt.Sprintf("pipeline: coordinate subset contains data variables %v; coords must name only coordinate variables", e.DataVars)
}

// StoreWriter persists a normalized dataset: static coordinates once, the
// forecast fields every cycle.
type StoreWriter struct {
	cfg     *config.Config
	fs      *fsio.FS
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStoreWriter creates a StoreWriter.
func NewStoreWriter(cfg *config.Config, fs *fsio.FS, logger *slog.Logger, metrics *observability.Metrics) *StoreWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreWriter{cfg: cfg, fs: fs, logger: logger, metrics: metrics}
}

// Store writes the coordinate store if it does not exist yet, then the
// forecast store. A coordinate invariant violation aborts before anything is
// written.
func (s *StoreWriter) Store(ctx context.Context, ds *dataset.Dataset) error {
	if err := s.storeCoords(ctx, ds); err != nil {
		return err
	}
	return s.storeData(ctx, ds)
}

func (s *StoreWriter) storeCoords(ctx context.Context, ds *dataset.Dataset) error {
	if len(s.cfg.Coords) == 0 {
		s.logger.Debug("no coordinates configured, skipping coordinate store")
		return nil
	}

	target := s.cfg.CoordsPath()
	exists, err := s.fs.Exists(ctx, target)
	if err != nil {
		return fmt.Errorf("pipeline: probe %s: %w", target, err)
	}
	if exists {
		s.logger.Info("coordinates already stored, skipping", "path", target)
		return nil
	}

	// configured names absent from the dataset drop out silently here; the
	// same coords list serves several resolutions with different grids
	sub := ds.Subset(s.cfg.Coords)
	if err := sub.IselFirst("member"); err != nil {
		return err
	}
	if dv := sub.DataVars(); len(dv) > 0 {
		return &CoordInvariantError{DataVars: dv}
	}
	if len(sub.Names()) == 0 {
		s.logger.Warn("none of the configured coordinates are present, skipping coordinate store",
			"coords", s.cfg.Coords)
		return nil
	}

	plan := chunk.New(s.cfg.ChunksOut, sub.Dims())
	if err := sub.Transpose(plan.Dims()); err != nil {
		return err
	}

	stats, err := s.write(ctx, sub, target, plan, false)
	if err != nil {
		return err
	}
	s.logger.Info("stored coordinate dataset", "path", target,
		"arrays", stats.Arrays, "chunks", stats.Chunks, "bytes", stats.Bytes)
	return nil
}

func (s *StoreWriter) storeData(ctx context.Context, ds *dataset.Dataset) error {
	ds.ResetCoords()
	for _, name := range s.cfg.Coords {
		if ds.Has(name) {
			ds.Drop(name)
		}
	}
	var timeCoords []string
	for _, name := range timeCoordNames {
		if ds.Has(name) {
			timeCoords = append(timeCoords, name)
		}
	}
	if err := ds.SetCoords(timeCoords...); err != nil {
		return err
	}

	if len(s.cfg.DataVars) > 0 {
		keep := slices.Clone(timeCoords)
		for _, name := range s.cfg.DataVars {
			if !ds.Has(name) {
				s.logger.Warn("requested data variable not in dataset, skipping", "variable", name)
				continue
			}
			keep = append(keep, name)
		}
		ds = ds.Subset(keep)
	}

	plan := chunk.New(s.cfg.ChunksOut, ds.Dims())
	if err := ds.Transpose(plan.Dims()); err != nil {
		return err
	}

	target := s.cfg.DataPath()
	stats, err := s.write(ctx, ds, target, plan, s.cfg.MaxMem > 0)
	if err != nil {
		return err
	}
	s.logger.Info("stored forecast dataset", "path", target,
		"arrays", stats.Arrays, "chunks", stats.Chunks, "bytes", stats.Bytes)
	return nil
}

// write opens the store at target and writes ds, staged through the
// configured temp store when a memory ceiling applies.
func (s *StoreWriter) write(ctx context.Context, ds *dataset.Dataset, target string, plan chunk.Plan, staged bool) (zarr.Stats, error) {
	label := "data"
	if target == s.cfg.CoordsPath() {
		label = "coordinates"
	}

	store, err := s.openStore(ctx, target)
	if err != nil {
		return zarr.Stats{}, fmt.Errorf("pipeline: open store %s: %w", target, err)
	}
	defer store.Close()

	w, err := zarr.NewWriter(store, s.cfg.Nested, s.logger)
	if err != nil {
		return zarr.Stats{}, err
	}

	start := clock.Now()
	var stats zarr.Stats
	if staged {
		// one chunk of float64 is the worst case the ceiling has to hold
		intermediate := plan.Bounded(s.cfg.MaxMem, 8)
		stats, err = w.WriteDatasetStaged(ctx, ds, plan.Sizes(), intermediate.Sizes(), s.cfg.TempStore)
	} else {
		stats, err = w.WriteDataset(ctx, ds, plan.Sizes())
	}
	if err != nil {
		return stats, fmt.Errorf("pipeline: write %s: %w", target, err)
	}
	s.observe(label, stats, clock.Since(start))
	return stats, nil
}

func (s *StoreWriter) openStore(ctx context.Context, target string) (zarr.Store, error) {
	if fsio.IsRemote(target) {
		bucket, key, err := s.fs.OpenBucket(ctx, target)
		if err != nil {
			return nil, err
		}
		return &zarr.BucketStore{Bucket: bucket, Prefix: strings.TrimSuffix(key, "/")}, nil
	}
	return zarr.NewDirectoryStore(strings.TrimPrefix(target, "file://"))
}

func (s *StoreWriter) observe(target string, stats zarr.Stats, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ArraysWritten.WithLabelValues(target).Add(float64(stats.Arrays))
	s.metrics.ChunksWritten.WithLabelValues(target).Add(float64(stats.Chunks))
	s.metrics.BytesWritten.WithLabelValues(target).Add(float64(stats.Bytes))
	s.metrics.StoreDuration.WithLabelValues(target).Observe(elapsed.Seconds())
}
