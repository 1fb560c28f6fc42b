package pipeline

import (
	"fmt"
	"time"

	"github.com/ufs-archive/ufs2arco/internal/cftime"
	"github.com/ufs-archive/ufs2arco/internal/config"
	"github.com/ufs-archive/ufs2arco/internal/dataset"
)

// FV3 is the atmosphere component of the replay output.
type FV3 struct{}

func (FV3) Name() string { return "FV3Dataset" }

func (FV3) Defaults() config.Defaults {
	return config.Defaults{
		ZarrName: "fv3.zarr",
		ChunksIn: config.ChunkMap{
			{Dim: "pfull", Size: 5},
			{Dim: "grid_yt", Size: config.WholeDim},
			{Dim: "grid_xt", Size: config.WholeDim},
		},
		ChunksOut: config.ChunkMap{
			{Dim: "time", Size: 1},
			{Dim: "pfull", Size: 5},
			{Dim: "grid_yt", Size: 30},
			{Dim: "grid_xt", Size: 30},
		},
	}
}

// Normalize rebuilds the time coordinates and fixes up metadata the model
// writes awkwardly:
//
//   - the calendar-aware axis moves to cftime, and time becomes standard
//     timestamps with the same field values
//   - ftime is the forecast lead, the offset of each step from the cycle
//   - the ak/bk hybrid level coefficients move from global attributes to
//     coordinates over phalf
//   - grid_yt gets its misspelled long_name corrected
func (FV3) Normalize(ds *dataset.Dataset, cycle time.Time) error {
	if err := ds.Rename("time", "cftime"); err != nil {
		return fmt.Errorf("pipeline: normalize: %w", err)
	}
	cf := ds.Var("cftime")
	values, err := cf.Values()
	if err != nil {
		return fmt.Errorf("pipeline: normalize: %w", err)
	}
	dates, ok := values.([]cftime.Date)
	if !ok {
		return fmt.Errorf("pipeline: normalize: cftime axis holds %T, expected decoded dates", values)
	}

	stdTimes := make([]time.Time, len(dates))
	leads := make([]time.Duration, len(dates))
	for i, d := range dates {
		stdTimes[i] = d.Time()
		leads[i] = stdTimes[i].Sub(cycle.UTC())
	}

	if err := ds.SetVar("time", dataset.NewVariable(stdTimes, []string{"cftime"}, map[string]any{
		"long_name": "time",
		"axis":      "T",
	})); err != nil {
		return err
	}
	if err := ds.SwapDims("cftime", "time"); err != nil {
		return err
	}
	if err := ds.SetVar("ftime", dataset.NewVariable(leads, []string{"time"}, map[string]any{
		"long_name":   "forecast_time",
		"description": fmt.Sprintf("time passed since %s", cycle.UTC().Format("2006-01-02 15:04:05")),
		"axis":        "T",
	})); err != nil {
		return err
	}
	if err := ds.SetCoords("ftime"); err != nil {
		return err
	}

	if ds.HasDim("phalf") {
		for _, name := range []string{"ak", "bk"} {
			if _, ok := ds.Attrs[name]; !ok {
				continue
			}
			if err := ds.AttrToCoord(name, "phalf"); err != nil {
				return fmt.Errorf("pipeline: normalize: %w", err)
			}
		}
	}

	if v := ds.Var("grid_yt"); v != nil {
		v.Attrs["long_name"] = "T-cell latitude"
	}

	ds.Attrs["history"] = fmt.Sprintf("processed by ufs2arco at %s",
		clock.Now().UTC().Format(time.RFC3339))
	return nil
}
