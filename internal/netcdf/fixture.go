package netcdf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/ufs-archive/ufs2arco/internal/replay"
)

// FixtureGrid sizes a synthetic replay file. Levels is the number of full
// model levels; the interface dimension gets one more.
type FixtureGrid struct {
	Levels int
	NY     int
	NX     int
}

// DefaultFixtureGrid is small enough for tests and large enough to exercise
// chunk edges.
var DefaultFixtureGrid = FixtureGrid{Levels: 2, NY: 4, NX: 6}

// WriteFixture writes one synthetic replay NetCDF file for the given cycle
// and forecast hour. With dynamics set it mimics an sfg_ file (3-d fields
// plus the duplicated surface pressure); otherwise a bfg_ physics file
// (2-d surface fields). Field values are deterministic functions of their
// indices and the forecast hour so tests can assert on content.
func WriteFixture(path string, cycle time.Time, fhr int, dynamics bool, grid FixtureGrid) error {
	cw, err := cdf.NewCDFWriter(path)
	if err != nil {
		return fmt.Errorf("netcdf: create fixture %s: %w", path, err)
	}

	if err := writeFixtureVars(cw, cycle, fhr, dynamics, grid); err != nil {
		cw.Close()
		return fmt.Errorf("netcdf: fixture %s: %w", path, err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("netcdf: close fixture %s: %w", path, err)
	}
	return nil
}

func writeFixtureVars(cw *cdf.CDFWriter, cycle time.Time, fhr int, dynamics bool, grid FixtureGrid) error {
	units := fmt.Sprintf("hours since %s", cycle.UTC().Format("2006-01-02 15:04:05"))
	timeAttrs, err := util.NewOrderedMap(
		[]string{"units", "calendar", "long_name"},
		map[string]any{"units": units, "calendar": "julian", "long_name": "time"})
	if err != nil {
		return err
	}
	if err := cw.AddVar(timeDim, api.Variable{
		Values:     []float64{float64(fhr)},
		Dimensions: []string{timeDim},
		Attributes: timeAttrs,
	}); err != nil {
		return err
	}

	pfull := make([]float32, grid.Levels)
	phalf := make([]float32, grid.Levels+1)
	for i := range phalf {
		phalf[i] = float32(100 * i)
	}
	for i := range pfull {
		pfull[i] = (phalf[i] + phalf[i+1]) / 2
	}
	if err := addCoord(cw, "pfull", pfull, "ref full pressure level", "mb"); err != nil {
		return err
	}
	if err := addCoord(cw, "phalf", phalf, "ref half pressure level", "mb"); err != nil {
		return err
	}

	lats := make([]float64, grid.NY)
	for j := range lats {
		lats[j] = -45 + 90*float64(j)/float64(grid.NY)
	}
	lons := make([]float64, grid.NX)
	for i := range lons {
		lons[i] = 360 * float64(i) / float64(grid.NX)
	}
	// replay output misspells the latitude long_name; the pipeline corrects it
	if err := addCoord(cw, "grid_yt", lats, "T-cell latiitude", "degrees_N"); err != nil {
		return err
	}
	if err := addCoord(cw, "grid_xt", lons, "T-cell longitude", "degrees_E"); err != nil {
		return err
	}

	if dynamics {
		if err := addField3D(cw, "tmp", "temperature", "K", fhr, grid); err != nil {
			return err
		}
		if err := addField3D(cw, "spfh", "specific humidity", "kg/kg", fhr, grid); err != nil {
			return err
		}
	} else {
		if err := addField2D(cw, "tmp2m", "2m temperature", "K", fhr, grid); err != nil {
			return err
		}
	}
	// both families carry surface pressure; only the physics copy is kept
	if err := addField2D(cw, surfacePressure, "surface pressure", "Pa", fhr, grid); err != nil {
		return err
	}

	ak := make([]float64, grid.Levels+1)
	bk := make([]float64, grid.Levels+1)
	for i := range ak {
		ak[i] = float64(i) * 10
		bk[i] = float64(i) / float64(grid.Levels)
	}
	global, err := util.NewOrderedMap(
		[]string{"source", "grid", "ak", "bk"},
		map[string]any{
			"source": "FV3-GFS",
			"grid":   "gaussian",
			"ak":     ak,
			"bk":     bk,
		})
	if err != nil {
		return err
	}
	return cw.AddGlobalAttrs(global)
}

func addCoord[T float32 | float64](cw *cdf.CDFWriter, name string, values []T, longName, units string) error {
	attrs, err := util.NewOrderedMap(
		[]string{"long_name", "units"},
		map[string]any{"long_name": longName, "units": units})
	if err != nil {
		return err
	}
	return cw.AddVar(name, api.Variable{
		Values:     values,
		Dimensions: []string{name},
		Attributes: attrs,
	})
}

// fieldValue keeps fixture data deterministic and distinct per variable,
// level, cell, and forecast hour.
func fieldValue(name string, fhr, level, j, i int) float32 {
	base := float32(len(name) * 100)
	return base + float32(fhr)*1000 + float32(level)*100 + float32(j)*10 + float32(i)
}

func addField2D(cw *cdf.CDFWriter, name, longName, units string, fhr int, grid FixtureGrid) error {
	rows := make([][]float32, grid.NY)
	for j := range rows {
		rows[j] = make([]float32, grid.NX)
		for i := range rows[j] {
			rows[j][i] = fieldValue(name, fhr, 0, j, i)
		}
	}
	attrs, err := util.NewOrderedMap(
		[]string{"long_name", "units"},
		map[string]any{"long_name": longName, "units": units})
	if err != nil {
		return err
	}
	return cw.AddVar(name, api.Variable{
		Values:     [][][]float32{rows},
		Dimensions: []string{timeDim, "grid_yt", "grid_xt"},
		Attributes: attrs,
	})
}

func addField3D(cw *cdf.CDFWriter, name, longName, units string, fhr int, grid FixtureGrid) error {
	levels := make([][][]float32, grid.Levels)
	for l := range levels {
		levels[l] = make([][]float32, grid.NY)
		for j := range levels[l] {
			levels[l][j] = make([]float32, grid.NX)
			for i := range levels[l][j] {
				levels[l][j][i] = fieldValue(name, fhr, l, j, i)
			}
		}
	}
	attrs, err := util.NewOrderedMap(
		[]string{"long_name", "units"},
		map[string]any{"long_name": longName, "units": units})
	if err != nil {
		return err
	}
	return cw.AddVar(name, api.Variable{
		Values:     [][][][]float32{levels},
		Dimensions: []string{timeDim, "pfull", "grid_yt", "grid_xt"},
		Attributes: attrs,
	})
}

// WriteFixtureTree writes a replay directory tree (cycle layout per
// replay.Resolver) under root, one file per prefix and forecast hour.
func WriteFixtureTree(root string, cycle time.Time, fhrs []int, prefixes []string, grid FixtureGrid) ([]string, error) {
	r := replay.Resolver{Root: root}
	paths := r.Paths(cycle, fhrs, prefixes)

	i := 0
	for _, prefix := range prefixes {
		dynamics := prefix == "sfg_"
		for _, fhr := range fhrs {
			if err := mkParent(paths[i]); err != nil {
				return nil, err
			}
			if err := WriteFixture(paths[i], cycle, fhr, dynamics, grid); err != nil {
				return nil, err
			}
			i++
		}
	}
	return paths, nil
}

func mkParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
