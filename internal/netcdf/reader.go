// Package netcdf reads replay NetCDF output into datasets. One cycle spans
// several files (one per file prefix per forecast hour); Open fetches each,
// filters duplicated fields, and merges them into a single dataset
// concatenated along the time dimension.
package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	nc "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/ufs-archive/ufs2arco/internal/cftime"
	"github.com/ufs-archive/ufs2arco/internal/dataset"
	"github.com/ufs-archive/ufs2arco/internal/fsio"
	"github.com/ufs-archive/ufs2arco/internal/replay"
)

// timeDim is the record dimension files are concatenated along.
const timeDim = "time"

// dynamicsVars are fields only the dynamics files hold authoritatively. When
// a file carries any of them alongside surface pressure, its surface pressure
// copy is a duplicate and is dropped in favor of the physics one.
var dynamicsVars = []string{"tmp", "ugrd", "vgrd", "spfh", "o3mr"}

const surfacePressure = "pressfc"

// Reader opens one cycle's worth of replay files as a merged dataset.
type Reader struct {
	resolver replay.Resolver
	fs       *fsio.FS
	cache    bool
	logger   *slog.Logger
}

// NewReader creates a Reader over one archive root. With cache set, fetched
// remote files are reused across cycles sharing static fields.
func NewReader(resolver replay.Resolver, fs *fsio.FS, cache bool, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{resolver: resolver, fs: fs, cache: cache, logger: logger}
}

// Open resolves, fetches, and merges every file of one cycle. Data variables
// stay lazy: the merged dataset records where each variable lives and reads
// it back only when the store step materializes it. I/O failures propagate
// without retry.
func (r *Reader) Open(ctx context.Context, cycle time.Time, fhrs []int, prefixes []string) (*dataset.Dataset, error) {
	if len(fhrs) == 0 {
		return nil, fmt.Errorf("netcdf: no forecast hours requested")
	}
	if len(prefixes) == 0 {
		return nil, fmt.Errorf("netcdf: no file prefixes requested")
	}

	uris := r.resolver.Paths(cycle, fhrs, prefixes)
	if r.cache {
		uris = r.resolver.CachedPaths(cycle, fhrs, prefixes)
	}

	scans := make([]*fileScan, len(uris))
	for i, uri := range uris {
		local, err := r.fs.Fetch(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("netcdf: fetch %s: %w", uri, err)
		}
		scan, err := r.scanFile(local)
		if err != nil {
			return nil, fmt.Errorf("netcdf: open %s: %w", uri, err)
		}
		scans[i] = scan
	}

	ds, err := merge(scans, len(fhrs))
	if err != nil {
		return nil, err
	}
	r.logger.Info("opened cycle",
		"cycle", replay.CycleToken(cycle),
		"files", len(uris),
		"variables", len(ds.Names()))
	return ds, nil
}

// fileScan is the metadata of one source file: everything needed to merge
// without holding the data. Static (time-free) variables are small and loaded
// up front; record variables keep only their element count.
type fileScan struct {
	path      string
	attrs     map[string]any
	names     []string
	dims      map[string][]string
	varAttrs  map[string]map[string]any
	static    map[string]any
	recordLen map[string]int64
	times     []cftime.Date
	timeAttrs map[string]any
}

func (r *Reader) scanFile(path string) (*fileScan, error) {
	g, err := nc.Open(path)
	if err != nil {
		return nil, err
	}
	defer g.Close()

	s := &fileScan{
		path:      path,
		attrs:     attrsMap(g.Attributes()),
		dims:      map[string][]string{},
		varAttrs:  map[string]map[string]any{},
		static:    map[string]any{},
		recordLen: map[string]int64{},
	}

	names := g.ListVariables()
	if dropped := preprocess(names); len(dropped) < len(names) {
		r.logger.Debug("dropping duplicated surface pressure", "file", path)
		names = dropped
	}
	s.names = names

	for _, name := range names {
		vg, err := g.GetVarGetter(name)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		s.dims[name] = vg.Dimensions()
		s.varAttrs[name] = attrsMap(vg.Attributes())

		switch {
		case name == timeDim:
			if err := s.decodeTimes(vg); err != nil {
				return nil, err
			}
		case slices.Contains(vg.Dimensions(), timeDim):
			s.recordLen[name] = vg.Len()
		default:
			values, err := vg.Values()
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", name, err)
			}
			flat, _, err := flatten(values)
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", name, err)
			}
			s.static[name] = flat
		}
	}

	if s.times == nil {
		return nil, fmt.Errorf("no %q variable in %s", timeDim, path)
	}
	return s, nil
}

func (s *fileScan) decodeTimes(vg api.VarGetter) error {
	values, err := vg.Values()
	if err != nil {
		return fmt.Errorf("time axis: %w", err)
	}
	flat, _, err := flatten(values)
	if err != nil {
		return fmt.Errorf("time axis: %w", err)
	}
	raw, err := toFloat64s(flat)
	if err != nil {
		return fmt.Errorf("time axis: %w", err)
	}

	attrs := attrsMap(vg.Attributes())
	units, _ := attrs["units"].(string)
	calendar, _ := attrs["calendar"].(string)
	s.times, err = cftime.Decode(raw, units, calendar)
	if err != nil {
		return fmt.Errorf("time axis: %w", err)
	}
	s.timeAttrs = attrs
	return nil
}

// preprocess drops the duplicated surface pressure copy from files that also
// carry dynamics fields. Everything else passes through untouched.
func preprocess(names []string) []string {
	hasDynamics := slices.ContainsFunc(names, func(n string) bool {
		return slices.Contains(dynamicsVars, n)
	})
	if !hasDynamics || !slices.Contains(names, surfacePressure) {
		return names
	}
	return slices.DeleteFunc(slices.Clone(names), func(n string) bool {
		return n == surfacePressure
	})
}

// merge combines per-file scans into one dataset. Files are grouped by
// forecast hour (the resolver emits prefix-major order, so group f holds
// scans[p*nfhr+f] for each prefix p); variables present at every hour are
// concatenated along time, static variables are taken from the first file
// carrying them.
func merge(scans []*fileScan, nfhr int) (*dataset.Dataset, error) {
	nprefix := len(scans) / nfhr

	groups := make([][]*fileScan, nfhr)
	for f := range nfhr {
		groups[f] = make([]*fileScan, nprefix)
		for p := range nprefix {
			groups[f][p] = scans[p*nfhr+f]
		}
	}

	var times []cftime.Date
	for _, group := range groups {
		first := group[0]
		for _, other := range group[1:] {
			if !slices.Equal(first.times, other.times) {
				return nil, fmt.Errorf("netcdf: time axes of %s and %s disagree", first.path, other.path)
			}
		}
		times = append(times, first.times...)
	}

	ds := dataset.New()
	for _, scan := range scans {
		for k, v := range scan.attrs {
			if _, ok := ds.Attrs[k]; !ok {
				ds.Attrs[k] = v
			}
		}
	}
	if err := ds.AddDim(timeDim, len(times)); err != nil {
		return nil, err
	}
	if err := ds.SetVar(timeDim, dataset.NewVariable(times, []string{timeDim}, groups[0][0].timeAttrs)); err != nil {
		return nil, err
	}

	// static variables first so their dimensions are registered before any
	// record variable needs them
	for _, scan := range scans {
		for _, name := range scan.names {
			flat, ok := scan.static[name]
			if !ok || ds.Has(name) {
				continue
			}
			v := dataset.NewVariable(flat, scan.dims[name], scan.varAttrs[name])
			if err := ds.SetVar(name, v); err != nil {
				return nil, fmt.Errorf("netcdf: merge %q from %s: %w", name, scan.path, err)
			}
		}
	}

	for p := range nprefix {
		for _, name := range groups[0][p].names {
			if _, ok := groups[0][p].recordLen[name]; !ok || ds.Has(name) {
				continue
			}
			if err := mergeRecordVar(ds, groups, p, name, len(times)); err != nil {
				return nil, err
			}
		}
	}

	var coords []string
	for _, name := range ds.Names() {
		if ds.HasDim(name) {
			coords = append(coords, name)
		}
	}
	if err := ds.SetCoords(coords...); err != nil {
		return nil, err
	}
	return ds, nil
}

// mergeRecordVar registers one time-spanning variable as a lazy concatenation
// over the files holding it, one per forecast hour.
func mergeRecordVar(ds *dataset.Dataset, groups [][]*fileScan, prefix int, name string, ntime int) error {
	first := groups[0][prefix]
	dims := first.dims[name]
	if len(dims) == 0 || dims[0] != timeDim {
		return fmt.Errorf("netcdf: %q in %s must lead with the %s dimension, has %v",
			name, first.path, timeDim, dims)
	}

	paths := make([]string, len(groups))
	for f, group := range groups {
		scan := group[prefix]
		if _, ok := scan.recordLen[name]; !ok {
			return fmt.Errorf("netcdf: %q is missing from %s", name, scan.path)
		}
		if !slices.Equal(scan.dims[name], dims) {
			return fmt.Errorf("netcdf: %q has dims %v in %s but %v in %s",
				name, scan.dims[name], scan.path, dims, first.path)
		}
		paths[f] = scan.path
	}

	// every dimension must be sized before the lazy variable goes in; a
	// single unknown one can be inferred from the element count
	perStep := int64(1)
	unknown := ""
	for _, d := range dims[1:] {
		if n, ok := ds.DimSize(d); ok {
			perStep *= int64(n)
		} else if unknown == "" {
			unknown = d
		} else {
			return fmt.Errorf("netcdf: cannot size dims %q and %q of %q", unknown, d, name)
		}
	}
	if unknown != "" {
		steps := int64(len(first.times))
		total := first.recordLen[name]
		if perStep == 0 || total%(perStep*steps) != 0 {
			return fmt.Errorf("netcdf: cannot infer size of dim %q for %q", unknown, name)
		}
		if err := ds.AddDim(unknown, int(total/(perStep*steps))); err != nil {
			return err
		}
		perStep *= total / (perStep * steps)
	}

	want := int64(ntime) * perStep
	load := func() (any, error) {
		flats := make([]any, 0, len(paths))
		for _, p := range paths {
			flat, err := readVar(p, name)
			if err != nil {
				return nil, err
			}
			flats = append(flats, flat)
		}
		out, err := concat(flats)
		if err != nil {
			return nil, fmt.Errorf("netcdf: concatenate %q: %w", name, err)
		}
		if got := int64(dataset.Length(out)); got != want {
			return nil, fmt.Errorf("netcdf: %q concatenated to %d values, dims imply %d", name, got, want)
		}
		return out, nil
	}
	return ds.SetVar(name, dataset.NewLazyVariable(load, dims, first.varAttrs[name]))
}

// readVar re-opens one already-fetched local file and reads a whole variable.
func readVar(path, name string) (any, error) {
	g, err := nc.Open(path)
	if err != nil {
		return nil, fmt.Errorf("netcdf: reopen %s: %w", path, err)
	}
	defer g.Close()

	vg, err := g.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("netcdf: %s: %w", path, err)
	}
	values, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("netcdf: read %q from %s: %w", name, path, err)
	}
	flat, _, err := flatten(values)
	return flat, err
}
