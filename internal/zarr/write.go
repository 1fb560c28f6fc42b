package zarr

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ufs-archive/ufs2arco/internal/cftime"
	"github.com/ufs-archive/ufs2arco/internal/dataset"
)

// dimensionsAttr is the xarray convention naming each array's dims.
const dimensionsAttr = "_ARRAY_DIMENSIONS"

// Stats summarizes one dataset write.
type Stats struct {
	Arrays int
	Chunks int
	Bytes  int64
}

// Writer persists datasets as zarr v2 groups through a Store.
type Writer struct {
	store  Store
	nested bool
	logger *slog.Logger
	enc    *zstd.Encoder

	consolidated map[string]any
}

// NewWriter creates a Writer. With nested set, chunks are laid out as
// directories per dimension level instead of flat dot-separated keys.
func NewWriter(store Store, nested bool, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &Writer{
		store:        store,
		nested:       nested,
		logger:       logger,
		enc:          enc,
		consolidated: map[string]any{},
	}, nil
}

func (w *Writer) separator() string {
	if w.nested {
		return "/"
	}
	return "."
}

// WriteDataset writes every variable of ds as a zarr array, chunked per the
// chunks map (absent dims get one whole-dimension chunk), and finishes with
// consolidated metadata.
func (w *Writer) WriteDataset(ctx context.Context, ds *dataset.Dataset, chunks map[string]int) (Stats, error) {
	var stats Stats

	groupAttrs := map[string]any{}
	for k, v := range ds.Attrs {
		groupAttrs[k] = v
	}
	if err := w.putJSON(ctx, ".zgroup", GroupMeta{ZarrFormat: Version}); err != nil {
		return stats, err
	}
	if err := w.putJSON(ctx, ".zattrs", groupAttrs); err != nil {
		return stats, err
	}

	nonDimCoords := nonDimCoordNames(ds)

	for _, name := range ds.Names() {
		v := ds.Var(name)
		attrs := map[string]any{dimensionsAttr: v.Dims}
		for k, av := range v.Attrs {
			attrs[k] = av
		}
		if !ds.IsCoord(name) {
			if c := coordsAttrFor(ds, v, nonDimCoords); c != "" {
				attrs["coordinates"] = c
			}
		}

		n, b, err := w.writeArray(ctx, ds, name, chunks, attrs)
		if err != nil {
			return stats, fmt.Errorf("zarr: write %q: %w", name, err)
		}
		stats.Arrays++
		stats.Chunks += n
		stats.Bytes += b
	}

	if err := w.putJSON(ctx, ".zmetadata", ConsolidatedMeta{
		Metadata:               w.consolidated,
		ZarrConsolidatedFormat: 1,
	}); err != nil {
		return stats, err
	}
	return stats, nil
}

func (w *Writer) writeArray(ctx context.Context, ds *dataset.Dataset, name string, chunks map[string]int, attrs map[string]any) (int, int64, error) {
	v := ds.Var(name)
	shape := ds.Shape(name)

	conc, dtype, encAttrs, err := concrete(v)
	if err != nil {
		return 0, 0, err
	}
	for k, av := range encAttrs {
		if _, ok := attrs[k]; !ok {
			attrs[k] = av
		}
	}

	chunkShape := resolveChunkShape(v.Dims, shape, chunks)

	meta := ArrayMeta{
		Chunks:     chunkShape,
		Compressor: &Compressor{ID: "zstd", Level: 1},
		DType:      dtype,
		FillValue:  0,
		Order:      "C",
		Shape:      shape,
		ZarrFormat: Version,
	}
	if w.nested {
		meta.DimensionSeparator = "/"
	}
	if err := w.putJSON(ctx, name+"/.zarray", meta); err != nil {
		return 0, 0, err
	}
	if err := w.putJSON(ctx, name+"/.zattrs", attrs); err != nil {
		return 0, 0, err
	}

	var nchunks int
	var nbytes int64
	grid := GridShape(shape, chunkShape)
	for _, idx := range gridIndices(grid) {
		chunk := gatherAny(conc, shape, chunkShape, idx)
		raw := leBytes(chunk)
		compressed := w.enc.EncodeAll(raw, nil)

		key := name + "/" + ChunkKey(idx, w.separator())
		if err := w.store.Put(ctx, key, compressed); err != nil {
			return nchunks, nbytes, err
		}
		nchunks++
		nbytes += int64(len(compressed))
	}
	return nchunks, nbytes, nil
}

func (w *Writer) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("zarr: marshal %s: %w", key, err)
	}
	if key != ".zmetadata" {
		w.consolidated[key] = v
	}
	return w.store.Put(ctx, key, data)
}

// nonDimCoordNames lists coordinates that are not themselves an index
// dimension; these go into each data variable's "coordinates" attribute.
func nonDimCoordNames(ds *dataset.Dataset) []string {
	var out []string
	for _, name := range ds.Coords() {
		if !ds.HasDim(name) {
			out = append(out, name)
		}
	}
	return out
}

func coordsAttrFor(ds *dataset.Dataset, v *dataset.Variable, nonDim []string) string {
	var keep []string
	for _, c := range nonDim {
		covered := true
		for _, d := range ds.Var(c).Dims {
			if !slices.Contains(v.Dims, d) {
				covered = false
				break
			}
		}
		if covered {
			keep = append(keep, c)
		}
	}
	return strings.Join(keep, " ")
}

// concrete materializes a variable and narrows it to one of the four wire
// kinds, with any encoding attributes (time units, calendars) to merge in.
func concrete(v *dataset.Variable) (any, string, map[string]any, error) {
	data, err := v.Values()
	if err != nil {
		return nil, "", nil, err
	}
	switch d := data.(type) {
	case []float64:
		return d, "<f8", nil, nil
	case []float32:
		return d, "<f4", nil, nil
	case []int64:
		return d, "<i8", nil, nil
	case []int32:
		return d, "<i4", nil, nil
	case []time.Time:
		out := make([]int64, len(d))
		for i, t := range d {
			out[i] = t.UnixNano()
		}
		return out, "<i8", map[string]any{
			"units":    "nanoseconds since 1970-01-01",
			"calendar": "proleptic_gregorian",
		}, nil
	case []time.Duration:
		out := make([]int64, len(d))
		for i, t := range d {
			out[i] = int64(t)
		}
		return out, "<i8", map[string]any{"units": "nanoseconds"}, nil
	case []cftime.Date:
		units, _ := v.Attrs["units"].(string)
		if units == "" {
			units = "seconds since 1970-01-01 00:00:00"
		}
		out, err := cftime.Encode(d, units)
		if err != nil {
			return nil, "", nil, err
		}
		return out, "<f8", map[string]any{"units": units, "calendar": "julian"}, nil
	default:
		return nil, "", nil, fmt.Errorf("unsupported value kind %T", data)
	}
}

// resolveChunkShape maps requested chunk sizes onto one variable's dims; absent,
// non-positive, or oversized entries become one whole-dimension chunk.
func resolveChunkShape(dims []string, shape []int, chunks map[string]int) []int {
	out := make([]int, len(shape))
	for i, dim := range dims {
		c, ok := chunks[dim]
		if !ok || c <= 0 || c > shape[i] {
			c = shape[i]
		}
		out[i] = c
	}
	return out
}

func gridIndices(grid []int) [][]int {
	total := 1
	for _, g := range grid {
		total *= g
	}
	out := make([][]int, 0, total)
	idx := make([]int, len(grid))
	for range total {
		out = append(out, slices.Clone(idx))
		for i := len(grid) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < grid[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

func gatherAny(data any, shape, chunkShape, idx []int) any {
	switch d := data.(type) {
	case []float64:
		return gatherChunk(d, shape, chunkShape, idx)
	case []float32:
		return gatherChunk(d, shape, chunkShape, idx)
	case []int64:
		return gatherChunk(d, shape, chunkShape, idx)
	case []int32:
		return gatherChunk(d, shape, chunkShape, idx)
	default:
		panic(fmt.Sprintf("zarr: gather on %T", data))
	}
}

// gatherChunk copies the chunk at grid index idx out of a flattened
// row-major array. Edge chunks keep the nominal chunk shape; positions past
// the array bounds hold the zero value.
func gatherChunk[T any](src []T, shape, chunkShape, idx []int) []T {
	if len(shape) == 0 {
		return slices.Clone(src)
	}

	n := 1
	for _, c := range chunkShape {
		n *= c
	}
	srcStrides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		srcStrides[i] = s
		s *= shape[i]
	}

	dst := make([]T, n)
	coord := make([]int, len(chunkShape))
	for di := range dst {
		si := 0
		inBounds := true
		for i, c := range coord {
			sc := idx[i]*chunkShape[i] + c
			if sc >= shape[i] {
				inBounds = false
				break
			}
			si += sc * srcStrides[i]
		}
		if inBounds {
			dst[di] = src[si]
		}
		for i := len(coord) - 1; i >= 0; i-- {
			coord[i]++
			if coord[i] < chunkShape[i] {
				break
			}
			coord[i] = 0
		}
	}
	return dst
}

func leBytes(chunk any) []byte {
	var buf bytes.Buffer
	switch d := chunk.(type) {
	case []float64:
		buf.Grow(8 * len(d))
		var b [8]byte
		for _, v := range d {
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
			buf.Write(b[:])
		}
	case []float32:
		buf.Grow(4 * len(d))
		var b [4]byte
		for _, v := range d {
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
			buf.Write(b[:])
		}
	case []int64:
		buf.Grow(8 * len(d))
		var b [8]byte
		for _, v := range d {
			binary.LittleEndian.PutUint64(b[:], uint64(v))
			buf.Write(b[:])
		}
	case []int32:
		buf.Grow(4 * len(d))
		var b [4]byte
		for _, v := range d {
			binary.LittleEndian.PutUint32(b[:], uint32(v))
			buf.Write(b[:])
		}
	}
	return buf.Bytes()
}
