package zarr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/ufs-archive/ufs2arco/internal/dataset"
)

// WriteDatasetStaged writes ds in two passes to respect a memory ceiling:
// pass one persists intermediate chunks (sized under the ceiling by the
// chunk planner) into a temporary directory store, pass two assembles each
// target chunk from whole intermediate chunks, reading back only what one
// target chunk needs. Intermediate chunk sizes must divide the target chunk
// sizes; the planner guarantees this.
//
// The temporary store is caller-provided and assumed exclusive to this
// operation; its contents are overwritten and left in place on failure for
// inspection.
func (w *Writer) WriteDatasetStaged(ctx context.Context, ds *dataset.Dataset, target, intermediate map[string]int, tempDir string) (Stats, error) {
	var stats Stats

	tempStore, err := NewDirectoryStore(tempDir)
	if err != nil {
		return stats, err
	}
	tmp := &Writer{
		store:        tempStore,
		nested:       false,
		logger:       w.logger,
		enc:          w.enc,
		consolidated: map[string]any{},
	}
	if _, err := tmp.WriteDataset(ctx, ds, intermediate); err != nil {
		return stats, fmt.Errorf("zarr: staged pass one: %w", err)
	}
	w.logger.Info("staged rechunk: intermediate store written", "temp_store", tempDir)

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return stats, err
	}
	defer dec.Close()

	if err := w.putJSON(ctx, ".zgroup", tmp.consolidated[".zgroup"]); err != nil {
		return stats, err
	}
	if err := w.putJSON(ctx, ".zattrs", tmp.consolidated[".zattrs"]); err != nil {
		return stats, err
	}

	for _, name := range ds.Names() {
		interMeta, ok := tmp.consolidated[name+"/.zarray"].(ArrayMeta)
		if !ok {
			return stats, fmt.Errorf("zarr: staged pass two: no intermediate metadata for %q", name)
		}
		n, b, err := w.assembleArray(ctx, dec, name, ds.Var(name).Dims, interMeta,
			tmp.consolidated[name+"/.zattrs"], target, tempDir)
		if err != nil {
			return stats, fmt.Errorf("zarr: staged pass two %q: %w", name, err)
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

func (w *Writer) assembleArray(ctx context.Context, dec *zstd.Decoder, name string, dims []string, interMeta ArrayMeta, attrs any, target map[string]int, tempDir string) (int, int64, error) {
	shape := interMeta.Shape
	interChunk := interMeta.Chunks
	targetChunk := resolveChunkShape(dims, shape, target)
	elem := elemSizeOf(interMeta.DType)
	if elem == 0 {
		return 0, 0, fmt.Errorf("unknown dtype %q", interMeta.DType)
	}

	ratio := make([]int, len(shape))
	for i := range shape {
		if targetChunk[i]%interChunk[i] != 0 {
			return 0, 0, fmt.Errorf("intermediate chunk %d does not divide target chunk %d on %s",
				interChunk[i], targetChunk[i], dims[i])
		}
		ratio[i] = targetChunk[i] / interChunk[i]
	}

	meta := interMeta
	meta.Chunks = targetChunk
	meta.DimensionSeparator = ""
	if w.nested {
		meta.DimensionSeparator = "/"
	}
	if err := w.putJSON(ctx, name+"/.zarray", meta); err != nil {
		return 0, 0, err
	}
	if err := w.putJSON(ctx, name+"/.zattrs", attrs); err != nil {
		return 0, 0, err
	}

	targetSize := elem
	for _, c := range targetChunk {
		targetSize *= c
	}

	var nchunks int
	var nbytes int64
	for _, tIdx := range gridIndices(GridShape(shape, targetChunk)) {
		buf := make([]byte, targetSize)
		for _, j := range gridIndices(ratio) {
			iIdx := make([]int, len(shape))
			for d := range shape {
				iIdx[d] = tIdx[d]*ratio[d] + j[d]
			}
			// edge target chunks may reach past the intermediate grid
			if outsideGrid(iIdx, GridShape(shape, interChunk)) {
				continue
			}
			raw, err := readTempChunk(dec, tempDir, name, iIdx)
			if err != nil {
				return nchunks, nbytes, err
			}
			scatter(buf, raw, elem, interChunk, targetChunk, j)
		}

		compressed := w.enc.EncodeAll(buf, nil)
		key := name + "/" + ChunkKey(tIdx, w.separator())
		if err := w.store.Put(ctx, key, compressed); err != nil {
			return nchunks, nbytes, err
		}
		nchunks++
		nbytes += int64(len(compressed))
	}
	return nchunks, nbytes, nil
}

func outsideGrid(idx, grid []int) bool {
	for i := range idx {
		if idx[i] >= grid[i] {
			return true
		}
	}
	return false
}

func readTempChunk(dec *zstd.Decoder, tempDir, name string, idx []int) ([]byte, error) {
	p := filepath.Join(tempDir, name, ChunkKey(idx, "."))
	compressed, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(compressed, nil)
}

// scatter copies one intermediate chunk into its position j (in intermediate
// chunk units) inside a target chunk buffer, row by contiguous row.
func scatter(dst, src []byte, elem int, interChunk, targetChunk, j []int) {
	n := len(interChunk)
	if n == 0 {
		copy(dst, src)
		return
	}

	rowLen := interChunk[n-1] * elem
	outer := 1
	for _, c := range interChunk[:n-1] {
		outer *= c
	}

	tStrides := make([]int, n)
	s := 1
	for i := n - 1; i >= 0; i-- {
		tStrides[i] = s
		s *= targetChunk[i]
	}

	coord := make([]int, n-1)
	for r := 0; r < outer; r++ {
		ti := j[n-1] * interChunk[n-1] // column offset within the target chunk
		for i, c := range coord {
			ti += (j[i]*interChunk[i] + c) * tStrides[i]
		}
		copy(dst[ti*elem:ti*elem+rowLen], src[r*rowLen:(r+1)*rowLen])

		for i := n - 2; i >= 0; i-- {
			coord[i]++
			if coord[i] < interChunk[i] {
				break
			}
			coord[i] = 0
		}
	}
}

func elemSizeOf(dtype string) int {
	switch dtype {
	case "<f8", "<i8":
		return 8
	case "<f4", "<i4":
		return 4
	default:
		return 0
	}
}
