// Package zarr writes Zarr v2 directory stores: one group per dataset, one
// array per variable, chunked and zstd-compressed, with the xarray
// _ARRAY_DIMENSIONS convention so the archives open as labeled datasets.
package zarr

import (
	"strconv"
	"strings"
)

// Version is the zarr_format written into every array and group.
const Version = 2

// ArrayMeta is the .zarray metadata document.
type ArrayMeta struct {
	Chunks             []int       `json:"chunks"`
	Compressor         *Compressor `json:"compressor"`
	DType              string      `json:"dtype"`
	FillValue          any         `json:"fill_value"`
	Filters            any         `json:"filters"`
	Order              string      `json:"order"`
	Shape              []int       `json:"shape"`
	ZarrFormat         int         `json:"zarr_format"`
	DimensionSeparator string      `json:"dimension_separator,omitempty"`
}

// Compressor identifies the numcodecs codec applied to each chunk.
type Compressor struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
}

// GroupMeta is the .zgroup document.
type GroupMeta struct {
	ZarrFormat int `json:"zarr_format"`
}

// ConsolidatedMeta is the .zmetadata document: every metadata key in the
// store collected into one object so readers can avoid per-array round trips.
type ConsolidatedMeta struct {
	Metadata             map[string]any `json:"metadata"`
	ZarrConsolidatedFormat int          `json:"zarr_consolidated_format"`
}

// GridShape is the per-dimension chunk count: ceil(shape[i] / chunks[i]).
func GridShape(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// ChunkKey formats chunk grid indices with the given separator ("." for the
// flat layout, "/" for nested directories). Scalars use the key "0".
func ChunkKey(indices []int, separator string) string {
	if len(indices) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, idx := range indices {
		if i > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(strconv.Itoa(idx))
	}
	return sb.String()
}
