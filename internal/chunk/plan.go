// Package chunk maps the configured chunk specification onto a concrete
// dataset. Requested dimensions the dataset does not have are dropped
// silently: one configuration is shared across model components with
// different dimension sets. The whole-dimension sentinel resolves to the
// actual dimension size.
package chunk

import (
	"github.com/ufs-archive/ufs2arco/internal/config"
)

// Plan is an effective chunking for one dataset: only dimensions the dataset
// has, sizes resolved, in the configured mapping order.
type Plan struct {
	chunks []config.DimChunk
}

// New filters requested down to the dims present in the dataset and resolves
// sentinel and oversized chunk sizes to the dimension size.
func New(requested config.ChunkMap, dims map[string]int) Plan {
	var p Plan
	for _, dc := range requested {
		size, ok := dims[dc.Dim]
		if !ok {
			continue
		}
		c := dc.Size
		if c == config.WholeDim || c <= 0 || c > size {
			c = size
		}
		p.chunks = append(p.chunks, config.DimChunk{Dim: dc.Dim, Size: c})
	}
	return p
}

// Dims returns the planned dimension names in mapping order; this is the
// transpose order applied before writing.
func (p Plan) Dims() []string {
	out := make([]string, len(p.chunks))
	for i, dc := range p.chunks {
		out[i] = dc.Dim
	}
	return out
}

// Sizes returns the effective dimension-to-chunk-size mapping.
func (p Plan) Sizes() map[string]int {
	out := make(map[string]int, len(p.chunks))
	for _, dc := range p.chunks {
		out[dc.Dim] = dc.Size
	}
	return out
}

// Empty reports whether no requested dimension survived the intersection.
func (p Plan) Empty() bool { return len(p.chunks) == 0 }

// Bounded shrinks the plan's chunks until one chunk of the widest variable
// fits under maxMem bytes, splitting along the plan's dimension order. The
// result divides the original chunk sizes evenly, so a staged write can
// assemble every target chunk from whole intermediate chunks. elemSize is
// the widest element width in the dataset (8 for float64).
func (p Plan) Bounded(maxMem int64, elemSize int) Plan {
	out := Plan{chunks: make([]config.DimChunk, len(p.chunks))}
	copy(out.chunks, p.chunks)
	if maxMem <= 0 {
		return out
	}

	for i := range out.chunks {
		if out.bytesPerChunk(elemSize) <= maxMem {
			break
		}
		// largest divisor of the original size that brings this dim's
		// contribution low enough, floor 1
		orig := out.chunks[i].Size
		for div := 2; div <= orig; div++ {
			if orig%div != 0 {
				continue
			}
			out.chunks[i].Size = orig / div
			if out.bytesPerChunk(elemSize) <= maxMem {
				break
			}
		}
	}
	return out
}

func (p Plan) bytesPerChunk(elemSize int) int64 {
	n := int64(elemSize)
	for _, dc := range p.chunks {
		n *= int64(dc.Size)
	}
	return n
}
