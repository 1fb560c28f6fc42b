package dataset

import (
	"fmt"
	"slices"
	"time"

	"github.com/ufs-archive/ufs2arco/internal/cftime"
)

// Rename renames a variable and/or dimension. Both namespaces are checked,
// matching the usual labeled-array convention where an index coordinate and
// its dimension share a name.
func (ds *Dataset) Rename(old, new string) error {
	foundVar := ds.renameVar(old, new)
	foundDim := ds.renameDim(old, new)
	if !foundVar && !foundDim {
		return fmt.Errorf("dataset: rename: no variable or dim named %q", old)
	}
	return nil
}

func (ds *Dataset) renameVar(old, new string) bool {
	v, ok := ds.vars[old]
	if !ok {
		return false
	}
	delete(ds.vars, old)
	ds.vars[new] = v
	if i := slices.Index(ds.order, old); i >= 0 {
		ds.order[i] = new
	}
	if _, ok := ds.coords[old]; ok {
		delete(ds.coords, old)
		ds.coords[new] = struct{}{}
	}
	return true
}

func (ds *Dataset) renameDim(old, new string) bool {
	size, ok := ds.dims[old]
	if !ok {
		return false
	}
	delete(ds.dims, old)
	ds.dims[new] = size
	for _, v := range ds.vars {
		for i, d := range v.Dims {
			if d == old {
				v.Dims[i] = new
			}
		}
	}
	return true
}

// SwapDims makes the variable named to the indexing coordinate of the
// dimension currently named from. The from variable, if present, is retained
// as a non-indexing coordinate over the renamed dimension.
func (ds *Dataset) SwapDims(from, to string) error {
	if _, ok := ds.dims[from]; !ok {
		return fmt.Errorf("dataset: swap dims: unknown dim %q", from)
	}
	v, ok := ds.vars[to]
	if !ok {
		return fmt.Errorf("dataset: swap dims: unknown variable %q", to)
	}
	if len(v.Dims) != 1 || v.Dims[0] != from {
		return fmt.Errorf("dataset: swap dims: variable %q does not index dim %q", to, from)
	}
	ds.renameDim(from, to)
	return ds.SetCoords(to)
}

// Subset returns a new dataset holding only the named variables (unknown
// names are ignored), their dimensions, and the global attributes.
// Coordinate flags are preserved. Variables are shared, not copied.
func (ds *Dataset) Subset(names []string) *Dataset {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}

	out := New()
	for k, v := range ds.Attrs {
		out.Attrs[k] = v
	}
	for _, n := range ds.order {
		if _, ok := keep[n]; !ok {
			continue
		}
		v := ds.vars[n]
		for _, d := range v.Dims {
			out.dims[d] = ds.dims[d]
		}
		out.vars[n] = v
		out.order = append(out.order, n)
		if ds.IsCoord(n) {
			out.coords[n] = struct{}{}
		}
	}
	return out
}

// IselFirst selects index 0 along the named dimension for every variable
// spanning it, removes the dimension, and drops the dimension's own
// coordinate variable. Used to collapse the ensemble member axis, where
// static coordinates are identical across members.
func (ds *Dataset) IselFirst(dim string) error {
	if _, ok := ds.dims[dim]; !ok {
		return nil
	}
	for _, n := range ds.order {
		v := ds.vars[n]
		axis := slices.Index(v.Dims, dim)
		if axis < 0 {
			continue
		}
		data, err := v.Values()
		if err != nil {
			return fmt.Errorf("dataset: select %q[%s=0]: %w", n, dim, err)
		}
		shape := ds.Shape(n)
		v.data = applySelectFirst(data, shape, axis)
		v.Dims = slices.Delete(slices.Clone(v.Dims), axis, axis+1)
	}
	delete(ds.dims, dim)
	ds.Drop(dim)
	return nil
}

// Transpose reorders each variable's dimensions so that dims named in order
// come first, in that sequence; dimensions not named keep their relative
// positions after them. Variables are materialized as needed.
func (ds *Dataset) Transpose(order []string) error {
	for _, n := range ds.order {
		v := ds.vars[n]
		target := transposedDims(v.Dims, order)
		if slices.Equal(target, v.Dims) {
			continue
		}
		perm := make([]int, len(target))
		for i, d := range target {
			perm[i] = slices.Index(v.Dims, d)
		}
		data, err := v.Values()
		if err != nil {
			return fmt.Errorf("dataset: transpose %q: %w", n, err)
		}
		v.data = applyPermute(data, ds.Shape(n), perm)
		v.Dims = target
	}
	return nil
}

// AttrToCoord promotes a numeric global attribute to a coordinate variable
// over the named dimension and removes the attribute. The attribute length
// must match the dimension size.
func (ds *Dataset) AttrToCoord(name, dim string) error {
	raw, ok := ds.Attrs[name]
	if !ok {
		return fmt.Errorf("dataset: no attribute %q to promote", name)
	}
	n := Length(raw)
	if n < 0 {
		return fmt.Errorf("dataset: attribute %q is %T, not promotable", name, raw)
	}
	if size, ok := ds.dims[dim]; !ok || n != size {
		return fmt.Errorf("dataset: attribute %q has %d values, dim %q has %d", name, n, dim, size)
	}
	if err := ds.SetVar(name, NewVariable(raw, []string{dim}, nil)); err != nil {
		return err
	}
	delete(ds.Attrs, name)
	return ds.SetCoords(name)
}

func transposedDims(dims, order []string) []string {
	out := make([]string, 0, len(dims))
	for _, d := range order {
		if slices.Contains(dims, d) {
			out = append(out, d)
		}
	}
	for _, d := range dims {
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

func applyPermute(data any, shape []int, perm []int) any {
	switch d := data.(type) {
	case []float64:
		return permute(d, shape, perm)
	case []float32:
		return permute(d, shape, perm)
	case []int64:
		return permute(d, shape, perm)
	case []int32:
		return permute(d, shape, perm)
	case []time.Time:
		return permute(d, shape, perm)
	case []time.Duration:
		return permute(d, shape, perm)
	case []cftime.Date:
		return permute(d, shape, perm)
	default:
		return data
	}
}

// permute rearranges a flattened row-major array into the axis order given
// by perm, where perm[i] names the source axis that becomes destination
// axis i.
func permute[T any](src []T, shape []int, perm []int) []T {
	n := len(shape)
	dstShape := make([]int, n)
	for i, p := range perm {
		dstShape[i] = shape[p]
	}

	srcStrides := strides(shape)
	dst := make([]T, len(src))
	coord := make([]int, n)
	for di := range dst {
		si := 0
		for i, c := range coord {
			si += c * srcStrides[perm[i]]
		}
		dst[di] = src[si]

		for i := n - 1; i >= 0; i-- {
			coord[i]++
			if coord[i] < dstShape[i] {
				break
			}
			coord[i] = 0
		}
	}
	return dst
}

func applySelectFirst(data any, shape []int, axis int) any {
	switch d := data.(type) {
	case []float64:
		return selectFirst(d, shape, axis)
	case []float32:
		return selectFirst(d, shape, axis)
	case []int64:
		return selectFirst(d, shape, axis)
	case []int32:
		return selectFirst(d, shape, axis)
	case []time.Time:
		return selectFirst(d, shape, axis)
	case []time.Duration:
		return selectFirst(d, shape, axis)
	case []cftime.Date:
		return selectFirst(d, shape, axis)
	default:
		return data
	}
}

// selectFirst extracts the index-0 hyperslab along axis from a flattened
// row-major array.
func selectFirst[T any](src []T, shape []int, axis int) []T {
	outer := 1
	for _, s := range shape[:axis] {
		outer *= s
	}
	inner := 1
	for _, s := range shape[axis+1:] {
		inner *= s
	}

	dst := make([]T, 0, outer*inner)
	block := shape[axis] * inner
	for o := 0; o < outer; o++ {
		start := o * block
		dst = append(dst, src[start:start+inner]...)
	}
	return dst
}

func strides(shape []int) []int {
	out := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		out[i] = s
		s *= shape[i]
	}
	return out
}
