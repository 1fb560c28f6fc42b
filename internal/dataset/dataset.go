// Package dataset implements a small labeled multi-dimensional array
// collection: named dimensions, coordinate and data variables, and
// attributes. It carries just the operations the archiving pipeline needs
// (rename, dim swap, coordinate promotion/demotion, subsetting, transpose);
// it is not a general array library.
//
// Variable values stay lazy until first use: a variable constructed with a
// loader function defers its read until Values is called, which happens at
// store time. Intermediate pipeline stages only touch names, dims, and attrs.
package dataset

import (
	"fmt"
	"slices"
	"time"

	"github.com/ufs-archive/ufs2arco/internal/cftime"
)

// Variable is one named array: flattened row-major values plus dimension
// names and attributes. Values may be deferred behind a loader.
type Variable struct {
	Dims  []string
	Attrs map[string]any

	data any
	load func() (any, error)
}

// NewVariable creates a materialized variable. Supported value kinds are
// []float64, []float32, []int64, []int32, []time.Time, []time.Duration,
// and []cftime.Date, flattened row-major.
func NewVariable(data any, dims []string, attrs map[string]any) *Variable {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &Variable{Dims: dims, Attrs: attrs, data: data}
}

// NewLazyVariable creates a variable whose values are produced by load on
// first access. The loader runs at most once.
func NewLazyVariable(load func() (any, error), dims []string, attrs map[string]any) *Variable {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &Variable{Dims: dims, Attrs: attrs, load: load}
}

// Values materializes and returns the flattened values.
func (v *Variable) Values() (any, error) {
	if v.data == nil && v.load != nil {
		data, err := v.load()
		if err != nil {
			return nil, err
		}
		v.data = data
		v.load = nil
	}
	return v.data, nil
}

// Loaded reports whether the values are already in memory.
func (v *Variable) Loaded() bool { return v.data != nil }

// HasDim reports whether the variable spans the named dimension.
func (v *Variable) HasDim(dim string) bool { return slices.Contains(v.Dims, dim) }

// Float64s materializes the values and widens numeric kinds to float64.
func (v *Variable) Float64s() ([]float64, error) {
	data, err := v.Values()
	if err != nil {
		return nil, err
	}
	switch d := data.(type) {
	case []float64:
		return d, nil
	case []float32:
		out := make([]float64, len(d))
		for i, x := range d {
			out[i] = float64(x)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(d))
		for i, x := range d {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(d))
		for i, x := range d {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dataset: cannot widen %T to float64", data)
	}
}

// Length returns the flattened length of a supported value kind.
func Length(data any) int {
	switch d := data.(type) {
	case []float64:
		return len(d)
	case []float32:
		return len(d)
	case []int64:
		return len(d)
	case []int32:
		return len(d)
	case []time.Time:
		return len(d)
	case []time.Duration:
		return len(d)
	case []cftime.Date:
		return len(d)
	default:
		return -1
	}
}

// Dataset is a collection of variables sharing a dimension namespace, a
// subset of which are flagged as coordinates.
type Dataset struct {
	Attrs map[string]any

	dims   map[string]int
	vars   map[string]*Variable
	order  []string
	coords map[string]struct{}
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{
		Attrs:  map[string]any{},
		dims:   map[string]int{},
		vars:   map[string]*Variable{},
		coords: map[string]struct{}{},
	}
}

// AddDim registers a dimension size. Re-registering with a different size is
// an error; dimension sizes are fixed for the life of the dataset.
func (ds *Dataset) AddDim(name string, size int) error {
	if have, ok := ds.dims[name]; ok && have != size {
		return fmt.Errorf("dataset: dim %q size %d conflicts with existing size %d", name, size, have)
	}
	ds.dims[name] = size
	return nil
}

// SetVar adds or replaces a variable. Every dimension the variable spans
// must already be registered, except that a one-dimensional variable may
// introduce its own dimension, sized from its values.
func (ds *Dataset) SetVar(name string, v *Variable) error {
	for _, dim := range v.Dims {
		if _, ok := ds.dims[dim]; !ok {
			if len(v.Dims) != 1 || !v.Loaded() {
				return fmt.Errorf("dataset: variable %q references unknown dim %q", name, dim)
			}
			ds.dims[dim] = Length(v.data)
		}
	}
	if v.Loaded() {
		if want, got := ds.size(v.Dims), Length(v.data); got >= 0 && want != got {
			return fmt.Errorf("dataset: variable %q has %d values, dims %v imply %d", name, got, v.Dims, want)
		}
	}
	if _, ok := ds.vars[name]; !ok {
		ds.order = append(ds.order, name)
	}
	ds.vars[name] = v
	return nil
}

func (ds *Dataset) size(dims []string) int {
	n := 1
	for _, d := range dims {
		n *= ds.dims[d]
	}
	return n
}

// Var returns the named variable, or nil.
func (ds *Dataset) Var(name string) *Variable { return ds.vars[name] }

// Has reports whether the named variable exists.
func (ds *Dataset) Has(name string) bool { _, ok := ds.vars[name]; return ok }

// HasDim reports whether the named dimension exists.
func (ds *Dataset) HasDim(name string) bool { _, ok := ds.dims[name]; return ok }

// DimSize returns the size of a dimension.
func (ds *Dataset) DimSize(name string) (int, bool) { n, ok := ds.dims[name]; return n, ok }

// Dims returns a copy of the dimension size map.
func (ds *Dataset) Dims() map[string]int {
	out := make(map[string]int, len(ds.dims))
	for k, v := range ds.dims {
		out[k] = v
	}
	return out
}

// Names returns all variable names in insertion order.
func (ds *Dataset) Names() []string { return slices.Clone(ds.order) }

// Shape returns the dimension sizes of a variable, in its dim order.
func (ds *Dataset) Shape(name string) []int {
	v := ds.vars[name]
	if v == nil {
		return nil
	}
	shape := make([]int, len(v.Dims))
	for i, d := range v.Dims {
		shape[i] = ds.dims[d]
	}
	return shape
}

// IsCoord reports whether the named variable is flagged as a coordinate.
func (ds *Dataset) IsCoord(name string) bool { _, ok := ds.coords[name]; return ok }

// SetCoords flags existing variables as coordinates. Unknown names error.
func (ds *Dataset) SetCoords(names ...string) error {
	for _, n := range names {
		if _, ok := ds.vars[n]; !ok {
			return fmt.Errorf("dataset: cannot set unknown variable %q as coordinate", n)
		}
		ds.coords[n] = struct{}{}
	}
	return nil
}

// ResetCoords demotes every coordinate to a plain data variable.
func (ds *Dataset) ResetCoords() {
	ds.coords = map[string]struct{}{}
}

// Coords returns coordinate variable names in insertion order.
func (ds *Dataset) Coords() []string {
	var out []string
	for _, n := range ds.order {
		if ds.IsCoord(n) {
			out = append(out, n)
		}
	}
	return out
}

// DataVars returns non-coordinate variable names in insertion order.
func (ds *Dataset) DataVars() []string {
	var out []string
	for _, n := range ds.order {
		if !ds.IsCoord(n) {
			out = append(out, n)
		}
	}
	return out
}

// Drop removes a variable. Its dimensions remain registered.
func (ds *Dataset) Drop(name string) {
	delete(ds.vars, name)
	delete(ds.coords, name)
	ds.order = slices.DeleteFunc(ds.order, func(s string) bool { return s == name })
}
