package netcdf

import (
	"fmt"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// flatten converts the nested row-major slices returned by the NetCDF layer
// (e.g. [][][]float32) into a flat slice plus its shape. Scalars become a
// one-element slice with an empty shape.
func flatten(values any) (any, []int, error) {
	rv := reflect.ValueOf(values)

	var shape []int
	for rv.Kind() == reflect.Slice {
		shape = append(shape, rv.Len())
		if rv.Len() == 0 {
			break
		}
		rv = rv.Index(0)
	}

	switch rv.Kind() {
	case reflect.Float64:
		return flattenAs[float64](values, shape), shape, nil
	case reflect.Float32:
		return flattenAs[float32](values, shape), shape, nil
	case reflect.Int64:
		return flattenAs[int64](values, shape), shape, nil
	case reflect.Int32:
		return flattenAs[int32](values, shape), shape, nil
	case reflect.Int16:
		flat := flattenAs[int16](values, shape)
		out := make([]int32, len(flat))
		for i, v := range flat {
			out[i] = int32(v)
		}
		return out, shape, nil
	case reflect.Int8:
		flat := flattenAs[int8](values, shape)
		out := make([]int32, len(flat))
		for i, v := range flat {
			out[i] = int32(v)
		}
		return out, shape, nil
	default:
		return nil, nil, fmt.Errorf("netcdf: unsupported value kind %s", rv.Kind())
	}
}

func flattenAs[T any](values any, shape []int) []T {
	n := 1
	for _, s := range shape {
		n *= s
	}
	out := make([]T, 0, n)
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		if v.Kind() != reflect.Slice {
			out = append(out, v.Interface().(T))
			return
		}
		for i := 0; i < v.Len(); i++ {
			walk(v.Index(i))
		}
	}
	walk(reflect.ValueOf(values))
	return out
}

// concat appends flat slices of the same kind.
func concat(flats []any) (any, error) {
	if len(flats) == 0 {
		return nil, fmt.Errorf("netcdf: nothing to concatenate")
	}
	switch flats[0].(type) {
	case []float64:
		return concatAs[float64](flats)
	case []float32:
		return concatAs[float32](flats)
	case []int64:
		return concatAs[int64](flats)
	case []int32:
		return concatAs[int32](flats)
	default:
		return nil, fmt.Errorf("netcdf: cannot concatenate %T", flats[0])
	}
}

func concatAs[T any](flats []any) (any, error) {
	var out []T
	for _, f := range flats {
		s, ok := f.([]T)
		if !ok {
			return nil, fmt.Errorf("netcdf: mixed kinds in concatenation: %T vs %T", flats[0], f)
		}
		out = append(out, s...)
	}
	return out, nil
}

// toFloat64s widens a flat numeric slice, used for decoding time offsets.
func toFloat64s(flat any) ([]float64, error) {
	switch d := flat.(type) {
	case []float64:
		return d, nil
	case []float32:
		out := make([]float64, len(d))
		for i, v := range d {
			out[i] = float64(v)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(d))
		for i, v := range d {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(d))
		for i, v := range d {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("netcdf: cannot widen %T", flat)
	}
}

// attrsMap copies a NetCDF attribute map into a plain map in key order.
func attrsMap(am api.AttributeMap) map[string]any {
	out := map[string]any{}
	if am == nil {
		return out
	}
	for _, k := range am.Keys() {
		if v, ok := am.Get(k); ok {
			out[k] = v
		}
	}
	return out
}
