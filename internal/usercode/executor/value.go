package executor

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

var ErrUnsupportedValue = errors.New("unsupported value")

// ToStarlark converts a Go value made of maps, slices and scalars into a
// mutable Starlark value. Values that already are Starlark values pass through.
func ToStarlark(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case bool:
		return starlark.Bool(v), nil
	case string:
		return starlark.String(v), nil
	case []byte:
		return starlark.Bytes(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int8:
		return starlark.MakeInt64(int64(v)), nil
	case int16:
		return starlark.MakeInt64(int64(v)), nil
	case int32:
		return starlark.MakeInt64(int64(v)), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint:
		return starlark.MakeUint(v), nil
	case uint8:
		return starlark.MakeUint64(uint64(v)), nil
	case uint16:
		return starlark.MakeUint64(uint64(v)), nil
	case uint32:
		return starlark.MakeUint64(uint64(v)), nil
	case uint64:
		return starlark.MakeUint64(v), nil
	case float32:
		return starlark.Float(v), nil
	case float64:
		return starlark.Float(v), nil
	case time.Time:
		return starlark.String(v.Format(time.RFC3339Nano)), nil
	case time.Duration:
		return starlark.String(v.String()), nil
	case map[string]any:
		d := starlark.NewDict(len(v))
		for _, k := range sortedKeys(v) {
			sv, err := ToStarlark(v[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	case map[string]string:
		d := starlark.NewDict(len(v))
		for k, s := range v {
			if err := d.SetKey(starlark.String(k), starlark.String(s)); err != nil {
				return nil, err
			}
		}
		return d, nil
	case []any:
		elems := make([]starlark.Value, 0, len(v))
		for i, e := range v {
			sv, err := ToStarlark(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case []string:
		elems := make([]starlark.Value, 0, len(v))
		for _, s := range v {
			elems = append(elems, starlark.String(s))
		}
		return starlark.NewList(elems), nil
	}
	return reflectToStarlark(reflect.ValueOf(v))
}

// reflectToStarlark handles typed maps and slices such as []map[string]any.
func reflectToStarlark(rv reflect.Value) (starlark.Value, error) {
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		d := starlark.NewDict(rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			sv, err := ToStarlark(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(iter.Key().String()), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	case reflect.Slice, reflect.Array:
		elems := make([]starlark.Value, 0, rv.Len())
		for i := range rv.Len() {
			sv, err := ToStarlark(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return starlark.None, nil
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, rv.Interface())
}

// FromStarlark converts a Starlark value back into plain Go values. Dicts
// become map[string]any and must have string keys.
func FromStarlark(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.String:
		return string(v), nil
	case starlark.Bytes:
		return []byte(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return new(big.Int).Set(v.BigInt()), nil
	case starlark.Float:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite float", ErrUnsupportedValue)
		}
		return f, nil
	case *starlark.Dict:
		return dictToMap(v)
	case *starlark.List:
		return iterableToSlice(v, v.Len())
	case starlark.Tuple:
		return iterableToSlice(v, v.Len())
	case *starlark.Set:
		return iterableToSlice(v, v.Len())
	case *starlarkstruct.Struct:
		d := make(starlark.StringDict)
		v.ToStringDict(d)
		out := make(map[string]any, len(d))
		for k, sv := range d {
			gv, err := FromStarlark(sv)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = gv
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedValue, v.Type())
}

func dictToMap(d *starlark.Dict) (map[string]any, error) {
	out := make(map[string]any, d.Len())
	for _, item := range d.Items() {
		k, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("%w: dict key %s", ErrUnsupportedValue, item[0].Type())
		}
		gv, err := FromStarlark(item[1])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = gv
	}
	return out, nil
}

func iterableToSlice(it starlark.Iterable, n int) ([]any, error) {
	out := make([]any, 0, n)
	iter := it.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		gv, err := FromStarlark(x)
		if err != nil {
			return nil, err
		}
		out = append(out, gv)
	}
	return out, nil
}

// ToStringDict converts bindings into Starlark globals.
func ToStringDict(bindings map[string]any) (starlark.StringDict, error) {
	out := make(starlark.StringDict, len(bindings))
	for _, k := range sortedKeys(bindings) {
		sv, err := ToStarlark(bindings[k])
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", k, err)
		}
		out[k] = sv
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
