// Package marshal converts between Go values and Starlark values.
//
// ToValue turns a Go value into a Starlark value. Decode and As convert a
// Starlark value into a requested Go type, failing with a structured error
// that names the nested path and both types when the value does not fit.
//
// Types can take over their own conversion by implementing Marshaler or
// Unmarshaler.
package marshal

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/caffeineduck/starctx/errors"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Marshaler is implemented by types that convert themselves to Starlark.
type Marshaler interface {
	MarshalStarlark() (starlark.Value, error)
}

var (
	marshalerType = reflect.TypeOf((*Marshaler)(nil)).Elem()
	valueType     = reflect.TypeOf((*starlark.Value)(nil)).Elem()
	bigIntType    = reflect.TypeOf((*big.Int)(nil))
	timeType      = reflect.TypeOf(time.Time{})
	durationType  = reflect.TypeOf(time.Duration(0))
)

// ToValue converts a Go value into a Starlark value.
func ToValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	return encode(reflect.ValueOf(v), nil, visited{})
}

// MustToValue is like ToValue but panics on error.
func MustToValue(v any) starlark.Value {
	sv, err := ToValue(v)
	if err != nil {
		panic(err)
	}
	return sv
}

func encode(rv reflect.Value, path []string, seen visited) (starlark.Value, error) {
	if !rv.IsValid() {
		return starlark.None, nil
	}

	t := rv.Type()

	if t.Implements(valueType) {
		if isNilable(rv) && rv.IsNil() {
			return starlark.None, nil
		}
		return rv.Interface().(starlark.Value), nil
	}

	if t.Implements(marshalerType) {
		if isNilable(rv) && rv.IsNil() {
			return starlark.None, nil
		}
		sv, err := rv.Interface().(Marshaler).MarshalStarlark()
		if err != nil {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path(path...).
				GoType(t.String()).
				Cause(err).
				Build()
		}
		return sv, nil
	}

	switch t {
	case bigIntType:
		if rv.IsNil() {
			return starlark.None, nil
		}
		return starlark.MakeBigInt(rv.Interface().(*big.Int)), nil
	case timeType:
		return startime.Time(rv.Interface().(time.Time)), nil
	case durationType:
		return startime.Duration(time.Duration(rv.Int())), nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return starlark.Bool(rv.Bool()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(rv.Int()), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return starlark.MakeUint64(rv.Uint()), nil

	case reflect.Float32, reflect.Float64:
		return starlark.Float(rv.Float()), nil

	case reflect.String:
		return starlark.String(rv.String()), nil

	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return starlark.None, nil
		}
		if rv.Kind() == reflect.Pointer {
			return encodeRef(rv, path, seen, func() (starlark.Value, error) {
				return encode(rv.Elem(), path, seen)
			})
		}
		return encode(rv.Elem(), path, seen)

	case reflect.Slice:
		if rv.IsNil() {
			return starlark.NewList(nil), nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return starlark.Bytes(rv.Bytes()), nil
		}
		return encodeRef(rv, path, seen, func() (starlark.Value, error) {
			return encodeList(rv, path, seen)
		})

	case reflect.Array:
		return encodeList(rv, path, seen)

	case reflect.Map:
		return encodeRef(rv, path, seen, func() (starlark.Value, error) {
			return encodeMap(rv, path, seen)
		})

	case reflect.Struct:
		return encodeStruct(rv, path, seen)
	}

	return nil, errors.Unsupported(errors.PhaseEncode, path, t.String())
}

func encodeList(rv reflect.Value, path []string, seen visited) (starlark.Value, error) {
	elems := make([]starlark.Value, rv.Len())
	for i := range elems {
		ev, err := encode(rv.Index(i), appendPath(path, strconv.Itoa(i)), seen)
		if err != nil {
			return nil, err
		}
		elems[i] = ev
	}
	return starlark.NewList(elems), nil
}

func encodeMap(rv reflect.Value, path []string, seen visited) (starlark.Value, error) {
	keys := rv.MapKeys()
	// Deterministic insertion order for dicts built from Go maps.
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})

	d := starlark.NewDict(len(keys))
	for _, k := range keys {
		kp := appendPath(path, fmt.Sprint(k.Interface()))
		sk, err := encode(k, kp, seen)
		if err != nil {
			return nil, err
		}
		sv, err := encode(rv.MapIndex(k), kp, seen)
		if err != nil {
			return nil, err
		}
		if err := d.SetKey(sk, sv); err != nil {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path(kp...).
				GoType(k.Type().String()).
				StarType(sk.Type()).
				Cause(err).
				Build()
		}
	}
	return d, nil
}

func encodeStruct(rv reflect.Value, path []string, seen visited) (starlark.Value, error) {
	fields := structFields(rv.Type())
	members := make(starlark.StringDict, len(fields))
	for _, f := range fields {
		sv, err := encode(rv.FieldByIndex(f.index), appendPath(path, f.name), seen)
		if err != nil {
			return nil, err
		}
		members[f.name] = sv
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, members), nil
}

func isNilable(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// encodeRef runs fn with rv marked as in progress, failing if rv is already
// being encoded further up the path.
func encodeRef(rv reflect.Value, path []string, seen visited, fn func() (starlark.Value, error)) (starlark.Value, error) {
	ref, ok := goRef(rv)
	if !ok {
		return fn()
	}
	if !seen.enter(ref) {
		return nil, cyclic(errors.PhaseEncode, path, rv.Type().String(), "")
	}
	defer seen.leave(ref)
	return fn()
}

func appendPath(path []string, elem string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}
