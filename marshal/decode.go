package marshal

import (
	"math/big"
	"reflect"
	"strconv"
	"time"

	"github.com/caffeineduck/starctx/errors"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Unmarshaler is implemented by types that decode themselves from Starlark.
type Unmarshaler interface {
	UnmarshalStarlark(v starlark.Value) error
}

// Decode converts v into the Go value pointed to by dst.
//
// Conversion is strict: an int is only decoded from a Starlark int, a string
// only from a Starlark string, and so on. Floats also accept ints. An empty
// interface receives the natural Go form of v (see ToGo).
func Decode(v starlark.Value, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		goType := "nil"
		if dst != nil {
			goType = rv.Type().String()
		}
		return errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			GoType(goType).
			Detail("destination must be a non-nil pointer").
			Build()
	}
	return decode(v, rv.Elem(), nil, visited{})
}

// As converts v into a value of type T.
func As[T any](v starlark.Value) (T, error) {
	var out T
	err := Decode(v, &out)
	return out, err
}

// GoTypeName returns the printable name of T, used in diagnostics.
func GoTypeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// TypeName returns the printable Go type name of v.
func TypeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

func decode(v starlark.Value, dst reflect.Value, path []string, seen visited) error {
	if v == nil {
		v = starlark.None
	}
	t := dst.Type()

	if dst.CanAddr() {
		if u, ok := dst.Addr().Interface().(Unmarshaler); ok {
			if err := u.UnmarshalStarlark(v); err != nil {
				return errors.New(errors.PhaseDecode, errors.KindInvalidInput).
					Path(path...).
					GoType(t.String()).
					StarType(v.Type()).
					Cause(err).
					Build()
			}
			return nil
		}
	}

	vt := reflect.TypeOf(v)
	if t.Kind() == reflect.Interface && t.NumMethod() > 0 {
		if vt.Implements(t) {
			dst.Set(reflect.ValueOf(v))
			return nil
		}
		return mismatch(v, t, path)
	}
	if t.Kind() != reflect.Interface && vt.AssignableTo(t) {
		dst.Set(reflect.ValueOf(v))
		return nil
	}

	switch t {
	case bigIntType:
		if v == starlark.None {
			dst.Set(reflect.Zero(t))
			return nil
		}
		i, ok := v.(starlark.Int)
		if !ok {
			return mismatch(v, t, path)
		}
		dst.Set(reflect.ValueOf(i.BigInt()))
		return nil
	case timeType:
		tv, ok := v.(startime.Time)
		if !ok {
			return mismatch(v, t, path)
		}
		dst.Set(reflect.ValueOf(time.Time(tv)))
		return nil
	case durationType:
		d, ok := v.(startime.Duration)
		if !ok {
			return mismatch(v, t, path)
		}
		dst.SetInt(int64(d))
		return nil
	}

	switch t.Kind() {
	case reflect.Interface:
		g, err := toGo(v, path, seen)
		if err != nil {
			return err
		}
		if g == nil {
			dst.Set(reflect.Zero(t))
		} else {
			dst.Set(reflect.ValueOf(g))
		}
		return nil

	case reflect.Bool:
		b, ok := v.(starlark.Bool)
		if !ok {
			return mismatch(v, t, path)
		}
		dst.SetBool(bool(b))
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := v.(starlark.Int)
		if !ok {
			return mismatch(v, t, path)
		}
		n, ok := i.Int64()
		if !ok || dst.OverflowInt(n) {
			return errors.Overflow(path, t.String(), i.String())
		}
		dst.SetInt(n)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		i, ok := v.(starlark.Int)
		if !ok {
			return mismatch(v, t, path)
		}
		n, ok := i.Uint64()
		if !ok || dst.OverflowUint(n) {
			return errors.Overflow(path, t.String(), i.String())
		}
		dst.SetUint(n)
		return nil

	case reflect.Float32, reflect.Float64:
		switch v.(type) {
		case starlark.Float, starlark.Int:
		default:
			return mismatch(v, t, path)
		}
		f, _ := starlark.AsFloat(v)
		if dst.OverflowFloat(f) {
			return errors.New(errors.PhaseDecode, errors.KindOverflow).
				Path(path...).
				GoType(t.String()).
				StarType(v.Type()).
				Detail("value %v out of range", f).
				Build()
		}
		dst.SetFloat(f)
		return nil

	case reflect.String:
		s, ok := v.(starlark.String)
		if !ok {
			return mismatch(v, t, path)
		}
		dst.SetString(string(s))
		return nil

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			if b, ok := v.(starlark.Bytes); ok {
				dst.SetBytes([]byte(string(b)))
				return nil
			}
		}
		return decodeSlice(v, dst, path, seen)

	case reflect.Array:
		return decodeArray(v, dst, path, seen)

	case reflect.Map:
		return decodeMap(v, dst, path, seen)

	case reflect.Struct:
		return decodeStruct(v, dst, path, seen)

	case reflect.Pointer:
		if v == starlark.None {
			dst.Set(reflect.Zero(t))
			return nil
		}
		p := reflect.New(t.Elem())
		if err := decode(v, p.Elem(), path, seen); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}

	return errors.Unsupported(errors.PhaseDecode, path, t.String())
}

func decodeSlice(v starlark.Value, dst reflect.Value, path []string, seen visited) error {
	if ref, ok := starRef(v); ok {
		if !seen.enter(ref) {
			return cyclic(errors.PhaseDecode, path, dst.Type().String(), v.Type())
		}
		defer seen.leave(ref)
	}
	iter := starlark.Iterate(v)
	if iter == nil {
		return mismatch(v, dst.Type(), path)
	}
	defer iter.Done()

	n := starlark.Len(v)
	if n < 0 {
		n = 0
	}
	out := reflect.MakeSlice(dst.Type(), 0, n)

	var elem starlark.Value
	for i := 0; iter.Next(&elem); i++ {
		ev := reflect.New(dst.Type().Elem()).Elem()
		if err := decode(elem, ev, appendPath(path, strconv.Itoa(i)), seen); err != nil {
			return err
		}
		out = reflect.Append(out, ev)
	}
	dst.Set(out)
	return nil
}

func decodeArray(v starlark.Value, dst reflect.Value, path []string, seen visited) error {
	if ref, ok := starRef(v); ok {
		if !seen.enter(ref) {
			return cyclic(errors.PhaseDecode, path, dst.Type().String(), v.Type())
		}
		defer seen.leave(ref)
	}
	iter := starlark.Iterate(v)
	if iter == nil {
		return mismatch(v, dst.Type(), path)
	}
	defer iter.Done()

	if n := starlark.Len(v); n != dst.Len() {
		return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			Path(path...).
			GoType(dst.Type().String()).
			StarType(v.Type()).
			Detail("length %d does not match array length %d", n, dst.Len()).
			Build()
	}

	var elem starlark.Value
	for i := 0; iter.Next(&elem); i++ {
		if err := decode(elem, dst.Index(i), appendPath(path, strconv.Itoa(i)), seen); err != nil {
			return err
		}
	}
	return nil
}

func decodeMap(v starlark.Value, dst reflect.Value, path []string, seen visited) error {
	if ref, ok := starRef(v); ok {
		if !seen.enter(ref) {
			return cyclic(errors.PhaseDecode, path, dst.Type().String(), v.Type())
		}
		defer seen.leave(ref)
	}
	t := dst.Type()
	pairs, ok := mapItems(v)
	if !ok {
		return mismatch(v, t, path)
	}

	out := reflect.MakeMapWithSize(t, len(pairs))
	for _, kv := range pairs {
		kp := appendPath(path, keyLabel(kv[0]))
		k := reflect.New(t.Key()).Elem()
		if err := decode(kv[0], k, kp, seen); err != nil {
			return err
		}
		e := reflect.New(t.Elem()).Elem()
		if err := decode(kv[1], e, kp, seen); err != nil {
			return err
		}
		out.SetMapIndex(k, e)
	}
	dst.Set(out)
	return nil
}

func decodeStruct(v starlark.Value, dst reflect.Value, path []string, seen visited) error {
	if ref, ok := starRef(v); ok {
		if !seen.enter(ref) {
			return cyclic(errors.PhaseDecode, path, dst.Type().String(), v.Type())
		}
		defer seen.leave(ref)
	}
	t := dst.Type()
	pairs, ok := mapItems(v)
	if !ok {
		return mismatch(v, t, path)
	}

	fields := structFields(t)
	for _, kv := range pairs {
		key, ok := kv[0].(starlark.String)
		if !ok {
			return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
				Path(path...).
				GoType(t.String()).
				StarType(kv[0].Type()).
				Detail("struct field names must be strings").
				Build()
		}
		f, ok := lookupField(fields, string(key))
		if !ok {
			continue
		}
		if err := decode(kv[1], dst.FieldByIndex(f.index), appendPath(path, f.name), seen); err != nil {
			return err
		}
	}
	return nil
}

// mapItems returns the key/value pairs of a dict or struct.
func mapItems(v starlark.Value) ([]starlark.Tuple, bool) {
	switch x := v.(type) {
	case *starlark.Dict:
		return x.Items(), true
	case *starlarkstruct.Struct:
		names := x.AttrNames()
		items := make([]starlark.Tuple, 0, len(names))
		for _, name := range names {
			av, err := x.Attr(name)
			if err != nil || av == nil {
				continue
			}
			items = append(items, starlark.Tuple{starlark.String(name), av})
		}
		return items, true
	}
	return nil, false
}

func keyLabel(k starlark.Value) string {
	if s, ok := k.(starlark.String); ok {
		return string(s)
	}
	return k.String()
}

func mismatch(v starlark.Value, t reflect.Type, path []string) error {
	return errors.TypeMismatch(errors.PhaseDecode, path, t.String(), v.Type())
}

// ToGo returns the natural Go form of a Starlark value: nil, bool, int64
// (or *big.Int when it does not fit), float64, string, []byte, []any,
// map[string]any (map[any]any for non-string keys), time.Time and
// time.Duration. Values without a Go form, such as functions, are returned
// unchanged.
func ToGo(v starlark.Value) (any, error) {
	return toGo(v, nil, visited{})
}

func toGo(v starlark.Value, path []string, seen visited) (any, error) {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.Int:
		if n, ok := x.Int64(); ok {
			return n, nil
		}
		return new(big.Int).Set(x.BigInt()), nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		return string(x), nil
	case starlark.Bytes:
		return []byte(string(x)), nil
	case startime.Time:
		return time.Time(x), nil
	case startime.Duration:
		return time.Duration(x), nil
	case *starlark.List, *starlark.Set, *starlark.Dict, starlark.Tuple, *starlarkstruct.Struct:
	default:
		return v, nil
	}

	if ref, ok := starRef(v); ok {
		if !seen.enter(ref) {
			return nil, cyclic(errors.PhaseDecode, path, "", v.Type())
		}
		defer seen.leave(ref)
	}
	if pairs, ok := mapItems(v); ok {
		return pairsToGo(pairs, path, seen)
	}
	return iterableToGo(v, path, seen)
}

func iterableToGo(v starlark.Value, path []string, seen visited) (any, error) {
	iter := starlark.Iterate(v)
	defer iter.Done()

	out := make([]any, 0, starlark.Len(v))
	var elem starlark.Value
	for i := 0; iter.Next(&elem); i++ {
		g, err := toGo(elem, appendPath(path, strconv.Itoa(i)), seen)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func pairsToGo(pairs []starlark.Tuple, path []string, seen visited) (any, error) {
	allStrings := true
	for _, kv := range pairs {
		if _, ok := kv[0].(starlark.String); !ok {
			allStrings = false
			break
		}
	}

	if allStrings {
		out := make(map[string]any, len(pairs))
		for _, kv := range pairs {
			key := string(kv[0].(starlark.String))
			g, err := toGo(kv[1], appendPath(path, key), seen)
			if err != nil {
				return nil, err
			}
			out[key] = g
		}
		return out, nil
	}

	out := make(map[any]any, len(pairs))
	for _, kv := range pairs {
		kp := appendPath(path, keyLabel(kv[0]))
		k, err := toGo(kv[0], kp, seen)
		if err != nil {
			return nil, err
		}
		if k != nil && !reflect.TypeOf(k).Comparable() {
			return nil, errors.New(errors.PhaseDecode, errors.KindUnsupported).
				Path(kp...).
				GoType(reflect.TypeOf(k).String()).
				StarType(kv[0].Type()).
				Detail("dict key has no comparable Go form").
				Build()
		}
		g, err := toGo(kv[1], kp, seen)
		if err != nil {
			return nil, err
		}
		out[k] = g
	}
	return out, nil
}
