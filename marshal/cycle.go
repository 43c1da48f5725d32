package marshal

import (
	"reflect"

	"github.com/caffeineduck/starctx/errors"
	"go.starlark.net/starlark"
)

// visited holds the containers on the current conversion path. Entries are
// removed on the way out so shared, acyclic references still convert.
type visited map[any]struct{}

// enter marks key as in progress and reports false if it already was.
func (s visited) enter(key any) bool {
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

func (s visited) leave(key any) { delete(s, key) }

// refKey identifies a Go pointer, map or slice. Slices sharing a backing
// array but differing in length are distinct values.
type refKey struct {
	ptr uintptr
	len int
	typ reflect.Type
}

func goRef(rv reflect.Value) (refKey, bool) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		if rv.IsNil() {
			return refKey{}, false
		}
		return refKey{ptr: rv.Pointer(), typ: rv.Type()}, true
	case reflect.Slice:
		if rv.IsNil() || rv.Len() == 0 {
			return refKey{}, false
		}
		return refKey{ptr: rv.Pointer(), len: rv.Len(), typ: rv.Type()}, true
	}
	return refKey{}, false
}

// starRef returns the identity of a mutable Starlark container. Only
// lists, dicts and sets can hold themselves.
func starRef(v starlark.Value) (starlark.Value, bool) {
	switch v.(type) {
	case *starlark.List, *starlark.Dict, *starlark.Set:
		return v, true
	}
	return nil, false
}

func cyclic(phase errors.Phase, path []string, goType, starType string) error {
	b := errors.New(phase, errors.KindUnsupported).Path(path...)
	if goType != "" {
		b = b.GoType(goType)
	}
	if starType != "" {
		b = b.StarType(starType)
	}
	return b.Detail("cyclic value").Build()
}
