package marshal

import (
	"reflect"
	"strings"
	"sync"
)

const tagName = "starlark"

type field struct {
	name  string
	index []int
}

var fieldCache sync.Map // reflect.Type -> []field

// structFields lists the exported fields of t under their Starlark names.
// The `starlark:"name"` tag renames a field and `starlark:"-"` skips it.
// Embedded structs without a tag are flattened.
func structFields(t reflect.Type) []field {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]field)
	}

	var fields []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get(tagName)
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		if sf.Anonymous && name == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				// Embedded pointers would need allocation on decode.
				continue
			}
			if ft.Kind() == reflect.Struct {
				for _, inner := range structFields(ft) {
					fields = append(fields, field{
						name:  inner.name,
						index: append([]int{i}, inner.index...),
					})
				}
				continue
			}
		}

		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		fields = append(fields, field{name: name, index: []int{i}})
	}

	fieldCache.Store(t, fields)
	return fields
}

// lookupField finds a field by exact name, falling back to a
// case-insensitive match.
func lookupField(fields []field, name string) (field, bool) {
	for _, f := range fields {
		if f.name == name {
			return f, true
		}
	}
	for _, f := range fields {
		if strings.EqualFold(f.name, name) {
			return f, true
		}
	}
	return field{}, false
}
