package marshal

import (
	"strings"
	"testing"

	"github.com/caffeineduck/starctx/errors"
	"go.starlark.net/starlark"
)

type node struct {
	Name string `starlark:"name"`
	Next *node  `starlark:"next"`
}

func expectCyclic(t *testing.T, err error, path string) {
	t.Helper()
	var se *errors.Error
	if !asError(err, &se) {
		t.Fatalf("expected *errors.Error, got %v", err)
	}
	if se.Kind != errors.KindUnsupported || se.Detail != "cyclic value" {
		t.Errorf("kind/detail = %s/%q, want unsupported/cyclic value", se.Kind, se.Detail)
	}
	if got := strings.Join(se.Path, "."); got != path {
		t.Errorf("Path = %q, want %q", got, path)
	}
}

func selfList() *starlark.List {
	l := starlark.NewList([]starlark.Value{starlark.MakeInt(1)})
	if err := l.Append(l); err != nil {
		panic(err)
	}
	return l
}

func TestToGoSelfContainingList(t *testing.T) {
	_, err := ToGo(selfList())
	expectCyclic(t, err, "1")
}

func TestToGoSelfContainingDict(t *testing.T) {
	d := starlark.NewDict(1)
	if err := d.SetKey(starlark.String("self"), d); err != nil {
		t.Fatal(err)
	}
	_, err := ToGo(d)
	expectCyclic(t, err, "self")
}

func TestToGoIndirectCycle(t *testing.T) {
	inner := starlark.NewList(nil)
	outer := starlark.NewDict(1)
	if err := outer.SetKey(starlark.String("items"), inner); err != nil {
		t.Fatal(err)
	}
	if err := inner.Append(starlark.Tuple{outer}); err != nil {
		t.Fatal(err)
	}
	_, err := ToGo(outer)
	expectCyclic(t, err, "items.0.0")
}

func TestDecodeSelfContaining(t *testing.T) {
	_, err := As[[]any](selfList())
	expectCyclic(t, err, "1")

	_, err = As[any](selfList())
	expectCyclic(t, err, "1")

	d := starlark.NewDict(2)
	_ = d.SetKey(starlark.String("name"), starlark.String("a"))
	_ = d.SetKey(starlark.String("next"), d)
	_, err = As[node](d)
	expectCyclic(t, err, "next")
}

func TestToGoSharedReference(t *testing.T) {
	shared := starlark.NewList([]starlark.Value{starlark.MakeInt(1)})
	outer := starlark.NewList([]starlark.Value{shared, shared})

	got, err := ToGo(outer)
	if err != nil {
		t.Fatalf("ToGo: %v", err)
	}
	if l := got.([]any); len(l) != 2 || len(l[1].([]any)) != 1 {
		t.Errorf("got %v", got)
	}
	if _, err := As[[][]int](outer); err != nil {
		t.Errorf("As[[][]int]: %v", err)
	}
}

func TestToValueSelfReferentialPointer(t *testing.T) {
	n := &node{Name: "a"}
	n.Next = n
	_, err := ToValue(n)
	expectCyclic(t, err, "next")

	a := &node{Name: "a"}
	a.Next = &node{Name: "b", Next: a}
	_, err = ToValue(a)
	expectCyclic(t, err, "next.next")
}

func TestToValueSelfContainingContainers(t *testing.T) {
	m := map[string]any{}
	m["m"] = m
	_, err := ToValue(m)
	expectCyclic(t, err, "m")

	s := make([]any, 1)
	s[0] = s
	_, err = ToValue(s)
	expectCyclic(t, err, "0")
}

func TestToValueSharedReference(t *testing.T) {
	p := &point{X: 1}
	shared := []int{1, 2}
	v, err := ToValue(map[string]any{"a": []*point{p, p}, "b": shared, "c": shared})
	if err != nil {
		t.Fatalf("ToValue: %v", err)
	}
	if n := v.(*starlark.Dict).Len(); n != 3 {
		t.Errorf("Len = %d", n)
	}
}
