package operation_test

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
)

func TestSelectionSet_Merge(t *testing.T) {
	s := newSchema(t)
	T := position.Type{Kind: position.ObjectKind, Name: "T"}

	a, err := operation.ParseFieldSet(s, T, "v1 sub { v1 }")
	if err != nil {
		t.Fatal(err)
	}
	b, err := operation.ParseFieldSet(s, T, "sub { v2 } v3")
	if err != nil {
		t.Fatal(err)
	}

	merged, err := a.Merge(b)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if got, want := merged.String(), "{ v1 sub { v1 v2 } v3 }"; got != want {
		t.Errorf("want %s, got %s", want, got)
	}
	if got, want := a.String(), "{ v1 sub { v1 } }"; got != want {
		t.Errorf("merge must not modify its receiver: want %s, got %s", want, got)
	}

	same, err := a.Merge(operation.NewSelectionSet(s, T))
	if err != nil {
		t.Fatal(err)
	}
	if same != a {
		t.Error("merging an empty set should return the receiver")
	}
}

func TestSelectionSet_MergeWrongParent(t *testing.T) {
	s := newSchema(t)
	a, _ := operation.ParseFieldSet(s, position.Type{Kind: position.ObjectKind, Name: "T"}, "v1")
	b, _ := operation.ParseFieldSet(s, position.Type{Kind: position.ObjectKind, Name: "Z"}, "z")
	if _, err := a.Merge(b); err == nil {
		t.Error("expected error when merging sets of different parent types")
	}
}

func TestSelectionSet_AddAtPath(t *testing.T) {
	s := newSchema(t)
	query := position.Type{Kind: position.ObjectKind, Name: "Query"}
	T := position.Type{Kind: position.ObjectKind, Name: "T"}

	leaf, err := operation.ParseFieldSet(s, T, "v1")
	if err != nil {
		t.Fatal(err)
	}

	root := operation.NewSelectionSet(s, query)
	withPath, err := root.AddAtPath([]operation.PathElement{
		operation.FieldElement("t"),
		operation.FieldElement("sub"),
	}, leaf)
	if err != nil {
		t.Fatalf("AddAtPath failed: %v", err)
	}
	if got, want := withPath.String(), "{ t { sub { v1 } } }"; got != want {
		t.Errorf("want %s, got %s", want, got)
	}
	if !root.IsEmpty() {
		t.Error("AddAtPath must not modify its receiver")
	}

	more, err := operation.ParseFieldSet(s, T, "v2")
	if err != nil {
		t.Fatal(err)
	}
	again, err := withPath.AddAtPath([]operation.PathElement{operation.FieldElement("t")}, more)
	if err != nil {
		t.Fatalf("AddAtPath failed: %v", err)
	}
	if got, want := again.String(), "{ t { sub { v1 } v2 } }"; got != want {
		t.Errorf("want %s, got %s", want, got)
	}

	empty := operation.NewSelectionSet(s, query)
	unchanged, err := empty.AddAtPath([]operation.PathElement{
		operation.FieldElement("i"),
		operation.FragmentElement("A"),
	}, nil)
	if err != nil {
		t.Fatalf("AddAtPath failed: %v", err)
	}
	if unchanged != empty {
		t.Errorf("an empty addition must not create the path, got %s", unchanged)
	}

	if _, err := withPath.AddAtPath([]operation.PathElement{
		operation.FieldElement("t"),
		operation.FieldElement("v1"),
		operation.FieldElement("x"),
	}, nil); err == nil {
		t.Error("expected error when descending below a leaf")
	}
}

func TestSelectionSet_AddAtPathRebasesFragments(t *testing.T) {
	s := newSchema(t)
	query := position.Type{Kind: position.ObjectKind, Name: "Query"}
	I := position.Type{Kind: position.InterfaceKind, Name: "I"}

	onA, err := operation.ParseFieldSet(s, I, "... on A { a }")
	if err != nil {
		t.Fatal(err)
	}

	// The fragment matches the type at the end of the path and is collapsed.
	collapsed, err := operation.NewSelectionSet(s, query).AddAtPath([]operation.PathElement{
		operation.FieldElement("byId"),
	}, onA)
	if err != nil {
		t.Fatalf("AddAtPath failed: %v", err)
	}
	if got, want := collapsed.String(), "{ byId { a } }"; got != want {
		t.Errorf("want %s, got %s", want, got)
	}

	inFragment, err := operation.NewSelectionSet(s, query).AddAtPath([]operation.PathElement{
		operation.FieldElement("i"),
		operation.FragmentElement("A"),
	}, onA)
	if err != nil {
		t.Fatalf("AddAtPath failed: %v", err)
	}
	if got, want := inFragment.String(), "{ i { ... on A { a } } }"; got != want {
		t.Errorf("want %s, got %s", want, got)
	}

	// A fragment that can never apply at the end of the path is dropped.
	onB, err := operation.ParseFieldSet(s, I, "id ... on B { b }")
	if err != nil {
		t.Fatal(err)
	}
	dropped, err := operation.NewSelectionSet(s, query).AddAtPath([]operation.PathElement{
		operation.FieldElement("byId"),
	}, onB)
	if err != nil {
		t.Fatalf("AddAtPath failed: %v", err)
	}
	if got, want := dropped.String(), "{ byId { id } }"; got != want {
		t.Errorf("want %s, got %s", want, got)
	}
}

func TestSelectionSet_LazyMap(t *testing.T) {
	s := newSchema(t)
	T := position.Type{Kind: position.ObjectKind, Name: "T"}
	ss, err := operation.ParseFieldSet(s, T, "v1 v2 v3")
	if err != nil {
		t.Fatal(err)
	}

	keep := func(sel operation.Selection) ([]operation.Selection, error) {
		return []operation.Selection{sel}, nil
	}
	same, err := ss.LazyMap(keep)
	if err != nil {
		t.Fatal(err)
	}
	if same != ss {
		t.Error("LazyMap should return the receiver when nothing changes")
	}

	dropV2 := func(sel operation.Selection) ([]operation.Selection, error) {
		if f, ok := sel.(*operation.Field); ok && f.Position.Name == "v2" {
			return nil, nil
		}
		return []operation.Selection{sel}, nil
	}
	dropped, err := ss.LazyMap(dropV2)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := dropped.String(), "{ v1 v3 }"; got != want {
		t.Errorf("want %s, got %s", want, got)
	}
	if got, want := ss.String(), "{ v1 v2 v3 }"; got != want {
		t.Errorf("LazyMap must not modify its receiver: want %s, got %s", want, got)
	}

	sels := ss.Selections()
	if dropped.Selections()[0] != sels[0] {
		t.Error("unchanged selections should be shared")
	}

	expand := func(sel operation.Selection) ([]operation.Selection, error) {
		if f, ok := sel.(*operation.Field); ok && f.Position.Name == "v1" {
			extra := operation.NewField(T.Field("sub"), "", nil, nil, ss)
			return []operation.Selection{sel, extra}, nil
		}
		return []operation.Selection{sel}, nil
	}
	expanded, err := ss.LazyMap(expand)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := expanded.String(), "{ v1 sub { v1 v2 v3 } v2 v3 }"; got != want {
		t.Errorf("want %s, got %s", want, got)
	}
}

func TestSelectionSet_EqualAndContains(t *testing.T) {
	s := newSchema(t)
	T := position.Type{Kind: position.ObjectKind, Name: "T"}
	a, _ := operation.ParseFieldSet(s, T, "v1 sub { v2 v3 }")
	b, _ := operation.ParseFieldSet(s, T, "sub { v3 v2 } v1")
	c, _ := operation.ParseFieldSet(s, T, "sub { v3 }")

	if !a.Equal(b) {
		t.Error("expected order-insensitive equality")
	}
	if a.Equal(c) {
		t.Error("expected sets to differ")
	}
	if !a.Contains(c) {
		t.Error("expected a to contain c")
	}
	if c.Contains(a) {
		t.Error("expected c not to contain a")
	}
}

func TestSelectionSet_OptimizeSiblingTypenames(t *testing.T) {
	s := newSchema(t)
	query := position.Type{Kind: position.ObjectKind, Name: "Query"}
	ss, err := operation.ParseFieldSet(s, query, `t { __typename v1 sub { kind: __typename } v2 } z { __typename }`)
	if err != nil {
		t.Fatal(err)
	}

	optimized, err := ss.OptimizeSiblingTypenames(nil)
	if err != nil {
		t.Fatalf("OptimizeSiblingTypenames failed: %v", err)
	}
	// sub has no sibling field, z only has __typename.
	if got, want := optimized.String(), "{ t { v1 sub { kind: __typename } v2 } z { __typename } }"; got != want {
		t.Errorf("want %s, got %s", want, got)
	}

	tField := optimized.Fields()[0]
	v1 := tField.SelectionSet().Fields()[0]
	if v1.SiblingTypename == nil || v1.SiblingTypename.Alias != "" {
		t.Fatalf("expected typename attachment on v1, got %+v", v1.SiblingTypename)
	}

	restored, err := optimized.AddBackTypenameInAttachments()
	if err != nil {
		t.Fatalf("AddBackTypenameInAttachments failed: %v", err)
	}
	if got, want := restored.String(), ss.String(); got != want {
		t.Errorf("want %s, got %s", want, got)
	}
}

func TestSelectionSet_OptimizeSiblingTypenames_InterfaceObject(t *testing.T) {
	s := newSchema(t)
	ss, err := operation.ParseFieldSet(s, position.Type{Kind: position.ObjectKind, Name: "Query"}, `t { __typename v1 }`)
	if err != nil {
		t.Fatal(err)
	}

	optimized, err := ss.OptimizeSiblingTypenames(map[string]bool{"T": true})
	if err != nil {
		t.Fatal(err)
	}
	if optimized != ss {
		t.Errorf("expected no change for interface object types, got %s", optimized)
	}
}

func TestSelectionSet_OptimizeSiblingTypenames_Directive(t *testing.T) {
	s := newSchema(t)
	ss, err := operation.ParseFieldSet(s, position.Type{Kind: position.ObjectKind, Name: "Query"}, `t { __typename @include(if: $x) v1 }`)
	if err != nil {
		t.Fatal(err)
	}

	optimized, err := ss.OptimizeSiblingTypenames(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := optimized.String(), "{ t { __typename @include(if: $x) v1 } }"; got != want {
		t.Errorf("want %s, got %s", want, got)
	}
}
