package schema_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
)

const animals = `
	interface Animal {
		name: String
	}

	interface Pet implements Animal {
		name: String
		owner: String
	}

	type Dog implements Animal & Pet {
		name: String
		owner: String
	}

	type Cat implements Animal & Pet {
		name: String
		owner: String
	}

	type Wolf implements Animal {
		name: String
	}

	union Creature = Wolf | Dog

	type Query {
		animals: [Animal]
		creatures: [Creature]
	}
`

func mustParse(t *testing.T, sdl string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse("test", sdl)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return s
}

func TestParse_DeclarationOrder(t *testing.T) {
	s := mustParse(t, animals)

	var got []string
	for _, def := range s.Types() {
		got = append(got, def.Name)
	}
	want := []string{"Animal", "Pet", "Dog", "Cat", "Wolf", "Creature", "Query"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected type order (-want +got):\n%s", diff)
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := schema.Parse("broken", `type Query { a: Unknown }`)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if code, _ := federror.CodeOf(err); code != federror.InvalidGraphQL {
		t.Errorf("expected INVALID_GRAPHQL, got %q", code)
	}
}

func TestSchema_PossibleRuntimeTypes(t *testing.T) {
	s := mustParse(t, animals)

	tests := []struct {
		name string
		want []string
	}{
		{"Animal", []string{"Dog", "Cat", "Wolf"}},
		{"Pet", []string{"Dog", "Cat"}},
		{"Creature", []string{"Wolf", "Dog"}},
		{"Dog", []string{"Dog"}},
		{"String", nil},
		{"Missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, s.PossibleRuntimeTypes(tt.name)); diff != "" {
				t.Errorf("unexpected runtime types (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSchema_IsSubtype(t *testing.T) {
	s := mustParse(t, animals)

	if !s.IsSubtype("Animal", "Pet") {
		t.Error("Pet should be a subtype of Animal")
	}
	if !s.IsSubtype("Creature", "Wolf") {
		t.Error("Wolf should be a member of Creature")
	}
	if s.IsSubtype("Pet", "Wolf") {
		t.Error("Wolf does not implement Pet")
	}
	if s.IsSubtype("Dog", "Dog") {
		t.Error("a type is not a proper subtype of itself")
	}
}

func TestSchema_Lookups(t *testing.T) {
	s := mustParse(t, animals)

	if _, err := s.Type("Nope"); !errors.Is(err, schema.ErrTypeNotFound) {
		t.Errorf("expected ErrTypeNotFound, got %v", err)
	}
	if !federror.IsInternal(func() error { _, err := s.Type("Nope"); return err }()) {
		t.Error("expected missing type lookups to be internal errors")
	}

	dog := position.Type{Kind: position.ObjectKind, Name: "Dog"}
	if _, err := s.Field(dog.Field("age")); !errors.Is(err, schema.ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound, got %v", err)
	}
	typename, err := s.Field(dog.Typename())
	if err != nil {
		t.Fatalf("Field(__typename) failed: %v", err)
	}
	if typename.Type.String() != "String!" {
		t.Errorf("expected String!, got %s", typename.Type.String())
	}

	if _, err := s.CompositeType("String"); !errors.Is(err, schema.ErrWrongKind) {
		t.Errorf("expected ErrWrongKind, got %v", err)
	}

	q, ok := s.RootType(position.Query)
	if !ok || q.Name != "Query" {
		t.Fatalf("expected Query root, got %v", q)
	}
	if _, ok := s.RootType(position.Mutation); ok {
		t.Error("expected no mutation root")
	}
	if kind, ok := s.RootKindOf("Query"); !ok || kind != position.Query {
		t.Errorf("expected Query to be the query root, got %v %v", kind, ok)
	}
}

func TestParse_FederationDirectivesAreOptional(t *testing.T) {
	// A subgraph may declare its own copy of a federation directive.
	s := mustParse(t, `
		directive @key(fields: String!) repeatable on OBJECT

		type User @key(fields: "id") @shareable {
			id: ID!
		}

		type Query { me: User }
	`)
	if s.AST().Directives["key"].Arguments.ForName("resolvable") != nil {
		t.Error("expected the subgraph's own @key definition to be kept")
	}
	if s.AST().Directives["shareable"] == nil {
		t.Error("expected missing federation directives to be added")
	}
}
