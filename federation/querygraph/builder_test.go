package querygraph_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/querygraph"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
)

const petsSchema = `
	interface Animal {
		name: String
	}

	type Dog implements Animal {
		name: String
		barks: Boolean
	}

	type Cat implements Animal {
		name: String
	}

	union Pet = Dog | Cat

	type Query {
		animal: Animal
		pets: [Pet]
	}
`

var (
	queryType  = position.Type{Kind: position.ObjectKind, Name: "Query"}
	animalType = position.Type{Kind: position.InterfaceKind, Name: "Animal"}
)

func mustParse(t *testing.T, name, sdl string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse(name, sdl)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return s
}

func fieldOf(parent position.Type, name string) *operation.Field {
	return operation.NewField(parent.Field(name), "", nil, nil, nil)
}

func castTo(parent position.Type, typeCondition string) *operation.InlineFragment {
	return operation.NewInlineFragment(parent, typeCondition, nil, nil)
}

func mustEdgeForField(t *testing.T, g *querygraph.QueryGraph, node querygraph.NodeIndex, parent position.Type, name string) *querygraph.Edge {
	t.Helper()
	e, err := g.EdgeForField(node, fieldOf(parent, name))
	if err != nil {
		t.Fatalf("EdgeForField(%s) failed: %v", name, err)
	}
	if e == nil {
		t.Fatalf("expected an edge for field %s", name)
	}
	return e
}

func buildPets(t *testing.T) (*querygraph.QueryGraph, *schema.Schema) {
	t.Helper()
	s := mustParse(t, "api", petsSchema)
	g, err := querygraph.BuildQueryGraph("api", s)
	if err != nil {
		t.Fatalf("BuildQueryGraph failed: %v", err)
	}
	return g, s
}

func TestBuildQueryGraph_Root(t *testing.T) {
	g, s := buildPets(t)

	if g.IsFederated() {
		t.Error("single schema graph must not be federated")
	}
	if g.Name() != "api" {
		t.Errorf("expected name 'api', got %q", g.Name())
	}
	got, err := g.Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if got != s {
		t.Error("expected the schema the graph was built from")
	}
	if diff := cmp.Diff([]position.RootKind{position.Query}, g.RootKinds()); diff != "" {
		t.Errorf("unexpected root kinds (-want +got):\n%s", diff)
	}

	root, ok := g.Root(position.Query)
	if !ok {
		t.Fatal("expected a query root")
	}
	n, err := g.Node(root)
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}
	if !n.IsRoot || n.Type.TypeName() != "Query" || n.Source != "api" {
		t.Errorf("unexpected root node %s", n)
	}
	if _, ok := g.Root(position.Mutation); ok {
		t.Error("schema has no mutation root")
	}
}

func TestBuildQueryGraph_OneNodePerType(t *testing.T) {
	g, s := buildPets(t)

	for _, def := range s.Types() {
		if nodes := g.NodesForType(def.Name); len(nodes) > 1 {
			t.Errorf("type %s has %d nodes", def.Name, len(nodes))
		}
	}
	for _, name := range []string{"Query", "Animal", "Dog", "Cat", "Pet", "String", "Boolean"} {
		if len(g.NodesForType(name)) != 1 {
			t.Errorf("expected one node for %s", name)
		}
	}
}

func TestBuildQueryGraph_AbstractEdges(t *testing.T) {
	g, _ := buildPets(t)
	root, _ := g.Root(position.Query)

	animal := mustEdgeForField(t, g, root, queryType, "animal")
	var casts []string
	for _, e := range g.OutEdges(animal.Tail) {
		if e.Transition.Kind != querygraph.Downcast {
			t.Errorf("unexpected edge %s on interface of a plain schema", e)
			continue
		}
		casts = append(casts, e.Transition.ToType.Name)
	}
	if diff := cmp.Diff([]string{"Dog", "Cat"}, casts); diff != "" {
		t.Errorf("unexpected casts (-want +got):\n%s", diff)
	}

	pets := mustEdgeForField(t, g, root, queryType, "pets")
	union := position.Type{Kind: position.UnionKind, Name: "Pet"}
	if e, err := g.EdgeForField(pets.Tail, fieldOf(union, position.TypenameField)); err != nil || e == nil {
		t.Errorf("expected a __typename edge on the union, got %v (err %v)", e, err)
	}
}

func TestQueryGraph_EdgeForField(t *testing.T) {
	g, _ := buildPets(t)
	root, _ := g.Root(position.Query)

	e := mustEdgeForField(t, g, root, queryType, "animal")
	if e.Transition.Kind != querygraph.FieldCollection || e.Transition.Field.Name != "animal" {
		t.Errorf("unexpected edge %s", e)
	}
	if tail := g.EdgeTail(e); tail.Type.TypeName() != "Animal" {
		t.Errorf("expected tail Animal, got %s", tail)
	}
	if head := g.EdgeHead(e); head.Index != root {
		t.Errorf("expected head %d, got %s", root, head)
	}

	missing, err := g.EdgeForField(root, fieldOf(queryType, "unknown"))
	if err != nil {
		t.Fatalf("EdgeForField failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected no edge, got %s", missing)
	}
}

func TestQueryGraph_EdgeForInlineFragment(t *testing.T) {
	g, _ := buildPets(t)
	root, _ := g.Root(position.Query)
	animal := mustEdgeForField(t, g, root, queryType, "animal").Tail

	dog, err := g.EdgeForInlineFragment(animal, castTo(animalType, "Dog"))
	if err != nil {
		t.Fatalf("EdgeForInlineFragment failed: %v", err)
	}
	if dog == nil || dog.Transition.Kind != querygraph.Downcast || dog.Transition.ToType.Name != "Dog" {
		t.Fatalf("unexpected cast edge %v", dog)
	}

	none, err := g.EdgeForInlineFragment(animal, castTo(animalType, ""))
	if err != nil {
		t.Fatalf("EdgeForInlineFragment failed: %v", err)
	}
	if none != nil {
		t.Errorf("fragment without type condition must not take an edge, got %s", none)
	}
}

func TestQueryGraph_AdvancePossibleRuntimeTypes(t *testing.T) {
	g, _ := buildPets(t)
	root, _ := g.Root(position.Query)

	animal := mustEdgeForField(t, g, root, queryType, "animal")
	afterField, err := g.AdvancePossibleRuntimeTypes([]string{"Query"}, animal)
	if err != nil {
		t.Fatalf("AdvancePossibleRuntimeTypes failed: %v", err)
	}
	if diff := cmp.Diff([]string{"Dog", "Cat"}, afterField); diff != "" {
		t.Errorf("unexpected runtime types after field (-want +got):\n%s", diff)
	}

	toDog, err := g.EdgeForInlineFragment(animal.Tail, castTo(animalType, "Dog"))
	if err != nil || toDog == nil {
		t.Fatalf("expected a cast to Dog, got %v (err %v)", toDog, err)
	}
	afterCast, err := g.AdvancePossibleRuntimeTypes(afterField, toDog)
	if err != nil {
		t.Fatalf("AdvancePossibleRuntimeTypes failed: %v", err)
	}
	if diff := cmp.Diff([]string{"Dog"}, afterCast); diff != "" {
		t.Errorf("unexpected runtime types after cast (-want +got):\n%s", diff)
	}

	// A cast never adds runtime types that were not possible before it.
	toCat, _ := g.EdgeForInlineFragment(animal.Tail, castTo(animalType, "Cat"))
	impossible, err := g.AdvancePossibleRuntimeTypes([]string{"Dog"}, toCat)
	if err != nil {
		t.Fatalf("AdvancePossibleRuntimeTypes failed: %v", err)
	}
	if len(impossible) != 0 {
		t.Errorf("expected no runtime types, got %v", impossible)
	}
}

func TestQueryGraph_OutOfBounds(t *testing.T) {
	g, _ := buildPets(t)

	if _, err := g.Node(querygraph.NodeIndex(g.NodesCount())); !federror.IsInternal(err) {
		t.Errorf("expected an internal error, got %v", err)
	}
	if _, err := g.Node(-1); !federror.IsInternal(err) {
		t.Errorf("expected an internal error, got %v", err)
	}
	if _, err := g.Edge(querygraph.EdgeIndex(g.EdgesCount())); !federror.IsInternal(err) {
		t.Errorf("expected an internal error, got %v", err)
	}
	if _, err := g.SchemaBySource("missing"); !federror.IsInternal(err) {
		t.Errorf("expected an internal error, got %v", err)
	}
}

func TestQueryGraph_InEdges(t *testing.T) {
	g, _ := buildPets(t)

	dog := g.NodesForType("Dog")[0]
	var heads []string
	for _, e := range g.InEdges(dog) {
		heads = append(heads, g.EdgeHead(e).Type.TypeName())
	}
	if diff := cmp.Diff([]string{"Animal", "Pet"}, heads); diff != "" {
		t.Errorf("unexpected in-edge heads (-want +got):\n%s", diff)
	}
}
