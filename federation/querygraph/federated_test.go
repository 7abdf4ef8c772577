package querygraph_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/querygraph"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
)

const (
	productsSDL = `
		type Query {
			products: [Product]
		}

		type Product @key(fields: "id") {
			id: ID!
			name: String
		}
	`

	reviewsSDL = `
		type Query {
			reviews: [Review]
		}

		type Review {
			id: ID!
			product: Product @provides(fields: "name")
		}

		type Product @key(fields: "id") {
			id: ID!
			name: String @external
			rating: Int
		}
	`

	productsAPI = `
		type Query {
			products: [Product]
			reviews: [Review]
		}

		type Product {
			id: ID!
			name: String
			rating: Int
		}

		type Review {
			id: ID!
			product: Product
		}
	`
)

var (
	productType = position.Type{Kind: position.ObjectKind, Name: "Product"}
	reviewType  = position.Type{Kind: position.ObjectKind, Name: "Review"}
)

type subgraphSDL struct {
	name string
	sdl  string
}

func mustSubgraphs(t *testing.T, sdls ...subgraphSDL) []*schema.Subgraph {
	t.Helper()
	out := make([]*schema.Subgraph, 0, len(sdls))
	for _, s := range sdls {
		sg, err := schema.NewSubgraph(s.name, []byte(s.sdl), "http://"+s.name+".example.com")
		if err != nil {
			t.Fatalf("NewSubgraph(%s) failed: %v", s.name, err)
		}
		out = append(out, sg)
	}
	return out
}

func mustFederated(t *testing.T, api string, sdls ...subgraphSDL) *querygraph.QueryGraph {
	t.Helper()
	g, err := querygraph.BuildFederatedQueryGraph(context.Background(), mustParse(t, "api", api), mustSubgraphs(t, sdls...))
	if err != nil {
		t.Fatalf("BuildFederatedQueryGraph failed: %v", err)
	}
	return g
}

// regularNode returns the node of typeName in source that is not a @provides copy.
func regularNode(t *testing.T, g *querygraph.QueryGraph, source, typeName string) querygraph.NodeIndex {
	t.Helper()
	for _, i := range g.NodesForTypeBySource(source, typeName) {
		n, err := g.Node(i)
		if err != nil {
			t.Fatalf("Node failed: %v", err)
		}
		if n.ProvideID == 0 {
			return i
		}
	}
	t.Fatalf("no node for %s in %s", typeName, source)
	return 0
}

func keyEdgeTo(g *querygraph.QueryGraph, from querygraph.NodeIndex, source string) *querygraph.Edge {
	for _, e := range g.OutEdges(from) {
		if e.Transition.Kind == querygraph.KeyResolution && g.EdgeTail(e).Source == source {
			return e
		}
	}
	return nil
}

func buildProducts(t *testing.T) *querygraph.QueryGraph {
	t.Helper()
	return mustFederated(t, productsAPI,
		subgraphSDL{"products", productsSDL},
		subgraphSDL{"reviews", reviewsSDL},
	)
}

// ----------------------------------------------------------------------------
// Construction
// ----------------------------------------------------------------------------

func TestBuildFederatedQueryGraph_Sources(t *testing.T) {
	g := buildProducts(t)

	if !g.IsFederated() {
		t.Error("expected a federated graph")
	}
	if diff := cmp.Diff([]string{"products", "reviews", querygraph.FederatedGraphSource}, g.Sources()); diff != "" {
		t.Errorf("unexpected sources (-want +got):\n%s", diff)
	}
	if _, ok := g.Subgraph("reviews"); !ok {
		t.Error("expected reviews subgraph metadata")
	}
	if _, ok := g.Subgraph(querygraph.FederatedGraphSource); ok {
		t.Error("federated root source is not a subgraph")
	}
}

func TestBuildFederatedQueryGraph_FederatedRoot(t *testing.T) {
	g := buildProducts(t)

	root, ok := g.Root(position.Query)
	if !ok {
		t.Fatal("expected a federated query root")
	}
	n, _ := g.Node(root)
	if !n.Type.FederatedRoot || n.Source != querygraph.FederatedGraphSource {
		t.Fatalf("unexpected root %s", n)
	}

	var entered []string
	for _, e := range g.OutEdges(root) {
		if e.Transition.Kind != querygraph.SubgraphEnteringTransition {
			t.Errorf("unexpected root edge %s", e)
		}
		tail := g.EdgeTail(e)
		if !tail.IsRoot || tail.RootKind != position.Query {
			t.Errorf("entering edge must lead to a subgraph root, got %s", tail)
		}
		entered = append(entered, tail.Source)
	}
	if diff := cmp.Diff([]string{"products", "reviews"}, entered); diff != "" {
		t.Errorf("unexpected entered subgraphs (-want +got):\n%s", diff)
	}

	types, err := g.PossibleRuntimeTypes(root)
	if err != nil {
		t.Fatalf("PossibleRuntimeTypes failed: %v", err)
	}
	if diff := cmp.Diff([]string{"Query"}, types); diff != "" {
		t.Errorf("unexpected root runtime types (-want +got):\n%s", diff)
	}
}

func TestBuildFederatedQueryGraph_OneRegularNodePerTypeAndSource(t *testing.T) {
	g := buildProducts(t)

	for _, source := range []string{"products", "reviews"} {
		seen := make(map[string]int)
		for i := 0; i < g.NodesCount(); i++ {
			n, _ := g.Node(querygraph.NodeIndex(i))
			if n.Source == source && n.ProvideID == 0 {
				seen[n.Type.TypeName()]++
			}
		}
		for name, count := range seen {
			if count != 1 {
				t.Errorf("%s has %d regular nodes for %s", source, count, name)
			}
		}
	}
}

func TestBuildFederatedQueryGraph_KeyEdges(t *testing.T) {
	g := buildProducts(t)

	for i := 0; i < g.EdgesCount(); i++ {
		e, _ := g.Edge(querygraph.EdgeIndex(i))
		if e.Transition.Kind != querygraph.KeyResolution {
			continue
		}
		if e.Conditions.IsEmpty() {
			t.Errorf("key edge %s has no conditions", e)
		}
		if e.Transition.Source != g.EdgeTail(e).Source {
			t.Errorf("key edge %s must be resolved by its tail subgraph", e)
		}
	}

	products := regularNode(t, g, "products", "Product")
	reviews := regularNode(t, g, "reviews", "Product")

	toReviews := keyEdgeTo(g, products, "reviews")
	if toReviews == nil {
		t.Fatal("expected a key edge from products to reviews")
	}
	if toReviews.Tail != reviews {
		t.Errorf("expected tail %d, got %d", reviews, toReviews.Tail)
	}
	if got := toReviews.Conditions.String(); got != "{ id }" {
		t.Errorf("expected conditions '{ id }', got %q", got)
	}
	if keyEdgeTo(g, reviews, "products") == nil {
		t.Error("expected a key edge from reviews to products")
	}
}

func TestQueryGraph_OutEdgesSkipFederationSelfEdges(t *testing.T) {
	g := buildProducts(t)
	products := regularNode(t, g, "products", "Product")

	for _, e := range g.OutEdges(products) {
		if e.IsSelfEdge() {
			t.Errorf("unexpected self edge %s", e)
		}
	}

	var selfKeys int
	for _, e := range g.OutEdgesWithFederationSelfEdges(products) {
		if e.IsSelfEdge() && e.Transition.Kind == querygraph.KeyResolution {
			selfKeys++
		}
	}
	if selfKeys != 1 {
		t.Errorf("expected one self key edge, got %d", selfKeys)
	}

	root := regularNode(t, g, "products", "Query")
	var selfRoots int
	for _, e := range g.OutEdgesWithFederationSelfEdges(root) {
		if e.IsSelfEdge() && e.Transition.Kind == querygraph.RootTypeResolution {
			selfRoots++
		}
	}
	if selfRoots != 1 {
		t.Errorf("expected one self root edge, got %d", selfRoots)
	}
}

func TestBuildFederatedQueryGraph_Provides(t *testing.T) {
	g := buildProducts(t)

	if got := len(g.NodesForTypeBySource("reviews", "Product")); got != 2 {
		t.Fatalf("expected the regular node and one copy, got %d nodes", got)
	}

	review := regularNode(t, g, "reviews", "Review")
	product := mustEdgeForField(t, g, review, reviewType, "product")
	copied := g.EdgeTail(product)
	if copied.ProvideID == 0 {
		t.Fatalf("@provides field must lead to a copy, got %s", copied)
	}

	name := mustEdgeForField(t, g, copied.Index, productType, "name")
	if !name.Transition.IsPartOfProvides {
		t.Error("provided edge must be marked as part of @provides")
	}
	if e := mustEdgeForField(t, g, copied.Index, productType, "rating"); e.Transition.IsPartOfProvides {
		t.Error("regular edge copied from the original node must not be marked")
	}
	if keyEdgeTo(g, copied.Index, "products") == nil {
		t.Error("copy must keep the key edges of the original node")
	}

	regular := regularNode(t, g, "reviews", "Product")
	external, err := g.EdgeForField(regular, fieldOf(productType, "name"))
	if err != nil {
		t.Fatalf("EdgeForField failed: %v", err)
	}
	if external != nil {
		t.Errorf("external field must not be collectible outside @provides, got %s", external)
	}
}

func TestBuildFederatedQueryGraph_CrossSubgraphReachability(t *testing.T) {
	g := buildProducts(t)

	tests := []struct {
		source   string
		typeName string
		want     bool
	}{
		{"products", "Query", true},
		{"products", "Product", true},
		{"products", "ID", false},
		{"reviews", "Review", true},
		{"reviews", "Int", false},
	}
	for _, tt := range tests {
		n, _ := g.Node(regularNode(t, g, tt.source, tt.typeName))
		if n.HasReachableCrossSubgraphEdges != tt.want {
			t.Errorf("%s: expected HasReachableCrossSubgraphEdges=%v", n, tt.want)
		}
	}
}

func TestQueryGraph_NonTrivialFollowupEdges(t *testing.T) {
	g := buildProducts(t)

	reviews := regularNode(t, g, "reviews", "Product")
	jump := keyEdgeTo(g, reviews, "products")
	if jump == nil {
		t.Fatal("expected a key edge from reviews to products")
	}

	// Jumping back to reviews with the same key is never better than
	// staying there.
	for _, e := range g.NonTrivialFollowupEdges(jump) {
		if e.Transition.Kind == querygraph.KeyResolution {
			t.Errorf("unexpected key followup %s", e)
		}
	}
	if len(g.NonTrivialFollowupEdges(jump)) == 0 {
		t.Error("field edges of the tail must remain followups")
	}

	root := regularNode(t, g, "products", "Query")
	var rootJump *querygraph.Edge
	for _, e := range g.OutEdges(root) {
		if e.Transition.Kind == querygraph.RootTypeResolution {
			rootJump = e
		}
	}
	if rootJump == nil {
		t.Fatal("expected a root type resolution edge")
	}
	for _, e := range g.NonTrivialFollowupEdges(rootJump) {
		if e.Transition.Kind == querygraph.RootTypeResolution {
			t.Errorf("unexpected root followup %s", e)
		}
	}
}

func TestQueryGraph_NoRootJumpAfterEnteringSubgraph(t *testing.T) {
	g := buildProducts(t)
	root, ok := g.Root(position.Query)
	if !ok {
		t.Fatal("expected a federated query root")
	}

	var entered int
	for _, enter := range g.OutEdges(root) {
		if enter.Transition.Kind != querygraph.SubgraphEnteringTransition {
			continue
		}
		entered++
		followups := g.NonTrivialFollowupEdges(enter)
		if len(followups) == 0 {
			t.Errorf("%s: root fields must remain followups", enter)
		}
		for _, e := range followups {
			if e.Transition.Kind == querygraph.RootTypeResolution {
				t.Errorf("%s: unexpected root followup %s", enter, e)
			}
		}
	}
	if entered != 2 {
		t.Errorf("expected 2 subgraph entering edges, got %d", entered)
	}
}

func TestBuildFederatedQueryGraph_Errors(t *testing.T) {
	api := mustParse(t, "api", productsAPI)

	t.Run("duplicate subgraph", func(t *testing.T) {
		sgs := mustSubgraphs(t, subgraphSDL{"products", productsSDL}, subgraphSDL{"products", productsSDL})
		_, err := querygraph.BuildFederatedQueryGraph(context.Background(), api, sgs)
		if !federror.IsInternal(err) {
			t.Errorf("expected an internal error, got %v", err)
		}
	})

	t.Run("missing api schema", func(t *testing.T) {
		sgs := mustSubgraphs(t, subgraphSDL{"products", productsSDL})
		_, err := querygraph.BuildFederatedQueryGraph(context.Background(), nil, sgs)
		if !federror.IsInternal(err) {
			t.Errorf("expected an internal error, got %v", err)
		}
	})
}

// ----------------------------------------------------------------------------
// Keys
// ----------------------------------------------------------------------------

func TestQueryGraph_LocallySatisfiableKey(t *testing.T) {
	const catalogSDL = `
		type Query {
			item: Item
		}

		type Item @key(fields: "upc") @key(fields: "id") {
			id: ID!
			upc: String @external
			price: Int
		}
	`
	const catalogAPI = `
		type Query {
			item: Item
		}

		type Item {
			id: ID!
			upc: String
			price: Int
		}
	`
	g := mustFederated(t, catalogAPI, subgraphSDL{"catalog", catalogSDL})

	key, err := g.LocallySatisfiableKey(regularNode(t, g, "catalog", "Item"))
	if err != nil {
		t.Fatalf("LocallySatisfiableKey failed: %v", err)
	}
	if key == nil {
		t.Fatal("expected a key")
	}
	if got := key.String(); got != "{ id }" {
		t.Errorf("expected the first key without external fields, got %q", got)
	}

	if _, err := g.LocallySatisfiableKey(regularNode(t, g, "catalog", "Int")); !federror.IsInternal(err) {
		t.Errorf("expected an internal error for a scalar node, got %v", err)
	}
}

func TestQueryGraph_LocallySatisfiableKey_NoKey(t *testing.T) {
	g := buildProducts(t)

	key, err := g.LocallySatisfiableKey(regularNode(t, g, "reviews", "Review"))
	if err != nil {
		t.Fatalf("LocallySatisfiableKey failed: %v", err)
	}
	if key != nil {
		t.Errorf("expected no key, got %s", key)
	}
}

// ----------------------------------------------------------------------------
// Interfaces
// ----------------------------------------------------------------------------

const (
	mediaSDL = `
		type Query {
			media: [Media]
		}

		interface Media @key(fields: "id") {
			id: ID!
			title: String
		}

		type Book implements Media @key(fields: "id") {
			id: ID!
			title: String
		}

		type Movie implements Media @key(fields: "id") {
			id: ID!
			title: String
		}
	`

	ratingsSDL = `
		type Query {
			topMedia: Media
		}

		type Media @key(fields: "id") @interfaceObject {
			id: ID!
			reviews: Int
		}
	`

	mediaAPI = `
		type Query {
			media: [Media]
			topMedia: Media
		}

		interface Media {
			id: ID!
			title: String
			reviews: Int
		}

		type Book implements Media {
			id: ID!
			title: String
			reviews: Int
		}

		type Movie implements Media {
			id: ID!
			title: String
			reviews: Int
		}
	`
)

var mediaType = position.Type{Kind: position.InterfaceKind, Name: "Media"}

func TestBuildFederatedQueryGraph_InterfaceFields(t *testing.T) {
	g := mustFederated(t, mediaAPI, subgraphSDL{"media", mediaSDL}, subgraphSDL{"ratings", ratingsSDL})
	media := regularNode(t, g, "media", "Media")

	mustEdgeForField(t, g, media, mediaType, "title")
	mustEdgeForField(t, g, media, mediaType, position.TypenameField)
	if e, err := g.EdgeForField(media, fieldOf(mediaType, "reviews")); err != nil || e != nil {
		t.Errorf("field unknown to the subgraph must have no edge, got %v (err %v)", e, err)
	}

	if keyEdgeTo(g, media, "ratings") == nil {
		t.Error("expected a key edge from the interface to the @interfaceObject")
	}
	if keyEdgeTo(g, regularNode(t, g, "ratings", "Media"), "media") == nil {
		t.Error("expected a key edge from the @interfaceObject to the interface")
	}
}

func TestBuildFederatedQueryGraph_InterfaceObjectFakeDownCast(t *testing.T) {
	g := mustFederated(t, mediaAPI, subgraphSDL{"media", mediaSDL}, subgraphSDL{"ratings", ratingsSDL})
	ratings := regularNode(t, g, "ratings", "Media")
	objectType := position.Type{Kind: position.ObjectKind, Name: "Media"}

	cast, err := g.EdgeForInlineFragment(ratings, castTo(objectType, "Book"))
	if err != nil {
		t.Fatalf("EdgeForInlineFragment failed: %v", err)
	}
	if cast == nil {
		t.Fatal("expected a fake down cast to Book")
	}
	if cast.Transition.Kind != querygraph.InterfaceObjectFakeDownCast || !cast.IsSelfEdge() {
		t.Errorf("unexpected cast edge %s", cast)
	}

	current := []string{"Book", "Movie"}
	after, err := g.AdvancePossibleRuntimeTypes(current, cast)
	if err != nil {
		t.Fatalf("AdvancePossibleRuntimeTypes failed: %v", err)
	}
	if diff := cmp.Diff(current, after); diff != "" {
		t.Errorf("fake down cast must keep runtime types (-want +got):\n%s", diff)
	}

	if e, err := g.EdgeForField(ratings, fieldOf(objectType, position.TypenameField)); err != nil || e != nil {
		t.Errorf("@interfaceObject must have no __typename edge, got %v (err %v)", e, err)
	}
}

func TestBuildFederatedQueryGraph_EntityUnionCastsToEntityInterfaces(t *testing.T) {
	withEntityUnion := mediaSDL + `
		union _Entity = Book | Movie
	`
	g := mustFederated(t, mediaAPI, subgraphSDL{"media", withEntityUnion}, subgraphSDL{"ratings", ratingsSDL})
	entityType := position.Type{Kind: position.UnionKind, Name: "_Entity"}

	cast, err := g.EdgeForInlineFragment(regularNode(t, g, "media", "_Entity"), castTo(entityType, "Media"))
	if err != nil {
		t.Fatalf("EdgeForInlineFragment failed: %v", err)
	}
	if cast == nil {
		t.Fatal("expected a cast from _Entity to the entity interface")
	}
	if cast.Transition.Kind != querygraph.Downcast || cast.Tail != regularNode(t, g, "media", "Media") {
		t.Errorf("unexpected cast edge %s", cast)
	}

	plain := mustFederated(t, mediaAPI, subgraphSDL{"media", mediaSDL}, subgraphSDL{"ratings", ratingsSDL})
	if nodes := plain.NodesForTypeBySource("media", "_Entity"); len(nodes) != 0 {
		t.Errorf("subgraph without _Entity must have no _Entity node, got %v", nodes)
	}
}

func TestBuildFederatedQueryGraph_ForQueryPlanning(t *testing.T) {
	tests := []struct {
		name     string
		planning bool
		want     bool
	}{
		{"planning", true, true},
		{"validation", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := mustParse(t, "api", mediaAPI)
			sgs := mustSubgraphs(t, subgraphSDL{"media", mediaSDL}, subgraphSDL{"ratings", ratingsSDL})
			g, err := querygraph.BuildFederatedQueryGraph(context.Background(), api, sgs, querygraph.ForQueryPlanning(tt.planning))
			if err != nil {
				t.Fatalf("BuildFederatedQueryGraph failed: %v", err)
			}
			media := regularNode(t, g, "media", "Media")
			self, err := g.EdgeForInlineFragment(media, castTo(mediaType, "Media"))
			if err != nil {
				t.Fatalf("EdgeForInlineFragment failed: %v", err)
			}
			if got := self != nil; got != tt.want {
				t.Errorf("expected abstract self cast=%v, got %v", tt.want, self)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Dump
// ----------------------------------------------------------------------------

func TestQueryGraph_WriteYAML(t *testing.T) {
	g := buildProducts(t)

	var buf bytes.Buffer
	if err := g.WriteYAML(&buf); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"federated: true", "kind: KeyResolution", "kind: SubgraphEnteringTransition"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in dump:\n%s", want, out)
		}
	}

	d := g.Dump()
	if len(d.Nodes) != g.NodesCount() || len(d.Edges) != g.EdgesCount() {
		t.Errorf("dump size mismatch: %d nodes, %d edges", len(d.Nodes), len(d.Edges))
	}
}
