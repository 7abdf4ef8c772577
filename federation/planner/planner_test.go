package planner_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/go-graphql-federation-core/federation/composition"
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/n9te9/go-graphql-federation-core/federation/planner"
	"github.com/n9te9/go-graphql-federation-core/federation/querygraph"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
)

const (
	productsSDL = `
		type Query {
			products: [Product]
		}

		type Mutation {
			createProduct(name: String!): Product
		}

		type Product @key(fields: "id") {
			id: ID!
			name: String
			price: Int
			weight: Int
		}
	`

	reviewsSDL = `
		type Query {
			reviews: [Review]
		}

		type Mutation {
			addReview(body: String!): Review
		}

		type Review {
			id: ID!
			body: String
			product: Product
			featured: Product @provides(fields: "name")
		}

		type Product @key(fields: "id") {
			id: ID!
			name: String @external
			rating: Int
		}
	`

	inventorySDL = `
		type Product @key(fields: "id") {
			id: ID!
			price: Int @external
			weight: Int @external
			shippingEstimate: Int @requires(fields: "price weight")
			inStock: Boolean
		}
	`
)

type stepSummary struct {
	ID         int
	SubGraph   string
	StepType   planner.StepType
	ParentType string
	Path       string
	DependsOn  []int
	Requires   string
	Selection  string
}

func summarize(plan *planner.Plan) []stepSummary {
	out := make([]stepSummary, len(plan.Steps))
	for i, s := range plan.Steps {
		out[i] = stepSummary{
			ID:         s.ID,
			SubGraph:   s.SubGraph,
			StepType:   s.StepType,
			ParentType: s.ParentType,
			Path:       strings.Join(s.Path, "."),
			DependsOn:  s.DependsOn,
			Selection:  s.SelectionSet.String(),
		}
		if s.Requires != nil {
			out[i].Requires = s.Requires.String()
		}
	}
	return out
}

type fixture struct {
	planner *planner.Planner
	api     *schema.Schema
	graph   *querygraph.QueryGraph
	opts    operation.NormalizeOptions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var subgraphs []*schema.Subgraph
	for _, sg := range []struct{ name, sdl string }{
		{"products", productsSDL},
		{"reviews", reviewsSDL},
		{"inventory", inventorySDL},
	} {
		s, err := schema.NewSubgraph(sg.name, []byte(sg.sdl), "http://"+sg.name+".example.com")
		if err != nil {
			t.Fatalf("NewSubgraph(%s) failed: %v", sg.name, err)
		}
		subgraphs = append(subgraphs, s)
	}
	res, err := composition.Compose(context.Background(), subgraphs)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	p, err := planner.New(res.QueryGraph)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &fixture{
		planner: p,
		api:     res.APISchema,
		graph:   res.QueryGraph,
		opts:    operation.NormalizeOptions{InterfaceObjectTypes: res.InterfaceObjectTypes},
	}
}

func (f *fixture) plan(t *testing.T, query string) *planner.Plan {
	t.Helper()
	op, err := operation.ParseOperation(f.api, query, "", f.opts)
	if err != nil {
		t.Fatalf("ParseOperation failed: %v", err)
	}
	plan, err := f.planner.Plan(context.Background(), op)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return plan
}

// ----------------------------------------------------------------------------
// Root steps
// ----------------------------------------------------------------------------

func TestPlanner_SingleSubgraph(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, `{ products { id name } }`)

	want := []stepSummary{
		{ID: 0, SubGraph: "products", StepType: planner.StepTypeQuery, ParentType: "Query", Selection: "{ products { id name } }"},
	}
	if diff := cmp.Diff(want, summarize(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0}, plan.RootStepIndexes); diff != "" {
		t.Errorf("root steps mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanner_SiblingTypenameIsFetched(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, `{ __typename products { __typename id name } }`)

	want := []stepSummary{
		{ID: 0, SubGraph: "products", StepType: planner.StepTypeQuery, ParentType: "Query", Selection: "{ products { __typename id name } }"},
	}
	if diff := cmp.Diff(want, summarize(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanner_RootFieldsGroupedBySubgraph(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, `{ products { id } reviews { id } products2: products { name } }`)

	want := []stepSummary{
		{ID: 0, SubGraph: "products", StepType: planner.StepTypeQuery, ParentType: "Query", Selection: "{ products { id } products2: products { name } }"},
		{ID: 1, SubGraph: "reviews", StepType: planner.StepTypeQuery, ParentType: "Query", Selection: "{ reviews { id } }"},
	}
	if diff := cmp.Diff(want, summarize(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1}, plan.RootStepIndexes); diff != "" {
		t.Errorf("root steps mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanner_MutationStepsAreSequential(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, `mutation {
		first: createProduct(name: "a") { id }
		addReview(body: "b") { id }
		second: createProduct(name: "c") { id }
	}`)

	want := []stepSummary{
		{ID: 0, SubGraph: "products", StepType: planner.StepTypeQuery, ParentType: "Mutation", Selection: `{ first: createProduct(name: "a") { id } }`},
		{ID: 1, SubGraph: "reviews", StepType: planner.StepTypeQuery, ParentType: "Mutation", DependsOn: []int{0}, Selection: `{ addReview(body: "b") { id } }`},
		{ID: 2, SubGraph: "products", StepType: planner.StepTypeQuery, ParentType: "Mutation", DependsOn: []int{1}, Selection: `{ second: createProduct(name: "c") { id } }`},
	}
	if diff := cmp.Diff(want, summarize(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

// ----------------------------------------------------------------------------
// Entity steps
// ----------------------------------------------------------------------------

func TestPlanner_EntityStep(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, `{ products { name rating } }`)

	want := []stepSummary{
		{ID: 0, SubGraph: "products", StepType: planner.StepTypeQuery, ParentType: "Query", Selection: "{ products { name id } }"},
		{ID: 1, SubGraph: "reviews", StepType: planner.StepTypeEntity, ParentType: "Product", Path: "products", DependsOn: []int{0}, Requires: "{ id }", Selection: "{ rating }"},
	}
	if diff := cmp.Diff(want, summarize(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanner_EntityStepReusedForSiblingFields(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, `{ products { inStock rating name } }`)

	want := []stepSummary{
		{ID: 0, SubGraph: "products", StepType: planner.StepTypeQuery, ParentType: "Query", Selection: "{ products { id name } }"},
		{ID: 1, SubGraph: "inventory", StepType: planner.StepTypeEntity, ParentType: "Product", Path: "products", DependsOn: []int{0}, Requires: "{ id }", Selection: "{ inStock }"},
		{ID: 2, SubGraph: "reviews", StepType: planner.StepTypeEntity, ParentType: "Product", Path: "products", DependsOn: []int{0}, Requires: "{ id }", Selection: "{ rating }"},
	}
	if diff := cmp.Diff(want, summarize(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanner_NestedEntityStep(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, `{ reviews { body product { name } } }`)

	want := []stepSummary{
		{ID: 0, SubGraph: "reviews", StepType: planner.StepTypeQuery, ParentType: "Query", Selection: "{ reviews { body product { id } } }"},
		{ID: 1, SubGraph: "products", StepType: planner.StepTypeEntity, ParentType: "Product", Path: "reviews.product", DependsOn: []int{0}, Requires: "{ id }", Selection: "{ name }"},
	}
	if diff := cmp.Diff(want, summarize(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanner_Provides(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, `{ reviews { featured { name } } }`)

	want := []stepSummary{
		{ID: 0, SubGraph: "reviews", StepType: planner.StepTypeQuery, ParentType: "Query", Selection: "{ reviews { featured { name } } }"},
	}
	if diff := cmp.Diff(want, summarize(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanner_Requires(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, `{ products { shippingEstimate } }`)

	want := []stepSummary{
		{ID: 0, SubGraph: "products", StepType: planner.StepTypeQuery, ParentType: "Query", Selection: "{ products { id price weight } }"},
		{ID: 1, SubGraph: "inventory", StepType: planner.StepTypeEntity, ParentType: "Product", Path: "products", DependsOn: []int{0}, Requires: "{ id price weight }", Selection: "{ shippingEstimate }"},
	}
	if diff := cmp.Diff(want, summarize(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

// ----------------------------------------------------------------------------
// Errors and metadata
// ----------------------------------------------------------------------------

func TestNew_RequiresFederatedGraph(t *testing.T) {
	f := newFixture(t)
	if _, err := planner.New(nil); err == nil {
		t.Error("expected error for a nil graph")
	}

	g, err := querygraph.BuildQueryGraph("api", f.api)
	if err != nil {
		t.Fatalf("BuildQueryGraph failed: %v", err)
	}
	_, err = planner.New(g)
	var single *federror.SingleError
	if !errors.As(err, &single) || single.Code != federror.Internal {
		t.Errorf("expected INTERNAL error, got %v", err)
	}
}

func TestNew_InvalidConditionCacheSize(t *testing.T) {
	f := newFixture(t)
	if _, err := planner.New(f.graph, planner.WithConditionCacheSize(-1)); err == nil {
		t.Error("expected error for a negative cache size")
	}
}

func TestPlanner_ContextCanceled(t *testing.T) {
	f := newFixture(t)
	op, err := operation.ParseOperation(f.api, `{ products { id } }`, "", operation.NormalizeOptions{})
	if err != nil {
		t.Fatalf("ParseOperation failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.planner.Plan(ctx, op); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPlan_String(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, `{ products { rating } }`)

	if plan.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("plan must have an ID")
	}
	got := plan.String()
	for _, want := range []string{
		"query plan " + plan.ID.String(),
		"Step 0 [products] Query on Query: { products { id } }",
		"Step 1 [reviews] Entity on Product at products (depends on 0) requires { id }: { rating }",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("plan output missing %q:\n%s", want, got)
		}
	}
}

// ----------------------------------------------------------------------------
// Subgraph queries
// ----------------------------------------------------------------------------

func TestStep_Query(t *testing.T) {
	f := newFixture(t)
	op, err := operation.ParseOperation(f.api, `mutation Create($name: String!, $unused: Int) {
		createProduct(name: $name) { name rating }
	}`, "", operation.NormalizeOptions{})
	if err != nil {
		t.Fatalf("ParseOperation failed: %v", err)
	}
	plan, err := f.planner.Plan(context.Background(), op)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d:\n%s", len(plan.Steps), plan)
	}

	want := []string{
		`mutation Create($name: String!) { createProduct(name: $name) { name id } }`,
		`query($representations: [_Any!]!) { _entities(representations: $representations) { ... on Product { rating } } }`,
	}
	for i, s := range plan.Steps {
		if got := s.Query(op); got != want[i] {
			t.Errorf("step %d query mismatch:\nwant %s\ngot  %s", i, want[i], got)
		}
	}
}
