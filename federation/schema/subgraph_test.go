package schema_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
)

func TestNewSubgraph(t *testing.T) {
	sdl := `
		type Product @key(fields: "id") {
			id: ID!
			name: String!
			price: Float!
		}

		type Query {
			product(id: ID!): Product
		}
	`

	sg, err := schema.NewSubgraph("product", []byte(sdl), "http://product.example.com")
	if err != nil {
		t.Fatalf("NewSubgraph failed: %v", err)
	}

	if sg.Name != "product" {
		t.Errorf("expected name 'product', got '%s'", sg.Name)
	}
	if sg.Host != "http://product.example.com" {
		t.Errorf("expected host 'http://product.example.com', got '%s'", sg.Host)
	}

	product, ok := sg.TypeInfo("Product")
	if !ok {
		t.Fatal("Product type not found")
	}
	if !product.IsEntity() {
		t.Error("expected Product to be an entity")
	}
	if len(product.Keys) != 1 || product.Keys[0].FieldSet != "id" {
		t.Fatalf("unexpected keys: %+v", product.Keys)
	}
	if !product.Keys[0].Resolvable {
		t.Error("expected key to be resolvable")
	}
	if product.IsExtension() {
		t.Error("expected Product to not be an extension")
	}
	if len(product.Fields) != 3 {
		t.Errorf("expected 3 fields, got %d", len(product.Fields))
	}

	query, ok := sg.TypeInfo("Query")
	if !ok {
		t.Fatal("Query type not found")
	}
	if _, ok := query.Fields["__schema"]; ok {
		t.Error("introspection fields must not be recorded")
	}
}

func TestNewSubgraph_WithExtension(t *testing.T) {
	sdl := `
		extend type Product @key(fields: "id") {
			id: ID! @external
			reviews: [Review!]!
		}

		type Review {
			id: ID!
			rating: Int!
		}
	`

	sg, err := schema.NewSubgraph("review", []byte(sdl), "http://review.example.com")
	if err != nil {
		t.Fatalf("NewSubgraph failed: %v", err)
	}

	product, ok := sg.TypeInfo("Product")
	if !ok {
		t.Fatal("Product type not found")
	}
	if !product.IsExtension() {
		t.Error("expected Product to be an extension")
	}
	if !sg.IsExternal("Product", "id") {
		t.Error("expected Product.id to be external")
	}
	if sg.IsExternal("Product", "reviews") {
		t.Error("expected Product.reviews to not be external")
	}
}

func TestNewSubgraph_WithDirectives(t *testing.T) {
	sdl := `
		type Product @key(fields: "id") {
			id: ID!
			weight: Float @external
			size: Int @external
			shippingCost: Float @requires(fields: "weight size")
			inStock: Boolean @override(from: "inventory", label: "percent(25)")
			secret: String @inaccessible @tag(name: "internal") @tag(name: "beta")
		}

		type Review @key(fields: "id") {
			id: ID!
			product: Product @provides(fields: "weight")
		}
	`

	sg, err := schema.NewSubgraph("shipping", []byte(sdl), "")
	if err != nil {
		t.Fatalf("NewSubgraph failed: %v", err)
	}

	if got := sg.Requires("Product", "shippingCost"); got != "weight size" {
		t.Errorf("expected requires 'weight size', got '%s'", got)
	}
	if got := sg.Provides("Review", "product"); got != "weight" {
		t.Errorf("expected provides 'weight', got '%s'", got)
	}

	override := sg.Override("Product", "inStock")
	if override == nil {
		t.Fatal("expected @override metadata")
	}
	if diff := cmp.Diff(schema.OverrideMetadata{From: "inventory", Label: "percent(25)"}, *override); diff != "" {
		t.Errorf("unexpected override (-want +got):\n%s", diff)
	}

	if !sg.IsInaccessible("Product", "secret") {
		t.Error("expected Product.secret to be inaccessible")
	}
	if diff := cmp.Diff([]string{"internal", "beta"}, sg.Tags("Product", "secret")); diff != "" {
		t.Errorf("unexpected tags (-want +got):\n%s", diff)
	}
}

func TestNewSubgraph_WithShareable(t *testing.T) {
	sdl := `
		type Position @shareable {
			x: Int!
			y: Int!
		}

		type Product @key(fields: "id") {
			id: ID!
			name: String! @shareable
			description: String
		}
	`

	sg, err := schema.NewSubgraph("catalog", []byte(sdl), "")
	if err != nil {
		t.Fatalf("NewSubgraph failed: %v", err)
	}

	tests := []struct {
		typeName, fieldName string
		want                bool
	}{
		{"Position", "x", true},
		{"Product", "id", true}, // key fields are shareable
		{"Product", "name", true},
		{"Product", "description", false},
		{"Product", "missing", false},
	}
	for _, tt := range tests {
		if got := sg.IsShareable(tt.typeName, tt.fieldName); got != tt.want {
			t.Errorf("IsShareable(%s.%s) = %v, want %v", tt.typeName, tt.fieldName, got, tt.want)
		}
	}
}

func TestNewSubgraph_WithNonResolvableKey(t *testing.T) {
	sdl := `
		type User @key(fields: "id", resolvable: false) @key(fields: "email") {
			id: ID!
			email: String!
		}
	`

	sg, err := schema.NewSubgraph("accounts", []byte(sdl), "")
	if err != nil {
		t.Fatalf("NewSubgraph failed: %v", err)
	}

	want := []schema.EntityKey{
		{FieldSet: "id", Resolvable: false},
		{FieldSet: "email", Resolvable: true},
	}
	if diff := cmp.Diff(want, sg.Keys("User")); diff != "" {
		t.Errorf("unexpected keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want[1:], sg.ResolvableKeys("User")); diff != "" {
		t.Errorf("unexpected resolvable keys (-want +got):\n%s", diff)
	}
}

func TestNewSubgraph_InterfaceObjectAndComposeDirective(t *testing.T) {
	sdl := `
		extend schema @composeDirective(name: "@custom")

		directive @custom on FIELD_DEFINITION

		type Media @key(fields: "id") @interfaceObject {
			id: ID!
			rating: Int @custom
		}
	`

	sg, err := schema.NewSubgraph("ratings", []byte(sdl), "")
	if err != nil {
		t.Fatalf("NewSubgraph failed: %v", err)
	}
	if !sg.IsInterfaceObject("Media") {
		t.Error("expected Media to be an @interfaceObject")
	}
	if diff := cmp.Diff(map[string]bool{"Media": true}, sg.InterfaceObjectTypes()); diff != "" {
		t.Errorf("unexpected interface objects (-want +got):\n%s", diff)
	}
	if !sg.IsComposeDirective("custom") {
		t.Errorf("expected custom to be composed, got %v", sg.ComposeDirectives)
	}
}

func TestNewSubgraph_InvalidName(t *testing.T) {
	if _, err := schema.NewSubgraph("_", []byte(`type Query { a: Int }`), ""); err == nil {
		t.Fatal("expected error for subgraph named '_'")
	}
}

func TestFieldSetFieldNames(t *testing.T) {
	got, err := schema.FieldSetFieldNames("id organization { id } sku")
	if err != nil {
		t.Fatalf("FieldSetFieldNames failed: %v", err)
	}
	if diff := cmp.Diff([]string{"id", "organization", "sku"}, got); diff != "" {
		t.Errorf("unexpected names (-want +got):\n%s", diff)
	}

	if _, err := schema.FieldSetFieldNames("id {"); err == nil {
		t.Error("expected error for malformed field set")
	}
}
