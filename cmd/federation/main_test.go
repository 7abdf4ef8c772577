package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
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
type Product @key(fields: "id") {
  id: ID!
  rating: Int
}
`
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"products.graphql": productsSDL,
		"reviews.graphql":  reviewsSDL,
		"query.graphql":    `query TopProducts { products { name rating } }`,
		"federation.yaml": `
subgraphs:
  - name: products
    host: http://products.example.com/query
    schema_files: [products.graphql]
  - name: reviews
    host: http://reviews.example.com/query
    schema_files: [reviews.graphql]
logging:
  level: error
`,
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
	return out.String()
}

func TestVersion(t *testing.T) {
	if got := run(t, "version"); got != "federation "+version+"\n" {
		t.Errorf("unexpected version output %q", got)
	}
}

func TestCompose(t *testing.T) {
	dir := writeConfig(t)
	got := run(t, "compose", "--config", filepath.Join(dir, "federation.yaml"))
	for _, want := range []string{
		`PRODUCTS @join__graph(name: "products", url: "http://products.example.com/query")`,
		`rating: Int @join__field(graph: REVIEWS)`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("supergraph missing %q:\n%s", want, got)
		}
	}
}

func TestCompose_Out(t *testing.T) {
	dir := writeConfig(t)
	out := filepath.Join(dir, "supergraph.graphql")
	if got := run(t, "compose", "--config", filepath.Join(dir, "federation.yaml"), "--out", out); got != "" {
		t.Errorf("expected no stdout output, got %q", got)
	}
	sdl, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(sdl), "join__Graph") {
		t.Errorf("supergraph file missing join__Graph:\n%s", sdl)
	}
}

func TestValidate(t *testing.T) {
	dir := writeConfig(t)
	got := run(t, "validate", "--config", filepath.Join(dir, "federation.yaml"))
	if !strings.Contains(got, "succeeded: 2 subgraphs") {
		t.Errorf("unexpected validate output:\n%s", got)
	}
}

func TestGraph(t *testing.T) {
	dir := writeConfig(t)
	got := run(t, "graph", "--config", filepath.Join(dir, "federation.yaml"))
	if !strings.Contains(got, "products") || !strings.Contains(got, "reviews") {
		t.Errorf("graph dump must mention both subgraphs:\n%s", got)
	}
}

func TestPlan(t *testing.T) {
	dir := writeConfig(t)
	got := run(t, "plan", "--config", filepath.Join(dir, "federation.yaml"), "--query", filepath.Join(dir, "query.graphql"))
	for _, want := range []string{
		"Step 0 [products] Query on Query: { products { name id } }",
		"Step 1 [reviews] Entity on Product at products (depends on 0) requires { id }: { rating }",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("plan missing %q:\n%s", want, got)
		}
	}
}

func TestMissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for a missing config file")
	}
}
