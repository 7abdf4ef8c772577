// Package validation checks that every query the supergraph API allows can
// be answered by the subgraphs it was composed from.
package validation

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/querygraph"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "github.com/n9te9/go-graphql-federation-core/federation/validation"

// DefaultMaxValidationSubgraphPaths bounds the number of subgraph paths kept
// alive during a traversal.
const DefaultMaxValidationSubgraphPaths = 1_000_000

// Option configures ValidateSatisfiability.
type Option func(*options)

type options struct {
	logger             *zap.Logger
	catalog            *federror.Catalog
	maxPaths           int
	conditionCacheSize int
}

// WithLogger sets the logger of the traversal.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCatalog sets the catalog used to rank hints.
func WithCatalog(c *federror.Catalog) Option {
	return func(o *options) {
		if c != nil {
			o.catalog = c
		}
	}
}

// WithMaxValidationSubgraphPaths overrides DefaultMaxValidationSubgraphPaths.
// Non-positive values keep the default.
func WithMaxValidationSubgraphPaths(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPaths = n
		}
	}
}

// WithConditionCacheSize sets the size of the condition resolution memo.
func WithConditionCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.conditionCacheSize = n
		}
	}
}

// Result holds the hints found while validating. Errors are returned
// separately.
type Result struct {
	Hints []federror.Hint
}

// ValidateSatisfiability walks every path of the API query graph api and
// checks that, at each step, at least one path of the federated graph can
// follow it. Unsatisfiable paths are reported as SATISFIABILITY_ERROR with
// a witness query; the returned error is a *federror.MultipleErrors when
// more than one problem was found.
func ValidateSatisfiability(ctx context.Context, api, federated *querygraph.QueryGraph, opts ...Option) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "validation.ValidateSatisfiability")
	defer span.End()

	o := options{
		logger:             zap.NewNop(),
		maxPaths:           DefaultMaxValidationSubgraphPaths,
		conditionCacheSize: querygraph.DefaultConditionCacheSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalog == nil {
		o.catalog = federror.NewCatalog()
	}

	t, err := newTraversal(api, federated, o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := t.validate(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("validation.errors", t.errs.Len()),
		attribute.Int("validation.hints", len(t.hints)),
	)
	res := &Result{Hints: t.hints}
	if err := t.errs.ErrorOrNil(); err != nil {
		span.SetStatus(codes.Error, "unsatisfiable supergraph")
		return res, err
	}
	return res, nil
}

// subgraphPath is one way the subgraphs can follow the supergraph path. Edge
// slices are never appended to in place, so paths can share prefixes.
type subgraphPath struct {
	tail         querygraph.NodeIndex
	edges        []querygraph.EdgeIndex
	runtimeTypes []string
}

// key identifies the path by where it ends and what it may still be at
// runtime. Two paths with the same key have the same future.
func (p subgraphPath) key() string {
	rt := append([]string(nil), p.runtimeTypes...)
	sort.Strings(rt)
	return strconv.Itoa(int(p.tail)) + ":" + strings.Join(rt, ",")
}

func (p subgraphPath) with(g *querygraph.QueryGraph, e *querygraph.Edge) (subgraphPath, error) {
	rt, err := g.AdvancePossibleRuntimeTypes(p.runtimeTypes, e)
	if err != nil {
		return subgraphPath{}, err
	}
	edges := make([]querygraph.EdgeIndex, len(p.edges), len(p.edges)+1)
	copy(edges, p.edges)
	return subgraphPath{tail: e.Tail, edges: append(edges, e.Index), runtimeTypes: rt}, nil
}

func (p subgraphPath) withEdges(g *querygraph.QueryGraph, edges []querygraph.EdgeIndex) (subgraphPath, error) {
	out := p
	for _, ei := range edges {
		e, err := g.Edge(ei)
		if err != nil {
			return subgraphPath{}, err
		}
		if out, err = out.with(g, e); err != nil {
			return subgraphPath{}, err
		}
	}
	return out, nil
}

// state pairs a path of the API graph with every subgraph path that can
// follow it.
type state struct {
	superTail  querygraph.NodeIndex
	superEdges []querygraph.EdgeIndex
	paths      []subgraphPath
}

type traversal struct {
	api      *querygraph.QueryGraph
	fed      *querygraph.QueryGraph
	resolver *querygraph.CachingResolver
	catalog  *federror.Catalog
	logger   *zap.Logger

	stack          []*state
	previousVisits map[querygraph.NodeIndex][][]string
	totalPaths     int
	maxPaths       int

	errs  *federror.MultipleErrors
	hints []federror.Hint
}

func newTraversal(api, fed *querygraph.QueryGraph, o options) (*traversal, error) {
	if api == nil || fed == nil {
		return nil, federror.Internalf("Satisfiability requires both the API and the federated query graphs")
	}
	if !fed.IsFederated() {
		return nil, federror.Internalf("Query graph %q is not federated", fed.Name())
	}
	resolver, err := querygraph.NewCachingResolver(fed, querygraph.WithFixedCost(), querygraph.WithCacheSize(o.conditionCacheSize))
	if err != nil {
		return nil, err
	}
	t := &traversal{
		api:            api,
		fed:            fed,
		resolver:       resolver,
		catalog:        o.catalog,
		logger:         o.logger,
		previousVisits: make(map[querygraph.NodeIndex][][]string),
		maxPaths:       o.maxPaths,
		errs:           &federror.MultipleErrors{},
	}

	for _, kind := range api.RootKinds() {
		superRoot, _ := api.Root(kind)
		fedRoot, ok := fed.Root(kind)
		if !ok {
			return nil, federror.Internalf("The supergraph shouldn't have a %s root if no subgraphs have one", kind)
		}
		st := &state{superTail: superRoot}
		for _, e := range fed.OutEdges(fedRoot) {
			rt, err := fed.PossibleRuntimeTypes(e.Tail)
			if err != nil {
				return nil, err
			}
			st.paths = append(st.paths, subgraphPath{tail: e.Tail, edges: []querygraph.EdgeIndex{e.Index}, runtimeTypes: rt})
		}
		t.push(st)
	}
	return t, nil
}

// push adds st to the stack and reports whether the path budget still holds.
func (t *traversal) push(st *state) bool {
	t.totalPaths += len(st.paths)
	t.stack = append(t.stack, st)
	return t.totalPaths <= t.maxPaths
}

func (t *traversal) pop() *state {
	st := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	t.totalPaths -= len(st.paths)
	return st
}

func (t *traversal) validate(ctx context.Context) error {
	for len(t.stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		st := t.pop()
		aborted, err := t.handleState(st)
		if err != nil {
			return err
		}
		if aborted {
			// Only the budget error is reported once the traversal is abandoned.
			t.errs = &federror.MultipleErrors{}
			t.errs.Push(federror.New(federror.MaxValidationSubgraphPathsExceeded, "Maximum number of validation subgraph paths exceeded: %d", t.totalPaths))
			return nil
		}
	}
	return nil
}

// handleState validates every out-edge of the state's API node. It returns
// true when the path budget was exceeded.
func (t *traversal) handleState(st *state) (bool, error) {
	visit, err := st.subgraphs(t.fed)
	if err != nil {
		return false, err
	}
	for _, prev := range t.previousVisits[st.superTail] {
		if isSuperset(visit, prev) {
			t.logger.Debug("node already validated", zap.Int("node", int(st.superTail)))
			return false, nil
		}
	}
	t.previousVisits[st.superTail] = append(t.previousVisits[st.superTail], visit)

	for _, e := range t.api.OutEdges(st.superTail) {
		if e.Transition.Kind == querygraph.FieldCollection && e.Transition.Field.IsTypename() {
			continue
		}
		before := t.errs.Len()
		next, err := t.validateTransition(st, e)
		if err != nil {
			return false, err
		}
		if t.errs.Len() != before || next == nil {
			continue
		}
		if len(t.api.OutEdges(next.superTail)) == 0 {
			continue
		}
		if !t.push(next) {
			return true, nil
		}
	}
	return false, nil
}

func (st *state) subgraphs(g *querygraph.QueryGraph) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range st.paths {
		n, err := g.Node(p.tail)
		if err != nil {
			return nil, err
		}
		if !seen[n.Source] {
			seen[n.Source] = true
			out = append(out, n.Source)
		}
	}
	sort.Strings(out)
	return out, nil
}

// isSuperset reports whether the sorted set a holds every element of the sorted set b.
func isSuperset(a, b []string) bool {
	i := 0
	for _, s := range b {
		for i < len(a) && a[i] < s {
			i++
		}
		if i == len(a) || a[i] != s {
			return false
		}
	}
	return true
}

// validateTransition advances every subgraph path of st along e. It returns
// nil without recording anything when e can never yield results, and nil
// after recording an error when no subgraph path can follow.
func (t *traversal) validateTransition(st *state, e *querygraph.Edge) (*state, error) {
	if !e.Conditions.IsEmpty() {
		return nil, federror.Internalf("Supergraph edges should not have conditions (%s)", e)
	}

	var next []subgraphPath
	var deadEnds []unadvanceable
	seen := make(map[string]bool)
	for _, p := range st.paths {
		adv, err := t.advance(p, e)
		if err != nil {
			return nil, err
		}
		if adv.noResults {
			return nil, nil
		}
		if len(adv.options) == 0 {
			deadEnds = append(deadEnds, adv.deadEnds...)
			continue
		}
		for _, o := range adv.options {
			if k := o.key(); !seen[k] {
				seen[k] = true
				next = append(next, o)
			}
		}
	}

	superEdges := make([]querygraph.EdgeIndex, len(st.superEdges), len(st.superEdges)+1)
	copy(superEdges, st.superEdges)
	superEdges = append(superEdges, e.Index)

	if len(next) == 0 {
		witness, err := t.witness(superEdges)
		if err != nil {
			return nil, err
		}
		t.errs.Push(federror.New(federror.SatisfiabilityError,
			"The following supergraph API query:\n%s\ncannot be satisfied by the subgraphs because:\n%s",
			witness, displayReasons(deadEnds)))
		return nil, nil
	}

	ns := &state{superTail: e.Tail, superEdges: superEdges, paths: next}
	if err := t.checkSharedRuntimeTypes(ns, e); err != nil {
		return nil, err
	}
	return ns, nil
}

// unadvanceable explains why a subgraph could not follow a transition.
type unadvanceable struct {
	sourceSubgraph string
	details        string
}

func displayReasons(reasons []unadvanceable) string {
	var order []string
	bySubgraph := make(map[string][]string)
	for _, r := range reasons {
		if _, ok := bySubgraph[r.sourceSubgraph]; !ok {
			order = append(order, r.sourceSubgraph)
		}
		details := bySubgraph[r.sourceSubgraph]
		dup := false
		for _, d := range details {
			if d == r.details {
				dup = true
				break
			}
		}
		if !dup {
			bySubgraph[r.sourceSubgraph] = append(details, r.details)
		}
	}

	lines := make([]string, 0, len(order))
	for _, sg := range order {
		details := bySubgraph[sg]
		if len(details) == 1 {
			lines = append(lines, `- from subgraph "`+sg+`": `+details[0]+".")
			continue
		}
		var b strings.Builder
		b.WriteString(`- from subgraph "` + sg + `":`)
		for _, d := range details {
			b.WriteString("\n  - " + d + ".")
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}
