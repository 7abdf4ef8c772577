package querygraph

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/vektah/gqlparser/v2/ast"
)

// DefaultConditionCacheSize is the number of resolutions a CachingResolver
// keeps when no size is configured.
const DefaultConditionCacheSize = 4096

// PathContext carries the conditional directives (@skip, @include) in scope
// where a condition is resolved.
type PathContext struct {
	conditionals []string
}

// WithConditionals returns a copy of c extended with the @skip and
// @include applications of directives.
func (c PathContext) WithConditionals(directives ast.DirectiveList) PathContext {
	out := PathContext{conditionals: append([]string(nil), c.conditionals...)}
	for _, d := range directives {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		arg := d.Arguments.ForName("if")
		if arg == nil {
			continue
		}
		out.conditionals = append(out.conditionals, "@"+d.Name+"("+arg.Value.String()+")")
	}
	sort.Strings(out.conditionals)
	return out
}

// IsEmpty reports whether no conditional directive is in scope.
func (c PathContext) IsEmpty() bool { return len(c.conditionals) == 0 }

func (c PathContext) String() string { return strings.Join(c.conditionals, " ") }

// ExcludedDestinations are subgraphs a condition search may not jump to.
type ExcludedDestinations []string

// Contains reports whether source is excluded.
func (d ExcludedDestinations) Contains(source string) bool {
	for _, s := range d {
		if s == source {
			return true
		}
	}
	return false
}

// With returns a new set holding d and source. d is left untouched.
func (d ExcludedDestinations) With(source string) ExcludedDestinations {
	if d.Contains(source) {
		return d
	}
	out := make(ExcludedDestinations, len(d), len(d)+1)
	copy(out, d)
	return append(out, source)
}

// ExcludedConditions are conditions currently being resolved higher in the
// search; meeting one again means a cycle.
type ExcludedConditions []*operation.SelectionSet

// Contains reports whether an equal condition is excluded.
func (c ExcludedConditions) Contains(conditions *operation.SelectionSet) bool {
	for _, s := range c {
		if s.Equal(conditions) {
			return true
		}
	}
	return false
}

// With returns a new set holding c and conditions. c is left untouched.
func (c ExcludedConditions) With(conditions *operation.SelectionSet) ExcludedConditions {
	out := make(ExcludedConditions, len(c), len(c)+1)
	copy(out, c)
	return append(out, conditions)
}

// ConditionResolution is the outcome of resolving the conditions of an edge.
// Unsatisfied is a normal outcome, not an error.
type ConditionResolution struct {
	Satisfied bool
	Cost      float64
	// Edges are the edges taken to collect the conditions, in the order
	// they were found.
	Edges []EdgeIndex
}

// Unsatisfied is the resolution of conditions that cannot be collected.
var Unsatisfied = ConditionResolution{}

// ConditionResolver decides whether the conditions of an edge can be
// collected from the edge's head.
type ConditionResolver interface {
	Resolve(e *Edge, ctx PathContext, excludedDestinations ExcludedDestinations, excludedConditions ExcludedConditions) (ConditionResolution, error)
}

// ResolverOption configures a CachingResolver.
type ResolverOption func(*CachingResolver)

// WithFixedCost makes every satisfied resolution cost 1. Composition
// validation only cares whether conditions can be met.
func WithFixedCost() ResolverOption {
	return func(r *CachingResolver) { r.fixedCost = true }
}

// WithCacheSize sets the number of memoized resolutions.
func WithCacheSize(size int) ResolverOption {
	return func(r *CachingResolver) { r.cacheSize = size }
}

type cachedResolution struct {
	key        string
	resolution ConditionResolution
}

// CachingResolver resolves conditions with a depth-first search over the
// graph and memoizes the results. It is safe for concurrent use.
type CachingResolver struct {
	g         *QueryGraph
	fixedCost bool
	cacheSize int
	cache     *lru.Cache[uint64, cachedResolution]
}

// NewCachingResolver returns a resolver over g.
func NewCachingResolver(g *QueryGraph, opts ...ResolverOption) (*CachingResolver, error) {
	r := &CachingResolver{g: g, cacheSize: DefaultConditionCacheSize}
	for _, opt := range opts {
		opt(r)
	}
	cache, err := lru.New[uint64, cachedResolution](r.cacheSize)
	if err != nil {
		return nil, federror.Internalf("invalid condition cache size %d: %v", r.cacheSize, err)
	}
	r.cache = cache
	return r, nil
}

// Resolve implements ConditionResolver. The result depends on the
// exclusions, so they are part of the memoization key.
func (r *CachingResolver) Resolve(e *Edge, ctx PathContext, excludedDestinations ExcludedDestinations, excludedConditions ExcludedConditions) (ConditionResolution, error) {
	if e.Conditions.IsEmpty() {
		return ConditionResolution{Satisfied: true}, nil
	}
	key := resolutionKey(e, ctx, excludedDestinations, excludedConditions)
	digest := xxhash.Sum64String(key)
	if cached, ok := r.cache.Get(digest); ok && cached.key == key {
		return cached.resolution, nil
	}

	res, err := r.resolve(e, ctx, excludedDestinations, excludedConditions)
	if err != nil {
		return Unsatisfied, err
	}
	r.cache.Add(digest, cachedResolution{key: key, resolution: res})
	return res, nil
}

func resolutionKey(e *Edge, ctx PathContext, excludedDestinations ExcludedDestinations, excludedConditions ExcludedConditions) string {
	dests := append([]string(nil), excludedDestinations...)
	sort.Strings(dests)
	conds := make([]string, len(excludedConditions))
	for i, c := range excludedConditions {
		conds[i] = c.String()
	}
	sort.Strings(conds)

	var b strings.Builder
	b.WriteString(strconv.Itoa(int(e.Index)))
	b.WriteByte('|')
	b.WriteString(ctx.String())
	b.WriteByte('|')
	b.WriteString(strings.Join(dests, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(conds, ","))
	return b.String()
}

func (r *CachingResolver) resolve(e *Edge, ctx PathContext, excludedDestinations ExcludedDestinations, excludedConditions ExcludedConditions) (ConditionResolution, error) {
	if excludedConditions.Contains(e.Conditions) {
		return Unsatisfied, nil
	}
	excludedConditions = excludedConditions.With(e.Conditions)
	if e.Transition.Kind == KeyResolution {
		excludedDestinations = excludedDestinations.With(r.g.nodes[e.Tail].Source)
	}

	c := &collector{
		r:                    r,
		ctx:                  ctx,
		excludedDestinations: excludedDestinations,
		excludedConditions:   excludedConditions,
	}
	cost, edges, ok, err := c.collect(e.Head, e.Conditions)
	if err != nil || !ok {
		return Unsatisfied, err
	}
	cost++
	if r.fixedCost {
		cost = 1
	}
	return ConditionResolution{Satisfied: true, Cost: cost, Edges: edges}, nil
}

// collector walks a condition selection set through the graph.
type collector struct {
	r                    *CachingResolver
	ctx                  PathContext
	excludedDestinations ExcludedDestinations
	excludedConditions   ExcludedConditions
}

func (c *collector) collect(node NodeIndex, ss *operation.SelectionSet) (float64, []EdgeIndex, bool, error) {
	var total float64
	var edges []EdgeIndex
	for _, sel := range ss.Selections() {
		var cost float64
		var taken []EdgeIndex
		var ok bool
		var err error
		switch sel := sel.(type) {
		case *operation.Field:
			cost, taken, ok, err = c.collectField(node, sel)
		case *operation.InlineFragment:
			cost, taken, ok, err = c.collectFragment(node, sel)
		default:
			cost, taken, ok, err = c.collect(node, sel.SelectionSet())
		}
		if err != nil || !ok {
			return 0, nil, false, err
		}
		total += cost
		edges = append(edges, taken...)
	}
	return total, edges, true, nil
}

func (c *collector) collectField(node NodeIndex, f *operation.Field) (float64, []EdgeIndex, bool, error) {
	g := c.r.g
	direct, err := g.EdgeForField(node, f)
	if err != nil {
		return 0, nil, false, err
	}
	if direct != nil {
		cost, edges, ok, err := c.take(direct, f.SelectionSet())
		if err != nil || ok {
			return cost, edges, ok, err
		}
	}

	paths, err := KeyChasingPaths(g, node, c.r, c.ctx, c.excludedDestinations, c.excludedConditions)
	if err != nil {
		return 0, nil, false, err
	}
	for _, p := range paths {
		e, err := g.EdgeForField(p.Node, f)
		if err != nil {
			return 0, nil, false, err
		}
		if e == nil {
			continue
		}
		cost, edges, ok, err := c.take(e, f.SelectionSet())
		if err != nil {
			return 0, nil, false, err
		}
		if ok {
			return p.Cost + cost, append(append([]EdgeIndex(nil), p.Edges...), edges...), true, nil
		}
	}
	return 0, nil, false, nil
}

func (c *collector) collectFragment(node NodeIndex, frag *operation.InlineFragment) (float64, []EdgeIndex, bool, error) {
	g := c.r.g
	n := g.nodes[node]
	if frag.TypeCondition == "" || frag.TypeCondition == n.Type.TypeName() {
		return c.collect(node, frag.SelectionSet())
	}
	e, err := g.EdgeForInlineFragment(node, frag)
	if err != nil {
		return 0, nil, false, err
	}
	if e != nil {
		return c.take(e, frag.SelectionSet())
	}
	s, err := g.SchemaBySource(n.Source)
	if err != nil {
		return 0, nil, false, err
	}
	if s.IsSubtype(frag.TypeCondition, n.Type.TypeName()) {
		return c.collect(node, frag.SelectionSet())
	}
	// The fragment never applies here, so it has nothing to collect.
	return 0, nil, true, nil
}

func (c *collector) take(e *Edge, sub *operation.SelectionSet) (float64, []EdgeIndex, bool, error) {
	var cost float64
	var edges []EdgeIndex
	if !e.Conditions.IsEmpty() {
		res, err := c.r.Resolve(e, c.ctx, c.excludedDestinations, c.excludedConditions)
		if err != nil || !res.Satisfied {
			return 0, nil, false, err
		}
		cost += res.Cost
		edges = append(edges, res.Edges...)
	}
	edges = append(edges, e.Index)
	if sub == nil {
		return cost, edges, true, nil
	}
	subCost, subEdges, ok, err := c.collect(e.Tail, sub)
	if err != nil || !ok {
		return 0, nil, false, err
	}
	return cost + subCost, append(edges, subEdges...), true, nil
}
