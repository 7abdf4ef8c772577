package querygraph

import (
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
)

// Name is the name of the graph: the schema name in single-schema mode.
func (g *QueryGraph) Name() string { return g.name }

// IsFederated reports whether the graph was built from subgraphs.
func (g *QueryGraph) IsFederated() bool { return g.isFederated }

// NodesCount returns the number of nodes.
func (g *QueryGraph) NodesCount() int { return len(g.nodes) }

// EdgesCount returns the number of edges.
func (g *QueryGraph) EdgesCount() int { return len(g.edges) }

// Node returns the node at i.
func (g *QueryGraph) Node(i NodeIndex) (*Node, error) {
	if i < 0 || int(i) >= len(g.nodes) {
		return nil, federror.Internalf("Node index %d out of bounds", i)
	}
	return g.nodes[i], nil
}

// Edge returns the edge at i.
func (g *QueryGraph) Edge(i EdgeIndex) (*Edge, error) {
	if i < 0 || int(i) >= len(g.edges) {
		return nil, federror.Internalf("Edge index %d out of bounds", i)
	}
	return g.edges[i], nil
}

// EdgeHead returns the head node of e.
func (g *QueryGraph) EdgeHead(e *Edge) *Node { return g.nodes[e.Head] }

// EdgeTail returns the tail node of e.
func (g *QueryGraph) EdgeTail(e *Edge) *Node { return g.nodes[e.Tail] }

// Sources returns the source names in registration order. The federated
// root source comes last.
func (g *QueryGraph) Sources() []string {
	return append([]string(nil), g.sourceOrder...)
}

// Schema returns the schema of the graph: the API schema for federated
// graphs, the only schema otherwise.
func (g *QueryGraph) Schema() (*schema.Schema, error) {
	if g.isFederated {
		return g.SchemaBySource(FederatedGraphSource)
	}
	return g.SchemaBySource(g.name)
}

// SchemaBySource returns the schema registered under source.
func (g *QueryGraph) SchemaBySource(source string) (*schema.Schema, error) {
	s, ok := g.sources[source]
	if !ok {
		return nil, federror.Internalf("Query graph %q has no source %q", g.name, source)
	}
	return s, nil
}

// Subgraph returns the subgraph metadata of source, if the graph is federated.
func (g *QueryGraph) Subgraph(source string) (*schema.Subgraph, bool) {
	sg, ok := g.subgraphs[source]
	return sg, ok
}

// Root returns the root node of kind: the federated root for federated
// graphs, the schema root otherwise.
func (g *QueryGraph) Root(kind position.RootKind) (NodeIndex, bool) {
	source := g.name
	if g.isFederated {
		source = FederatedGraphSource
	}
	return g.RootBySource(source, kind)
}

// RootBySource returns the root node of kind in source.
func (g *QueryGraph) RootBySource(source string, kind position.RootKind) (NodeIndex, bool) {
	i, ok := g.rootKindsToNodesBySource[source][kind]
	return i, ok
}

// RootKinds returns the root kinds the graph has an entry point for.
func (g *QueryGraph) RootKinds() []position.RootKind {
	var out []position.RootKind
	for _, kind := range position.RootKinds() {
		if _, ok := g.Root(kind); ok {
			out = append(out, kind)
		}
	}
	return out
}

// NodesForType returns every node of the named type across all sources,
// provides copies included.
func (g *QueryGraph) NodesForType(name string) []NodeIndex {
	var out []NodeIndex
	for _, source := range g.sourceOrder {
		out = append(out, g.typesToNodesBySource[source][name]...)
	}
	return out
}

// NodesForTypeBySource returns the nodes of the named type in source.
func (g *QueryGraph) NodesForTypeBySource(source, name string) []NodeIndex {
	return append([]NodeIndex(nil), g.typesToNodesBySource[source][name]...)
}

// OutEdges returns the out-edges of node in creation order, without the
// KeyResolution and RootTypeResolution self-edges.
func (g *QueryGraph) OutEdges(node NodeIndex) []*Edge {
	n := g.nodes[node]
	out := make([]*Edge, 0, len(n.out))
	for _, ei := range n.out {
		e := g.edges[ei]
		if e.IsSelfEdge() && (e.Transition.Kind == KeyResolution || e.Transition.Kind == RootTypeResolution) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// OutEdgesWithFederationSelfEdges returns every out-edge of node in creation order.
func (g *QueryGraph) OutEdgesWithFederationSelfEdges(node NodeIndex) []*Edge {
	n := g.nodes[node]
	out := make([]*Edge, len(n.out))
	for i, ei := range n.out {
		out[i] = g.edges[ei]
	}
	return out
}

// InEdges returns the in-edges of node in creation order.
func (g *QueryGraph) InEdges(node NodeIndex) []*Edge {
	n := g.nodes[node]
	out := make([]*Edge, len(n.in))
	for i, ei := range n.in {
		out[i] = g.edges[ei]
	}
	return out
}

// NonTrivialFollowupEdges returns the edges worth taking right after e.
func (g *QueryGraph) NonTrivialFollowupEdges(e *Edge) []*Edge {
	followups, ok := g.nonTrivialFollowupEdges[e.Index]
	if !ok {
		return g.OutEdges(e.Tail)
	}
	out := make([]*Edge, len(followups))
	for i, ei := range followups {
		out[i] = g.edges[ei]
	}
	return out
}

// EdgeForField returns the FieldCollection edge of node for field, or nil.
// More than one candidate means the graph is corrupt and is reported as an
// internal error.
func (g *QueryGraph) EdgeForField(node NodeIndex, field *operation.Field) (*Edge, error) {
	return g.edgeForFieldName(node, field.Position.Name)
}

func (g *QueryGraph) edgeForFieldName(node NodeIndex, name string) (*Edge, error) {
	var found *Edge
	for _, e := range g.OutEdgesWithFederationSelfEdges(node) {
		if e.Transition.Kind != FieldCollection || e.Transition.Field.Name != name {
			continue
		}
		if found != nil {
			return nil, federror.Internalf("Node %s has more than one edge for field %q (edges %d and %d)", g.nodes[node], name, found.Index, e.Index)
		}
		found = e
	}
	return found, nil
}

// EdgeForInlineFragment returns the cast edge of node for the fragment's
// type condition, or nil. A fragment without type condition takes no edge.
func (g *QueryGraph) EdgeForInlineFragment(node NodeIndex, fragment *operation.InlineFragment) (*Edge, error) {
	if fragment.TypeCondition == "" {
		return nil, nil
	}
	return g.edgeForTypeCondition(node, fragment.TypeCondition)
}

func (g *QueryGraph) edgeForTypeCondition(node NodeIndex, typeCondition string) (*Edge, error) {
	var found *Edge
	for _, e := range g.OutEdgesWithFederationSelfEdges(node) {
		var to string
		switch e.Transition.Kind {
		case Downcast:
			to = e.Transition.ToType.Name
		case InterfaceObjectFakeDownCast:
			to = e.Transition.ToTypeName
		default:
			continue
		}
		if to != typeCondition {
			continue
		}
		if found != nil {
			return nil, federror.Internalf("Node %s has more than one edge for type condition %q (edges %d and %d)", g.nodes[node], typeCondition, found.Index, e.Index)
		}
		found = e
	}
	return found, nil
}

// PossibleRuntimeTypes returns the runtime types of node's type in its source schema.
func (g *QueryGraph) PossibleRuntimeTypes(node NodeIndex) ([]string, error) {
	n, err := g.Node(node)
	if err != nil {
		return nil, err
	}
	s, err := g.SchemaBySource(n.Source)
	if err != nil {
		return nil, err
	}
	if n.Type.FederatedRoot {
		if def, ok := s.RootType(n.Type.RootKind); ok {
			return []string{def.Name}, nil
		}
		return nil, federror.Internalf("Schema of %q has no %s root", n.Source, n.Type.RootKind)
	}
	return s.PossibleRuntimeTypes(n.Type.Type.Name), nil
}

// AdvancePossibleRuntimeTypes returns the runtime types possible after
// taking e when current are possible at its head.
func (g *QueryGraph) AdvancePossibleRuntimeTypes(current []string, e *Edge) ([]string, error) {
	switch e.Transition.Kind {
	case FieldCollection:
		s, err := g.SchemaBySource(e.Transition.Source)
		if err != nil {
			return nil, err
		}
		if e.Transition.Field.IsTypename() {
			return nil, nil
		}
		var out []string
		seen := make(map[string]bool)
		for _, rt := range current {
			def := s.LookupType(rt)
			if def == nil {
				continue
			}
			f := def.Fields.ForName(e.Transition.Field.Name)
			if f == nil {
				continue
			}
			t, err := s.TypePosition(f.Type.Name())
			if err != nil {
				return nil, err
			}
			if !t.Kind.IsComposite() {
				continue
			}
			for _, next := range s.PossibleRuntimeTypes(t.Name) {
				if !seen[next] {
					seen[next] = true
					out = append(out, next)
				}
			}
		}
		return out, nil
	case Downcast:
		s, err := g.SchemaBySource(e.Transition.Source)
		if err != nil {
			return nil, err
		}
		allowed := make(map[string]bool)
		for _, rt := range s.PossibleRuntimeTypes(e.Transition.ToType.Name) {
			allowed[rt] = true
		}
		var out []string
		for _, rt := range current {
			if allowed[rt] {
				out = append(out, rt)
			}
		}
		return out, nil
	case KeyResolution, RootTypeResolution, SubgraphEnteringTransition:
		return g.PossibleRuntimeTypes(e.Tail)
	case InterfaceObjectFakeDownCast:
		return current, nil
	}
	return nil, federror.Internalf("Unknown transition %s", e.Transition.Kind)
}

// LocallySatisfiableKey returns the first @key of node's type, in
// declaration order, whose fields are all resolved by node's subgraph. It
// returns nil when there is none or the graph is not federated.
func (g *QueryGraph) LocallySatisfiableKey(node NodeIndex) (*operation.SelectionSet, error) {
	n, err := g.Node(node)
	if err != nil {
		return nil, err
	}
	if n.Type.FederatedRoot || !n.Type.Type.Kind.IsComposite() {
		return nil, federror.Internalf("Cannot look up keys on non-composite node %s", n)
	}
	sg, ok := g.subgraphs[n.Source]
	if !ok {
		return nil, nil
	}
	for _, key := range sg.Keys(n.Type.Type.Name) {
		ss, err := operation.ParseFieldSet(sg.Schema, n.Type.Type, key.FieldSet)
		if err != nil {
			return nil, err
		}
		if !containsExternal(sg, ss) {
			return ss, nil
		}
	}
	return nil, nil
}

func containsExternal(sg *schema.Subgraph, ss *operation.SelectionSet) bool {
	for _, sel := range ss.Selections() {
		if f, ok := sel.(*operation.Field); ok && !f.Position.IsTypename() {
			if sg.IsExternal(f.Position.Parent.Name, f.Position.Name) {
				return true
			}
		}
		if sub := sel.SelectionSet(); sub != nil && containsExternal(sg, sub) {
			return true
		}
	}
	return false
}

// HasSatisfiableDirectKeyEdge reports whether from has a KeyResolution edge
// into toSubgraph whose conditions resolve with a cost of at most maxCost.
func (g *QueryGraph) HasSatisfiableDirectKeyEdge(from NodeIndex, toSubgraph string, resolver ConditionResolver, maxCost float64) (bool, error) {
	for _, e := range g.OutEdges(from) {
		if e.Transition.Kind != KeyResolution || g.nodes[e.Tail].Source != toSubgraph {
			continue
		}
		res, err := resolver.Resolve(e, PathContext{}, nil, nil)
		if err != nil {
			return false, err
		}
		if res.Satisfied && res.Cost <= maxCost {
			return true, nil
		}
	}
	return false, nil
}
