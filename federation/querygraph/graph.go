// Package querygraph models type and field reachability across one or more
// schemas. Nodes are types in a source schema, edges are the ways to move
// between them (collecting a field, casting, resolving a key, entering a
// subgraph). The graph is an append-only arena: indices handed out during
// construction stay valid for the lifetime of the graph.
package querygraph

import (
	"fmt"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
	"go.uber.org/zap"
)

// FederatedGraphSource is the source of the synthetic root nodes of a
// federated graph. Subgraphs cannot use it as their name.
const FederatedGraphSource = "_"

// NodeIndex addresses a node of a QueryGraph.
type NodeIndex int

// EdgeIndex addresses an edge of a QueryGraph.
type EdgeIndex int

// NodeType is either a schema type or a federated root.
type NodeType struct {
	Type position.Type

	// FederatedRoot is set for the synthetic entry points of a federated
	// graph. Type is empty and RootKind names the operation kind.
	FederatedRoot bool
	RootKind      position.RootKind
}

// TypeName returns the schema type name, or the default root type name for federated roots.
func (t NodeType) TypeName() string {
	if t.FederatedRoot {
		return t.RootKind.DefaultTypeName()
	}
	return t.Type.Name
}

func (t NodeType) String() string {
	if t.FederatedRoot {
		return "[" + t.RootKind.String() + "]"
	}
	return t.Type.Name
}

// Node is a vertex of the query graph. Nodes returned by the read API must
// not be modified.
type Node struct {
	Index  NodeIndex
	Type   NodeType
	Source string

	// HasReachableCrossSubgraphEdges is set when a path staying in Source
	// leads from this node to an edge leaving Source.
	HasReachableCrossSubgraphEdges bool

	// ProvideID distinguishes the copies created for @provides; 0 for the
	// regular node of a type.
	ProvideID int

	IsRoot   bool
	RootKind position.RootKind

	out []EdgeIndex
	in  []EdgeIndex
}

func (n *Node) String() string {
	s := fmt.Sprintf("%s(%s)", n.Type, n.Source)
	if n.ProvideID != 0 {
		s += fmt.Sprintf("-%d", n.ProvideID)
	}
	if n.IsRoot {
		s += "*"
	}
	return s
}

// TransitionKind tags a Transition.
type TransitionKind int

const (
	// FieldCollection collects a field of the head type.
	FieldCollection TransitionKind = iota
	// Downcast casts an abstract type to one of its runtime or intersecting abstract types.
	Downcast
	// KeyResolution jumps to the same entity in another subgraph through a @key.
	KeyResolution
	// RootTypeResolution jumps between root types of the same kind.
	RootTypeResolution
	// SubgraphEnteringTransition leaves a federated root for a subgraph root.
	SubgraphEnteringTransition
	// InterfaceObjectFakeDownCast casts an @interfaceObject to an implementation it does not know.
	InterfaceObjectFakeDownCast
)

func (k TransitionKind) String() string {
	switch k {
	case FieldCollection:
		return "FieldCollection"
	case Downcast:
		return "Downcast"
	case KeyResolution:
		return "KeyResolution"
	case RootTypeResolution:
		return "RootTypeResolution"
	case SubgraphEnteringTransition:
		return "SubgraphEnteringTransition"
	case InterfaceObjectFakeDownCast:
		return "InterfaceObjectFakeDownCast"
	}
	return fmt.Sprintf("TransitionKind(%d)", int(k))
}

// Transition describes what taking an edge means. Which fields are set
// depends on Kind.
type Transition struct {
	Kind   TransitionKind
	Source string

	// FieldCollection
	Field            position.Field
	IsPartOfProvides bool

	// Downcast and InterfaceObjectFakeDownCast
	FromType   position.Type
	ToType     position.Type
	ToTypeName string

	// RootTypeResolution
	RootKind position.RootKind
}

// CollectsOperationElements reports whether the transition matches an
// element of an operation (a field or a type condition) rather than being a
// jump the router takes on its own.
func (t Transition) CollectsOperationElements() bool {
	switch t.Kind {
	case FieldCollection, Downcast, InterfaceObjectFakeDownCast:
		return true
	}
	return false
}

func (t Transition) String() string {
	switch t.Kind {
	case FieldCollection:
		return t.Field.Name
	case Downcast:
		return "... on " + t.ToType.Name
	case KeyResolution:
		return "key()"
	case RootTypeResolution:
		return t.RootKind.String() + "()"
	case SubgraphEnteringTransition:
		return "∅"
	case InterfaceObjectFakeDownCast:
		return "... on " + t.ToTypeName
	}
	return t.Kind.String()
}

// Edge is a directed edge of the query graph. Conditions, when set, must be
// collectible from Head before the edge can be taken.
type Edge struct {
	Index      EdgeIndex
	Head       NodeIndex
	Tail       NodeIndex
	Transition Transition
	Conditions *operation.SelectionSet
}

func (e *Edge) String() string {
	if e.Conditions.IsEmpty() {
		return fmt.Sprintf("%d -> %d (%s)", e.Head, e.Tail, e.Transition)
	}
	return fmt.Sprintf("%d -> %d (%s %s)", e.Head, e.Tail, e.Conditions, e.Transition)
}

// IsSelfEdge reports whether the edge loops on its head.
func (e *Edge) IsSelfEdge() bool { return e.Head == e.Tail }

// QueryGraph is the built graph. It is immutable once returned by a builder
// and safe for concurrent reads.
type QueryGraph struct {
	name        string
	isFederated bool

	nodes []*Node
	edges []*Edge

	sourceOrder []string
	sources     map[string]*schema.Schema
	subgraphs   map[string]*schema.Subgraph
	currentSrc  string

	typesToNodesBySource     map[string]map[string][]NodeIndex
	rootKindsToNodesBySource map[string]map[position.RootKind]NodeIndex
	nonTrivialFollowupEdges  map[EdgeIndex][]EdgeIndex

	lastProvideID int
	logger        *zap.Logger
}

func newQueryGraph(name string, federated bool, logger *zap.Logger) *QueryGraph {
	return &QueryGraph{
		name:                     name,
		isFederated:              federated,
		sources:                  make(map[string]*schema.Schema),
		subgraphs:                make(map[string]*schema.Subgraph),
		typesToNodesBySource:     make(map[string]map[string][]NodeIndex),
		rootKindsToNodesBySource: make(map[string]map[position.RootKind]NodeIndex),
		nonTrivialFollowupEdges:  make(map[EdgeIndex][]EdgeIndex),
		logger:                   logger,
	}
}

// addSource registers s and makes it the current source of construction.
func (g *QueryGraph) addSource(source string, s *schema.Schema) error {
	if _, ok := g.sources[source]; ok {
		return federror.Internalf("Source %q registered twice", source)
	}
	g.sourceOrder = append(g.sourceOrder, source)
	g.sources[source] = s
	g.typesToNodesBySource[source] = make(map[string][]NodeIndex)
	g.rootKindsToNodesBySource[source] = make(map[position.RootKind]NodeIndex)
	g.currentSrc = source
	return nil
}

func (g *QueryGraph) createNode(t NodeType, source string, provideID int) *Node {
	n := &Node{
		Index:     NodeIndex(len(g.nodes)),
		Type:      t,
		Source:    source,
		ProvideID: provideID,
	}
	g.nodes = append(g.nodes, n)
	if !t.FederatedRoot {
		byType := g.typesToNodesBySource[source]
		byType[t.Type.Name] = append(byType[t.Type.Name], n.Index)
	}
	return n
}

func (g *QueryGraph) setAsRoot(n *Node, kind position.RootKind) error {
	roots := g.rootKindsToNodesBySource[n.Source]
	if existing, ok := roots[kind]; ok && existing != n.Index {
		return federror.Internalf("Source %q already has a %s root node", n.Source, kind)
	}
	n.IsRoot = true
	n.RootKind = kind
	roots[kind] = n.Index
	return nil
}

func (g *QueryGraph) addEdge(head, tail NodeIndex, t Transition, conditions *operation.SelectionSet) (*Edge, error) {
	h, err := g.Node(head)
	if err != nil {
		return nil, err
	}
	tl, err := g.Node(tail)
	if err != nil {
		return nil, err
	}
	if t.Kind == KeyResolution && conditions.IsEmpty() {
		return nil, federror.Internalf("Key resolution edge from %s to %s has no conditions", h, tl)
	}
	e := &Edge{
		Index:      EdgeIndex(len(g.edges)),
		Head:       head,
		Tail:       tail,
		Transition: t,
		Conditions: conditions,
	}
	g.edges = append(g.edges, e)
	h.out = append(h.out, e.Index)
	tl.in = append(tl.in, e.Index)
	if h.Source != tl.Source {
		g.markCrossSubgraphAncestors(h)
	}
	return e, nil
}

// markCrossSubgraphAncestors flags from and every same-source node that can
// reach it. Marked nodes already have their ancestors marked.
func (g *QueryGraph) markCrossSubgraphAncestors(from *Node) {
	if from.HasReachableCrossSubgraphEdges {
		return
	}
	stack := []*Node{from}
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		next.HasReachableCrossSubgraphEdges = true
		for _, ei := range next.in {
			head := g.nodes[g.edges[ei].Head]
			if head.Source == next.Source && !head.HasReachableCrossSubgraphEdges {
				stack = append(stack, head)
			}
		}
	}
}

// redirectTail points e at a new tail. The edge keeps its index.
func (g *QueryGraph) redirectTail(e *Edge, tail NodeIndex) error {
	old, err := g.Node(e.Tail)
	if err != nil {
		return err
	}
	nt, err := g.Node(tail)
	if err != nil {
		return err
	}
	for i, ei := range old.in {
		if ei == e.Index {
			old.in = append(old.in[:i:i], old.in[i+1:]...)
			break
		}
	}
	nt.in = append(nt.in, e.Index)
	e.Tail = tail
	return nil
}

func (g *QueryGraph) nextProvideID() int {
	g.lastProvideID++
	return g.lastProvideID
}
