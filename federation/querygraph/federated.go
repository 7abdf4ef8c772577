package querygraph

import (
	"context"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "github.com/n9te9/go-graphql-federation-core/federation/querygraph"

// BuildFederatedQueryGraph builds the graph used to plan and validate
// operations against a set of subgraphs. api is the API schema of the
// supergraph composed from subgraphs; it is registered as the source of the
// federated root nodes.
func BuildFederatedQueryGraph(ctx context.Context, api *schema.Schema, subgraphs []*schema.Subgraph, opts ...Option) (*QueryGraph, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "querygraph.BuildFederatedQueryGraph")
	defer span.End()

	g, err := buildFederated(api, subgraphs, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("querygraph.subgraphs", len(subgraphs)),
		attribute.Int("querygraph.nodes", g.NodesCount()),
		attribute.Int("querygraph.edges", g.EdgesCount()),
	)
	return g, nil
}

func buildFederated(api *schema.Schema, subgraphs []*schema.Subgraph, opts []Option) (*QueryGraph, error) {
	o := defaultBuildOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if api == nil {
		return nil, federror.Internalf("Federated query graph requires an API schema")
	}

	g := newQueryGraph(FederatedGraphSource, true, o.logger)
	for _, sg := range subgraphs {
		if sg.Name == FederatedGraphSource {
			return nil, federror.Internalf("Subgraph name %q is reserved", FederatedGraphSource)
		}
		if err := g.addSource(sg.Name, sg.Schema); err != nil {
			return nil, err
		}
		g.subgraphs[sg.Name] = sg
		b := &schemaBuilder{
			g:                g,
			source:           sg.Name,
			schema:           sg.Schema,
			subgraph:         sg,
			api:              api,
			forQueryPlanning: o.forQueryPlanning,
		}
		before := g.NodesCount()
		if err := b.build(); err != nil {
			return nil, err
		}
		o.logger.Debug("added subgraph to query graph",
			zap.String("subgraph", sg.Name),
			zap.Int("nodes", g.NodesCount()-before),
		)
	}
	if err := g.addSource(FederatedGraphSource, api); err != nil {
		return nil, err
	}

	fb := &federatedBuilder{g: g, api: api, subgraphs: subgraphs}
	steps := []func() error{
		fb.addFederatedRoots,
		fb.addKeyEdges,
		fb.addRequiresConditions,
		fb.addRootTypeResolutions,
		fb.addInterfaceObjectFakeDownCasts,
		fb.handleProvides,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	g.precomputeNonTrivialFollowupEdges()

	o.logger.Debug("built federated query graph",
		zap.Int("subgraphs", len(subgraphs)),
		zap.Int("nodes", g.NodesCount()),
		zap.Int("edges", g.EdgesCount()),
	)
	return g, nil
}

type federatedBuilder struct {
	g         *QueryGraph
	api       *schema.Schema
	subgraphs []*schema.Subgraph
}

// addFederatedRoots adds one root per operation kind some subgraph serves,
// with an entering edge to each of those subgraphs.
func (fb *federatedBuilder) addFederatedRoots() error {
	for _, kind := range position.RootKinds() {
		var entries []NodeIndex
		for _, sg := range fb.subgraphs {
			if root, ok := fb.g.RootBySource(sg.Name, kind); ok {
				entries = append(entries, root)
			}
		}
		if len(entries) == 0 {
			continue
		}
		root := fb.g.createNode(NodeType{FederatedRoot: true, RootKind: kind}, FederatedGraphSource, 0)
		if err := fb.g.setAsRoot(root, kind); err != nil {
			return err
		}
		for _, entry := range entries {
			t := Transition{Kind: SubgraphEnteringTransition, Source: fb.g.nodes[entry].Source}
			if _, err := fb.g.addEdge(root.Index, entry, t, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// regularNode returns the node of typeName in source that is not a
// @provides copy.
func (g *QueryGraph) regularNode(source, typeName string) (NodeIndex, bool) {
	for _, i := range g.typesToNodesBySource[source][typeName] {
		if g.nodes[i].ProvideID == 0 {
			return i, true
		}
	}
	return 0, false
}

// addKeyEdges links every node of an entity type to each subgraph declaring
// a resolvable @key for it, the declaring subgraph included. Keys on
// interfaces are also reachable from the implementations in other subgraphs.
func (fb *federatedBuilder) addKeyEdges() error {
	for _, dest := range fb.subgraphs {
		for _, def := range dest.Schema.Types() {
			keys := dest.ResolvableKeys(def.Name)
			if len(keys) == 0 {
				continue
			}
			tail, ok := fb.g.regularNode(dest.Name, def.Name)
			if !ok {
				continue
			}
			t := fb.g.nodes[tail].Type.Type
			for _, key := range keys {
				conditions, err := operation.ParseFieldSet(dest.Schema, t, key.FieldSet)
				if err != nil {
					return err
				}
				for _, src := range fb.subgraphs {
					head, ok := fb.g.regularNode(src.Name, def.Name)
					if !ok {
						continue
					}
					if _, err := fb.g.addEdge(head, tail, Transition{Kind: KeyResolution, Source: dest.Name}, conditions); err != nil {
						return err
					}
				}
				if t.Kind != position.InterfaceKind {
					continue
				}
				for _, impl := range fb.api.PossibleRuntimeTypes(t.Name) {
					for _, src := range fb.subgraphs {
						if src.Name == dest.Name {
							continue
						}
						head, ok := fb.g.regularNode(src.Name, impl)
						if !ok {
							continue
						}
						if _, err := fb.g.addEdge(head, tail, Transition{Kind: KeyResolution, Source: dest.Name}, conditions); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	return nil
}

func (fb *federatedBuilder) addRequiresConditions() error {
	for _, e := range fb.g.edges {
		if e.Transition.Kind != FieldCollection || e.Transition.Field.IsTypename() {
			continue
		}
		sg, ok := fb.g.subgraphs[e.Transition.Source]
		if !ok {
			continue
		}
		pos := e.Transition.Field
		requires := sg.Requires(pos.Parent.Name, pos.Name)
		if requires == "" {
			continue
		}
		conditions, err := operation.ParseFieldSet(sg.Schema, pos.Parent, requires)
		if err != nil {
			return err
		}
		e.Conditions = conditions
	}
	return nil
}

// addRootTypeResolutions links every root node to the roots of the same
// kind in all subgraphs, itself included.
func (fb *federatedBuilder) addRootTypeResolutions() error {
	for _, kind := range position.RootKinds() {
		for _, src := range fb.subgraphs {
			head, ok := fb.g.RootBySource(src.Name, kind)
			if !ok {
				continue
			}
			for _, dest := range fb.subgraphs {
				tail, ok := fb.g.RootBySource(dest.Name, kind)
				if !ok {
					continue
				}
				if _, err := fb.g.addEdge(head, tail, Transition{Kind: RootTypeResolution, Source: dest.Name, RootKind: kind}, nil); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// addInterfaceObjectFakeDownCasts lets an @interfaceObject be cast to the
// implementations of the interface it stands for. The node stays the same.
func (fb *federatedBuilder) addInterfaceObjectFakeDownCasts() error {
	for _, sg := range fb.subgraphs {
		for _, def := range sg.Schema.Types() {
			if !sg.IsInterfaceObject(def.Name) {
				continue
			}
			node, ok := fb.g.regularNode(sg.Name, def.Name)
			if !ok {
				continue
			}
			from := fb.g.nodes[node].Type.Type
			for _, impl := range fb.api.PossibleRuntimeTypes(def.Name) {
				t := Transition{Kind: InterfaceObjectFakeDownCast, Source: sg.Name, FromType: from, ToTypeName: impl}
				if _, err := fb.g.addEdge(node, node, t, nil); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
