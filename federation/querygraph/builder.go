package querygraph

import (
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"
)

// Option configures the graph builders.
type Option func(*buildOptions)

type buildOptions struct {
	logger           *zap.Logger
	forQueryPlanning bool
}

func defaultBuildOptions() buildOptions {
	return buildOptions{
		logger:           zap.NewNop(),
		forQueryPlanning: true,
	}
}

// WithLogger sets the logger used while building.
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// ForQueryPlanning controls whether the federated builder adds the
// abstract-to-abstract cast edges that only help query planning. It defaults
// to true; composition validation turns it off.
func ForQueryPlanning(enabled bool) Option {
	return func(o *buildOptions) {
		o.forQueryPlanning = enabled
	}
}

// BuildQueryGraph builds the graph of a single schema, such as a supergraph
// API schema. The graph has one source named name.
func BuildQueryGraph(name string, s *schema.Schema, opts ...Option) (*QueryGraph, error) {
	o := defaultBuildOptions()
	for _, opt := range opts {
		opt(&o)
	}
	g := newQueryGraph(name, false, o.logger)
	if err := g.addSource(name, s); err != nil {
		return nil, err
	}
	b := &schemaBuilder{g: g, source: name, schema: s}
	if err := b.build(); err != nil {
		return nil, err
	}
	o.logger.Debug("built query graph",
		zap.String("name", name),
		zap.Int("nodes", g.NodesCount()),
		zap.Int("edges", g.EdgesCount()),
	)
	return g, nil
}

// schemaBuilder adds the nodes and edges of one source. subgraph and api
// are only set in federated mode.
type schemaBuilder struct {
	g                *QueryGraph
	source           string
	schema           *schema.Schema
	subgraph         *schema.Subgraph
	api              *schema.Schema
	forQueryPlanning bool
}

func (b *schemaBuilder) build() error {
	for _, kind := range position.RootKinds() {
		def, ok := b.schema.RootType(kind)
		if !ok {
			continue
		}
		if err := b.addRecursivelyFromRoot(kind, def); err != nil {
			return err
		}
	}
	if b.subgraph != nil {
		if err := b.addEntityTypes(); err != nil {
			return err
		}
		if err := b.addInterfaceEntityEdges(); err != nil {
			return err
		}
		if b.forQueryPlanning {
			if err := b.addAdditionalAbstractTypeEdges(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *schemaBuilder) addRecursivelyFromRoot(kind position.RootKind, def *ast.Definition) error {
	if def.Kind != ast.Object {
		return federror.Internalf("Root type %q was unexpectedly not an object type", def.Name)
	}
	node, err := b.addTypeRecursively(position.Type{Kind: position.ObjectKind, Name: def.Name})
	if err != nil {
		return err
	}
	return b.g.setAsRoot(b.g.nodes[node], kind)
}

// addTypeRecursively returns the node of t in the current source, creating
// it together with everything reachable from it.
func (b *schemaBuilder) addTypeRecursively(t position.Type) (NodeIndex, error) {
	if existing := b.g.typesToNodesBySource[b.source][t.Name]; len(existing) > 0 {
		if len(existing) > 1 {
			return 0, federror.Internalf("Only one node should have been created for type %q, got %d", t.Name, len(existing))
		}
		return existing[0], nil
	}
	node := b.g.createNode(NodeType{Type: t}, b.source, 0).Index

	var err error
	switch t.Kind {
	case position.ObjectKind:
		err = b.addObjectTypeEdges(t, node)
	case position.InterfaceKind:
		if b.subgraph != nil {
			if err = b.maybeAddInterfaceFieldsEdges(t, node); err != nil {
				return 0, err
			}
		}
		err = b.addAbstractTypeEdges(t, node)
	case position.UnionKind:
		if err = b.addEdgeForField(t.Typename(), node, false); err != nil {
			return 0, err
		}
		err = b.addAbstractTypeEdges(t, node)
	case position.InputObjectKind:
		err = federror.Internalf("Input object %q cannot be an output type", t.Name)
	}
	if err != nil {
		return 0, err
	}
	return node, nil
}

func (b *schemaBuilder) addObjectTypeEdges(t position.Type, head NodeIndex) error {
	def, err := b.schema.Type(t.Name)
	if err != nil {
		return err
	}
	for _, f := range schema.Fields(def) {
		if b.isFederationField(t, f.Name) {
			continue
		}
		pos := t.Field(f.Name)
		if err := b.addEdgeForField(pos, head, b.isExternal(pos)); err != nil {
			return err
		}
	}
	if b.subgraph != nil && b.subgraph.IsInterfaceObject(t.Name) {
		return nil
	}
	return b.addEdgeForField(t.Typename(), head, false)
}

// addEdgeForField adds the field's type and, unless skipEdge, the edge to it.
// External fields still get their type added so that @provides can later
// link to it.
func (b *schemaBuilder) addEdgeForField(pos position.Field, head NodeIndex, skipEdge bool) error {
	def, err := b.schema.Field(pos)
	if err != nil {
		return err
	}
	t, err := b.schema.TypePosition(def.Type.Name())
	if err != nil {
		return err
	}
	if !t.Kind.IsOutput() {
		return federror.Internalf("Field %q has non-output type %q", pos, t.Name)
	}
	tail, err := b.addTypeRecursively(t)
	if err != nil {
		return err
	}
	if skipEdge {
		return nil
	}
	_, err = b.g.addEdge(head, tail, Transition{Kind: FieldCollection, Source: b.source, Field: pos}, nil)
	return err
}

// maybeAddInterfaceFieldsEdges adds direct edges for the interface fields
// every local implementation resolves itself. Other fields are only
// reachable after casting to an implementation.
func (b *schemaBuilder) maybeAddInterfaceFieldsEdges(t position.Type, head NodeIndex) error {
	if b.api != nil && b.api.LookupType(t.Name) == nil {
		return nil
	}
	var local []string
	if b.api != nil {
		for _, rt := range b.api.PossibleRuntimeTypes(t.Name) {
			if b.schema.LookupType(rt) != nil {
				local = append(local, rt)
			}
		}
	} else {
		local = b.schema.PossibleRuntimeTypes(t.Name)
	}

	def, err := b.schema.Type(t.Name)
	if err != nil {
		return err
	}
	for _, f := range schema.Fields(def) {
		pos := t.Field(f.Name)
		if b.isExternal(pos) {
			continue
		}
		providedByAll := true
		for _, rt := range local {
			if !b.isDirectlyProvidedByType(rt, f.Name) {
				providedByAll = false
				break
			}
		}
		if !providedByAll {
			continue
		}
		if err := b.addEdgeForField(pos, head, false); err != nil {
			return err
		}
	}
	return b.addEdgeForField(t.Typename(), head, false)
}

// isDirectlyProvidedByType reports whether the object type declares the
// field without @external or @requires.
func (b *schemaBuilder) isDirectlyProvidedByType(typeName, fieldName string) bool {
	def := b.schema.LookupType(typeName)
	if def == nil || def.Fields.ForName(fieldName) == nil {
		return false
	}
	if b.subgraph == nil {
		return true
	}
	return !b.subgraph.IsExternal(typeName, fieldName) && b.subgraph.Requires(typeName, fieldName) == ""
}

func (b *schemaBuilder) addAbstractTypeEdges(t position.Type, head NodeIndex) error {
	for _, rt := range b.schema.PossibleRuntimeTypes(t.Name) {
		to := position.Type{Kind: position.ObjectKind, Name: rt}
		tail, err := b.addTypeRecursively(to)
		if err != nil {
			return err
		}
		if _, err := b.g.addEdge(head, tail, Transition{Kind: Downcast, Source: b.source, FromType: t, ToType: to}, nil); err != nil {
			return err
		}
	}
	return nil
}

// addEntityTypes makes every type with a resolvable @key part of the graph,
// since the router can always reach entities through the subgraph's entity
// resolver even when no field leads to them.
func (b *schemaBuilder) addEntityTypes() error {
	for _, def := range b.schema.Types() {
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			continue
		}
		if len(b.subgraph.ResolvableKeys(def.Name)) == 0 {
			continue
		}
		if _, err := b.addTypeRecursively(position.Type{Kind: position.KindOf(def.Kind), Name: def.Name}); err != nil {
			return err
		}
	}
	return nil
}

// entityUnion is the union of a subgraph's entity object types.
const entityUnion = "_Entity"

// addInterfaceEntityEdges adds downcasts from the _Entity union to every
// entity interface. Unions cannot hold interfaces, yet the entity resolver
// resolves entity interfaces too. A subgraph without _Entity gets none.
func (b *schemaBuilder) addInterfaceEntityEdges() error {
	def := b.schema.LookupType(entityUnion)
	if def == nil || def.Kind != ast.Union {
		return nil
	}
	from := position.Type{Kind: position.UnionKind, Name: entityUnion}
	head, err := b.addTypeRecursively(from)
	if err != nil {
		return err
	}
	for _, itf := range b.schema.Types() {
		if itf.Kind != ast.Interface || len(b.subgraph.ResolvableKeys(itf.Name)) == 0 {
			continue
		}
		to := position.Type{Kind: position.InterfaceKind, Name: itf.Name}
		tail, err := b.addTypeRecursively(to)
		if err != nil {
			return err
		}
		if _, err := b.g.addEdge(head, tail, Transition{Kind: Downcast, Source: b.source, FromType: from, ToType: to}, nil); err != nil {
			return err
		}
	}
	return nil
}

type abstractRuntimeTypes struct {
	t        position.Type
	local    map[string]bool
	localSet []string
	api      []string
}

// addAdditionalAbstractTypeEdges adds casts between abstract types whose
// local runtime types intersect on at least two types, so that planning does
// not have to explode into every runtime type. A type always gets a cast to
// itself. Casts never target unions, and never skip a runtime type the API
// knows but the local intersection misses.
func (b *schemaBuilder) addAdditionalAbstractTypeEdges() error {
	var abstracts []abstractRuntimeTypes
	for _, def := range b.schema.Types() {
		if def.Kind != ast.Interface && def.Kind != ast.Union {
			continue
		}
		apiDef := b.api.LookupType(def.Name)
		if apiDef == nil {
			continue
		}
		if apiDef.Kind != ast.Interface && apiDef.Kind != ast.Union {
			return federror.Internalf("Type %q was abstract in subgraph %q but not in the API schema", def.Name, b.source)
		}
		localSet := b.schema.PossibleRuntimeTypes(def.Name)
		local := make(map[string]bool, len(localSet))
		for _, rt := range localSet {
			local[rt] = true
		}
		abstracts = append(abstracts, abstractRuntimeTypes{
			t:        position.Type{Kind: position.KindOf(def.Kind), Name: def.Name},
			local:    local,
			localSet: localSet,
			api:      b.api.PossibleRuntimeTypes(def.Name),
		})
	}

	for i, t1 := range abstracts {
		t1Node, err := b.addTypeRecursively(t1.t)
		if err != nil {
			return err
		}
		for j := 0; j <= i; j++ {
			t2 := abstracts[j]
			var addT1ToT2, addT2ToT1 bool
			if i == j {
				addT1ToT2 = true
			} else {
				intersection := make(map[string]bool)
				for _, rt := range t1.localSet {
					if t2.local[rt] {
						intersection[rt] = true
					}
				}
				if len(intersection) >= 2 {
					escapes := func(api []string, other abstractRuntimeTypes) bool {
						for _, rt := range api {
							if other.local[rt] && !intersection[rt] {
								return true
							}
						}
						return false
					}
					addT1ToT2 = t2.t.Kind != position.UnionKind && !escapes(t2.api, t1)
					addT2ToT1 = t1.t.Kind != position.UnionKind && !escapes(t1.api, t2)
				}
			}
			if !addT1ToT2 && !addT2ToT1 {
				continue
			}
			t2Node, err := b.addTypeRecursively(t2.t)
			if err != nil {
				return err
			}
			if addT1ToT2 {
				if _, err := b.g.addEdge(t1Node, t2Node, Transition{Kind: Downcast, Source: b.source, FromType: t1.t, ToType: t2.t}, nil); err != nil {
					return err
				}
			}
			if addT2ToT1 {
				if _, err := b.g.addEdge(t2Node, t1Node, Transition{Kind: Downcast, Source: b.source, FromType: t2.t, ToType: t1.t}, nil); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (b *schemaBuilder) isExternal(pos position.Field) bool {
	if b.subgraph == nil {
		return false
	}
	return b.subgraph.IsExternal(pos.Parent.Name, pos.Name)
}

// isFederationField reports the entity resolver fields of a subgraph's
// query type, which are not part of any client operation.
func (b *schemaBuilder) isFederationField(t position.Type, name string) bool {
	if b.subgraph == nil {
		return false
	}
	if kind, ok := b.schema.RootKindOf(t.Name); !ok || kind != position.Query {
		return false
	}
	return name == "_entities" || name == "_service" || strings.HasPrefix(name, "__")
}
