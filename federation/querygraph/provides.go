package querygraph

import (
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
)

// handleProvides gives each @provides field its own copy of the field's type
// node. The copy carries the regular edges plus the provided ones, so the
// provided fields are only reachable through that field.
func (fb *federatedBuilder) handleProvides() error {
	count := len(fb.g.edges)
	for i := 0; i < count; i++ {
		e := fb.g.edges[i]
		if e.Transition.Kind != FieldCollection || e.Transition.IsPartOfProvides || e.Transition.Field.IsTypename() {
			continue
		}
		sg, ok := fb.g.subgraphs[e.Transition.Source]
		if !ok {
			continue
		}
		pos := e.Transition.Field
		provides := sg.Provides(pos.Parent.Name, pos.Name)
		if provides == "" {
			continue
		}
		tail := fb.g.nodes[e.Tail]
		if tail.Type.FederatedRoot || !tail.Type.Type.Kind.IsComposite() {
			return federror.Internalf("@provides on %q targets non-composite type %q", pos, tail.Type)
		}
		provided, err := operation.ParseFieldSet(sg.Schema, tail.Type.Type, provides)
		if err != nil {
			return err
		}

		provideID := fb.g.nextProvideID()
		copied, err := fb.g.copyNode(tail, provideID)
		if err != nil {
			return err
		}
		if err := fb.g.redirectTail(e, copied.Index); err != nil {
			return err
		}
		if err := fb.addProvidedEdges(sg, copied, provided, provideID); err != nil {
			return err
		}
	}
	return nil
}

// copyNode duplicates n and its out-edges under provideID. Self-edges of n
// become self-edges of the copy.
func (g *QueryGraph) copyNode(n *Node, provideID int) (*Node, error) {
	c := g.createNode(n.Type, n.Source, provideID)
	c.HasReachableCrossSubgraphEdges = n.HasReachableCrossSubgraphEdges
	for _, e := range g.OutEdgesWithFederationSelfEdges(n.Index) {
		tail := e.Tail
		if e.IsSelfEdge() {
			tail = c.Index
		}
		if _, err := g.addEdge(c.Index, tail, e.Transition, e.Conditions); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (fb *federatedBuilder) addProvidedEdges(sg *schema.Subgraph, node *Node, provided *operation.SelectionSet, provideID int) error {
	for _, sel := range provided.Selections() {
		switch sel := sel.(type) {
		case *operation.Field:
			if err := fb.addProvidedField(sg, node, sel, provideID); err != nil {
				return err
			}
		case *operation.InlineFragment:
			if err := fb.addProvidedFragment(sg, node, sel, provideID); err != nil {
				return err
			}
		default:
			return federror.Internalf("Unexpected selection %s in @provides", sel.Key())
		}
	}
	return nil
}

func (fb *federatedBuilder) addProvidedField(sg *schema.Subgraph, node *Node, f *operation.Field, provideID int) error {
	existing, err := fb.g.edgeForFieldName(node.Index, f.Position.Name)
	if err != nil {
		return err
	}
	sub := f.SelectionSet()
	if existing != nil {
		if sub == nil {
			return nil
		}
		return fb.copyTailAndRecurse(sg, existing, sub, provideID)
	}

	// The field is external here: @provides is what makes it collectible.
	def, err := sg.Schema.Field(f.Position)
	if err != nil {
		return err
	}
	target, ok := fb.g.regularNode(sg.Name, def.Type.Name())
	if !ok {
		return federror.Internalf("Subgraph %q has no node for type %q provided by %q", sg.Name, def.Type.Name(), f.Position)
	}
	t := Transition{Kind: FieldCollection, Source: sg.Name, Field: f.Position, IsPartOfProvides: true}
	e, err := fb.g.addEdge(node.Index, target, t, nil)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}
	return fb.copyTailAndRecurse(sg, e, sub, provideID)
}

func (fb *federatedBuilder) addProvidedFragment(sg *schema.Subgraph, node *Node, frag *operation.InlineFragment, provideID int) error {
	if frag.TypeCondition == "" || frag.TypeCondition == node.Type.TypeName() {
		return fb.addProvidedEdges(sg, node, frag.SelectionSet(), provideID)
	}
	existing, err := fb.g.edgeForTypeCondition(node.Index, frag.TypeCondition)
	if err != nil {
		return err
	}
	if existing != nil {
		return fb.copyTailAndRecurse(sg, existing, frag.SelectionSet(), provideID)
	}
	target, ok := fb.g.regularNode(sg.Name, frag.TypeCondition)
	if !ok {
		return federror.Internalf("Subgraph %q has no node for type %q", sg.Name, frag.TypeCondition)
	}
	t := Transition{Kind: Downcast, Source: sg.Name, FromType: node.Type.Type, ToType: fb.g.nodes[target].Type.Type}
	e, err := fb.g.addEdge(node.Index, target, t, nil)
	if err != nil {
		return err
	}
	return fb.copyTailAndRecurse(sg, e, frag.SelectionSet(), provideID)
}

func (fb *federatedBuilder) copyTailAndRecurse(sg *schema.Subgraph, e *Edge, sub *operation.SelectionSet, provideID int) error {
	tail := fb.g.nodes[e.Tail]
	target := tail
	if tail.ProvideID != provideID {
		c, err := fb.g.copyNode(tail, provideID)
		if err != nil {
			return err
		}
		if err := fb.g.redirectTail(e, c.Index); err != nil {
			return err
		}
		target = c
	}
	return fb.addProvidedEdges(sg, target, sub, provideID)
}
