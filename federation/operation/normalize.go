package operation

import (
	"fmt"
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// Operation is a normalized executable operation.
type Operation struct {
	Kind                position.RootKind
	Name                string
	VariableDefinitions ast.VariableDefinitionList
	Directives          ast.DirectiveList
	SelectionSet        *SelectionSet
}

// String prints the operation on one line.
func (op *Operation) String() string {
	var b strings.Builder
	b.WriteString(op.Kind.String())
	if op.Name != "" {
		b.WriteByte(' ')
		b.WriteString(op.Name)
	}
	if len(op.VariableDefinitions) > 0 {
		b.WriteByte('(')
		for i, v := range op.VariableDefinitions {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%s: %s", v.Variable, v.Type.String())
			if v.DefaultValue != nil {
				b.WriteString(" = ")
				b.WriteString(v.DefaultValue.String())
			}
		}
		b.WriteByte(')')
	}
	printDirectives(&b, op.Directives)
	b.WriteByte(' ')
	op.SelectionSet.print(&b)
	return b.String()
}

// NormalizeOptions tunes NormalizeOperation.
type NormalizeOptions struct {
	// PreserveFragmentSpreads keeps named fragment spreads instead of
	// expanding them into inline fragments.
	PreserveFragmentSpreads bool
	// InterfaceObjectTypes names the interfaces some subgraph declares as an
	// @interfaceObject. Their selection sets keep __typename next to other
	// fields.
	InterfaceObjectTypes map[string]bool
}

// ParseOperation parses and validates query against s, then normalizes the
// named operation (or the only one when operationName is empty).
func ParseOperation(s *schema.Schema, query, operationName string, opts NormalizeOptions) (*Operation, error) {
	doc, perr := parser.ParseQuery(&ast.Source{Name: "operation", Input: query})
	if perr != nil {
		return nil, federror.New(federror.InvalidGraphQL, "%v", perr).WithCause(perr)
	}
	if errs := validator.Validate(s.AST(), doc); len(errs) > 0 {
		return nil, federror.New(federror.InvalidGraphQL, "%v", errs).WithCause(errs)
	}
	return NormalizeOperation(s, doc, operationName, opts)
}

// NormalizeOperation normalizes one operation of doc: fragments are inlined,
// redundant fragments hoisted, impossible fragments dropped and selections
// with equal keys merged. Top-level __typename selections are removed and
// sibling __typename selections are folded into the field next to them.
func NormalizeOperation(s *schema.Schema, doc *ast.QueryDocument, operationName string, opts NormalizeOptions) (*Operation, error) {
	var op *ast.OperationDefinition
	switch {
	case operationName != "":
		op = doc.Operations.ForName(operationName)
		if op == nil {
			return nil, federror.Internalf("Unknown operation %q", operationName)
		}
	case len(doc.Operations) == 1:
		op = doc.Operations[0]
	default:
		return nil, federror.Internalf("Expected exactly one operation, got %d", len(doc.Operations))
	}

	kind, err := position.RootKindFromOperation(op.Operation)
	if err != nil {
		return nil, federror.Internalf("%v", err)
	}
	root, ok := s.RootType(kind)
	if !ok {
		return nil, federror.Internalf("Schema has no %s root type", kind)
	}

	n := &normalizer{schema: s, fragments: doc.Fragments, opts: opts}
	ss, err := n.selectionSet(position.Type{Kind: position.ObjectKind, Name: root.Name}, op.SelectionSet)
	if err != nil {
		return nil, err
	}
	if ss, err = withoutTopLevelTypename(ss); err != nil {
		return nil, err
	}
	if ss, err = ss.OptimizeSiblingTypenames(opts.InterfaceObjectTypes); err != nil {
		return nil, err
	}
	return &Operation{
		Kind:                kind,
		Name:                op.Name,
		VariableDefinitions: op.VariableDefinitions,
		Directives:          op.Directives,
		SelectionSet:        ss,
	}, nil
}

// withoutTopLevelTypename drops root __typename fields: the router answers
// them without asking a subgraph.
func withoutTopLevelTypename(ss *SelectionSet) (*SelectionSet, error) {
	return ss.LazyMap(func(sel Selection) ([]Selection, error) {
		if f, ok := sel.(*Field); ok && f.Position.IsTypename() {
			return nil, nil
		}
		return []Selection{sel}, nil
	})
}

// NormalizeSelectionSet normalizes raw selections on parent without named fragments.
func NormalizeSelectionSet(s *schema.Schema, parent position.Type, sels ast.SelectionSet) (*SelectionSet, error) {
	n := &normalizer{schema: s}
	return n.selectionSet(parent, sels)
}

// ParseFieldSet parses a @key, @requires or @provides field set on parent.
func ParseFieldSet(s *schema.Schema, parent position.Type, fieldSet string) (*SelectionSet, error) {
	doc, perr := parser.ParseQuery(&ast.Source{Name: "fieldset", Input: "{" + fieldSet + "}"})
	if perr != nil {
		return nil, federror.New(federror.InvalidGraphQL, "Invalid field set %q: %v", fieldSet, perr).WithCause(perr)
	}
	if len(doc.Operations) != 1 || len(doc.Fragments) != 0 {
		return nil, federror.New(federror.InvalidGraphQL, "Invalid field set %q", fieldSet)
	}
	return NormalizeSelectionSet(s, parent, doc.Operations[0].SelectionSet)
}

type normalizer struct {
	schema    *schema.Schema
	fragments ast.FragmentDefinitionList
	opts      NormalizeOptions
	nextDefer int
}

func (n *normalizer) selectionSet(parent position.Type, sels ast.SelectionSet) (*SelectionSet, error) {
	out := NewSelectionSet(n.schema, parent)
	if err := n.addAll(out, parent, sels); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *normalizer) addAll(out *SelectionSet, parent position.Type, sels ast.SelectionSet) error {
	for _, sel := range sels {
		switch sel := sel.(type) {
		case *ast.Field:
			f, err := n.field(parent, sel)
			if err != nil {
				return err
			}
			if err := out.add(f); err != nil {
				return err
			}
		case *ast.InlineFragment:
			if err := n.fragment(out, parent, sel.TypeCondition, sel.Directives, sel.SelectionSet); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			def := n.fragments.ForName(sel.Name)
			if def == nil {
				return federror.Internalf("Unknown fragment %q", sel.Name)
			}
			if n.opts.PreserveFragmentSpreads && sel.Directives.ForName("defer") == nil {
				if err := n.spread(out, parent, sel, def); err != nil {
					return err
				}
				continue
			}
			if err := n.fragment(out, parent, def.TypeCondition, sel.Directives, def.SelectionSet); err != nil {
				return err
			}
		default:
			return federror.Internalf("Unexpected selection %T", sel)
		}
	}
	return nil
}

func (n *normalizer) field(parent position.Type, sel *ast.Field) (*Field, error) {
	pos := parent.Field(sel.Name)
	alias := sel.Alias
	if alias == sel.Name {
		alias = ""
	}
	if pos.IsTypename() {
		if len(sel.SelectionSet) > 0 {
			return nil, federror.Internalf("Leaf field %q cannot have a selection set", pos)
		}
		return NewField(pos, alias, sel.Arguments, sel.Directives, nil), nil
	}

	def, err := n.schema.Field(pos)
	if err != nil {
		return nil, err
	}
	t, err := n.schema.TypePosition(def.Type.Name())
	if err != nil {
		return nil, err
	}
	if !t.Kind.IsComposite() {
		if len(sel.SelectionSet) > 0 {
			return nil, federror.Internalf("Leaf field %q cannot have a selection set", pos)
		}
		return NewField(pos, alias, sel.Arguments, sel.Directives, nil), nil
	}
	if len(sel.SelectionSet) == 0 {
		return nil, federror.Internalf("Field %q of composite type %q must have a selection set", pos, t.Name)
	}
	sub, err := n.selectionSet(t, sel.SelectionSet)
	if err != nil {
		return nil, err
	}
	return NewField(pos, alias, sel.Arguments, sel.Directives, sub), nil
}

func (n *normalizer) fragment(out *SelectionSet, parent position.Type, typeCondition string, directives ast.DirectiveList, sels ast.SelectionSet) error {
	casted := parent
	if typeCondition != "" && typeCondition != parent.Name {
		t, err := n.schema.TypePosition(typeCondition)
		if err != nil {
			return err
		}
		if !intersects(n.schema.PossibleRuntimeTypes(parent.Name), n.schema.PossibleRuntimeTypes(t.Name)) {
			return nil
		}
		casted = t
	}

	if len(directives) == 0 && casted == parent {
		return n.addAll(out, parent, sels)
	}

	sub, err := n.selectionSet(casted, sels)
	if err != nil {
		return err
	}
	frag := NewInlineFragment(parent, typeCondition, directives, sub)
	if directives.ForName("defer") != nil {
		n.nextDefer++
		frag.deferID = n.nextDefer
	}
	return out.add(frag)
}

func (n *normalizer) spread(out *SelectionSet, parent position.Type, sel *ast.FragmentSpread, def *ast.FragmentDefinition) error {
	t, err := n.schema.TypePosition(def.TypeCondition)
	if err != nil {
		return err
	}
	if !intersects(n.schema.PossibleRuntimeTypes(parent.Name), n.schema.PossibleRuntimeTypes(t.Name)) {
		return nil
	}
	body, err := n.selectionSet(t, def.SelectionSet)
	if err != nil {
		return err
	}
	return out.add(&FragmentSpread{Name: sel.Name, TypeCondition: def.TypeCondition, directives: sel.Directives, body: body})
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, y := range b {
		if set[y] {
			return true
		}
	}
	return false
}
