// Package operation normalizes GraphQL operations and field sets into
// immutable selection sets.
package operation

import (
	"sort"
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/vektah/gqlparser/v2/ast"
)

type selectionKind int

const (
	fieldKind selectionKind = iota
	inlineFragmentKind
	fragmentSpreadKind
	deferKind
)

// SelectionKey identifies a selection inside its selection set. Two
// selections with equal keys are merged; @defer fragments get a unique id
// and never merge.
type SelectionKey struct {
	kind       selectionKind
	name       string
	directives string
	deferID    int
}

func (k SelectionKey) String() string {
	switch k.kind {
	case inlineFragmentKind:
		return "... on " + k.name + k.directives
	case fragmentSpreadKind:
		return "..." + k.name + k.directives
	case deferKind:
		return "... on " + k.name + " (deferred)"
	}
	return k.name + k.directives
}

// IsDeferred reports whether the key belongs to a @defer fragment.
func (k SelectionKey) IsDeferred() bool { return k.kind == deferKind }

// Selection is one element of a SelectionSet.
type Selection interface {
	Key() SelectionKey
	// SelectionSet is the sub-selection, nil for leaf fields and fragment spreads.
	SelectionSet() *SelectionSet
	// WithSelectionSet returns a copy of the selection with sub replaced.
	WithSelectionSet(sub *SelectionSet) Selection
	Directives() ast.DirectiveList
	print(b *strings.Builder)
}

// SiblingTypename records a __typename removed next to this field.
type SiblingTypename struct {
	Alias string
}

// Field is a field selection.
type Field struct {
	Position   position.Field
	Alias      string
	Arguments  ast.ArgumentList
	directives ast.DirectiveList
	// SiblingTypename is set when an adjacent __typename was folded into this field.
	SiblingTypename *SiblingTypename
	sub             *SelectionSet
}

// NewField returns a field selection. sub must be nil for leaf fields.
func NewField(pos position.Field, alias string, args ast.ArgumentList, directives ast.DirectiveList, sub *SelectionSet) *Field {
	return &Field{Position: pos, Alias: alias, Arguments: args, directives: directives, sub: sub}
}

// ResponseName is the alias when set, the field name otherwise.
func (f *Field) ResponseName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Position.Name
}

func (f *Field) Key() SelectionKey {
	return SelectionKey{kind: fieldKind, name: f.ResponseName(), directives: canonicalDirectives(f.directives)}
}

func (f *Field) SelectionSet() *SelectionSet   { return f.sub }
func (f *Field) Directives() ast.DirectiveList { return f.directives }

func (f *Field) WithSelectionSet(sub *SelectionSet) Selection {
	c := *f
	c.sub = sub
	return &c
}

// WithSiblingTypename returns a copy of f carrying st.
func (f *Field) WithSiblingTypename(st *SiblingTypename) *Field {
	c := *f
	c.SiblingTypename = st
	return &c
}

func (f *Field) print(b *strings.Builder) {
	if f.Alias != "" {
		b.WriteString(f.Alias)
		b.WriteString(": ")
	}
	b.WriteString(f.Position.Name)
	printArguments(b, f.Arguments)
	printDirectives(b, f.directives)
	if f.sub != nil {
		b.WriteByte(' ')
		f.sub.print(b)
	}
}

// InlineFragment is an inline fragment selection. An empty TypeCondition
// means the fragment has no type condition.
type InlineFragment struct {
	ParentType    position.Type
	TypeCondition string
	directives    ast.DirectiveList
	deferID       int
	sub           *SelectionSet
}

// NewInlineFragment returns an inline fragment selection.
func NewInlineFragment(parent position.Type, typeCondition string, directives ast.DirectiveList, sub *SelectionSet) *InlineFragment {
	return &InlineFragment{ParentType: parent, TypeCondition: typeCondition, directives: directives, sub: sub}
}

// CastedType is the type the fragment's sub-selection applies to.
func (f *InlineFragment) CastedType() string {
	if f.TypeCondition != "" {
		return f.TypeCondition
	}
	return f.ParentType.Name
}

func (f *InlineFragment) Key() SelectionKey {
	if f.deferID != 0 {
		return SelectionKey{kind: deferKind, name: f.TypeCondition, deferID: f.deferID}
	}
	return SelectionKey{kind: inlineFragmentKind, name: f.TypeCondition, directives: canonicalDirectives(f.directives)}
}

func (f *InlineFragment) SelectionSet() *SelectionSet   { return f.sub }
func (f *InlineFragment) Directives() ast.DirectiveList { return f.directives }

func (f *InlineFragment) WithSelectionSet(sub *SelectionSet) Selection {
	c := *f
	c.sub = sub
	return &c
}

func (f *InlineFragment) print(b *strings.Builder) {
	b.WriteString("...")
	if f.TypeCondition != "" {
		b.WriteString(" on ")
		b.WriteString(f.TypeCondition)
	}
	printDirectives(b, f.directives)
	b.WriteByte(' ')
	f.sub.print(b)
}

// FragmentSpread is a named fragment spread kept as-is. Its selection set is
// the normalized fragment body and is only used for traversal.
type FragmentSpread struct {
	Name          string
	TypeCondition string
	directives    ast.DirectiveList
	body          *SelectionSet
}

func (f *FragmentSpread) Key() SelectionKey {
	return SelectionKey{kind: fragmentSpreadKind, name: f.Name, directives: canonicalDirectives(f.directives)}
}

func (f *FragmentSpread) SelectionSet() *SelectionSet   { return f.body }
func (f *FragmentSpread) Directives() ast.DirectiveList { return f.directives }

func (f *FragmentSpread) WithSelectionSet(sub *SelectionSet) Selection {
	c := *f
	c.body = sub
	return &c
}

func (f *FragmentSpread) print(b *strings.Builder) {
	b.WriteString("...")
	b.WriteString(f.Name)
	printDirectives(b, f.directives)
}

// canonicalDirectives prints directives sorted by name with sorted arguments
// so that argument order does not influence selection identity.
func canonicalDirectives(dl ast.DirectiveList) string {
	if len(dl) == 0 {
		return ""
	}
	parts := make([]string, 0, len(dl))
	for _, d := range dl {
		args := make([]string, 0, len(d.Arguments))
		for _, a := range d.Arguments {
			args = append(args, a.Name+": "+valueString(a.Value))
		}
		sort.Strings(args)
		p := "@" + d.Name
		if len(args) > 0 {
			p += "(" + strings.Join(args, ", ") + ")"
		}
		parts = append(parts, p)
	}
	sort.Strings(parts)
	return " " + strings.Join(parts, " ")
}

func valueString(v *ast.Value) string {
	if v == nil {
		return "null"
	}
	return v.String()
}

func printArguments(b *strings.Builder, args ast.ArgumentList) {
	if len(args) == 0 {
		return
	}
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Name)
		b.WriteString(": ")
		b.WriteString(valueString(a.Value))
	}
	b.WriteByte(')')
}

func printDirectives(b *strings.Builder, dl ast.DirectiveList) {
	for _, d := range dl {
		b.WriteString(" @")
		b.WriteString(d.Name)
		printArguments(b, d.Arguments)
	}
}
