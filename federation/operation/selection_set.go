package operation

import (
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
)

// SelectionSet is an ordered, keyed set of selections on a parent type.
// Selection sets are immutable once built: every transformation returns a
// new set and reuses the unchanged selections.
type SelectionSet struct {
	schema     *schema.Schema
	parent     position.Type
	keys       []SelectionKey
	selections map[SelectionKey]Selection
}

// NewSelectionSet returns an empty selection set on parent.
func NewSelectionSet(s *schema.Schema, parent position.Type) *SelectionSet {
	return &SelectionSet{
		schema:     s,
		parent:     parent,
		selections: make(map[SelectionKey]Selection),
	}
}

// Schema is the schema the selection set was built against.
func (ss *SelectionSet) Schema() *schema.Schema { return ss.schema }

// Type is the parent type of the selections.
func (ss *SelectionSet) Type() position.Type { return ss.parent }

// Len returns the number of top-level selections.
func (ss *SelectionSet) Len() int {
	if ss == nil {
		return 0
	}
	return len(ss.keys)
}

// IsEmpty reports whether the set has no selection.
func (ss *SelectionSet) IsEmpty() bool { return ss.Len() == 0 }

// Selections returns the selections in insertion order.
func (ss *SelectionSet) Selections() []Selection {
	if ss == nil {
		return nil
	}
	out := make([]Selection, len(ss.keys))
	for i, k := range ss.keys {
		out[i] = ss.selections[k]
	}
	return out
}

// Get returns the selection stored under key.
func (ss *SelectionSet) Get(key SelectionKey) (Selection, bool) {
	sel, ok := ss.selections[key]
	return sel, ok
}

// Fields returns the top-level field selections.
func (ss *SelectionSet) Fields() []*Field {
	var out []*Field
	for _, sel := range ss.Selections() {
		if f, ok := sel.(*Field); ok {
			out = append(out, f)
		}
	}
	return out
}

func (ss *SelectionSet) clone() *SelectionSet {
	c := NewSelectionSet(ss.schema, ss.parent)
	c.keys = append(make([]SelectionKey, 0, len(ss.keys)), ss.keys...)
	for k, v := range ss.selections {
		c.selections[k] = v
	}
	return c
}

// add inserts sel, merging it with an existing selection of the same key.
// It must only be called on a set that is still being built.
func (ss *SelectionSet) add(sel Selection) error {
	key := sel.Key()
	existing, ok := ss.selections[key]
	if !ok {
		ss.keys = append(ss.keys, key)
		ss.selections[key] = sel
		return nil
	}
	a, b := existing.SelectionSet(), sel.SelectionSet()
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil || b == nil:
		return federror.Internalf("Cannot merge leaf and non-leaf selections for %q", key)
	}
	merged, err := a.Merge(b)
	if err != nil {
		return err
	}
	if merged != a {
		ss.selections[key] = existing.WithSelectionSet(merged)
	}
	return nil
}

// Merge returns the union of ss and other. Selections keep the order in
// which they were first seen; on conflicts the first selection's arguments win.
func (ss *SelectionSet) Merge(other *SelectionSet) (*SelectionSet, error) {
	if other.IsEmpty() {
		return ss, nil
	}
	if ss.parent.Name != other.parent.Name {
		return nil, federror.Internalf("Cannot merge selection set on %q into selection set on %q", other.parent.Name, ss.parent.Name)
	}
	out := ss.clone()
	for _, sel := range other.Selections() {
		if err := out.add(sel); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// With returns a copy of ss with sels merged in.
func (ss *SelectionSet) With(sels ...Selection) (*SelectionSet, error) {
	out := ss.clone()
	for _, sel := range sels {
		if err := out.add(sel); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LazyMap applies mapper to every selection. A mapper keeps a selection by
// returning it unchanged, drops it by returning nothing, and replaces or
// expands it by returning other selections. When mapper keeps everything,
// ss itself is returned.
func (ss *SelectionSet) LazyMap(mapper func(Selection) ([]Selection, error)) (*SelectionSet, error) {
	sels := ss.Selections()
	var out *SelectionSet
	for i, sel := range sels {
		mapped, err := mapper(sel)
		if err != nil {
			return nil, err
		}
		unchanged := len(mapped) == 1 && mapped[0] == sel
		if out == nil {
			if unchanged {
				continue
			}
			out = NewSelectionSet(ss.schema, ss.parent)
			for _, prev := range sels[:i] {
				if err := out.add(prev); err != nil {
					return nil, err
				}
			}
		}
		for _, m := range mapped {
			if err := out.add(m); err != nil {
				return nil, err
			}
		}
	}
	if out == nil {
		return ss, nil
	}
	return out, nil
}

// PathElement addresses a selection for AddAtPath: a field by response name
// or an inline fragment by type condition.
type PathElement struct {
	Field         string
	TypeCondition string
	isFragment    bool
}

// FieldElement addresses the field with the given response name.
func FieldElement(responseName string) PathElement {
	return PathElement{Field: responseName}
}

// FragmentElement addresses the inline fragment with the given type condition.
func FragmentElement(typeCondition string) PathElement {
	return PathElement{TypeCondition: typeCondition, isFragment: true}
}

func (e PathElement) String() string {
	if e.isFragment {
		return "... on " + e.TypeCondition
	}
	return e.Field
}

// AddAtPath merges sub at the end of path, creating the missing selections
// along the way. sub is rebased on the type at the end of path, so fragments
// it no longer needs are collapsed. A nil or empty sub only adds the path when
// it ends on a leaf field.
func (ss *SelectionSet) AddAtPath(path []PathElement, sub *SelectionSet) (*SelectionSet, error) {
	if len(path) == 0 {
		if sub.IsEmpty() {
			return ss, nil
		}
		rebased, err := sub.rebaseOn(ss.parent)
		if err != nil {
			return nil, err
		}
		return ss.Merge(rebased)
	}

	elem := path[0]
	var key SelectionKey
	if elem.isFragment {
		key = SelectionKey{kind: inlineFragmentKind, name: elem.TypeCondition}
	} else {
		key = SelectionKey{kind: fieldKind, name: elem.Field}
	}
	existing, found := ss.selections[key]
	if !found {
		created, err := ss.newPathSelection(elem)
		if err != nil {
			return nil, err
		}
		existing = created
	}

	child := existing.SelectionSet()
	if child == nil {
		if len(path) > 1 || !sub.IsEmpty() {
			return nil, federror.Internalf("Cannot add a selection under leaf field %q of %q", elem, ss.parent.Name)
		}
		if found {
			return ss, nil
		}
		return ss.With(existing)
	}

	newChild, err := child.AddAtPath(path[1:], sub)
	if err != nil {
		return nil, err
	}
	if newChild == child {
		// Nothing was added below: an existing element stays as is and a
		// missing one is not created empty.
		return ss, nil
	}

	out := ss.clone()
	if !found {
		out.keys = append(out.keys, key)
	}
	out.selections[key] = existing.WithSelectionSet(newChild)
	return out, nil
}

// rebaseOn returns the selections of ss applied to parent. Fields move to
// parent, fragments that narrow nothing on parent are inlined and fragments
// that can never apply to parent are dropped.
func (ss *SelectionSet) rebaseOn(parent position.Type) (*SelectionSet, error) {
	out := NewSelectionSet(ss.schema, parent)
	for _, sel := range ss.Selections() {
		if err := out.addRebased(sel); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (ss *SelectionSet) addRebased(sel Selection) error {
	switch s := sel.(type) {
	case *Field:
		if s.Position.Parent.Name == ss.parent.Name {
			return ss.add(s)
		}
		c := *s
		c.Position = ss.parent.Field(s.Position.Name)
		if !c.Position.IsTypename() {
			if _, err := ss.schema.Field(c.Position); err != nil {
				return err
			}
		}
		return ss.add(&c)
	case *InlineFragment:
		cond := s.CastedType()
		if s.TypeCondition != "" && !intersects(ss.schema.PossibleRuntimeTypes(ss.parent.Name), ss.schema.PossibleRuntimeTypes(cond)) {
			return nil
		}
		if len(s.directives) == 0 && s.deferID == 0 && ss.narrowsNothing(cond) {
			for _, child := range s.sub.Selections() {
				if err := ss.addRebased(child); err != nil {
					return err
				}
			}
			return nil
		}
		c := *s
		c.ParentType = ss.parent
		return ss.add(&c)
	case *FragmentSpread:
		if !intersects(ss.schema.PossibleRuntimeTypes(ss.parent.Name), ss.schema.PossibleRuntimeTypes(s.TypeCondition)) {
			return nil
		}
		return ss.add(s)
	}
	return federror.Internalf("Unexpected selection %T", sel)
}

// narrowsNothing reports whether a fragment on cond selects every runtime
// type of the parent.
func (ss *SelectionSet) narrowsNothing(cond string) bool {
	if cond == ss.parent.Name {
		return true
	}
	covered := make(map[string]bool)
	for _, t := range ss.schema.PossibleRuntimeTypes(cond) {
		covered[t] = true
	}
	parentTypes := ss.schema.PossibleRuntimeTypes(ss.parent.Name)
	for _, t := range parentTypes {
		if !covered[t] {
			return false
		}
	}
	return len(parentTypes) > 0
}

func (ss *SelectionSet) newPathSelection(elem PathElement) (Selection, error) {
	if elem.isFragment {
		cond := elem.TypeCondition
		if cond == "" {
			cond = ss.parent.Name
		}
		t, err := ss.schema.TypePosition(cond)
		if err != nil {
			return nil, err
		}
		return NewInlineFragment(ss.parent, elem.TypeCondition, nil, NewSelectionSet(ss.schema, t)), nil
	}
	pos := ss.parent.Field(elem.Field)
	if pos.IsTypename() {
		return NewField(pos, "", nil, nil, nil), nil
	}
	def, err := ss.schema.Field(pos)
	if err != nil {
		return nil, err
	}
	t, err := ss.schema.TypePosition(def.Type.Name())
	if err != nil {
		return nil, err
	}
	var child *SelectionSet
	if t.Kind.IsComposite() {
		child = NewSelectionSet(ss.schema, t)
	}
	return NewField(pos, "", nil, nil, child), nil
}

// Equal reports whether both sets hold the same selections, ignoring order.
func (ss *SelectionSet) Equal(other *SelectionSet) bool {
	if ss.IsEmpty() || other.IsEmpty() {
		return ss.IsEmpty() && other.IsEmpty()
	}
	if ss.parent.Name != other.parent.Name || len(ss.keys) != len(other.keys) {
		return false
	}
	for _, k := range ss.keys {
		o, ok := other.selections[k]
		if !ok || !selectionEqual(ss.selections[k], o) {
			return false
		}
	}
	return true
}

// Contains reports whether every selection of other is also selected by ss.
func (ss *SelectionSet) Contains(other *SelectionSet) bool {
	for _, sel := range other.Selections() {
		mine, ok := ss.selections[sel.Key()]
		if !ok {
			return false
		}
		a, b := mine.SelectionSet(), sel.SelectionSet()
		if (a == nil) != (b == nil) {
			return false
		}
		if a != nil && !a.Contains(b) {
			return false
		}
	}
	return true
}

func selectionEqual(a, b Selection) bool {
	if a == b {
		return true
	}
	if fa, ok := a.(*Field); ok {
		fb, ok := b.(*Field)
		if !ok || fa.Position != fb.Position || argumentsString(fa) != argumentsString(fb) {
			return false
		}
	}
	sa, sb := a.SelectionSet(), b.SelectionSet()
	if (sa == nil) != (sb == nil) {
		return false
	}
	return sa == nil || sa.Equal(sb)
}

func argumentsString(f *Field) string {
	var b strings.Builder
	printArguments(&b, f.Arguments)
	return b.String()
}

// String prints the set compactly, e.g. "{ t { v1 v2 } }".
func (ss *SelectionSet) String() string {
	var b strings.Builder
	ss.print(&b)
	return b.String()
}

func (ss *SelectionSet) print(b *strings.Builder) {
	if ss.IsEmpty() {
		b.WriteString("{}")
		return
	}
	b.WriteString("{")
	for _, sel := range ss.Selections() {
		b.WriteByte(' ')
		sel.print(b)
	}
	b.WriteString(" }")
}
