package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/querygraph"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
)

// advanceResult is the outcome of following one API edge from one subgraph
// path. noResults means the edge is a type condition that can never match
// from that path.
type advanceResult struct {
	options   []subgraphPath
	deadEnds  []unadvanceable
	noResults bool
}

func (t *traversal) advance(p subgraphPath, e *querygraph.Edge) (advanceResult, error) {
	switch e.Transition.Kind {
	case querygraph.FieldCollection:
		return t.advanceField(p, e.Transition.Field)
	case querygraph.Downcast:
		return t.advanceDowncast(p, e.Transition.ToType)
	}
	return advanceResult{}, federror.Internalf("Unexpected supergraph transition %s", e.Transition)
}

func (t *traversal) advanceField(p subgraphPath, pos position.Field) (advanceResult, error) {
	var res advanceResult
	from, err := t.fed.Node(p.tail)
	if err != nil {
		return res, err
	}

	direct, reasons, err := t.collectField(p, pos)
	if err != nil {
		return res, err
	}
	if direct != nil {
		res.options = append(res.options, *direct)
		return res, nil
	}
	res.deadEnds = append(res.deadEnds, reasons...)

	chased, err := querygraph.KeyChasingPaths(t.fed, p.tail, t.resolver, querygraph.PathContext{}, nil, nil)
	if err != nil {
		return res, err
	}
	covered := map[string]bool{from.Source: true}
	for _, kp := range chased {
		n, err := t.fed.Node(kp.Node)
		if err != nil {
			return res, err
		}
		if covered[n.Source] {
			continue
		}
		covered[n.Source] = true
		extended, err := p.withEdges(t.fed, kp.Edges)
		if err != nil {
			return res, err
		}
		opt, reasons, err := t.collectField(extended, pos)
		if err != nil {
			return res, err
		}
		if opt != nil {
			res.options = append(res.options, *opt)
			continue
		}
		res.deadEnds = append(res.deadEnds, reasons...)
	}
	if len(res.options) > 0 {
		return res, nil
	}

	unreachable, err := t.unreachableSubgraphReasons(from, pos, covered)
	if err != nil {
		return res, err
	}
	res.deadEnds = append(res.deadEnds, unreachable...)
	return res, nil
}

// collectField takes the edge for pos from the tail of p, casting an
// abstract tail to the field's parent first when needed.
func (t *traversal) collectField(p subgraphPath, pos position.Field) (*subgraphPath, []unadvanceable, error) {
	n, err := t.fed.Node(p.tail)
	if err != nil {
		return nil, nil, err
	}
	typeName := n.Type.TypeName()
	coordinate := typeName + "." + pos.Name
	sg, _ := t.fed.Subgraph(n.Source)

	e, err := t.fed.EdgeForField(p.tail, operation.NewField(pos, "", nil, nil, nil))
	if err != nil {
		return nil, nil, err
	}
	if e == nil {
		if n.Type.Type.Kind.IsAbstract() && pos.Parent.Name != typeName {
			cast, err := t.fed.EdgeForInlineFragment(p.tail, operation.NewInlineFragment(n.Type.Type, pos.Parent.Name, nil, nil))
			if err != nil {
				return nil, nil, err
			}
			if cast != nil {
				casted, err := p.with(t.fed, cast)
				if err != nil {
					return nil, nil, err
				}
				return t.collectField(casted, pos)
			}
		}
		detail := fmt.Sprintf("cannot find field %q", coordinate)
		if sg != nil && sg.IsExternal(typeName, pos.Name) {
			detail = fmt.Sprintf("field %q is not resolvable because marked @external", coordinate)
		}
		return nil, []unadvanceable{{sourceSubgraph: n.Source, details: detail}}, nil
	}

	if !e.Conditions.IsEmpty() {
		res, err := t.resolver.Resolve(e, querygraph.PathContext{}, nil, nil)
		if err != nil {
			return nil, nil, err
		}
		if !res.Satisfied {
			detail := fmt.Sprintf("cannot satisfy @require conditions on field %q%s", coordinate, externalKeyNote(sg, typeName))
			return nil, []unadvanceable{{sourceSubgraph: n.Source, details: detail}}, nil
		}
	}

	next, err := p.with(t.fed, e)
	if err != nil {
		return nil, nil, err
	}
	return &next, nil, nil
}

// externalKeyNote points at a key field marked @external, the most common
// reason for an unsatisfiable @requires.
func externalKeyNote(sg *schema.Subgraph, typeName string) string {
	if sg == nil {
		return ""
	}
	for _, key := range sg.Keys(typeName) {
		names, err := schema.FieldSetFieldNames(key.FieldSet)
		if err != nil {
			continue
		}
		for _, name := range names {
			if sg.IsExternal(typeName, name) {
				return fmt.Sprintf(" (please ensure that this is not due to key field %q being accidentally marked @external)", name)
			}
		}
	}
	return ""
}

// unreachableSubgraphReasons explains, for each subgraph that resolves pos
// but was not reached, why the path could not move there.
func (t *traversal) unreachableSubgraphReasons(from *querygraph.Node, pos position.Field, covered map[string]bool) ([]unadvanceable, error) {
	if from.IsRoot || from.Type.FederatedRoot {
		return nil, nil
	}
	typeName := from.Type.TypeName()
	var out []unadvanceable
	for _, source := range t.fed.Sources() {
		if source == querygraph.FederatedGraphSource || covered[source] {
			continue
		}
		sg, ok := t.fed.Subgraph(source)
		if !ok {
			continue
		}
		def := sg.Schema.LookupType(typeName)
		if def == nil || def.Fields.ForName(pos.Name) == nil || sg.IsExternal(typeName, pos.Name) {
			continue
		}

		coordinate := typeName + "." + pos.Name
		keys := sg.Keys(typeName)
		switch {
		case len(keys) == 0:
			out = append(out, unadvanceable{
				sourceSubgraph: from.Source,
				details:        fmt.Sprintf("cannot move to subgraph %q, which has field %q, because type %q has no @key defined in subgraph %q", source, coordinate, typeName, source),
			})
		case len(sg.ResolvableKeys(typeName)) == 0:
			out = append(out, unadvanceable{
				sourceSubgraph: from.Source,
				details:        fmt.Sprintf("cannot move to subgraph %q, which has field %q, because none of the @key defined on type %q in subgraph %q are resolvable (they are all declared with their \"resolvable\" argument set to false)", source, coordinate, typeName, source),
			})
		default:
			for _, key := range sg.ResolvableKeys(typeName) {
				out = append(out, unadvanceable{
					sourceSubgraph: from.Source,
					details:        fmt.Sprintf("cannot move to subgraph %q using @key(fields: %q) of %q, the key field(s) cannot be resolved from subgraph %q", source, key.FieldSet, typeName, from.Source),
				})
			}
		}
	}
	return out, nil
}

func (t *traversal) advanceDowncast(p subgraphPath, target position.Type) (advanceResult, error) {
	var res advanceResult
	n, err := t.fed.Node(p.tail)
	if err != nil {
		return res, err
	}
	apiSchema, err := t.api.Schema()
	if err != nil {
		return res, err
	}
	allowed := apiSchema.PossibleRuntimeTypes(target.Name)

	cast, err := t.fed.EdgeForInlineFragment(p.tail, operation.NewInlineFragment(n.Type.Type, target.Name, nil, nil))
	if err != nil {
		return res, err
	}

	if !n.Type.Type.Kind.IsAbstract() {
		typeName := n.Type.TypeName()
		if sg, ok := t.fed.Subgraph(n.Source); ok && sg.IsInterfaceObject(typeName) {
			switch {
			case cast != nil:
				next, err := p.with(t.fed, cast)
				if err != nil {
					return res, err
				}
				res.options = []subgraphPath{next}
			case target.Kind.IsAbstract():
				res.options = []subgraphPath{p}
			default:
				res.noResults = true
			}
			return res, nil
		}
		if typeName == target.Name || contains(allowed, typeName) {
			res.options = []subgraphPath{p}
		} else {
			res.noResults = true
		}
		return res, nil
	}

	if cast != nil {
		next, err := p.with(t.fed, cast)
		if err != nil {
			return res, err
		}
		res.options = []subgraphPath{next}
		return res, nil
	}

	// The subgraph does not know the target; keep the path but only for the
	// runtime types the cast could match.
	var narrowed []string
	for _, rt := range p.runtimeTypes {
		if contains(allowed, rt) {
			narrowed = append(narrowed, rt)
		}
	}
	if len(narrowed) == 0 {
		res.noResults = true
		return res, nil
	}
	stay := p
	stay.runtimeTypes = narrowed
	res.options = []subgraphPath{stay}
	return res, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// checkSharedRuntimeTypes compares the runtime types a shareable field of
// abstract type can return in each subgraph. Disjoint sets are an error,
// differing ones a hint.
func (t *traversal) checkSharedRuntimeTypes(st *state, e *querygraph.Edge) error {
	if len(st.paths) < 2 || e.Transition.Kind != querygraph.FieldCollection {
		return nil
	}
	apiTail := t.api.EdgeTail(e)
	if !apiTail.Type.Type.Kind.IsAbstract() {
		return nil
	}
	pos := e.Transition.Field
	if !t.isShareable(pos) {
		return nil
	}

	type subgraphTypes struct {
		source string
		types  []string
	}
	var abstract []subgraphTypes
	for _, p := range st.paths {
		n, err := t.fed.Node(p.tail)
		if err != nil {
			return err
		}
		if !n.Type.Type.Kind.IsAbstract() {
			continue
		}
		types := append([]string(nil), p.runtimeTypes...)
		sort.Strings(types)
		abstract = append(abstract, subgraphTypes{source: n.Source, types: types})
	}
	if len(abstract) < 2 {
		return nil
	}

	common := abstract[0].types
	same := true
	for _, a := range abstract[1:] {
		if strings.Join(a.types, ",") != strings.Join(abstract[0].types, ",") {
			same = false
		}
		common = intersect(common, a.types)
	}
	if same {
		return nil
	}

	witness, err := t.witness(st.superEdges)
	if err != nil {
		return err
	}
	var details strings.Builder
	for _, a := range abstract {
		fmt.Fprintf(&details, "\n  - in subgraph %q, type %q has possible runtime types %s", a.source, apiTail.Type.TypeName(), quoteAll(a.types))
	}

	if len(common) == 0 {
		t.errs.Push(federror.New(federror.ShareableHasMismatchedRuntimeTypes,
			"For the following supergraph API query:\n%s\nShared field %q return type %q has a non-intersecting set of possible runtime types across subgraphs. Runtime types in subgraphs are:%s.\nThis is not allowed as shared fields must resolve the same way in all subgraphs, and that imply at least some common runtime types between the subgraphs.",
			witness, pos.String(), apiTail.Type.TypeName(), details.String()))
		return nil
	}
	t.hints = append(t.hints, t.catalog.NewHint(federror.InconsistentRuntimeTypesForShareableReturn, pos.String(),
		"For the following supergraph API query:\n%s\nShared field %q return type %q has different sets of possible runtime types across subgraphs.\nSince a shared field must be resolved the same way in all subgraphs, make sure that it only resolves to objects of %s. In particular:%s.\nOtherwise the @shareable contract will be broken.",
		witness, pos.String(), apiTail.Type.TypeName(), quoteAll(common), details.String()))
	return nil
}

// isShareable reports whether more than one subgraph resolves pos.
func (t *traversal) isShareable(pos position.Field) bool {
	count := 0
	for _, source := range t.fed.Sources() {
		sg, ok := t.fed.Subgraph(source)
		if !ok {
			continue
		}
		def := sg.Schema.LookupType(pos.Parent.Name)
		if def == nil || def.Fields.ForName(pos.Name) == nil || sg.IsExternal(pos.Parent.Name, pos.Name) {
			continue
		}
		count++
	}
	return count > 1
}

func intersect(a, b []string) []string {
	var out []string
	for _, v := range a {
		if contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}
