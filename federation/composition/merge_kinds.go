package composition

import (
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/vektah/gqlparser/v2/ast"
)

// presence tracks, for each member of a type, the subgraphs declaring it.
type presence struct {
	order []string
	in    map[string][]int
}

func newPresence() *presence {
	return &presence{in: make(map[string][]int)}
}

func (p *presence) add(name string, idx int) {
	if _, ok := p.in[name]; !ok {
		p.order = append(p.order, name)
	}
	p.in[name] = append(p.in[name], idx)
}

// split returns the subgraph names declaring name and the ones that do not.
func (tm *typeMerger) split(p *presence, name string) (present, missing []string) {
	has := make(map[int]bool, len(p.in[name]))
	for _, idx := range p.in[name] {
		has[idx] = true
	}
	for _, s := range tm.mt.sources {
		if has[s.idx] {
			present = append(present, tm.m.names[s.idx])
		} else {
			missing = append(missing, tm.m.names[s.idx])
		}
	}
	return present, missing
}

// mergeUnion keeps every member declared by any subgraph.
func (tm *typeMerger) mergeUnion() {
	p := newPresence()
	for _, s := range tm.mt.sources {
		for _, member := range s.def.Types {
			p.add(member, s.idx)
		}
	}
	for _, member := range p.order {
		tm.mt.def.Types = append(tm.mt.def.Types, member)
		if len(p.in[member]) == len(tm.mt.sources) {
			continue
		}
		present, missing := tm.split(p, member)
		tm.hint(federror.InconsistentUnionMember, tm.mt.name,
			"Union type %q includes member type %q in some but not all defining subgraphs: %q is %s.",
			tm.mt.name, member, member, describePresence("defined", present, missing))
	}
}

// mergeEnum merges enum values according to where the enum is used: output
// only enums take every value, input only enums the values common to all
// subgraphs, and enums used both ways must agree everywhere.
func (tm *typeMerger) mergeEnum() {
	mt := tm.mt
	u := tm.m.enumUsage[mt.name]
	p := newPresence()
	values := make(map[string][]*ast.EnumValueDefinition)
	for _, s := range mt.sources {
		for _, v := range s.def.EnumValues {
			p.add(v.Name, s.idx)
			values[v.Name] = append(values[v.Name], v)
		}
	}

	for _, name := range p.order {
		coord := mt.name + "." + name
		if len(p.in[name]) < len(mt.sources) {
			present, missing := tm.split(p, name)
			switch {
			case u.input && u.output:
				tm.error(federror.EnumValueMismatch,
					"Enum type %q is used as both input type and output type, but value %q is not defined in all the subgraphs defining %q: %q is %s",
					mt.name, name, mt.name, name, describePresence("defined", present, missing))
				continue
			case u.input:
				tm.hint(federror.InconsistentEnumValueForInputEnum, coord,
					"Value %q of enum type %q will not be part of the supergraph as it is not defined in all the subgraphs defining %q (but can only be used as input): %q is %s.",
					name, mt.name, mt.name, name, describePresence("defined", present, missing))
				continue
			default:
				tm.hint(federror.InconsistentEnumValueForOutputEnum, coord,
					"Value %q of enum type %q has been added to the supergraph but is only defined in a subset of the subgraphs defining %q: %q is %s.",
					name, mt.name, mt.name, name, describePresence("defined", present, missing))
			}
		}

		descs := make([]described, len(values[name]))
		ds := make([]directiveSource, len(values[name]))
		directives := make(ast.DirectiveList, 0, len(p.in[name]))
		for i, v := range values[name] {
			idx := p.in[name][i]
			descs[i] = described{idx: idx, description: v.Description}
			ds[i] = directiveSource{idx: idx, directives: v.Directives}
			directives = append(directives, &ast.Directive{
				Name:      "join__enumValue",
				Arguments: ast.ArgumentList{tm.m.graphArg(idx)},
			})
		}
		mt.def.EnumValues = append(mt.def.EnumValues, &ast.EnumValueDefinition{
			Name:        name,
			Description: tm.mergeDescription(coord, descs),
			Directives:  append(directives, tm.m.appliedDirectives(ds)...),
		})
	}

	if len(mt.def.EnumValues) == 0 {
		tm.error(federror.EmptyMergedEnumType,
			"None of the values of enum type %q are defined consistently in all the subgraphs defining that type. As only values common to all subgraphs are merged, this would result in an empty type.",
			mt.name)
	}
}

// mergeInput keeps the input fields common to every subgraph.
func (tm *typeMerger) mergeInput() {
	mt := tm.mt
	p := newPresence()
	fields := make(map[string][]*ast.FieldDefinition)
	for _, s := range mt.sources {
		for _, f := range s.def.Fields {
			p.add(f.Name, s.idx)
			fields[f.Name] = append(fields[f.Name], f)
		}
	}

	for _, name := range p.order {
		coord := mt.name + "." + name
		if len(p.in[name]) < len(mt.sources) {
			var required []string
			for i, f := range fields[name] {
				if isRequired(f.Type, f.DefaultValue) {
					required = append(required, tm.m.names[p.in[name][i]])
				}
			}
			_, missing := tm.split(p, name)
			if len(required) > 0 {
				tm.error(federror.RequiredInputFieldMissingInSomeSubgraph,
					"Input object field %q is required in some subgraphs but does not appear in all subgraphs: it is required in %s but does not appear in %s",
					coord, printSubgraphNames(required), printSubgraphNames(missing))
			} else {
				present, _ := tm.split(p, name)
				tm.hint(federror.InconsistentInputObjectField, coord,
					"Input object field %q will not be added to %q in the supergraph as it does not appear in all subgraphs: it is %s.",
					name, mt.name, describePresence("defined", present, missing))
			}
			continue
		}

		n := len(fields[name])
		refs := make([]typeRef, n)
		defaults := make([]valueSource, n)
		descs := make([]described, n)
		ds := make([]directiveSource, n)
		for i, f := range fields[name] {
			idx := p.in[name][i]
			refs[i] = typeRef{idx: idx, typ: f.Type}
			defaults[i] = valueSource{idx: idx, value: f.DefaultValue}
			descs[i] = described{idx: idx, description: f.Description}
			ds[i] = directiveSource{idx: idx, directives: f.Directives}
		}
		typ, _, ok := tm.mergeTypeReference(coord, refs, inputField)
		if !ok {
			continue
		}
		mt.def.Fields = append(mt.def.Fields, &ast.FieldDefinition{
			Name:         name,
			Description:  tm.mergeDescription(coord, descs),
			Type:         typ,
			DefaultValue: tm.mergeDefault("Input field", coord, defaults, federror.InputFieldDefaultMismatch),
			Directives:   tm.m.appliedDirectives(ds),
		})
	}

	if len(mt.def.Fields) == 0 {
		tm.error(federror.EmptyMergedInputType,
			"None of the fields of input object type %q are consistently defined in all the subgraphs defining that type. As only fields common to all subgraphs are merged, this would result in an empty type.",
			mt.name)
	}
}
