package composition

import (
	"fmt"
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
	"github.com/vektah/gqlparser/v2/ast"
)

// fieldSource is the definition of a field in one subgraph.
type fieldSource struct {
	idx    int
	parent string
	def    *ast.FieldDefinition
	// through names the @interfaceObject type the field comes from when the
	// subgraph does not define the parent type itself.
	through string
}

type fieldSet struct {
	order   []string
	sources map[string][]fieldSource
}

func (fs *fieldSet) add(name string, s fieldSource) {
	if _, ok := fs.sources[name]; !ok {
		fs.order = append(fs.order, name)
	}
	fs.sources[name] = append(fs.sources[name], s)
}

// collectFields gathers the fields of the merged type in first-seen order.
// Object types also receive the fields of interfaces some subgraph only
// knows as @interfaceObject.
func (tm *typeMerger) collectFields() *fieldSet {
	mt := tm.mt
	fs := &fieldSet{sources: make(map[string][]fieldSource)}
	defined := make(map[int]bool, len(mt.sources))
	for _, s := range mt.sources {
		defined[s.idx] = true
		for _, f := range schema.Fields(s.def) {
			if isFederationField(mt.name, f.Name) {
				continue
			}
			fs.add(f.Name, fieldSource{idx: s.idx, parent: s.name, def: f})
			mt.fieldSubgraphs[f.Name] = append(mt.fieldSubgraphs[f.Name], s.idx)
		}
	}
	if mt.kind != ast.Object {
		return fs
	}
	for _, iface := range mt.def.Interfaces {
		for _, idx := range tm.m.interfaceObjects[iface] {
			if defined[idx] {
				continue
			}
			def := tm.m.subgraphs[idx].Schema.LookupType(iface)
			if def == nil {
				continue
			}
			for _, f := range schema.Fields(def) {
				fs.add(f.Name, fieldSource{idx: idx, parent: iface, def: f, through: iface})
			}
		}
	}
	return fs
}

func (tm *typeMerger) mergeInterfaces() {
	mt := tm.mt
	for _, s := range mt.sources {
		for _, iface := range s.def.Interfaces {
			if _, ok := mt.interfaces[iface]; !ok {
				mt.def.Interfaces = append(mt.def.Interfaces, iface)
			}
			mt.interfaces[iface] = append(mt.interfaces[iface], s.idx)
		}
	}
}

func (tm *typeMerger) mergeObject() error {
	tm.mergeInterfaces()
	fs := tm.collectFields()
	for _, name := range fs.order {
		if fd, ok := tm.mergeField(name, fs.sources[name], false); ok {
			tm.mt.def.Fields = append(tm.mt.def.Fields, fd)
		}
	}
	return nil
}

func (tm *typeMerger) mergeInterface() error {
	tm.mergeInterfaces()
	fs := tm.collectFields()
	for _, name := range fs.order {
		if fd, ok := tm.mergeField(name, fs.sources[name], true); ok {
			tm.mt.def.Fields = append(tm.mt.def.Fields, fd)
		}
	}
	return nil
}

func (tm *typeMerger) isExternal(s fieldSource) bool {
	return tm.m.subgraphs[s.idx].IsExternal(s.parent, s.def.Name)
}

// mergeField merges the definitions of one field. It reports false when
// the field cannot be part of the supergraph.
func (tm *typeMerger) mergeField(name string, sources []fieldSource, isInterface bool) (*ast.FieldDefinition, bool) {
	coord := tm.mt.name + "." + name

	external := make([]bool, len(sources))
	allExternal := true
	for i, s := range sources {
		external[i] = tm.isExternal(s)
		if !external[i] {
			allExternal = false
		}
	}
	if allExternal {
		names := make([]string, len(sources))
		for i, s := range sources {
			names[i] = tm.m.names[s.idx]
			if s.through != "" {
				names[i] = fmt.Sprintf("%s (through @interfaceObject %q)", names[i], s.through)
			}
		}
		tm.error(federror.ExternalMissingOnBase,
			"Field %q is marked @external on all the subgraphs in which it is listed (%s).",
			coord, strings.Join(names, ", "))
		return nil, false
	}

	var kept []fieldSource
	for i, s := range sources {
		if external[i] {
			tm.checkExternalDirectives(coord, s)
			continue
		}
		kept = append(kept, s)
	}

	fd := &ast.FieldDefinition{Name: name}
	descs := make([]described, len(kept))
	refs := make([]typeRef, len(kept))
	for i, s := range kept {
		descs[i] = described{idx: s.idx, description: s.def.Description}
		refs[i] = typeRef{idx: s.idx, typ: s.def.Type}
	}
	fd.Description = tm.mergeDescription(coord, descs)
	fd.Arguments = tm.mergeArguments(coord, kept)

	typ, allEqual, ok := tm.mergeTypeReference(coord, refs, outputField)
	if !ok {
		return nil, false
	}
	fd.Type = typ

	for _, ext := range external {
		if ext {
			tm.validateExternalFields(coord, fd, sources, external, allEqual)
			break
		}
	}

	ov := tm.validateOverrides(coord, sources, external, isInterface)
	if !isInterface {
		tm.validateSharing(coord, sources, external, ov)
		tm.mt.owners[name] = tm.owners(sources, external, ov)
	}

	fd.Directives = tm.joinFields(sources, external, allEqual, ov)
	ds := make([]directiveSource, len(kept))
	for i, s := range kept {
		ds[i] = directiveSource{idx: s.idx, directives: s.def.Directives}
	}
	fd.Directives = append(fd.Directives, tm.m.appliedDirectives(ds)...)
	return fd, true
}

func (tm *typeMerger) checkExternalDirectives(coord string, s fieldSource) {
	for _, d := range s.def.Directives {
		if d.Name == "inaccessible" || d.Name == "specifiedBy" || !tm.m.isMergedDirective(s.idx, d.Name) {
			continue
		}
		tm.error(federror.MergedDirectiveApplicationOnExternal,
			"Cannot apply merged directive @%s to external field %q (in subgraph %q)",
			d.Name, coord, tm.m.names[s.idx])
	}
}

// owners lists the subgraphs resolving the field: those declaring it
// without @external, minus the subgraphs it was overridden from.
func (tm *typeMerger) owners(sources []fieldSource, external []bool, ov overrides) []string {
	var out []string
	for i, s := range sources {
		if external[i] || s.through != "" {
			continue
		}
		if _, overridden := ov.from[s.idx]; overridden {
			continue
		}
		out = append(out, tm.m.names[s.idx])
	}
	return out
}

func isRequired(t *ast.Type, def *ast.Value) bool {
	return t.NonNull && def == nil
}

// mergeArguments keeps the arguments every subgraph declares.
func (tm *typeMerger) mergeArguments(coord string, kept []fieldSource) ast.ArgumentDefinitionList {
	var order []string
	count := make(map[string]int)
	for _, s := range kept {
		for _, a := range s.def.Arguments {
			if count[a.Name] == 0 {
				order = append(order, a.Name)
			}
			count[a.Name]++
		}
	}

	var out ast.ArgumentDefinitionList
	for _, name := range order {
		argCoord := fmt.Sprintf("%s(%s:)", coord, name)
		if count[name] < len(kept) {
			var present, missing, required []string
			for _, s := range kept {
				a := s.def.Arguments.ForName(name)
				switch {
				case a == nil:
					missing = append(missing, tm.m.names[s.idx])
				case isRequired(a.Type, a.DefaultValue):
					required = append(required, tm.m.names[s.idx])
					present = append(present, tm.m.names[s.idx])
				default:
					present = append(present, tm.m.names[s.idx])
				}
			}
			if len(required) > 0 {
				tm.error(federror.RequiredArgumentMissingInSomeSubgraph,
					"Argument %q is required in some subgraphs but does not appear in all subgraphs: it is required in %s but does not appear in %s",
					argCoord, printSubgraphNames(required), printSubgraphNames(missing))
			} else {
				tm.hint(federror.InconsistentArgumentPresence, argCoord,
					"Optional argument %q will not be included in the supergraph as it does not appear in all subgraphs: it is %s.",
					argCoord, describePresence("defined", present, missing))
			}
			continue
		}

		refs := make([]typeRef, len(kept))
		defaults := make([]valueSource, len(kept))
		descs := make([]described, len(kept))
		ds := make([]directiveSource, len(kept))
		for i, s := range kept {
			a := s.def.Arguments.ForName(name)
			refs[i] = typeRef{idx: s.idx, typ: a.Type}
			defaults[i] = valueSource{idx: s.idx, value: a.DefaultValue}
			descs[i] = described{idx: s.idx, description: a.Description}
			ds[i] = directiveSource{idx: s.idx, directives: a.Directives}
		}
		typ, _, ok := tm.mergeTypeReference(argCoord, refs, argument)
		if !ok {
			continue
		}
		out = append(out, &ast.ArgumentDefinition{
			Name:         name,
			Description:  tm.mergeDescription(argCoord, descs),
			Type:         typ,
			DefaultValue: tm.mergeDefault("Argument", argCoord, defaults, federror.FieldArgumentDefaultMismatch),
			Directives:   tm.m.appliedDirectives(ds),
		})
	}
	return out
}

type typeRef struct {
	idx int
	typ *ast.Type
}

type refKind int

const (
	outputField refKind = iota
	argument
	inputField
)

// mergeTypeReference picks the supergraph type of an element: the most
// general type for output fields and the most restrictive one for input
// positions. Every other declaration must be compatible with it.
func (tm *typeMerger) mergeTypeReference(coord string, refs []typeRef, kind refKind) (*ast.Type, bool, bool) {
	if len(refs) == 0 {
		return nil, false, false
	}
	result := refs[0].typ
	allEqual := true
	compatible := true
	for _, r := range refs[1:] {
		if sameType(r.typ, result) {
			continue
		}
		allEqual = false
		switch {
		case kind == outputField && tm.m.isSubtype(result, r.typ):
			result = r.typ
		case kind == outputField && tm.m.isSubtype(r.typ, result):
		case kind != outputField && tm.m.isSubtype(r.typ, result):
			result = r.typ
		case kind != outputField && tm.m.isSubtype(result, r.typ):
		default:
			compatible = false
		}
	}
	if compatible && !allEqual {
		for _, r := range refs {
			if sameType(r.typ, result) {
				continue
			}
			if kind == outputField && !tm.m.isSubtype(r.typ, result) ||
				kind != outputField && !tm.m.isSubtype(result, r.typ) {
				compatible = false
				break
			}
		}
	}

	element := "field"
	if kind == argument {
		element = "argument"
	}
	values := make([]sourceValue, len(refs))
	for i, r := range refs {
		values[i] = sourceValue{subgraph: tm.m.names[r.idx], value: r.typ.String()}
	}
	if !compatible {
		code := federror.FieldTypeMismatch
		if kind == argument {
			code = federror.FieldArgumentTypeMismatch
		}
		tm.error(code, "Type of %s %q is incompatible across subgraphs: it has %s",
			element, coord, describeMismatch(refs[0].typ.String(), values, typeDescription))
		return nil, false, false
	}
	if !allEqual {
		code := federror.InconsistentButCompatibleFieldType
		if kind == argument {
			code = federror.InconsistentButCompatibleArgumentType
		}
		relation := "subtype"
		if kind != outputField {
			relation = "supertype"
		}
		var others []sourceValue
		for _, v := range values {
			if v.value != result.String() {
				others = append(others, v)
			}
		}
		tm.hint(code, coord,
			"Type of %s %q is inconsistent but compatible across subgraphs: will use type %q (from %s) in supergraph but %q has %s.",
			element, coord, result.String(), printSubgraphNames(subgraphsWith(values, result.String())), coord,
			describeMismatch("", others, func(t string) string { return fmt.Sprintf("%s %q", relation, t) }))
	}
	return result, allEqual, true
}

func sameType(a, b *ast.Type) bool {
	return a.String() == b.String()
}

func nullable(t *ast.Type) *ast.Type {
	c := *t
	c.NonNull = false
	return &c
}

// isSubtype reports whether sub can be used where super is expected:
// non-null types are subtypes of their nullable version, lists are
// covariant and implementations or union members are subtypes of their
// abstract type.
func (m *merger) isSubtype(sub, super *ast.Type) bool {
	if super.NonNull {
		if !sub.NonNull {
			return false
		}
		return m.isSubtype(nullable(sub), nullable(super))
	}
	if sub.NonNull {
		return m.isSubtype(nullable(sub), super)
	}
	if super.Elem != nil {
		return sub.Elem != nil && m.isSubtype(sub.Elem, super.Elem)
	}
	if sub.Elem != nil {
		return false
	}
	return sub.NamedType == super.NamedType || m.implementers[super.NamedType][sub.NamedType]
}

type valueSource struct {
	idx   int
	value *ast.Value
}

func valueString(v *ast.Value) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// mergeDefault returns the default value shared by every subgraph. A
// default present in only some subgraphs is dropped with a hint.
func (tm *typeMerger) mergeDefault(element, coord string, sources []valueSource, code federror.Code) *ast.Value {
	var chosen *ast.Value
	var values []sourceValue
	var withDefault, without []string
	distinct := make(map[string]bool)
	for _, s := range sources {
		name := tm.m.names[s.idx]
		if s.value == nil {
			without = append(without, name)
			values = append(values, sourceValue{subgraph: name, value: ""})
			continue
		}
		if chosen == nil {
			chosen = s.value
		}
		withDefault = append(withDefault, name)
		distinct[s.value.String()] = true
		values = append(values, sourceValue{subgraph: name, value: s.value.String()})
	}
	if len(distinct) > 1 {
		tm.error(code, "%s %q has incompatible default values across subgraphs: it has %s",
			element, coord, describeMismatch(chosen.String(), values, func(v string) string {
				if v == "" {
					return "no default value"
				}
				return defaultDescription(v)
			}))
		return nil
	}
	if chosen != nil && len(without) > 0 {
		tm.hint(federror.InconsistentDefaultValuePresence, coord,
			"%s %q has a default value in only some subgraphs: will not use a default in the supergraph (there is no default in %s but a default in %s).",
			element, coord, printSubgraphNames(without), printSubgraphNames(withDefault))
		return nil
	}
	return chosen
}

// validateExternalFields checks that @external declarations agree with the
// merged field: same type (or a subtype), every merged argument present
// with a compatible type and the same default.
func (tm *typeMerger) validateExternalFields(coord string, dest *ast.FieldDefinition, sources []fieldSource, external []bool, allEqual bool) {
	invalidType := false
	var missing, badType, badDefault []string
	mark := func(list *[]string, name string) {
		for _, n := range *list {
			if n == name {
				return
			}
		}
		*list = append(*list, name)
	}

	for i, s := range sources {
		if !external[i] || s.through != "" {
			continue
		}
		if !sameType(dest.Type, s.def.Type) && (allEqual || !tm.m.isSubtype(s.def.Type, dest.Type)) {
			invalidType = true
		}
		for _, da := range dest.Arguments {
			sa := s.def.Arguments.ForName(da.Name)
			if sa == nil {
				mark(&missing, da.Name)
				continue
			}
			if !sameType(da.Type, sa.Type) && !tm.m.isSubtype(da.Type, sa.Type) {
				mark(&badType, da.Name)
			}
			if valueString(da.DefaultValue) != valueString(sa.DefaultValue) {
				mark(&badDefault, da.Name)
			}
		}
	}

	if invalidType {
		values := make([]sourceValue, 0, len(sources))
		for _, s := range sources {
			if s.through == "" {
				values = append(values, sourceValue{subgraph: tm.m.names[s.idx], value: s.def.Type.String()})
			}
		}
		tm.error(federror.ExternalTypeMismatch,
			"Type of field %q is incompatible across subgraphs (where marked @external): it has %s",
			coord, describeMismatch(dest.Type.String(), values, typeDescription))
	}
	for _, name := range missing {
		argCoord := fmt.Sprintf("%s(%s:)", coord, name)
		var present, absent []string
		for _, s := range sources {
			if s.through != "" {
				continue
			}
			if s.def.Arguments.ForName(name) == nil {
				absent = append(absent, tm.m.names[s.idx])
			} else {
				present = append(present, tm.m.names[s.idx])
			}
		}
		tm.error(federror.ExternalArgumentMissing,
			"Field %q is missing argument %q in some subgraphs where it is marked @external: argument %q is %s",
			coord, argCoord, argCoord, describePresence("declared", present, absent))
	}
	for _, name := range badType {
		argCoord := fmt.Sprintf("%s(%s:)", coord, name)
		values := tm.argumentValues(sources, name, func(a *ast.ArgumentDefinition) string { return a.Type.String() })
		tm.error(federror.ExternalArgumentTypeMismatch,
			"Type of argument %q is incompatible across subgraphs (where %q is marked @external): it has %s",
			argCoord, coord, describeMismatch(dest.Arguments.ForName(name).Type.String(), values, typeDescription))
	}
	for _, name := range badDefault {
		argCoord := fmt.Sprintf("%s(%s:)", coord, name)
		values := tm.argumentValues(sources, name, func(a *ast.ArgumentDefinition) string { return valueString(a.DefaultValue) })
		tm.error(federror.ExternalArgumentDefaultMismatch,
			"Argument %q has incompatible defaults across subgraphs (where %q is marked @external): it has %s",
			argCoord, coord, describeMismatch(valueString(dest.Arguments.ForName(name).DefaultValue), values, func(v string) string {
				if v == "" {
					return "no default value"
				}
				return defaultDescription(v)
			}))
	}
}

func (tm *typeMerger) argumentValues(sources []fieldSource, name string, value func(*ast.ArgumentDefinition) string) []sourceValue {
	var out []sourceValue
	for _, s := range sources {
		if s.through != "" {
			continue
		}
		if a := s.def.Arguments.ForName(name); a != nil {
			out = append(out, sourceValue{subgraph: tm.m.names[s.idx], value: value(a)})
		}
	}
	return out
}
