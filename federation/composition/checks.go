package composition

import (
	"fmt"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/vektah/gqlparser/v2/ast"
)

// checkMerged runs the validations that need every type merged. Errors are
// sequenced after the per-type ones.
func (m *merger) checkMerged(merged []*mergedType) {
	seq := len(m.order)
	report := func(err error) {
		m.errs.Add(seq, err)
		seq++
	}

	byName := make(map[string]*mergedType, len(merged))
	for _, mt := range merged {
		if mt != nil && mt.def != nil {
			byName[mt.name] = mt
		}
	}

	if q, ok := byName["Query"]; !ok || len(q.def.Fields) == 0 {
		report(federror.New(federror.NoQueries, "No queries found in any subgraph: a supergraph must have a query root type."))
	}

	for _, mt := range merged {
		if mt == nil || mt.def == nil {
			continue
		}
		if mt.kind == ast.Object || mt.kind == ast.Interface {
			for _, err := range m.checkImplementations(mt, byName) {
				report(err)
			}
		}
		for _, err := range checkInaccessibleReferences(mt, byName) {
			report(err)
		}
	}
}

// checkImplementations reports interface fields missing from an
// implementation once every subgraph has been merged.
func (m *merger) checkImplementations(mt *mergedType, byName map[string]*mergedType) []error {
	var errs []error
	for _, iface := range mt.def.Interfaces {
		itf, ok := byName[iface]
		if !ok || itf.kind != ast.Interface {
			continue
		}
		for _, f := range itf.def.Fields {
			if mt.def.Fields.ForName(f.Name) != nil {
				continue
			}
			declared := make([]string, 0, len(itf.fieldSubgraphs[f.Name]))
			for _, idx := range itf.fieldSubgraphs[f.Name] {
				declared = append(declared, m.names[idx])
			}
			implementing := make([]string, 0, len(mt.interfaces[iface]))
			for _, idx := range mt.interfaces[iface] {
				implementing = append(implementing, m.names[idx])
			}
			errs = append(errs, federror.New(federror.InterfaceFieldNoImplem,
				"Interface field %q is declared in %s but type %q, which implements %q only in %s does not have field %q.",
				iface+"."+f.Name, printSubgraphNames(declared), mt.name, iface, printSubgraphNames(implementing), f.Name))
		}
	}
	return errs
}

// checkInaccessibleReferences reports visible elements whose type is
// @inaccessible.
func checkInaccessibleReferences(mt *mergedType, byName map[string]*mergedType) []error {
	if hasInaccessible(mt.def.Directives) {
		return nil
	}
	hidden := func(t *ast.Type) bool {
		ref, ok := byName[t.Name()]
		return ok && hasInaccessible(ref.def.Directives)
	}
	var errs []error
	referenced := func(t *ast.Type, by string) {
		errs = append(errs, federror.New(federror.ReferencedInaccessible,
			"Type %q is @inaccessible but is referenced by %q, which is in the API schema.", t.Name(), by))
	}
	for _, f := range mt.def.Fields {
		if hasInaccessible(f.Directives) {
			continue
		}
		coord := mt.name + "." + f.Name
		if hidden(f.Type) {
			referenced(f.Type, coord)
		}
		for _, a := range f.Arguments {
			if !hasInaccessible(a.Directives) && hidden(a.Type) {
				referenced(a.Type, fmt.Sprintf("%s(%s:)", coord, a.Name))
			}
		}
	}
	return errs
}
