package planner

import (
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/vektah/gqlparser/v2/ast"
)

const representationsVariable = "representations"

// Query renders the document the step sends to its subgraph. Root steps
// send their root fields as an operation of op's kind; entity steps send an
// _entities query whose $representations the executor fills from Requires.
// Only the variables of op the step uses are declared.
func (s *Step) Query(op *operation.Operation) string {
	used := make(map[string]bool)
	collectVariables(s.SelectionSet, used)

	var b strings.Builder
	if s.StepType == StepTypeEntity {
		b.WriteString("query")
	} else {
		b.WriteString(op.Kind.String())
	}
	if s.StepType == StepTypeQuery && op.Name != "" {
		b.WriteByte(' ')
		b.WriteString(op.Name)
	}

	var defs []string
	if s.StepType == StepTypeEntity {
		defs = append(defs, "$"+representationsVariable+": [_Any!]!")
	}
	for _, vd := range op.VariableDefinitions {
		if !used[vd.Variable] {
			continue
		}
		def := "$" + vd.Variable + ": " + vd.Type.String()
		if vd.DefaultValue != nil {
			def += " = " + vd.DefaultValue.String()
		}
		defs = append(defs, def)
	}
	if len(defs) > 0 {
		b.WriteString("(")
		b.WriteString(strings.Join(defs, ", "))
		b.WriteString(")")
	}
	b.WriteByte(' ')

	if s.StepType == StepTypeEntity {
		b.WriteString("{ _entities(" + representationsVariable + ": $" + representationsVariable + ") { ... on ")
		b.WriteString(s.ParentType)
		b.WriteByte(' ')
		b.WriteString(s.SelectionSet.String())
		b.WriteString(" } }")
		return b.String()
	}
	b.WriteString(s.SelectionSet.String())
	return b.String()
}

// collectVariables records the variables referenced by ss.
func collectVariables(ss *operation.SelectionSet, used map[string]bool) {
	if ss == nil {
		return
	}
	for _, sel := range ss.Selections() {
		for _, d := range sel.Directives() {
			for _, a := range d.Arguments {
				collectValueVariables(a.Value, used)
			}
		}
		if f, ok := sel.(*operation.Field); ok {
			for _, a := range f.Arguments {
				collectValueVariables(a.Value, used)
			}
		}
		collectVariables(sel.SelectionSet(), used)
	}
}

func collectValueVariables(v *ast.Value, used map[string]bool) {
	if v == nil {
		return
	}
	if v.Kind == ast.Variable {
		used[v.Raw] = true
		return
	}
	for _, c := range v.Children {
		collectValueVariables(c.Value, used)
	}
}
