package validation

import (
	"sort"
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/querygraph"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
	"github.com/vektah/gqlparser/v2/ast"
)

// witness prints the smallest operation following the API path edges.
// Required arguments get placeholder values so the operation is valid.
func (t *traversal) witness(edges []querygraph.EdgeIndex) (string, error) {
	if len(edges) == 0 {
		return "", federror.Internalf("Cannot print a witness for an empty path")
	}
	s, err := t.api.Schema()
	if err != nil {
		return "", err
	}
	first, err := t.api.Edge(edges[0])
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if root := t.api.EdgeHead(first); root.IsRoot && root.RootKind != position.Query {
		b.WriteString(root.RootKind.String() + " ")
	}
	b.WriteString("{\n")

	composite := make([]bool, len(edges))
	for i, ei := range edges {
		e, err := t.api.Edge(ei)
		if err != nil {
			return "", err
		}
		indent := strings.Repeat("  ", i+1)
		b.WriteString(indent)
		switch e.Transition.Kind {
		case querygraph.FieldCollection:
			b.WriteString(e.Transition.Field.Name)
			b.WriteString(requiredArguments(s, e.Transition.Field))
		case querygraph.Downcast:
			b.WriteString("... on " + e.Transition.ToType.Name)
		default:
			return "", federror.Internalf("Unexpected supergraph transition %s", e.Transition)
		}
		composite[i] = t.api.EdgeTail(e).Type.Type.Kind.IsComposite()
		if !composite[i] {
			b.WriteString("\n")
			continue
		}
		b.WriteString(" {\n")
		if i == len(edges)-1 {
			b.WriteString(indent + "  ...\n")
		}
	}
	for i := len(edges) - 1; i >= 0; i-- {
		if composite[i] {
			b.WriteString(strings.Repeat("  ", i+1) + "}\n")
		}
	}
	b.WriteString("}")
	return b.String(), nil
}

func requiredArguments(s *schema.Schema, pos position.Field) string {
	def, err := s.Field(pos)
	if err != nil {
		return ""
	}
	var required []*ast.ArgumentDefinition
	for _, arg := range def.Arguments {
		if arg.Type.NonNull && arg.DefaultValue == nil {
			required = append(required, arg)
		}
	}
	if len(required) == 0 {
		return ""
	}
	sort.Slice(required, func(i, j int) bool { return required[i].Name < required[j].Name })

	args := make([]string, len(required))
	for i, arg := range required {
		args[i] = arg.Name + ": " + placeholderValue(s, arg.Type)
	}
	return "(" + strings.Join(args, ", ") + ")"
}

// placeholderValue returns a literal accepted by typ.
func placeholderValue(s *schema.Schema, typ *ast.Type) string {
	if typ.Elem != nil {
		return "[]"
	}
	switch typ.NamedType {
	case "Int":
		return "0"
	case "Float":
		return "3.14"
	case "Boolean":
		return "true"
	case "String":
		return `"A string value"`
	case "ID":
		return `"<any id>"`
	}
	def := s.LookupType(typ.NamedType)
	if def == nil {
		return `"<some value>"`
	}
	switch def.Kind {
	case ast.Enum:
		if len(def.EnumValues) > 0 {
			return def.EnumValues[0].Name
		}
	case ast.InputObject:
		var fields []*ast.FieldDefinition
		for _, f := range def.Fields {
			if f.Type.NonNull && f.DefaultValue == nil {
				fields = append(fields, f)
			}
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = f.Name + ": " + placeholderValue(s, f.Type)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return `"<some value>"`
}
