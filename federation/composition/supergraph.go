package composition

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

const (
	linkSpecURL         = "https://specs.apollo.dev/link/v1.0"
	joinSpecURL         = "https://specs.apollo.dev/join/v0.5"
	tagSpecURL          = "https://specs.apollo.dev/tag/v0.3"
	inaccessibleSpecURL = "https://specs.apollo.dev/inaccessible/v0.2"
)

// supergraphDefinitions declares the link and join machinery printed in
// every supergraph.
const supergraphDefinitions = `
directive @link(url: String, as: String, for: link__Purpose, import: [link__Import]) repeatable on SCHEMA
directive @join__enumValue(graph: join__Graph!) repeatable on ENUM_VALUE
directive @join__field(graph: join__Graph, requires: join__FieldSet, provides: join__FieldSet, type: String, external: Boolean, override: String, usedOverridden: Boolean, overrideLabel: String) repeatable on FIELD_DEFINITION | INPUT_FIELD_DEFINITION
directive @join__graph(name: String!, url: String!) on ENUM_VALUE
directive @join__implements(graph: join__Graph!, interface: String!) repeatable on OBJECT | INTERFACE
directive @join__type(graph: join__Graph!, key: join__FieldSet, extension: Boolean! = false, resolvable: Boolean! = true, isInterfaceObject: Boolean! = false) repeatable on OBJECT | INTERFACE | UNION | ENUM | INPUT_OBJECT | SCALAR
directive @join__unionMember(graph: join__Graph!, member: String!) repeatable on UNION
directive @tag(name: String!) repeatable on FIELD_DEFINITION | OBJECT | INTERFACE | UNION | ARGUMENT_DEFINITION | SCALAR | ENUM | ENUM_VALUE | INPUT_OBJECT | INPUT_FIELD_DEFINITION | SCHEMA
directive @inaccessible on FIELD_DEFINITION | OBJECT | INTERFACE | UNION | ARGUMENT_DEFINITION | SCALAR | ENUM | ENUM_VALUE | INPUT_OBJECT | INPUT_FIELD_DEFINITION

scalar join__FieldSet

scalar link__Import

enum link__Purpose {
  SECURITY
  EXECUTION
}
`

var supergraphDoc = mustParseSupergraphDefinitions()

func mustParseSupergraphDefinitions() *ast.SchemaDocument {
	doc, err := parser.ParseSchema(&ast.Source{Name: "supergraph_definitions.graphql", Input: supergraphDefinitions})
	if err != nil {
		panic(fmt.Sprintf("invalid supergraph definitions: %v", err))
	}
	return doc
}

// graphEnumValues derives the join__Graph value of each subgraph: the name
// upper-cased with every non alphanumeric character replaced by "_".
// Collisions get a numeric suffix.
func graphEnumValues(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, name := range names {
		var b strings.Builder
		for _, r := range name {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteByte('_')
			}
		}
		v := b.String()
		if v == "" || unicode.IsDigit(rune(v[0])) {
			v = "_" + v
		}
		candidate := v
		for n := 1; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d", v, n)
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}

func (m *merger) graphArg(idx int) *ast.Argument {
	return &ast.Argument{Name: "graph", Value: &ast.Value{Kind: ast.EnumValue, Raw: m.graphs[idx]}}
}

func stringArg(name, value string) *ast.Argument {
	return &ast.Argument{Name: name, Value: &ast.Value{Kind: ast.StringValue, Raw: value}}
}

func boolArg(name string, value bool) *ast.Argument {
	raw := "false"
	if value {
		raw = "true"
	}
	return &ast.Argument{Name: name, Value: &ast.Value{Kind: ast.BooleanValue, Raw: raw}}
}

// joinTypes builds the @join__type, @join__implements and
// @join__unionMember applications of the merged type.
func (tm *typeMerger) joinTypes() ast.DirectiveList {
	m := tm.m
	var out ast.DirectiveList
	for _, s := range tm.mt.sources {
		sg := m.subgraphs[s.idx]
		extension := false
		if info, ok := sg.TypeInfo(s.name); ok {
			extension = info.IsExtension()
		}
		interfaceObject := sg.IsInterfaceObject(s.name)
		keys := sg.Keys(s.name)
		if len(keys) == 0 {
			args := ast.ArgumentList{m.graphArg(s.idx)}
			if interfaceObject {
				args = append(args, boolArg("isInterfaceObject", true))
			}
			out = append(out, &ast.Directive{Name: "join__type", Arguments: args})
			continue
		}
		for _, key := range keys {
			args := ast.ArgumentList{m.graphArg(s.idx), stringArg("key", key.FieldSet)}
			if extension {
				args = append(args, boolArg("extension", true))
			}
			if !key.Resolvable {
				args = append(args, boolArg("resolvable", false))
			}
			if interfaceObject {
				args = append(args, boolArg("isInterfaceObject", true))
			}
			out = append(out, &ast.Directive{Name: "join__type", Arguments: args})
		}
	}
	for _, s := range tm.mt.sources {
		for _, iface := range s.def.Interfaces {
			out = append(out, &ast.Directive{Name: "join__implements", Arguments: ast.ArgumentList{
				m.graphArg(s.idx), stringArg("interface", iface),
			}})
		}
		if s.def.Kind != ast.Union {
			continue
		}
		for _, member := range s.def.Types {
			out = append(out, &ast.Directive{Name: "join__unionMember", Arguments: ast.ArgumentList{
				m.graphArg(s.idx), stringArg("member", member),
			}})
		}
	}
	return out
}

func (m *merger) graphEnum() *ast.Definition {
	def := &ast.Definition{Kind: ast.Enum, Name: "join__Graph"}
	for i, sg := range m.subgraphs {
		def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{
			Name: m.graphs[i],
			Directives: ast.DirectiveList{{Name: "join__graph", Arguments: ast.ArgumentList{
				stringArg("name", sg.Name), stringArg("url", sg.Host),
			}}},
		})
	}
	return def
}

func rootOperations(merged []*mergedType, visible func(*mergedType) bool) ast.OperationTypeDefinitionList {
	var out ast.OperationTypeDefinitionList
	for _, op := range []struct {
		op   ast.Operation
		name string
	}{{ast.Query, "Query"}, {ast.Mutation, "Mutation"}, {ast.Subscription, "Subscription"}} {
		for _, mt := range merged {
			if mt.name == op.name && mt.def != nil && visible(mt) {
				out = append(out, &ast.OperationTypeDefinition{Operation: op.op, Type: op.name})
			}
		}
	}
	return out
}

// usesDirective reports whether any merged element applies the directive.
func usesDirective(merged []*mergedType, name string) bool {
	for _, mt := range merged {
		if mt.def == nil {
			continue
		}
		if mt.def.Directives.ForName(name) != nil {
			return true
		}
		for _, f := range mt.def.Fields {
			if f.Directives.ForName(name) != nil {
				return true
			}
			for _, a := range f.Arguments {
				if a.Directives.ForName(name) != nil {
					return true
				}
			}
		}
		for _, v := range mt.def.EnumValues {
			if v.Directives.ForName(name) != nil {
				return true
			}
		}
	}
	return false
}

// composedDirectiveDefinitions returns the definitions of the directives
// listed in @composeDirective, taken from the first subgraph declaring each.
func (m *merger) composedDirectiveDefinitions() ast.DirectiveDefinitionList {
	var out ast.DirectiveDefinitionList
	seen := make(map[string]bool)
	for _, sg := range m.subgraphs {
		for _, name := range sg.ComposeDirectives {
			if seen[name] || supergraphDoc.Directives.ForName(name) != nil {
				continue
			}
			def := sg.Schema.AST().Directives[name]
			if def == nil {
				continue
			}
			seen[name] = true
			out = append(out, def)
		}
	}
	return out
}

// printSupergraph renders the supergraph SDL: the schema definition with
// its @link applications, the link and join definitions, the join__Graph
// enum and the merged types in first-seen order.
func (m *merger) printSupergraph(merged []*mergedType) (string, error) {
	links := ast.DirectiveList{
		{Name: "link", Arguments: ast.ArgumentList{stringArg("url", linkSpecURL)}},
		{Name: "link", Arguments: ast.ArgumentList{stringArg("url", joinSpecURL), {Name: "for", Value: &ast.Value{Kind: ast.EnumValue, Raw: "EXECUTION"}}}},
	}
	if usesDirective(merged, "tag") {
		links = append(links, &ast.Directive{Name: "link", Arguments: ast.ArgumentList{stringArg("url", tagSpecURL)}})
	}
	if usesDirective(merged, "inaccessible") {
		links = append(links, &ast.Directive{Name: "link", Arguments: ast.ArgumentList{
			stringArg("url", inaccessibleSpecURL),
			{Name: "for", Value: &ast.Value{Kind: ast.EnumValue, Raw: "SECURITY"}},
		}})
	}

	doc := &ast.SchemaDocument{
		Schema: ast.SchemaDefinitionList{{
			Directives:     links,
			OperationTypes: rootOperations(merged, func(*mergedType) bool { return true }),
		}},
	}
	doc.Directives = append(doc.Directives, supergraphDoc.Directives...)
	doc.Directives = append(doc.Directives, m.composedDirectiveDefinitions()...)
	doc.Definitions = append(doc.Definitions, supergraphDoc.Definitions...)
	doc.Definitions = append(doc.Definitions, m.graphEnum())
	for _, mt := range merged {
		if mt.def == nil {
			return "", federror.Internalf("Type %q was not merged", mt.name)
		}
		doc.Definitions = append(doc.Definitions, mt.def)
	}
	return format(doc), nil
}

func format(doc *ast.SchemaDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatSchemaDocument(doc)
	return buf.String()
}

// apiDirectives are the directive applications kept in the API schema.
func apiDirectives(directives ast.DirectiveList) ast.DirectiveList {
	var out ast.DirectiveList
	for _, d := range directives {
		if d.Name == "deprecated" || d.Name == "specifiedBy" {
			out = append(out, d)
		}
	}
	return out
}

// printAPISchema renders the schema exposed to clients: merged types
// without join metadata, @tag or any @inaccessible element.
func (m *merger) printAPISchema(merged []*mergedType) (string, error) {
	hidden := make(map[string]bool)
	for _, mt := range merged {
		if mt.def == nil {
			return "", federror.Internalf("Type %q was not merged", mt.name)
		}
		if hasInaccessible(mt.def.Directives) {
			hidden[mt.name] = true
		}
	}
	visible := func(mt *mergedType) bool { return !hidden[mt.name] }

	doc := &ast.SchemaDocument{}
	if ops := rootOperations(merged, visible); len(ops) > 0 {
		doc.Schema = ast.SchemaDefinitionList{{OperationTypes: ops}}
	}
	for _, mt := range merged {
		if hidden[mt.name] {
			continue
		}
		if def := apiDefinition(mt.def, hidden); def != nil {
			doc.Definitions = append(doc.Definitions, def)
		}
	}
	return format(doc), nil
}

func apiDefinition(src *ast.Definition, hidden map[string]bool) *ast.Definition {
	def := &ast.Definition{
		Kind:        src.Kind,
		Name:        src.Name,
		Description: src.Description,
		Directives:  apiDirectives(src.Directives),
	}
	for _, iface := range src.Interfaces {
		if !hidden[iface] {
			def.Interfaces = append(def.Interfaces, iface)
		}
	}
	for _, member := range src.Types {
		if !hidden[member] {
			def.Types = append(def.Types, member)
		}
	}
	for _, f := range src.Fields {
		if hasInaccessible(f.Directives) {
			continue
		}
		field := &ast.FieldDefinition{
			Name:         f.Name,
			Description:  f.Description,
			Type:         f.Type,
			DefaultValue: f.DefaultValue,
			Directives:   apiDirectives(f.Directives),
		}
		for _, a := range f.Arguments {
			if hasInaccessible(a.Directives) {
				continue
			}
			field.Arguments = append(field.Arguments, &ast.ArgumentDefinition{
				Name:         a.Name,
				Description:  a.Description,
				Type:         a.Type,
				DefaultValue: a.DefaultValue,
				Directives:   apiDirectives(a.Directives),
			})
		}
		def.Fields = append(def.Fields, field)
	}
	for _, v := range src.EnumValues {
		if hasInaccessible(v.Directives) {
			continue
		}
		def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{
			Name:        v.Name,
			Description: v.Description,
			Directives:  apiDirectives(v.Directives),
		})
	}

	switch {
	case (def.Kind == ast.Object || def.Kind == ast.Interface || def.Kind == ast.InputObject) && len(def.Fields) == 0,
		def.Kind == ast.Union && len(def.Types) == 0,
		def.Kind == ast.Enum && len(def.EnumValues) == 0:
		return nil
	}
	return def
}
