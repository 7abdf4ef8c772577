package schema

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// federationPrelude declares the federation directives and scalars. A
// subgraph that declares any of them itself keeps its own definition.
const federationPrelude = `
scalar FieldSet
scalar _FieldSet
scalar link__Import

directive @key(fields: FieldSet!, resolvable: Boolean = true) repeatable on OBJECT | INTERFACE
directive @external(reason: String) on OBJECT | FIELD_DEFINITION
directive @requires(fields: FieldSet!) on FIELD_DEFINITION
directive @provides(fields: FieldSet!) on FIELD_DEFINITION
directive @shareable repeatable on OBJECT | FIELD_DEFINITION
directive @override(from: String!, label: String) on FIELD_DEFINITION
directive @inaccessible on FIELD_DEFINITION | OBJECT | INTERFACE | UNION | ARGUMENT_DEFINITION | SCALAR | ENUM | ENUM_VALUE | INPUT_OBJECT | INPUT_FIELD_DEFINITION
directive @tag(name: String!) repeatable on FIELD_DEFINITION | OBJECT | INTERFACE | UNION | ARGUMENT_DEFINITION | SCALAR | ENUM | ENUM_VALUE | INPUT_OBJECT | INPUT_FIELD_DEFINITION | SCHEMA
directive @interfaceObject on OBJECT
directive @extends on OBJECT | INTERFACE
directive @composeDirective(name: String!) repeatable on SCHEMA
directive @link(url: String!, as: String, import: [link__Import], for: String) repeatable on SCHEMA
`

const preludeSourceName = "federation_prelude.graphql"

var federationPreludeDoc = mustParsePrelude()

func mustParsePrelude() *ast.SchemaDocument {
	doc, err := parser.ParseSchema(&ast.Source{Name: preludeSourceName, Input: federationPrelude, BuiltIn: true})
	if err != nil {
		panic(fmt.Sprintf("invalid federation prelude: %v", err))
	}
	return doc
}

// addFederationPrelude appends every federation definition doc does not
// already declare.
func addFederationPrelude(doc *ast.SchemaDocument) {
	for _, dir := range federationPreludeDoc.Directives {
		if doc.Directives.ForName(dir.Name) == nil {
			doc.Directives = append(doc.Directives, dir)
		}
	}
	for _, def := range federationPreludeDoc.Definitions {
		if doc.Definitions.ForName(def.Name) == nil {
			doc.Definitions = append(doc.Definitions, def)
		}
	}
}

// IsFederationDirective reports whether name is one of the directives
// declared by the federation prelude.
func IsFederationDirective(name string) bool {
	return federationPreludeDoc.Directives.ForName(name) != nil
}
