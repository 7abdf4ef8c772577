// Package schema wraps validated GraphQL schemas and extracts the federation
// metadata carried by subgraph SDL.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

var (
	// ErrTypeNotFound is returned (wrapped in an INTERNAL error) when a lookup names an unknown type.
	ErrTypeNotFound = errors.New("type not found")
	// ErrFieldNotFound is returned (wrapped in an INTERNAL error) when a lookup names an unknown field.
	ErrFieldNotFound = errors.New("field not found")
	// ErrWrongKind is returned (wrapped in an INTERNAL error) when a type has an unexpected kind.
	ErrWrongKind = errors.New("unexpected type kind")
)

// Schema is a validated schema whose lookups return errors instead of nil.
type Schema struct {
	name       string
	ast        *ast.Schema
	order      []string
	extensions map[string]bool
	directives ast.DirectiveList
}

// Parse parses and validates sdl. Federation directives the document does
// not declare are added before validation.
func Parse(name, sdl string) (*Schema, error) {
	doc, perr := parser.ParseSchemas(validator.Prelude, &ast.Source{Name: name, Input: sdl})
	if perr != nil {
		return nil, federror.New(federror.InvalidGraphQL, "%v", perr).WithCause(perr)
	}
	addFederationPrelude(doc)

	s, verr := validator.ValidateSchemaDocument(doc)
	if verr != nil {
		return nil, federror.New(federror.InvalidGraphQL, "%v", verr).WithCause(verr)
	}

	out := &Schema{
		name:       name,
		ast:        s,
		extensions: make(map[string]bool),
	}
	seen := make(map[string]bool)
	for _, def := range doc.Definitions {
		if isBuiltIn(def) || seen[def.Name] {
			continue
		}
		seen[def.Name] = true
		out.order = append(out.order, def.Name)
	}
	for _, ext := range doc.Extensions {
		if seen[ext.Name] {
			continue
		}
		seen[ext.Name] = true
		out.order = append(out.order, ext.Name)
		out.extensions[ext.Name] = true
	}
	for _, def := range doc.Schema {
		out.directives = append(out.directives, def.Directives...)
	}
	for _, def := range doc.SchemaExtension {
		out.directives = append(out.directives, def.Directives...)
	}
	return out, nil
}

func isBuiltIn(def *ast.Definition) bool {
	if def.BuiltIn {
		return true
	}
	return def.Position != nil && def.Position.Src != nil && def.Position.Src.BuiltIn
}

// Name is the name the schema was parsed under (the subgraph name for subgraphs).
func (s *Schema) Name() string { return s.name }

// AST exposes the underlying gqlparser schema.
func (s *Schema) AST() *ast.Schema { return s.ast }

// Types returns the user-declared named types in declaration order.
func (s *Schema) Types() []*ast.Definition {
	defs := make([]*ast.Definition, 0, len(s.order))
	for _, name := range s.order {
		if def := s.ast.Types[name]; def != nil {
			defs = append(defs, def)
		}
	}
	return defs
}

// SchemaDirectives returns the directives applied to the schema definition and its extensions.
func (s *Schema) SchemaDirectives() ast.DirectiveList { return s.directives }

// IsExtensionOnly reports whether the type is only introduced through `extend`.
func (s *Schema) IsExtensionOnly(name string) bool { return s.extensions[name] }

// LookupType returns the named type or nil.
func (s *Schema) LookupType(name string) *ast.Definition {
	return s.ast.Types[name]
}

// Type returns the named type.
func (s *Schema) Type(name string) (*ast.Definition, error) {
	def := s.ast.Types[name]
	if def == nil {
		return nil, federror.Internalf("Schema %q has no type %q", s.name, name).WithCause(ErrTypeNotFound)
	}
	return def, nil
}

// TypePosition returns the position of the named type.
func (s *Schema) TypePosition(name string) (position.Type, error) {
	def, err := s.Type(name)
	if err != nil {
		return position.Type{}, err
	}
	return position.Type{Kind: position.KindOf(def.Kind), Name: def.Name}, nil
}

// CompositeType returns the named type and fails unless it is an object, interface or union.
func (s *Schema) CompositeType(name string) (*ast.Definition, error) {
	def, err := s.Type(name)
	if err != nil {
		return nil, err
	}
	if !position.KindOf(def.Kind).IsComposite() {
		return nil, federror.Internalf("Type %q is not a composite type", name).WithCause(ErrWrongKind)
	}
	return def, nil
}

// Field returns the definition of the field at pos. __typename resolves to a
// synthetic String! field.
func (s *Schema) Field(pos position.Field) (*ast.FieldDefinition, error) {
	def, err := s.Type(pos.Parent.Name)
	if err != nil {
		return nil, err
	}
	if pos.IsTypename() {
		return typenameDefinition, nil
	}
	f := def.Fields.ForName(pos.Name)
	if f == nil {
		return nil, federror.Internalf("Type %q has no field %q", pos.Parent.Name, pos.Name).WithCause(ErrFieldNotFound)
	}
	return f, nil
}

var typenameDefinition = &ast.FieldDefinition{
	Name: position.TypenameField,
	Type: ast.NonNullNamedType("String", nil),
}

// Fields returns the fields of def without introspection fields.
func Fields(def *ast.Definition) []*ast.FieldDefinition {
	out := make([]*ast.FieldDefinition, 0, len(def.Fields))
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		out = append(out, f)
	}
	return out
}

// RootType returns the root type for kind, if the schema defines one.
func (s *Schema) RootType(kind position.RootKind) (*ast.Definition, bool) {
	var def *ast.Definition
	switch kind {
	case position.Query:
		def = s.ast.Query
	case position.Mutation:
		def = s.ast.Mutation
	case position.Subscription:
		def = s.ast.Subscription
	}
	return def, def != nil
}

// RootKindOf reports whether name is one of the schema's root types.
func (s *Schema) RootKindOf(name string) (position.RootKind, bool) {
	for _, kind := range position.RootKinds() {
		if def, ok := s.RootType(kind); ok && def.Name == name {
			return kind, true
		}
	}
	return position.Query, false
}

// PossibleRuntimeTypes returns the object types a value of the named type
// can have, in declaration order.
func (s *Schema) PossibleRuntimeTypes(name string) []string {
	def := s.ast.Types[name]
	if def == nil {
		return nil
	}
	switch def.Kind {
	case ast.Object:
		return []string{def.Name}
	case ast.Union:
		out := make([]string, 0, len(def.Types))
		for _, member := range def.Types {
			if m := s.ast.Types[member]; m != nil && m.Kind == ast.Object {
				out = append(out, member)
			}
		}
		return out
	case ast.Interface:
		var out []string
		for _, candidate := range s.Types() {
			if candidate.Kind == ast.Object && implements(candidate, name) {
				out = append(out, candidate.Name)
			}
		}
		return out
	}
	return nil
}

// Implementations returns the object and interface types that declare they implement iface.
func (s *Schema) Implementations(iface string) []*ast.Definition {
	var out []*ast.Definition
	for _, def := range s.Types() {
		if (def.Kind == ast.Object || def.Kind == ast.Interface) && implements(def, iface) {
			out = append(out, def)
		}
	}
	return out
}

func implements(def *ast.Definition, iface string) bool {
	for _, i := range def.Interfaces {
		if i == iface {
			return true
		}
	}
	return false
}

// IsSubtype reports whether sub is a proper subtype of super: an object or
// interface implementing it, or a member of a union.
func (s *Schema) IsSubtype(super, sub string) bool {
	sup := s.ast.Types[super]
	sd := s.ast.Types[sub]
	if sup == nil || sd == nil {
		return false
	}
	switch sup.Kind {
	case ast.Interface:
		return implements(sd, super)
	case ast.Union:
		for _, m := range sup.Types {
			if m == sub {
				return true
			}
		}
	}
	return false
}

// String returns the schema name for diagnostics.
func (s *Schema) String() string {
	return fmt.Sprintf("Schema(%s)", s.name)
}
