// Package position identifies schema elements by value so they can be used
// as map keys and graph payloads without holding on to AST pointers.
package position

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

// RootKind is the kind of a schema root operation type.
type RootKind int

const (
	Query RootKind = iota
	Mutation
	Subscription
)

// RootKinds returns every root kind in declaration order.
func RootKinds() []RootKind {
	return []RootKind{Query, Mutation, Subscription}
}

func (k RootKind) String() string {
	switch k {
	case Query:
		return "query"
	case Mutation:
		return "mutation"
	case Subscription:
		return "subscription"
	}
	return fmt.Sprintf("RootKind(%d)", int(k))
}

// DefaultTypeName returns the conventional type name of the root kind
// ("Query", "Mutation", "Subscription").
func (k RootKind) DefaultTypeName() string {
	switch k {
	case Mutation:
		return "Mutation"
	case Subscription:
		return "Subscription"
	}
	return "Query"
}

// RootKindFromOperation converts a gqlparser operation to a RootKind.
func RootKindFromOperation(op ast.Operation) (RootKind, error) {
	switch op {
	case ast.Query, "":
		return Query, nil
	case ast.Mutation:
		return Mutation, nil
	case ast.Subscription:
		return Subscription, nil
	}
	return Query, fmt.Errorf("unknown operation type %q", op)
}

// Operation is the inverse of RootKindFromOperation.
func (k RootKind) Operation() ast.Operation {
	switch k {
	case Mutation:
		return ast.Mutation
	case Subscription:
		return ast.Subscription
	}
	return ast.Query
}

// TypeKind is the kind of a named schema type.
type TypeKind int

const (
	ScalarKind TypeKind = iota
	ObjectKind
	InterfaceKind
	UnionKind
	EnumKind
	InputObjectKind
)

func (k TypeKind) String() string {
	switch k {
	case ScalarKind:
		return "ScalarType"
	case ObjectKind:
		return "ObjectType"
	case InterfaceKind:
		return "InterfaceType"
	case UnionKind:
		return "UnionType"
	case EnumKind:
		return "EnumType"
	case InputObjectKind:
		return "InputObjectType"
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// IsAbstract reports whether values of the kind resolve to another runtime type.
func (k TypeKind) IsAbstract() bool {
	return k == InterfaceKind || k == UnionKind
}

// IsComposite reports whether the kind can carry a selection set.
func (k TypeKind) IsComposite() bool {
	return k == ObjectKind || k == InterfaceKind || k == UnionKind
}

// IsOutput reports whether the kind is usable as a field type.
func (k TypeKind) IsOutput() bool {
	return k != InputObjectKind
}

// KindOf maps a gqlparser definition kind.
func KindOf(kind ast.DefinitionKind) TypeKind {
	switch kind {
	case ast.Object:
		return ObjectKind
	case ast.Interface:
		return InterfaceKind
	case ast.Union:
		return UnionKind
	case ast.Enum:
		return EnumKind
	case ast.InputObject:
		return InputObjectKind
	}
	return ScalarKind
}

// Type identifies a named type.
type Type struct {
	Kind TypeKind
	Name string
}

func (t Type) String() string { return t.Name }

// Field returns the position of the named field of t.
func (t Type) Field(name string) Field {
	return Field{Parent: t, Name: name}
}

// Typename returns the position of the __typename meta field of t.
func (t Type) Typename() Field {
	return Field{Parent: t, Name: TypenameField}
}

// TypenameField is the name of the introspection meta field every composite type carries.
const TypenameField = "__typename"

// Field identifies a field of an object or interface type.
type Field struct {
	Parent Type
	Name   string
}

// String prints the field coordinate, e.g. "User.name".
func (f Field) String() string { return f.Parent.Name + "." + f.Name }

// IsTypename reports whether f is the __typename meta field.
func (f Field) IsTypename() bool { return f.Name == TypenameField }

// Argument returns the position of the named argument of f.
func (f Field) Argument(name string) Argument {
	return Argument{Field: f, Name: name}
}

// Argument identifies an argument of a field.
type Argument struct {
	Field Field
	Name  string
}

// String prints the argument coordinate, e.g. "User.posts(first:)".
func (a Argument) String() string {
	return fmt.Sprintf("%s(%s:)", a.Field, a.Name)
}
