package schema

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// EntityKey represents the @key directive information of a type.
type EntityKey struct {
	FieldSet   string // Field set specified in @key (e.g., "id")
	Resolvable bool   // Resolvable parameter of @key directive
}

// OverrideMetadata represents the @override directive information.
type OverrideMetadata struct {
	From  string // The source subgraph name (e.g., "products")
	Label string // Progressive override label, empty when absent
}

// Field represents the federation metadata of a field.
type Field struct {
	Name     string
	Type     *ast.Type
	Requires string // Field set of @requires, empty when absent
	Provides string // Field set of @provides, empty when absent

	isExternal     bool
	isShareable    bool
	Override       *OverrideMetadata // @override(from: "products")
	isInaccessible bool              // @inaccessible
	Tags           []string          // @tag(name: "public")
}

// IsExternal reports whether the field carries @external.
func (f *Field) IsExternal() bool { return f.isExternal }

// IsInaccessible reports whether the field carries @inaccessible.
func (f *Field) IsInaccessible() bool { return f.isInaccessible }

// TypeInfo holds the federation metadata of an object or interface type.
type TypeInfo struct {
	Name        string
	Kind        ast.DefinitionKind
	Keys        []EntityKey
	isExtension bool
	Fields      map[string]*Field

	isInterfaceObject bool
	isShareable       bool
	isExternal        bool
	isInaccessible    bool
	keyFields         map[string]bool
}

// IsEntity reports whether the type declares at least one @key.
func (t *TypeInfo) IsEntity() bool { return len(t.Keys) > 0 }

// IsExtension reports whether the type was declared with `extend` or @extends.
func (t *TypeInfo) IsExtension() bool { return t.isExtension }

// Subgraph is a parsed subgraph and its federation metadata.
type Subgraph struct {
	Name   string  // Subgraph name (e.g., "product")
	Host   string  // Host (e.g., "product.example.com")
	Schema *Schema // Validated schema

	types map[string]*TypeInfo

	// ComposeDirectives lists the names (without "@") passed to @composeDirective.
	ComposeDirectives []string
}

// NewSubgraph parses src and extracts the metadata of @key, @external,
// @requires, @provides, @shareable, @override, @inaccessible, @tag and
// @interfaceObject.
func NewSubgraph(name string, src []byte, host string) (*Subgraph, error) {
	if name == "_" {
		return nil, fmt.Errorf("invalid subgraph name %q: subgraph names cannot be a single underscore", name)
	}
	s, err := Parse(name, string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse subgraph %q: %w", name, err)
	}

	sg := &Subgraph{
		Name:              name,
		Host:              host,
		Schema:            s,
		types:             make(map[string]*TypeInfo),
		ComposeDirectives: extractComposeDirectives(s.SchemaDirectives()),
	}

	for _, def := range s.Types() {
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			continue
		}
		info := &TypeInfo{
			Name:              def.Name,
			Kind:              def.Kind,
			Keys:              parseEntityKeys(def.Directives),
			isExtension:       s.IsExtensionOnly(def.Name) || hasDirective(def.Directives, "extends"),
			Fields:            make(map[string]*Field),
			isInterfaceObject: hasDirective(def.Directives, "interfaceObject"),
			isShareable:       hasDirective(def.Directives, "shareable"),
			isExternal:        hasDirective(def.Directives, "external"),
			isInaccessible:    hasDirective(def.Directives, "inaccessible"),
			keyFields:         make(map[string]bool),
		}
		for _, key := range info.Keys {
			names, err := FieldSetFieldNames(key.FieldSet)
			if err != nil {
				return nil, fmt.Errorf("invalid @key on %q in subgraph %q: %w", def.Name, name, err)
			}
			for _, n := range names {
				info.keyFields[n] = true
			}
		}
		for _, field := range Fields(def) {
			info.Fields[field.Name] = parseField(field)
		}
		sg.types[def.Name] = info
	}

	return sg, nil
}

// Types returns the metadata of every object and interface type, keyed by name.
func (sg *Subgraph) Types() map[string]*TypeInfo {
	return sg.types
}

// TypeInfo returns the metadata of the named object or interface type.
func (sg *Subgraph) TypeInfo(name string) (*TypeInfo, bool) {
	info, ok := sg.types[name]
	return info, ok
}

// Keys returns the @key directives of the type, in declaration order.
func (sg *Subgraph) Keys(typeName string) []EntityKey {
	if info, ok := sg.types[typeName]; ok {
		return info.Keys
	}
	return nil
}

// ResolvableKeys returns the @key directives whose resolvable argument is not false.
func (sg *Subgraph) ResolvableKeys(typeName string) []EntityKey {
	var out []EntityKey
	for _, k := range sg.Keys(typeName) {
		if k.Resolvable {
			out = append(out, k)
		}
	}
	return out
}

func (sg *Subgraph) field(typeName, fieldName string) (*TypeInfo, *Field) {
	info, ok := sg.types[typeName]
	if !ok {
		return nil, nil
	}
	return info, info.Fields[fieldName]
}

// IsExternal reports whether the field is @external, either directly or
// through an @external on its type.
func (sg *Subgraph) IsExternal(typeName, fieldName string) bool {
	info, f := sg.field(typeName, fieldName)
	if f == nil {
		return false
	}
	return f.isExternal || info.isExternal
}

// IsShareable reports whether the field may be resolved by several
// subgraphs: marked @shareable, on a @shareable type, or part of a @key.
func (sg *Subgraph) IsShareable(typeName, fieldName string) bool {
	info, f := sg.field(typeName, fieldName)
	if f == nil {
		return false
	}
	return f.isShareable || info.isShareable || info.keyFields[fieldName]
}

// IsInaccessible reports whether the field or its type is @inaccessible.
func (sg *Subgraph) IsInaccessible(typeName, fieldName string) bool {
	info, f := sg.field(typeName, fieldName)
	if f == nil {
		return false
	}
	return f.isInaccessible || info.isInaccessible
}

// Requires returns the @requires field set of the field, empty when absent.
func (sg *Subgraph) Requires(typeName, fieldName string) string {
	if _, f := sg.field(typeName, fieldName); f != nil {
		return f.Requires
	}
	return ""
}

// Provides returns the @provides field set of the field, empty when absent.
func (sg *Subgraph) Provides(typeName, fieldName string) string {
	if _, f := sg.field(typeName, fieldName); f != nil {
		return f.Provides
	}
	return ""
}

// Override returns the @override of the field, or nil.
func (sg *Subgraph) Override(typeName, fieldName string) *OverrideMetadata {
	if _, f := sg.field(typeName, fieldName); f != nil {
		return f.Override
	}
	return nil
}

// Tags returns the @tag names applied to the field.
func (sg *Subgraph) Tags(typeName, fieldName string) []string {
	if _, f := sg.field(typeName, fieldName); f != nil {
		return f.Tags
	}
	return nil
}

// IsInterfaceObject reports whether the type carries @interfaceObject.
func (sg *Subgraph) IsInterfaceObject(typeName string) bool {
	info, ok := sg.types[typeName]
	return ok && info.isInterfaceObject
}

// InterfaceObjectTypes returns the names of the @interfaceObject types.
func (sg *Subgraph) InterfaceObjectTypes() map[string]bool {
	out := make(map[string]bool)
	for name, info := range sg.types {
		if info.isInterfaceObject {
			out[name] = true
		}
	}
	return out
}

// IsEntity reports whether the type declares at least one @key.
func (sg *Subgraph) IsEntity(typeName string) bool {
	info, ok := sg.types[typeName]
	return ok && info.IsEntity()
}

// IsComposeDirective reports whether the directive is listed in @composeDirective.
func (sg *Subgraph) IsComposeDirective(name string) bool {
	for _, d := range sg.ComposeDirectives {
		if d == name {
			return true
		}
	}
	return false
}

// parseEntityKeys extracts the @key directives. resolvable defaults to true.
func parseEntityKeys(directives ast.DirectiveList) []EntityKey {
	var keys []EntityKey
	for _, d := range directives {
		if d.Name != "key" {
			continue
		}
		key := EntityKey{Resolvable: true}
		if arg := d.Arguments.ForName("fields"); arg != nil && arg.Value != nil {
			key.FieldSet = arg.Value.Raw
		}
		if arg := d.Arguments.ForName("resolvable"); arg != nil && arg.Value != nil {
			key.Resolvable = arg.Value.Raw != "false"
		}
		keys = append(keys, key)
	}
	return keys
}

// parseField extracts the federation directives of a field definition.
func parseField(field *ast.FieldDefinition) *Field {
	f := &Field{
		Name: field.Name,
		Type: field.Type,
	}

	for _, d := range field.Directives {
		switch d.Name {
		case "requires":
			f.Requires = stringArgument(d, "fields")
		case "provides":
			f.Provides = stringArgument(d, "fields")
		case "external":
			f.isExternal = true
		case "shareable":
			f.isShareable = true
		case "override":
			f.Override = &OverrideMetadata{
				From:  stringArgument(d, "from"),
				Label: stringArgument(d, "label"),
			}
		case "inaccessible":
			f.isInaccessible = true
		case "tag":
			if name := stringArgument(d, "name"); name != "" {
				f.Tags = append(f.Tags, name)
			}
		}
	}

	return f
}

func stringArgument(d *ast.Directive, name string) string {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return ""
	}
	return arg.Value.Raw
}

// hasDirective checks whether a directive with the given name is present.
func hasDirective(directives ast.DirectiveList, name string) bool {
	return directives.ForName(name) != nil
}

// extractComposeDirectives collects the @composeDirective names from the schema definition.
func extractComposeDirectives(directives ast.DirectiveList) []string {
	var names []string
	for _, d := range directives {
		if d.Name != "composeDirective" {
			continue
		}
		if name := strings.TrimPrefix(stringArgument(d, "name"), "@"); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// FieldSetFieldNames returns the top-level field names of a field set such as "id sku".
func FieldSetFieldNames(fieldSet string) ([]string, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "fieldset", Input: "{" + fieldSet + "}"})
	if err != nil {
		return nil, fmt.Errorf("invalid field set %q: %w", fieldSet, err)
	}
	if len(doc.Operations) != 1 {
		return nil, fmt.Errorf("invalid field set %q", fieldSet)
	}
	var names []string
	for _, sel := range doc.Operations[0].SelectionSet {
		if f, ok := sel.(*ast.Field); ok {
			names = append(names, f.Name)
		}
	}
	return names, nil
}
