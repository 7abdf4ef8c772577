// Package federror defines the error codes, error values and hints reported
// while building query graphs and composing subgraphs.
package federror

import (
	"fmt"
	"sort"
	"strings"
)

// Code is the stable identifier of an error kind (e.g. "INVALID_FIELD_SHARING").
type Code string

func (c Code) String() string { return string(c) }

// Fixed codes.
const (
	Internal                                Code = "INTERNAL"
	InvalidGraphQL                          Code = "INVALID_GRAPHQL"
	DirectiveDefinitionInvalid              Code = "DIRECTIVE_DEFINITION_INVALID"
	TypeDefinitionInvalid                   Code = "TYPE_DEFINITION_INVALID"
	ExternalUnused                          Code = "EXTERNAL_UNUSED"
	ProvidesOnNonObjectField                Code = "PROVIDES_ON_NON_OBJECT_FIELD"
	KeyFieldsSelectInvalidType              Code = "KEY_FIELDS_SELECT_INVALID_TYPE"
	InvalidSubgraphName                     Code = "INVALID_SUBGRAPH_NAME"
	NoQueries                               Code = "NO_QUERIES"
	InterfaceFieldNoImplem                  Code = "INTERFACE_FIELD_NO_IMPLEM"
	TypeKindMismatch                        Code = "TYPE_KIND_MISMATCH"
	ExternalTypeMismatch                    Code = "EXTERNAL_TYPE_MISMATCH"
	ExternalArgumentMissing                 Code = "EXTERNAL_ARGUMENT_MISSING"
	ExternalArgumentTypeMismatch            Code = "EXTERNAL_ARGUMENT_TYPE_MISMATCH"
	ExternalArgumentDefaultMismatch         Code = "EXTERNAL_ARGUMENT_DEFAULT_MISMATCH"
	ExternalOnInterface                     Code = "EXTERNAL_ON_INTERFACE"
	MergedDirectiveApplicationOnExternal    Code = "MERGED_DIRECTIVE_APPLICATION_ON_EXTERNAL"
	FieldTypeMismatch                       Code = "FIELD_TYPE_MISMATCH"
	FieldArgumentTypeMismatch               Code = "FIELD_ARGUMENT_TYPE_MISMATCH"
	FieldArgumentDefaultMismatch            Code = "FIELD_ARGUMENT_DEFAULT_MISMATCH"
	InputFieldDefaultMismatch               Code = "INPUT_FIELD_DEFAULT_MISMATCH"
	ExtensionWithNoBase                     Code = "EXTENSION_WITH_NO_BASE"
	ExternalMissingOnBase                   Code = "EXTERNAL_MISSING_ON_BASE"
	InvalidFieldSharing                     Code = "INVALID_FIELD_SHARING"
	InvalidShareableUsage                   Code = "INVALID_SHAREABLE_USAGE"
	RequiredInputFieldMissingInSomeSubgraph Code = "REQUIRED_INPUT_FIELD_MISSING_IN_SOME_SUBGRAPH"
	RequiredArgumentMissingInSomeSubgraph   Code = "REQUIRED_ARGUMENT_MISSING_IN_SOME_SUBGRAPH"
	EmptyMergedInputType                    Code = "EMPTY_MERGED_INPUT_TYPE"
	EmptyMergedEnumType                     Code = "EMPTY_MERGED_ENUM_TYPE"
	ShareableHasMismatchedRuntimeTypes      Code = "SHAREABLE_HAS_MISMATCHED_RUNTIME_TYPES"
	SatisfiabilityError                     Code = "SATISFIABILITY_ERROR"
	MaxValidationSubgraphPathsExceeded      Code = "MAX_VALIDATION_SUBGRAPH_PATHS_EXCEEDED"
	OverrideFromSelfError                   Code = "OVERRIDE_FROM_SELF_ERROR"
	OverrideSourceHasOverride               Code = "OVERRIDE_SOURCE_HAS_OVERRIDE"
	OverrideCollisionWithAnotherDirective   Code = "OVERRIDE_COLLISION_WITH_ANOTHER_DIRECTIVE"
	OverrideOnInterface                     Code = "OVERRIDE_ON_INTERFACE"
	InterfaceObjectUsageError               Code = "INTERFACE_OBJECT_USAGE_ERROR"
	InterfaceKeyNotOnImplementation         Code = "INTERFACE_KEY_NOT_ON_IMPLEMENTATION"
	UnsupportedFeature                      Code = "UNSUPPORTED_FEATURE"
	QueryPlanComplexityExceeded             Code = "QUERY_PLAN_COMPLEXITY_EXCEEDED"
	DirectiveCompositionError               Code = "DIRECTIVE_COMPOSITION_ERROR"
	InvalidFederationSupergraph             Code = "INVALID_FEDERATION_SUPERGRAPH"
	ErrorCodeMissing                        Code = "ERROR_CODE_MISSING"
	UnsupportedFederationDirective          Code = "UNSUPPORTED_FEDERATION_DIRECTIVE"
	InterfaceKeyMissingImplementationType   Code = "INTERFACE_KEY_MISSING_IMPLEMENTATION_TYPE"
	ExternalCollisionWithAnotherDirective   Code = "EXTERNAL_COLLISION_WITH_ANOTHER_DIRECTIVE"
	OverrideLabelInvalid                    Code = "OVERRIDE_LABEL_INVALID"
	ReferencedInaccessible                  Code = "REFERENCED_INACCESSIBLE"
	InvalidSubgraphs                        Code = "INVALID_SUBGRAPHS"
	EnumValueMismatch                       Code = "ENUM_VALUE_MISMATCH"
)

// Codes produced by categories. The catalog defines them; they are listed
// here so callers can reference them without string building.
const (
	KeyFieldsHasArgs              Code = "KEY_FIELDS_HAS_ARGS"
	ProvidesFieldsHasArgs         Code = "PROVIDES_FIELDS_HAS_ARGS"
	ProvidesFieldsMissingExternal Code = "PROVIDES_FIELDS_MISSING_EXTERNAL"
	RequiresFieldsMissingExternal Code = "REQUIRES_FIELDS_MISSING_EXTERNAL"
	KeyUnsupportedOnInterface     Code = "KEY_UNSUPPORTED_ON_INTERFACE"
	KeyInvalidFields              Code = "KEY_INVALID_FIELDS"
	ProvidesInvalidFields         Code = "PROVIDES_INVALID_FIELDS"
	RequiresInvalidFields         Code = "REQUIRES_INVALID_FIELDS"
	RootQueryUsed                 Code = "ROOT_QUERY_USED"
	RootMutationUsed              Code = "ROOT_MUTATION_USED"
	RootSubscriptionUsed          Code = "ROOT_SUBSCRIPTION_USED"
)

// fed1Version marks codes that already existed in federation 1.
const fed1Version = "0.x"

// defaultAddedIn is the version assumed when a definition does not name one.
const defaultAddedIn = "2.0.0"

// Metadata records when a code was introduced and which codes it replaces.
type Metadata struct {
	AddedIn  string
	Replaces []Code
}

// CodeDefinition documents one error code.
type CodeDefinition struct {
	Code        Code
	Description string
	Metadata    Metadata
}

type categoryKind int

const (
	fixedCategory categoryKind = iota
	directiveCategory
	rootTypeCategory
)

// Category produces code definitions from an element, either a federation
// directive name or a root kind.
type Category struct {
	kind     categoryKind
	suffix   string
	describe string // fmt template receiving the element
	metadata Metadata
}

// DirectiveCategory builds a category whose codes are ELEMENT_SUFFIX.
func DirectiveCategory(suffix, describe string, metadata Metadata) Category {
	return Category{kind: directiveCategory, suffix: suffix, describe: describe, metadata: metadata}
}

// RootTypeCategory builds the ROOT_<KIND>_USED category.
func RootTypeCategory(describe string, metadata Metadata) Category {
	return Category{kind: rootTypeCategory, describe: describe, metadata: metadata}
}

// CodeFor returns the definition for element.
func (c Category) CodeFor(element string) CodeDefinition {
	var code string
	switch c.kind {
	case directiveCategory:
		code = strings.ToUpper(element) + "_" + c.suffix
	case rootTypeCategory:
		code = fmt.Sprintf("ROOT_%s_USED", strings.ToUpper(element))
	default:
		code = c.suffix
	}
	return CodeDefinition{
		Code:        Code(code),
		Description: fmt.Sprintf(c.describe, element),
		Metadata:    withDefaults(c.metadata),
	}
}

func withDefaults(m Metadata) Metadata {
	if m.AddedIn == "" {
		m.AddedIn = defaultAddedIn
	}
	return m
}

// Catalog is the immutable set of known error codes. Build it once with
// NewCatalog and pass it to whoever needs code documentation.
type Catalog struct {
	definitions map[Code]CodeDefinition
	hints       map[HintCode]HintCodeDefinition
}

var (
	fieldsHasArgs = DirectiveCategory("FIELDS_HAS_ARGS",
		"The `fields` argument of a `@%s` directive includes a field defined with arguments (which is not currently supported).",
		Metadata{})
	fieldsMissingExternal = DirectiveCategory("FIELDS_MISSING_EXTERNAL",
		"The `fields` argument of a `@%s` directive includes a field that is not marked as `@external`.",
		Metadata{AddedIn: fed1Version})
	unsupportedOnInterface = DirectiveCategory("UNSUPPORTED_ON_INTERFACE",
		"A `@%s` directive is used on an interface, which is not (yet) supported.",
		Metadata{})
	directiveInFieldsArg = DirectiveCategory("DIRECTIVE_IN_FIELDS_ARG",
		"The `fields` argument of a `@%s` directive includes some directive applications. This is not supported",
		Metadata{AddedIn: "2.1.0"})
	invalidFieldsType = DirectiveCategory("INVALID_FIELDS_TYPE",
		"The value passed to the `fields` argument of a `@%s` directive is not a string.",
		Metadata{})
	invalidFields = DirectiveCategory("INVALID_FIELDS",
		"The `fields` argument of a `@%s` directive is invalid (it has invalid syntax, includes unknown fields, ...).",
		Metadata{})
	rootTypeUsed = RootTypeCategory(
		"A subgraph's schema defines a type with the name `%s`, while also specifying a _different_ type name as the root query object. This is not allowed.",
		Metadata{AddedIn: fed1Version})
)

var fixedDefinitions = []CodeDefinition{
	{Code: Internal, Description: "An internal federation error occured."},
	{Code: InvalidGraphQL, Description: "A schema is invalid GraphQL: it violates one of the rule of the specification."},
	{Code: DirectiveDefinitionInvalid, Description: "A built-in or federation directive has an invalid definition in the schema."},
	{Code: TypeDefinitionInvalid, Description: "A built-in or federation type has an invalid definition in the schema."},
	{Code: ExternalUnused, Description: "An `@external` field is not being used by any instance of `@key`, `@requires`, `@provides` or to satisfy an interface implementation.", Metadata: Metadata{AddedIn: fed1Version}},
	{Code: ProvidesOnNonObjectField, Description: "A `@provides` directive is used to mark a field whose base type is not an object type.", Metadata: Metadata{AddedIn: fed1Version}},
	{Code: KeyFieldsSelectInvalidType, Description: "The `fields` argument of `@key` directive includes a field whose type is a list, interface, or union type. Fields of these types cannot be part of a `@key`", Metadata: Metadata{AddedIn: fed1Version}},
	{Code: InvalidSubgraphName, Description: "A subgraph name is invalid (subgraph names cannot be a single underscore (\"_\"))."},
	{Code: NoQueries, Description: "None of the composed subgraphs expose any query."},
	{Code: InterfaceFieldNoImplem, Description: "After subgraph merging, an implementation is missing a field of one of the interface it implements (which can happen for valid subgraphs)."},
	{Code: TypeKindMismatch, Description: "A type has the same name in different subgraphs, but a different kind. For instance, one definition is an object type but another is an interface.", Metadata: Metadata{Replaces: []Code{"VALUE_TYPE_KIND_MISMATCH", "EXTENSION_OF_WRONG_KIND", "ENUM_MISMATCH_TYPE"}}},
	{Code: ExternalTypeMismatch, Description: "An `@external` field has a type that is incompatible with the declaration(s) of that field in other subgraphs.", Metadata: Metadata{AddedIn: fed1Version}},
	{Code: ExternalCollisionWithAnotherDirective, Description: "The @external directive collides with other directives in some situations.", Metadata: Metadata{AddedIn: "2.1.0"}},
	{Code: ExternalArgumentMissing, Description: "An `@external` field is missing some arguments present in the declaration(s) of that field in other subgraphs."},
	{Code: ExternalArgumentTypeMismatch, Description: "An `@external` field declares an argument with a type that is incompatible with the corresponding argument in the declaration(s) of that field in other subgraphs."},
	{Code: ExternalArgumentDefaultMismatch, Description: "An `@external` field declares an argument with a default that is incompatible with the corresponding argument in the declaration(s) of that field in other subgraphs."},
	{Code: ExternalOnInterface, Description: "The field of an interface type is marked with `@external`: as external is about marking field not resolved by the subgraph and as interface field are not resolved (only implementations of those fields are), an \"external\" interface field is nonsensical"},
	{Code: MergedDirectiveApplicationOnExternal, Description: "In a subgraph, a field is both marked @external and has a merged directive applied to it"},
	{Code: FieldTypeMismatch, Description: "A field has a type that is incompatible with other declarations of that field in other subgraphs.", Metadata: Metadata{Replaces: []Code{"VALUE_TYPE_FIELD_TYPE_MISMATCH"}}},
	{Code: FieldArgumentTypeMismatch, Description: "An argument (of a field/directive) has a type that is incompatible with that of other declarations of that same argument in other subgraphs.", Metadata: Metadata{Replaces: []Code{"VALUE_TYPE_INPUT_VALUE_MISMATCH"}}},
	{Code: InputFieldDefaultMismatch, Description: "An input field has a default value that is incompatible with other declarations of that field in other subgraphs."},
	{Code: FieldArgumentDefaultMismatch, Description: "An argument (of a field/directive) has a default value that is incompatible with that of other declarations of that same argument in other subgraphs."},
	{Code: ExtensionWithNoBase, Description: "A subgraph is attempting to `extend` a type that is not originally defined in any known subgraph.", Metadata: Metadata{AddedIn: fed1Version}},
	{Code: ExternalMissingOnBase, Description: "A field is marked as `@external` in a subgraph but with no non-external declaration in any other subgraph.", Metadata: Metadata{AddedIn: fed1Version}},
	{Code: InvalidFieldSharing, Description: "A field that is non-shareable in at least one subgraph is resolved by multiple subgraphs."},
	{Code: InvalidShareableUsage, Description: "The `@shareable` federation directive is used in an invalid way.", Metadata: Metadata{AddedIn: "2.1.2"}},
	{Code: RequiredInputFieldMissingInSomeSubgraph, Description: "An input object field is marked required in some subgraphs but is missing in others."},
	{Code: RequiredArgumentMissingInSomeSubgraph, Description: "An argument of a field or directive definition is mandatory in some subgraphs, but the argument is not defined in all the subgraphs that define the field or directive definition."},
	{Code: EmptyMergedInputType, Description: "An input object type has no field common to all the subgraphs that define the type. Merging that type would result in an invalid empty input object type."},
	{Code: EmptyMergedEnumType, Description: "An enum type has no value common to all the subgraphs that define the type. Merging that type would result in an invalid empty enum type."},
	{Code: ShareableHasMismatchedRuntimeTypes, Description: "A shareable field return type has mismatched possible runtime types in the subgraphs in which the field is declared. As shared fields must resolve the same way in all subgraphs, this is almost surely a mistake."},
	{Code: SatisfiabilityError, Description: "Subgraphs can be merged, but the resulting supergraph API would have queries that cannot be satisfied by those subgraphs."},
	{Code: MaxValidationSubgraphPathsExceeded, Description: "The maximum number of validation subgraph paths has been exceeded.", Metadata: Metadata{AddedIn: "2.8.0"}},
	{Code: OverrideFromSelfError, Description: "Field with `@override` directive has \"from\" location that references its own subgraph."},
	{Code: OverrideSourceHasOverride, Description: "Field which is overridden to another subgraph is also marked @override."},
	{Code: OverrideCollisionWithAnotherDirective, Description: "The @override directive cannot be used on external fields, nor to override fields with either @external, @provides, or @requires."},
	{Code: OverrideOnInterface, Description: "The @override directive cannot be used on the fields of an interface type.", Metadata: Metadata{AddedIn: "2.3.0"}},
	{Code: OverrideLabelInvalid, Description: "The @override directive `label` argument must match the pattern /^[a-zA-Z][a-zA-Z0-9_\\-:./]*$/ or /^percent\\((\\d{1,2}(\\.\\d{1,8})?|100)\\)$/", Metadata: Metadata{AddedIn: "2.7.0"}},
	{Code: ReferencedInaccessible, Description: "An element is marked as @inaccessible but is referenced by an element visible in the API schema.", Metadata: Metadata{AddedIn: "2.0.0"}},
	{Code: InvalidSubgraphs, Description: "The list of subgraphs to compose is invalid (it is empty or names the same subgraph twice)."},
	{Code: EnumValueMismatch, Description: "An enum type that is used as both an input and output type has a value that is not defined in all the subgraphs that define the enum type."},
	{Code: InterfaceObjectUsageError, Description: "Error in the usage of the @interfaceObject directive.", Metadata: Metadata{AddedIn: "2.3.0"}},
	{Code: InterfaceKeyNotOnImplementation, Description: "A `@key` is defined on an interface type, but is not defined (or is not resolvable) on at least one of the interface implementations", Metadata: Metadata{AddedIn: "2.3.0"}},
	{Code: InterfaceKeyMissingImplementationType, Description: "A subgraph has a `@key` on an interface type, but that subgraph does not define an implementation (in the supergraph) of that interface", Metadata: Metadata{AddedIn: "2.3.0"}},
	{Code: UnsupportedFeature, Description: "Indicates an error due to feature currently unsupported by federation.", Metadata: Metadata{AddedIn: "2.1.0"}},
	{Code: InvalidFederationSupergraph, Description: "Indicates that a schema provided for an Apollo Federation supergraph is not a valid supergraph schema.", Metadata: Metadata{AddedIn: "2.1.0"}},
	{Code: DirectiveCompositionError, Description: "Error when composing custom directives.", Metadata: Metadata{AddedIn: "2.1.0"}},
	{Code: ErrorCodeMissing, Description: "An internal federation error occurred when translating a federation error into an error code"},
	{Code: UnsupportedFederationDirective, Description: "Indicates that the specified specification version is outside of supported range"},
	{Code: QueryPlanComplexityExceeded, Description: "Indicates that provided query has too many possible ways to generate a plan and cannot be planned in a reasonable amount of time", Metadata: Metadata{AddedIn: "2.1.0"}},
}

// NewCatalog builds the catalog of every known error and hint code.
func NewCatalog() *Catalog {
	c := &Catalog{
		definitions: make(map[Code]CodeDefinition, len(fixedDefinitions)+24),
		hints:       make(map[HintCode]HintCodeDefinition, len(hintDefinitions)),
	}
	for _, def := range fixedDefinitions {
		def.Metadata = withDefaults(def.Metadata)
		c.definitions[def.Code] = def
	}

	add := func(cat Category, elements ...string) {
		for _, e := range elements {
			def := cat.CodeFor(e)
			c.definitions[def.Code] = def
		}
	}
	add(fieldsHasArgs, "key", "provides")
	add(fieldsMissingExternal, "provides", "requires")
	add(unsupportedOnInterface, "key", "provides", "requires")
	add(directiveInFieldsArg, "key", "provides", "requires")
	add(invalidFieldsType, "key", "provides", "requires")
	add(invalidFields, "key", "provides", "requires")
	add(rootTypeUsed, "query", "mutation", "subscription")

	for _, h := range hintDefinitions {
		c.hints[h.Code] = h
	}
	return c
}

// Definition returns the documentation of code.
func (c *Catalog) Definition(code Code) (CodeDefinition, bool) {
	def, ok := c.definitions[code]
	return def, ok
}

// Definitions returns every definition sorted by code.
func (c *Catalog) Definitions() []CodeDefinition {
	defs := make([]CodeDefinition, 0, len(c.definitions))
	for _, def := range c.definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Code < defs[j].Code })
	return defs
}

// Hint returns the documentation of a hint code.
func (c *Catalog) Hint(code HintCode) (HintCodeDefinition, bool) {
	def, ok := c.hints[code]
	return def, ok
}

// Hints returns every hint definition sorted by code.
func (c *Catalog) Hints() []HintCodeDefinition {
	defs := make([]HintCodeDefinition, 0, len(c.hints))
	for _, def := range c.hints {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Code < defs[j].Code })
	return defs
}
