package federror

import "fmt"

// HintLevel ranks how strongly a hint deserves attention.
type HintLevel int

const (
	HintWarn HintLevel = iota
	HintInfo
	HintDebug
)

func (l HintLevel) String() string {
	switch l {
	case HintWarn:
		return "WARN"
	case HintInfo:
		return "INFO"
	case HintDebug:
		return "DEBUG"
	}
	return fmt.Sprintf("HintLevel(%d)", int(l))
}

// HintCode identifies a non-fatal composition observation.
type HintCode string

const (
	InconsistentButCompatibleFieldType         HintCode = "INCONSISTENT_BUT_COMPATIBLE_FIELD_TYPE"
	InconsistentButCompatibleArgumentType      HintCode = "INCONSISTENT_BUT_COMPATIBLE_ARGUMENT_TYPE"
	InconsistentDefaultValuePresence           HintCode = "INCONSISTENT_DEFAULT_VALUE_PRESENCE"
	InconsistentEntity                         HintCode = "INCONSISTENT_ENTITY"
	InconsistentObjectValueTypeField           HintCode = "INCONSISTENT_OBJECT_VALUE_TYPE_FIELD"
	InconsistentInputObjectField               HintCode = "INCONSISTENT_INPUT_OBJECT_FIELD"
	InconsistentUnionMember                    HintCode = "INCONSISTENT_UNION_MEMBER"
	InconsistentEnumValueForOutputEnum         HintCode = "INCONSISTENT_ENUM_VALUE_FOR_OUTPUT_ENUM"
	InconsistentEnumValueForInputEnum          HintCode = "INCONSISTENT_ENUM_VALUE_FOR_INPUT_ENUM"
	InconsistentDescription                    HintCode = "INCONSISTENT_DESCRIPTION"
	InconsistentArgumentPresence               HintCode = "INCONSISTENT_ARGUMENT_PRESENCE"
	FromSubgraphDoesNotExist                   HintCode = "FROM_SUBGRAPH_DOES_NOT_EXIST"
	OverriddenFieldCanBeRemoved                HintCode = "OVERRIDDEN_FIELD_CAN_BE_REMOVED"
	OverrideDirectiveCanBeRemoved              HintCode = "OVERRIDE_DIRECTIVE_CAN_BE_REMOVED"
	OverrideMigrationInProgress                HintCode = "OVERRIDE_MIGRATION_IN_PROGRESS"
	InconsistentRuntimeTypesForShareableReturn HintCode = "INCONSISTENT_RUNTIME_TYPES_FOR_SHAREABLE_RETURN"
)

// HintCodeDefinition documents a hint code.
type HintCodeDefinition struct {
	Code        HintCode
	Level       HintLevel
	Description string
}

var hintDefinitions = []HintCodeDefinition{
	{InconsistentButCompatibleFieldType, HintWarn, "Field has inconsistent but compatible type across subgraphs"},
	{InconsistentButCompatibleArgumentType, HintWarn, "Argument has inconsistent but compatible type across subgraphs"},
	{InconsistentDefaultValuePresence, HintWarn, "Default value presence is inconsistent across subgraphs"},
	{InconsistentEntity, HintWarn, "Entity definition is inconsistent across subgraphs"},
	{InconsistentObjectValueTypeField, HintWarn, "Object value type field is inconsistent across subgraphs"},
	{InconsistentInputObjectField, HintWarn, "Input object field is inconsistent across subgraphs"},
	{InconsistentUnionMember, HintWarn, "Union member is inconsistent across subgraphs"},
	{InconsistentEnumValueForOutputEnum, HintWarn, "Enum value for output enum is inconsistent across subgraphs"},
	{InconsistentEnumValueForInputEnum, HintWarn, "Enum value for input enum is inconsistent across subgraphs"},
	{InconsistentDescription, HintWarn, "Description is inconsistent across subgraphs"},
	{InconsistentArgumentPresence, HintWarn, "Argument presence is inconsistent across subgraphs"},
	{FromSubgraphDoesNotExist, HintWarn, "From subgraph does not exist"},
	{OverriddenFieldCanBeRemoved, HintInfo, "Overridden field can be removed"},
	{OverrideDirectiveCanBeRemoved, HintInfo, "Override directive can be removed"},
	{OverrideMigrationInProgress, HintInfo, "Override migration is in progress"},
	{InconsistentRuntimeTypesForShareableReturn, HintWarn, "Runtime types for shareable return are inconsistent across subgraphs"},
}

// Hint is a non-fatal composition observation.
type Hint struct {
	Code    HintCode
	Level   HintLevel
	Message string
	// Element is the schema coordinate the hint is about, e.g. "User.name".
	Element string
}

func (h Hint) String() string {
	return fmt.Sprintf("[%s] %s", h.Code, h.Message)
}

// NewHint builds a hint at the catalog level for code, falling back to WARN
// for codes the catalog does not know.
func (c *Catalog) NewHint(code HintCode, element, format string, args ...any) Hint {
	level := HintWarn
	if def, ok := c.hints[code]; ok {
		level = def.Level
	}
	return Hint{Code: code, Level: level, Message: fmt.Sprintf(format, args...), Element: element}
}
