package composition

var (
	SuggestSubgraphNames = suggestSubgraphNames
	GraphEnumValues      = graphEnumValues
	ValidOverrideLabel   = validOverrideLabel
)
