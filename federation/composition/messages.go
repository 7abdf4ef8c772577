package composition

import (
	"fmt"
	"strings"
)

// joinStrings joins values as "a, b and c".
func joinStrings(values []string, lastSeparator string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return values[0]
	}
	return strings.Join(values[:len(values)-1], ", ") + lastSeparator + values[len(values)-1]
}

func quoted(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%q", v)
	}
	return out
}

// printSubgraphNames renders `subgraph "a"` or `subgraphs "a", "b" and "c"`.
func printSubgraphNames(names []string) string {
	if len(names) == 1 {
		return fmt.Sprintf("subgraph %q", names[0])
	}
	return "subgraphs " + joinStrings(quoted(names), " and ")
}

// sourceValue is the rendering of an element in one subgraph.
type sourceValue struct {
	subgraph string
	value    string
}

// describeMismatch renders `type "Int" in subgraph "a" but type "String"
// in subgraphs "b" and "c"`. Subgraphs are grouped by value; the group
// holding supergraphValue comes first.
func describeMismatch(supergraphValue string, values []sourceValue, describe func(string) string) string {
	var order []string
	groups := make(map[string][]string)
	for _, v := range values {
		if _, ok := groups[v.value]; !ok {
			order = append(order, v.value)
		}
		groups[v.value] = append(groups[v.value], v.subgraph)
	}
	for i, v := range order {
		if v == supergraphValue && i > 0 {
			copy(order[1:i+1], order[:i])
			order[0] = v
			break
		}
	}

	parts := make([]string, len(order))
	for i, v := range order {
		parts[i] = describe(v) + " in " + printSubgraphNames(groups[v])
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + " but " + strings.Join(parts[1:], " and ")
}

// describePresence renders `defined in subgraph "a" but not in subgraph "b"`.
func describePresence(verb string, present, missing []string) string {
	return fmt.Sprintf("%s in %s but not in %s", verb, printSubgraphNames(present), printSubgraphNames(missing))
}

func typeDescription(t string) string { return fmt.Sprintf("type %q", t) }

func defaultDescription(v string) string { return "default value " + v }
