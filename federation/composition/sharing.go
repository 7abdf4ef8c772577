package composition

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
	"github.com/vektah/gqlparser/v2/ast"
)

// override is an accepted @override, recorded on the subgraph it takes the
// field from.
type override struct {
	by    int
	label string
	// used is set when the overridden field is still needed by a @key of
	// the source subgraph.
	used bool
}

type overrides struct {
	// from maps the overridden subgraph to its override.
	from map[int]override
	// by maps the overriding subgraph to the subgraph it overrides.
	by map[int]int
}

func (ov overrides) label(idx int) string {
	from, ok := ov.by[idx]
	if !ok {
		return ""
	}
	return ov.from[from].label
}

var (
	overrideLabelPattern   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-:./]*$`)
	overridePercentPattern = regexp.MustCompile(`^percent\((\d{1,2}(\.\d{1,8})?|100)\)$`)
)

func validOverrideLabel(label string) bool {
	if overrideLabelPattern.MatchString(label) {
		return true
	}
	m := overridePercentPattern.FindStringSubmatch(label)
	if m == nil {
		return false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	return err == nil && v >= 0 && v <= 100
}

// validateOverrides checks every @override applied to the field and
// returns the ones that take effect.
func (tm *typeMerger) validateOverrides(coord string, sources []fieldSource, external []bool, isInterface bool) overrides {
	ov := overrides{from: make(map[int]override), by: make(map[int]int)}
	if len(tm.m.overrides[coord]) == 0 {
		return ov
	}

	byIdx := make(map[int]int, len(sources))
	for i, s := range sources {
		if s.through == "" {
			byIdx[s.idx] = i
		}
	}

	for i, s := range sources {
		if s.through != "" {
			continue
		}
		sg := tm.m.subgraphs[s.idx]
		meta := sg.Override(s.parent, s.def.Name)
		if meta == nil {
			continue
		}
		name := tm.m.names[s.idx]

		switch {
		case isInterface:
			tm.error(federror.OverrideOnInterface,
				"@override cannot be used on field %q on subgraph %q: @override is not supported on interface type fields.",
				coord, name)
			continue
		case sg.IsInterfaceObject(s.parent):
			tm.error(federror.OverrideCollisionWithAnotherDirective,
				"@override is not yet supported on fields of @interfaceObject types: cannot be used on field %q on subgraph %q.",
				coord, name)
			continue
		case external[i]:
			tm.error(federror.OverrideCollisionWithAnotherDirective,
				"@override cannot be used on field %q on subgraph %q since %q on %q is marked with directive \"@external\"",
				coord, name, coord, name)
			continue
		case meta.From == name:
			tm.error(federror.OverrideFromSelfError,
				"Source and destination subgraphs %q are the same for overridden field %q",
				meta.From, coord)
			continue
		}
		if meta.Label != "" && !validOverrideLabel(meta.Label) {
			tm.error(federror.OverrideLabelInvalid,
				"Invalid @override label %q on field %q on subgraph %q: labels must start with a letter and after that may contain alphanumerics, underscores, minuses, colons, periods, or slashes. Alternatively, labels may be of the form \"percent(x)\" where x is a float between 0-100 inclusive.",
				meta.Label, coord, name)
			continue
		}

		fromIdx := tm.m.subgraphIndex(meta.From)
		if fromIdx < 0 {
			tm.hint(federror.FromSubgraphDoesNotExist, coord,
				"Source subgraph %q for field %q on subgraph %q does not exist.%s",
				meta.From, coord, name, didYouMean(suggestSubgraphNames(meta.From, tm.m.names)))
			continue
		}
		j, ok := byIdx[fromIdx]
		if !ok {
			tm.hint(federror.OverrideDirectiveCanBeRemoved, coord,
				"Field %q on subgraph %q no longer exists in the from subgraph. The @override directive can be removed.",
				coord, name)
			continue
		}
		from := sources[j]
		fromSG := tm.m.subgraphs[fromIdx]
		if fromSG.Override(from.parent, from.def.Name) != nil {
			tm.error(federror.OverrideSourceHasOverride,
				"Field %q on subgraph %q is also marked with directive @override in subgraph %q. A field cannot be overridden from a subgraph that also overrides the same field.",
				coord, meta.From, name)
			continue
		}
		if collision := collidingDirective(fromSG.Requires(from.parent, from.def.Name), fromSG.Provides(from.parent, from.def.Name)); collision != "" {
			tm.error(federror.OverrideCollisionWithAnotherDirective,
				"@override cannot be used on field %q on subgraph %q since %q on %q is marked with directive \"@%s\"",
				coord, name, coord, meta.From, collision)
			continue
		}
		if external[j] {
			tm.hint(federror.OverrideDirectiveCanBeRemoved, coord,
				"Field %q on subgraph %q is not resolved anymore by the from subgraph (it is marked \"@external\" in %q). The @override directive can be removed.",
				coord, name, meta.From)
			continue
		}

		o := override{by: s.idx, label: meta.Label, used: tm.m.isKeyField(fromIdx, from.parent, from.def.Name)}
		if meta.Label == "" {
			if o.used {
				tm.hint(federror.OverriddenFieldCanBeRemoved, coord,
					"Field %q on subgraph %q is overridden. It is still used in some federation directive(s) (@key, @requires, and/or @provides) and/or to satisfy interface constraint(s), but consider marking it @external explicitly or removing it along with its references.",
					coord, meta.From)
			} else {
				tm.hint(federror.OverriddenFieldCanBeRemoved, coord,
					"Field %q on subgraph %q is overridden. Consider removing it.",
					coord, meta.From)
			}
		} else {
			tm.hint(federror.OverrideMigrationInProgress, coord,
				"Field %q is currently being migrated with progressive @override. Once the migration is complete, remove the field from subgraph %q.",
				coord, meta.From)
		}
		ov.from[fromIdx] = o
		ov.by[s.idx] = fromIdx
	}

	if len(ov.by) > 1 {
		var claiming []string
		for _, s := range sources {
			if _, ok := ov.by[s.idx]; ok && s.through == "" {
				claiming = append(claiming, tm.m.names[s.idx])
			}
		}
		tm.error(federror.DirectiveDefinitionInvalid,
			"Field %q has multiple @override directives: subgraphs %s are all trying to claim ownership. Only one subgraph can override a field.",
			coord, joinStrings(quoted(claiming), " and "))
		return overrides{from: map[int]override{}, by: map[int]int{}}
	}
	return ov
}

func collidingDirective(requires, provides string) string {
	switch {
	case requires != "":
		return "requires"
	case provides != "":
		return "provides"
	}
	return ""
}

func (m *merger) subgraphIndex(name string) int {
	for i, n := range m.names {
		if n == name {
			return i
		}
	}
	return -1
}

func (m *merger) isKeyField(idx int, typeName, fieldName string) bool {
	for _, key := range m.subgraphs[idx].Keys(typeName) {
		names, err := schema.FieldSetFieldNames(key.FieldSet)
		if err != nil {
			continue
		}
		for _, n := range names {
			if n == fieldName {
				return true
			}
		}
	}
	return false
}

// suggestSubgraphNames returns the known subgraph names close to name,
// closest first.
func suggestSubgraphNames(name string, candidates []string) []string {
	type suggestion struct {
		name     string
		distance int
	}
	threshold := int(math.Floor(float64(len(name))*0.4)) + 1
	lower := strings.ToLower(name)
	var found []suggestion
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(c))
		if lower == strings.ToLower(c) {
			d = 0
		}
		if d <= threshold {
			found = append(found, suggestion{name: c, distance: d})
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		return found[i].name < found[j].name
	})
	if len(found) > 5 {
		found = found[:5]
	}
	out := make([]string, len(found))
	for i, s := range found {
		out[i] = s.name
	}
	return out
}

func didYouMean(suggestions []string) string {
	switch len(suggestions) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf(" Did you mean %q?", suggestions[0])
	}
	return fmt.Sprintf(" Did you mean one of: %s?", strings.Join(quoted(suggestions), ", "))
}

// validateSharing rejects fields resolved by several subgraphs unless every
// one of them marks the field @shareable. Overridden declarations do not
// count as resolving the field.
func (tm *typeMerger) validateSharing(coord string, sources []fieldSource, external []bool, ov overrides) {
	var resolving, nonShareable, targetless []string
	for i, s := range sources {
		if external[i] || s.through != "" {
			continue
		}
		if _, overridden := ov.from[s.idx]; overridden {
			continue
		}
		name := tm.m.names[s.idx]
		resolving = append(resolving, name)
		sg := tm.m.subgraphs[s.idx]
		if sg.IsShareable(s.parent, s.def.Name) {
			continue
		}
		nonShareable = append(nonShareable, name)
		if meta := sg.Override(s.parent, s.def.Name); meta != nil && tm.m.subgraphIndex(meta.From) < 0 {
			targetless = append(targetless, name)
		}
	}
	if len(resolving) < 2 || len(nonShareable) == 0 {
		return
	}
	where := "all of them"
	if len(nonShareable) < len(resolving) {
		where = printSubgraphNames(nonShareable)
	}
	var note string
	if len(targetless) > 0 {
		note = fmt.Sprintf(" (please note that %q has an @override directive in %s that targets an unknown subgraph so this could be due to misspelling the @override(from:) argument)",
			coord, joinStrings(quoted(targetless), " and "))
	}
	tm.error(federror.InvalidFieldSharing,
		"Non-shareable field %q is resolved from multiple subgraphs: it is resolved from %s and defined as non-shareable in %s%s",
		coord, printSubgraphNames(resolving), where, note)
}

// joinFields builds the @join__field applications of a field. They are
// omitted when every subgraph defining the parent type resolves the field
// the same way.
func (tm *typeMerger) joinFields(sources []fieldSource, external []bool, allEqual bool, ov overrides) ast.DirectiveList {
	m := tm.m
	direct := 0
	needed := !allEqual
	for i, s := range sources {
		if s.through != "" {
			continue
		}
		direct++
		sg := m.subgraphs[s.idx]
		if external[i] || sg.Requires(s.parent, s.def.Name) != "" || sg.Provides(s.parent, s.def.Name) != "" {
			needed = true
		}
	}
	if direct == 0 {
		return ast.DirectiveList{{Name: "join__field"}}
	}
	if direct != len(tm.mt.sources) || len(ov.by) > 0 {
		needed = true
	}
	if !needed {
		return nil
	}

	var out ast.DirectiveList
	for i, s := range sources {
		if s.through != "" {
			continue
		}
		o, overridden := ov.from[s.idx]
		if overridden && o.label == "" && !o.used {
			continue
		}
		sg := m.subgraphs[s.idx]
		args := ast.ArgumentList{m.graphArg(s.idx)}
		if r := sg.Requires(s.parent, s.def.Name); r != "" {
			args = append(args, stringArg("requires", r))
		}
		if p := sg.Provides(s.parent, s.def.Name); p != "" {
			args = append(args, stringArg("provides", p))
		}
		if !allEqual {
			args = append(args, stringArg("type", s.def.Type.String()))
		}
		if external[i] {
			args = append(args, boolArg("external", true))
		}
		if from, ok := ov.by[s.idx]; ok {
			args = append(args, stringArg("override", m.names[from]))
			if label := ov.label(s.idx); label != "" {
				args = append(args, stringArg("overrideLabel", label))
			}
		}
		if overridden && o.label == "" && o.used {
			args = append(args, boolArg("usedOverridden", true))
		}
		out = append(out, &ast.Directive{Name: "join__field", Arguments: args})
	}
	return out
}
