package composition

import (
	"context"
	"fmt"
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
	"github.com/vektah/gqlparser/v2/ast"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// typeSource is the definition of a type in one subgraph.
type typeSource struct {
	idx int
	def *ast.Definition
	// name is the type name in the subgraph. It differs from the merged name
	// for root types declared under a custom name.
	name string
}

// mergedType is the result of merging one type. Each worker writes only its
// own slot.
type mergedType struct {
	name    string
	kind    ast.DefinitionKind
	sources []typeSource
	def     *ast.Definition
	// interfaces records, per interface, the subgraphs declaring the
	// implementation.
	interfaces map[string][]int
	// fieldSubgraphs records, per field, the subgraphs declaring it.
	fieldSubgraphs map[string][]int
	owners         map[string][]string
	hints          []federror.Hint
}

type usage struct {
	input, output bool
}

type merger struct {
	subgraphs []*schema.Subgraph
	names     []string
	graphs    []string
	o         options
	logger    *zap.Logger
	errs      *federror.Accumulator

	order   []string
	sources map[string][]typeSource
	// interfaceObjects maps an interface to the subgraphs declaring it as an
	// @interfaceObject type.
	interfaceObjects map[string][]int
	enumUsage        map[string]usage
	// implementers maps an abstract type to its subtypes in any subgraph.
	implementers map[string]map[string]bool
	// overrides maps "Type.field" to the subgraphs overriding it.
	overrides map[string][]int
	// rootNames maps a subgraph root type name to the default root name.
	rootNames []map[string]string
}

func newMerger(subgraphs []*schema.Subgraph, o options, logger *zap.Logger) *merger {
	m := &merger{
		subgraphs:        subgraphs,
		names:            make([]string, len(subgraphs)),
		o:                o,
		logger:           logger,
		errs:             federror.NewAccumulator(),
		sources:          make(map[string][]typeSource),
		interfaceObjects: make(map[string][]int),
		enumUsage:        make(map[string]usage),
		implementers:     make(map[string]map[string]bool),
		overrides:        make(map[string][]int),
		rootNames:        make([]map[string]string, len(subgraphs)),
	}
	for i, sg := range subgraphs {
		m.names[i] = sg.Name
	}
	m.graphs = graphEnumValues(m.names)

	for i, sg := range subgraphs {
		m.rootNames[i] = make(map[string]string)
		for _, kind := range position.RootKinds() {
			if def, ok := sg.Schema.RootType(kind); ok {
				m.rootNames[i][def.Name] = defaultRootName(kind)
			}
		}
		for _, def := range sg.Schema.Types() {
			if isFederationType(def.Name) {
				continue
			}
			name := m.mergedName(i, def.Name)
			if _, ok := m.sources[name]; !ok {
				m.order = append(m.order, name)
			}
			m.sources[name] = append(m.sources[name], typeSource{idx: i, def: def, name: def.Name})
			m.collectUsage(i, def)
		}
		for name := range sg.InterfaceObjectTypes() {
			m.interfaceObjects[name] = append(m.interfaceObjects[name], i)
		}
	}
	return m
}

func defaultRootName(kind position.RootKind) string {
	switch kind {
	case position.Mutation:
		return "Mutation"
	case position.Subscription:
		return "Subscription"
	}
	return "Query"
}

// mergedName returns the supergraph name of a type of subgraph idx.
func (m *merger) mergedName(idx int, name string) string {
	if root, ok := m.rootNames[idx][name]; ok {
		return root
	}
	return name
}

func isFederationType(name string) bool {
	switch name {
	case "_Any", "_Entity", "_Service", "FieldSet", "_FieldSet":
		return true
	}
	return strings.HasPrefix(name, "link__") ||
		strings.HasPrefix(name, "join__") ||
		strings.HasPrefix(name, "federation__")
}

func isFederationField(typeName, fieldName string) bool {
	return typeName == "Query" && (fieldName == "_entities" || fieldName == "_service")
}

// collectUsage records where enums are used, subtype relations and field
// overrides.
func (m *merger) collectUsage(idx int, def *ast.Definition) {
	sg := m.subgraphs[idx]
	name := m.mergedName(idx, def.Name)
	markInput := func(t *ast.Type) {
		u := m.enumUsage[t.Name()]
		u.input = true
		m.enumUsage[t.Name()] = u
	}

	switch def.Kind {
	case ast.Object, ast.Interface:
		for _, iface := range def.Interfaces {
			m.addImplementer(iface, name)
		}
		for _, f := range schema.Fields(def) {
			u := m.enumUsage[f.Type.Name()]
			u.output = true
			m.enumUsage[f.Type.Name()] = u
			for _, arg := range f.Arguments {
				markInput(arg.Type)
			}
			if sg.Override(def.Name, f.Name) != nil {
				coord := name + "." + f.Name
				m.overrides[coord] = append(m.overrides[coord], idx)
			}
		}
	case ast.InputObject:
		for _, f := range def.Fields {
			markInput(f.Type)
		}
	case ast.Union:
		for _, member := range def.Types {
			m.addImplementer(name, member)
		}
	}
}

func (m *merger) addImplementer(super, sub string) {
	if m.implementers[super] == nil {
		m.implementers[super] = make(map[string]bool)
	}
	m.implementers[super][sub] = true
}

// mergeTypes merges every type concurrently. Errors are collected in m.errs
// keyed by the type's position in m.order, so their order does not depend
// on scheduling.
func (m *merger) mergeTypes(ctx context.Context) ([]*mergedType, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "composition.mergeTypes")
	defer span.End()
	span.SetAttributes(attribute.Int("composition.types", len(m.order)))

	out := make([]*mergedType, len(m.order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.o.workers)
	for i, name := range m.order {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mt, err := m.mergeType(i, name)
			if err != nil {
				return err
			}
			out[i] = mt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	m.logger.Debug("merged types", zap.Int("types", len(out)), zap.Int("errors", m.errs.Len()))
	return out, nil
}

// mergeType merges the definitions of name. Composition errors go to
// m.errs; the returned error is reserved for internal failures.
func (m *merger) mergeType(seq int, name string) (*mergedType, error) {
	sources := m.sources[name]
	mt := &mergedType{
		name:           name,
		sources:        sources,
		interfaces:     make(map[string][]int),
		fieldSubgraphs: make(map[string][]int),
		owners:         make(map[string][]string),
	}
	tm := &typeMerger{m: m, seq: seq, mt: mt}

	kind, ok := tm.checkKinds()
	if !ok {
		return mt, nil
	}
	mt.kind = kind
	mt.def = &ast.Definition{
		Kind:        kind,
		Name:        name,
		Description: tm.mergeDescription(name, descriptions(sources)),
	}

	var err error
	switch kind {
	case ast.Object:
		err = tm.mergeObject()
	case ast.Interface:
		err = tm.mergeInterface()
	case ast.Union:
		tm.mergeUnion()
	case ast.Enum:
		tm.mergeEnum()
	case ast.InputObject:
		tm.mergeInput()
	case ast.Scalar:
	default:
		return nil, federror.Internalf("Unexpected kind %s for type %q", kind, name)
	}
	if err != nil {
		return nil, err
	}
	mt.def.Directives = append(tm.joinTypes(), mt.def.Directives...)
	mt.def.Directives = append(mt.def.Directives, m.appliedDirectives(typeDirectiveSources(sources))...)
	return mt, nil
}

// typeMerger merges one type.
type typeMerger struct {
	m   *merger
	seq int
	mt  *mergedType
}

func (tm *typeMerger) error(code federror.Code, format string, args ...any) {
	tm.m.errs.Add(tm.seq, federror.New(code, format, args...))
}

func (tm *typeMerger) hint(code federror.HintCode, element, format string, args ...any) {
	tm.mt.hints = append(tm.mt.hints, tm.m.o.catalog.NewHint(code, element, format, args...))
}

// sourceKind is the kind a source contributes: @interfaceObject types
// stand for an interface.
func (tm *typeMerger) sourceKind(s typeSource) ast.DefinitionKind {
	if s.def.Kind == ast.Object && tm.m.subgraphs[s.idx].IsInterfaceObject(s.name) {
		return ast.Interface
	}
	return s.def.Kind
}

func (tm *typeMerger) checkKinds() (ast.DefinitionKind, bool) {
	sources := tm.mt.sources
	kind := tm.sourceKind(sources[0])
	consistent := true
	values := make([]sourceValue, len(sources))
	for i, s := range sources {
		k := tm.sourceKind(s)
		if k != kind {
			consistent = false
		}
		values[i] = sourceValue{subgraph: tm.m.names[s.idx], value: kindName(k)}
	}
	if !consistent {
		tm.error(federror.TypeKindMismatch, "Type %q has mismatched kind: it is defined as %s",
			tm.mt.name, describeMismatch(values[0].value, values, func(v string) string { return v }))
		return kind, false
	}
	if kind == ast.Interface && len(tm.m.interfaceObjects[tm.mt.name]) == len(sources) {
		names := make([]string, len(sources))
		for i, s := range sources {
			names[i] = tm.m.names[s.idx]
		}
		tm.error(federror.InterfaceObjectUsageError,
			"Type %q is declared with @interfaceObject in all the subgraphs in which is is defined (it is defined in %s but should be defined as an interface in at least one subgraph)",
			tm.mt.name, printSubgraphNames(names))
		return kind, false
	}
	return kind, true
}

func kindName(k ast.DefinitionKind) string {
	switch k {
	case ast.Object:
		return "Object Type"
	case ast.Interface:
		return "Interface Type"
	case ast.Union:
		return "Union Type"
	case ast.Enum:
		return "Enum Type"
	case ast.Scalar:
		return "Scalar Type"
	case ast.InputObject:
		return "Input Object Type"
	}
	return string(k)
}

type described struct {
	idx         int
	description string
}

func descriptions(sources []typeSource) []described {
	out := make([]described, len(sources))
	for i, s := range sources {
		out[i] = described{idx: s.idx, description: s.def.Description}
	}
	return out
}

// mergeDescription keeps the first non-empty description and hints when
// subgraphs disagree.
func (tm *typeMerger) mergeDescription(element string, sources []described) string {
	var chosen string
	var values []sourceValue
	distinct := make(map[string]bool)
	for _, s := range sources {
		d := strings.TrimSpace(s.description)
		if d == "" {
			continue
		}
		if chosen == "" {
			chosen = s.description
		}
		distinct[d] = true
		values = append(values, sourceValue{subgraph: tm.m.names[s.idx], value: d})
	}
	if len(distinct) > 1 {
		tm.hint(federror.InconsistentDescription, element,
			"Element %q has inconsistent descriptions across subgraphs. The supergraph will use description (from %s):\n%s",
			element, printSubgraphNames(subgraphsWith(values, strings.TrimSpace(chosen))), indentLines(strings.TrimSpace(chosen)))
	}
	return chosen
}

func subgraphsWith(values []sourceValue, value string) []string {
	var out []string
	for _, v := range values {
		if v.value == value {
			out = append(out, v.subgraph)
		}
	}
	return out
}

func indentLines(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

type directiveSource struct {
	idx        int
	directives ast.DirectiveList
}

func typeDirectiveSources(sources []typeSource) []directiveSource {
	out := make([]directiveSource, len(sources))
	for i, s := range sources {
		out[i] = directiveSource{idx: s.idx, directives: s.def.Directives}
	}
	return out
}

// appliedDirectives merges the directive applications that survive in the
// supergraph: @tag, @inaccessible, @deprecated, @specifiedBy and the
// directives a subgraph lists in @composeDirective. Identical applications
// are kept once, in first-seen order.
func (m *merger) appliedDirectives(sources []directiveSource) ast.DirectiveList {
	var out ast.DirectiveList
	seen := make(map[string]bool)
	for _, s := range sources {
		for _, d := range s.directives {
			if !m.isMergedDirective(s.idx, d.Name) {
				continue
			}
			key := d.Name
			if d.Name == "tag" || m.subgraphs[s.idx].IsComposeDirective(d.Name) {
				key = directiveString(d)
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, copyDirective(d))
		}
	}
	return out
}

func (m *merger) isMergedDirective(idx int, name string) bool {
	switch name {
	case "tag", "inaccessible", "deprecated", "specifiedBy":
		return true
	}
	return m.subgraphs[idx].IsComposeDirective(name)
}

func directiveString(d *ast.Directive) string {
	var b strings.Builder
	b.WriteString("@" + d.Name)
	if len(d.Arguments) > 0 {
		args := make([]string, len(d.Arguments))
		for i, a := range d.Arguments {
			args[i] = fmt.Sprintf("%s: %s", a.Name, a.Value.String())
		}
		b.WriteString("(" + strings.Join(args, ", ") + ")")
	}
	return b.String()
}

func copyDirective(d *ast.Directive) *ast.Directive {
	args := make(ast.ArgumentList, len(d.Arguments))
	for i, a := range d.Arguments {
		args[i] = &ast.Argument{Name: a.Name, Value: a.Value}
	}
	return &ast.Directive{Name: d.Name, Arguments: args}
}

func hasInaccessible(directives ast.DirectiveList) bool {
	return directives.ForName("inaccessible") != nil
}

// hints gathers the hints of every type in type order.
func (m *merger) hints(merged []*mergedType) []federror.Hint {
	var out []federror.Hint
	for _, mt := range merged {
		out = append(out, mt.hints...)
	}
	return out
}
