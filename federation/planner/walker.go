package planner

import (
	"fmt"
	"strings"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/querygraph"
)

// maxJumpDepth bounds nested key jumps and @requires expansions.
const maxJumpDepth = 64

// walker plans the selections of one operation. Each planning function
// returns the selections the given step fetches at the current node;
// selections moved to other steps are added to those steps directly.
type walker struct {
	p        *Planner
	plan     *Plan
	entities map[string]*Step
	// watchers collect the entity steps touched while planning @requires
	// conditions.
	watchers []map[int]bool
	depth    int
}

func (w *walker) newStep(source string, typ StepType, parent position.Type, path []string) *Step {
	s := &Step{
		ID:           len(w.plan.Steps),
		SubGraph:     source,
		StepType:     typ,
		ParentType:   parent.Name,
		SelectionSet: operation.NewSelectionSet(w.p.api, parent),
		Path:         path,
	}
	w.plan.Steps = append(w.plan.Steps, s)
	return s
}

func (s *Step) add(sels ...operation.Selection) error {
	if len(sels) == 0 {
		return nil
	}
	ss, err := s.SelectionSet.With(sels...)
	if err != nil {
		return err
	}
	s.SelectionSet = ss
	return nil
}

func (s *Step) require(conditions *operation.SelectionSet) error {
	if conditions.IsEmpty() {
		return nil
	}
	ss, err := s.Requires.With(conditions.Selections()...)
	if err != nil {
		return err
	}
	s.Requires = ss
	return nil
}

func (s *Step) dependOn(id int) {
	if id == s.ID {
		return
	}
	for _, d := range s.DependsOn {
		if d == id {
			return
		}
	}
	s.DependsOn = append(s.DependsOn, id)
}

func (w *walker) selections(step *Step, node querygraph.NodeIndex, in *operation.SelectionSet, path []string, pctx querygraph.PathContext) ([]operation.Selection, error) {
	var out []operation.Selection
	for _, sel := range in.Selections() {
		var planned []operation.Selection
		var err error
		switch s := sel.(type) {
		case *operation.Field:
			planned, err = w.selection(step, node, s, path, pctx)
		case *operation.InlineFragment:
			planned, err = w.fragment(step, node, s, path, pctx)
		default:
			err = federror.Internalf("Unexpected selection %T: operations must be normalized before planning", sel)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, planned...)
	}
	return out, nil
}

// selection plans field at node.
func (w *walker) selection(step *Step, node querygraph.NodeIndex, field *operation.Field, path []string, pctx querygraph.PathContext) ([]operation.Selection, error) {
	if field.Position.IsTypename() {
		return []operation.Selection{field}, nil
	}
	e, err := w.p.graph.EdgeForField(node, field)
	if err != nil {
		return nil, err
	}
	switch {
	case e == nil:
		return w.jump(step, node, field, path, pctx)
	case !e.Conditions.IsEmpty():
		return w.requires(step, node, e, field, path, pctx)
	}
	sel, err := w.collect(step, e, field, path, pctx)
	if err != nil {
		return nil, err
	}
	return []operation.Selection{sel}, nil
}

// collect plans the subselection of field below the tail of e.
func (w *walker) collect(step *Step, e *querygraph.Edge, field *operation.Field, path []string, pctx querygraph.PathContext) (operation.Selection, error) {
	if field.SelectionSet() == nil {
		return field, nil
	}
	childPath := appendPath(path, field.ResponseName())
	sels, err := w.selections(step, e.Tail, field.SelectionSet(), childPath, pctx.WithConditionals(field.Directives()))
	if err != nil {
		return nil, err
	}
	parent := field.SelectionSet().Type()
	sub, err := operation.NewSelectionSet(w.p.api, parent).With(sels...)
	if err != nil {
		return nil, err
	}
	if sub.IsEmpty() {
		// Everything below moved to other steps; the object must still be
		// fetched for the response to hold it.
		if sub, err = sub.With(operation.NewField(parent.Typename(), "", nil, nil, nil)); err != nil {
			return nil, err
		}
	}
	return field.WithSelectionSet(sub), nil
}

func (w *walker) fragment(step *Step, node querygraph.NodeIndex, frag *operation.InlineFragment, path []string, pctx querygraph.PathContext) ([]operation.Selection, error) {
	target := node
	if frag.TypeCondition != "" && frag.TypeCondition != w.p.mustNode(node).Type.TypeName() {
		e, err := w.p.graph.EdgeForInlineFragment(node, frag)
		if err != nil {
			return nil, err
		}
		if e == nil {
			// The subgraph never returns objects of that type here.
			return nil, nil
		}
		target = e.Tail
	}
	sels, err := w.selections(step, target, frag.SelectionSet(), path, pctx.WithConditionals(frag.Directives()))
	if err != nil || len(sels) == 0 {
		return nil, err
	}
	body, err := operation.NewSelectionSet(w.p.api, frag.SelectionSet().Type()).With(sels...)
	if err != nil {
		return nil, err
	}
	return []operation.Selection{frag.WithSelectionSet(body)}, nil
}

// jump plans field, which the subgraph of node cannot resolve, in the
// entity step of the cheapest subgraph reachable by key that can. The
// returned selections are the key fields the current step must fetch.
func (w *walker) jump(step *Step, node querygraph.NodeIndex, field *operation.Field, path []string, pctx querygraph.PathContext) ([]operation.Selection, error) {
	w.depth++
	defer func() { w.depth-- }()
	if w.depth > maxJumpDepth {
		return nil, federror.Internalf("Planning field %q at path %q exceeded %d nested jumps", field.Position, pathString(path), maxJumpDepth)
	}

	paths, err := querygraph.KeyChasingPaths(w.p.graph, node, w.p.resolver, pctx, nil, nil)
	if err != nil {
		return nil, err
	}
	for _, kp := range paths {
		e, err := w.p.graph.EdgeForField(kp.Node, field)
		if err != nil {
			return nil, err
		}
		if e == nil {
			continue
		}
		// Conditions of a @requires field are fetched along with the key
		// of the last jump.
		var extra *operation.SelectionSet
		if !e.Conditions.IsEmpty() {
			extra = e.Conditions
		}
		local, target, err := w.follow(step, node, kp.Edges, extra, path, pctx)
		if err != nil {
			return nil, err
		}
		var sels []operation.Selection
		if extra != nil {
			var sel operation.Selection
			sel, err = w.collect(target, e, field, path, pctx)
			sels = []operation.Selection{sel}
		} else {
			sels, err = w.selection(target, kp.Node, field, path, pctx)
		}
		if err != nil {
			return nil, err
		}
		if err := target.add(sels...); err != nil {
			return nil, err
		}
		return local, nil
	}

	if n := w.p.mustNode(node); n.Type.Type.Kind.IsAbstract() {
		return w.downcast(step, node, field, path, pctx)
	}
	return nil, federror.New(federror.SatisfiabilityError,
		"Cannot find a subgraph resolving field %q at path %q", field.Position, pathString(path))
}

// follow creates or reuses the entity steps along edges, starting from step
// at node. The last step also receives extra as requirements. It returns the
// conditions step fetches locally and the last step.
func (w *walker) follow(step *Step, node querygraph.NodeIndex, edges []querygraph.EdgeIndex, extra *operation.SelectionSet, path []string, pctx querygraph.PathContext) ([]operation.Selection, *Step, error) {
	var local []operation.Selection
	cur, curNode := step, node
	for i, ei := range edges {
		e, err := w.p.graph.Edge(ei)
		if err != nil {
			return nil, nil, err
		}
		last := i == len(edges)-1 && extra != nil

		touched := make(map[int]bool)
		w.watchers = append(w.watchers, touched)
		conds, err := w.selections(cur, curNode, e.Conditions, path, pctx)
		if err == nil && last {
			var required []operation.Selection
			required, err = w.selections(cur, curNode, extra, path, pctx)
			conds = append(conds, required...)
		}
		w.watchers = w.watchers[:len(w.watchers)-1]
		if err != nil {
			return nil, nil, err
		}

		if cur == step {
			local = append(local, conds...)
		} else if err := cur.add(conds...); err != nil {
			return nil, nil, err
		}
		next, err := w.entityStep(cur, e, path)
		if err != nil {
			return nil, nil, err
		}
		for id := range touched {
			next.dependOn(id)
		}
		if err := next.require(e.Conditions); err != nil {
			return nil, nil, err
		}
		if last {
			if err := next.require(extra); err != nil {
				return nil, nil, err
			}
		}
		cur, curNode = next, e.Tail
	}
	return local, cur, nil
}

// requires plans field, whose edge e carries @requires conditions, in an
// entity step on the same subgraph fed with the key and the required fields.
func (w *walker) requires(step *Step, node querygraph.NodeIndex, e *querygraph.Edge, field *operation.Field, path []string, pctx querygraph.PathContext) ([]operation.Selection, error) {
	w.depth++
	defer func() { w.depth-- }()
	if w.depth > maxJumpDepth {
		return nil, federror.Internalf("Planning field %q at path %q exceeded %d nested jumps", field.Position, pathString(path), maxJumpDepth)
	}

	n := w.p.mustNode(node)
	var key *querygraph.Edge
	for _, ke := range w.p.graph.OutEdgesWithFederationSelfEdges(node) {
		if ke.Transition.Kind != querygraph.KeyResolution || w.p.graph.EdgeTail(ke).Source != n.Source {
			continue
		}
		res, err := w.p.resolver.Resolve(ke, pctx, nil, nil)
		if err != nil {
			return nil, err
		}
		if res.Satisfied {
			key = ke
			break
		}
	}
	if key == nil {
		return nil, federror.New(federror.SatisfiabilityError,
			"Cannot satisfy @requires of field %q: type %q has no usable key in subgraph %q", field.Position, n.Type.TypeName(), n.Source)
	}

	touched := make(map[int]bool)
	w.watchers = append(w.watchers, touched)
	keySels, err := w.selections(step, node, key.Conditions, path, pctx)
	if err != nil {
		return nil, err
	}
	reqSels, err := w.selections(step, node, e.Conditions, path, pctx)
	if err != nil {
		return nil, err
	}
	w.watchers = w.watchers[:len(w.watchers)-1]

	entity, err := w.entityStep(step, key, path)
	if err != nil {
		return nil, err
	}
	for id := range touched {
		entity.dependOn(id)
	}
	if err := entity.require(key.Conditions); err != nil {
		return nil, err
	}
	if err := entity.require(e.Conditions); err != nil {
		return nil, err
	}
	sel, err := w.collect(entity, e, field, path, pctx)
	if err != nil {
		return nil, err
	}
	if err := entity.add(sel); err != nil {
		return nil, err
	}
	return append(keySels, reqSels...), nil
}

// downcast plans field on each runtime type of an abstract node.
func (w *walker) downcast(step *Step, node querygraph.NodeIndex, field *operation.Field, path []string, pctx querygraph.PathContext) ([]operation.Selection, error) {
	var out []operation.Selection
	for _, e := range w.p.graph.OutEdges(node) {
		if e.Transition.Kind != querygraph.Downcast {
			continue
		}
		sels, err := w.selection(step, e.Tail, field, path, pctx)
		if err != nil {
			return nil, err
		}
		if len(sels) == 0 {
			continue
		}
		t := w.apiType(e.Transition.ToType)
		body, err := operation.NewSelectionSet(w.p.api, t).With(sels...)
		if err != nil {
			return nil, err
		}
		out = append(out, operation.NewInlineFragment(field.Position.Parent, t.Name, nil, body))
	}
	if len(out) == 0 {
		return nil, federror.New(federror.SatisfiabilityError,
			"Cannot find a subgraph resolving field %q at path %q", field.Position, pathString(path))
	}
	return out, nil
}

// entityStep returns the step fetching the tail of e for the objects at
// path fetched by parent, creating it on first use.
func (w *walker) entityStep(parent *Step, e *querygraph.Edge, path []string) (*Step, error) {
	key := fmt.Sprintf("%d|%s|%d", parent.ID, strings.Join(path, "."), e.Tail)
	s, ok := w.entities[key]
	if !ok {
		tail := w.p.graph.EdgeTail(e)
		t := w.apiType(tail.Type.Type)
		if e.Transition.Kind == querygraph.RootTypeResolution {
			s = w.newStep(tail.Source, StepTypeQuery, t, appendPath(path))
		} else {
			s = w.newStep(tail.Source, StepTypeEntity, t, appendPath(path))
			s.Requires = operation.NewSelectionSet(w.p.api, t)
		}
		s.dependOn(parent.ID)
		w.entities[key] = s
	}
	for _, touched := range w.watchers {
		touched[s.ID] = true
	}
	return s, nil
}

// apiType maps a subgraph type to its supergraph counterpart, which differs
// in kind for @interfaceObject types.
func (w *walker) apiType(t position.Type) position.Type {
	if pt, err := w.p.api.TypePosition(t.Name); err == nil {
		return pt
	}
	return t
}

func appendPath(path []string, elems ...string) []string {
	out := make([]string, 0, len(path)+len(elems))
	out = append(out, path...)
	return append(out, elems...)
}

func pathString(path []string) string {
	if len(path) == 0 {
		return "<root>"
	}
	return strings.Join(path, ".")
}
