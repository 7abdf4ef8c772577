package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/n9te9/go-graphql-federation-core/federation/position"
	"github.com/n9te9/go-graphql-federation-core/federation/querygraph"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "github.com/n9te9/go-graphql-federation-core/federation/planner"

// StepType indicates the type of a step.
type StepType int

const (
	// StepTypeQuery represents a step that resolves root fields of an operation.
	StepTypeQuery StepType = iota
	// StepTypeEntity represents a step that resolves fields of an entity.
	StepTypeEntity
)

func (t StepType) String() string {
	if t == StepTypeEntity {
		return "Entity"
	}
	return "Query"
}

// Step represents a unit of request to a subgraph.
type Step struct {
	ID         int
	SubGraph   string
	StepType   StepType
	ParentType string
	// SelectionSet is what the step fetches, on ParentType.
	SelectionSet *operation.SelectionSet
	// Path is the response path of the objects an entity step resolves.
	// Empty for root steps.
	Path      []string
	DependsOn []int
	// Requires is the representation an entity step receives: the key
	// fields plus any @requires conditions. Nil for root steps.
	Requires *operation.SelectionSet
}

func (s *Step) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step %d [%s] %s on %s", s.ID, s.SubGraph, s.StepType, s.ParentType)
	if len(s.Path) > 0 {
		fmt.Fprintf(&b, " at %s", strings.Join(s.Path, "."))
	}
	if len(s.DependsOn) > 0 {
		deps := make([]string, len(s.DependsOn))
		for i, d := range s.DependsOn {
			deps[i] = fmt.Sprint(d)
		}
		fmt.Fprintf(&b, " (depends on %s)", strings.Join(deps, ", "))
	}
	if s.Requires != nil {
		fmt.Fprintf(&b, " requires %s", s.Requires)
	}
	fmt.Fprintf(&b, ": %s", s.SelectionSet)
	return b.String()
}

// Plan represents an operation execution plan.
type Plan struct {
	ID              uuid.UUID
	OperationKind   position.RootKind
	Steps           []*Step
	RootStepIndexes []int
}

func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s plan %s\n", p.OperationKind, p.ID)
	for _, s := range p.Steps {
		b.WriteString("  ")
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}

type options struct {
	logger             *zap.Logger
	conditionCacheSize int
}

// Option configures a Planner.
type Option func(*options)

// WithLogger sets the logger used while planning.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithConditionCacheSize sets the number of memoized condition resolutions.
func WithConditionCacheSize(size int) Option {
	return func(o *options) { o.conditionCacheSize = size }
}

// Planner generates execution plans over a federated query graph. It is
// safe for concurrent use.
type Planner struct {
	graph    *querygraph.QueryGraph
	api      *schema.Schema
	resolver *querygraph.CachingResolver
	logger   *zap.Logger
}

// New creates a Planner for g, which must be a federated query graph.
func New(g *querygraph.QueryGraph, opts ...Option) (*Planner, error) {
	o := options{logger: zap.NewNop(), conditionCacheSize: querygraph.DefaultConditionCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if g == nil || !g.IsFederated() {
		return nil, federror.Internalf("Query plans can only be built over a federated query graph")
	}
	api, err := g.Schema()
	if err != nil {
		return nil, err
	}
	resolver, err := querygraph.NewCachingResolver(g, querygraph.WithCacheSize(o.conditionCacheSize))
	if err != nil {
		return nil, err
	}
	return &Planner{graph: g, api: api, resolver: resolver, logger: o.logger}, nil
}

// Plan builds the execution plan of op. Root fields of queries are grouped
// by subgraph; mutation fields are grouped only while consecutive fields go
// to the same subgraph, and each mutation step depends on the previous one.
// Fields a subgraph cannot resolve are fetched by entity steps reached
// through @key jumps.
func (p *Planner) Plan(ctx context.Context, op *operation.Operation) (*Plan, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "planner.Plan")
	defer span.End()

	plan := &Plan{ID: uuid.New(), OperationKind: op.Kind}
	span.SetAttributes(
		attribute.String("plan.id", plan.ID.String()),
		attribute.String("plan.operation", op.Kind.String()),
	)
	logger := p.logger.With(zap.String("plan_id", plan.ID.String()))

	if err := p.plan(ctx, op, plan); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug("planning failed", zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("plan.steps", len(plan.Steps)))
	logger.Debug("operation planned",
		zap.String("operation", op.Name),
		zap.Int("steps", len(plan.Steps)),
	)
	return plan, nil
}

func (p *Planner) plan(ctx context.Context, op *operation.Operation, plan *Plan) error {
	if op.SelectionSet.IsEmpty() {
		return federror.New(federror.InvalidGraphQL, "Operation %q has an empty selection set", op.Name)
	}
	root, ok := p.graph.Root(op.Kind)
	if !ok {
		return federror.New(federror.SatisfiabilityError, "The supergraph has no %s root type", op.Kind)
	}

	w := &walker{
		p:        p,
		plan:     plan,
		entities: make(map[string]*Step),
	}
	rootType := op.SelectionSet.Type()
	var last *Step
	for _, sel := range op.SelectionSet.Selections() {
		if err := ctx.Err(); err != nil {
			return err
		}
		field, frag, err := rootSelection(sel)
		if err != nil {
			return err
		}
		if field.Position.IsTypename() || strings.HasPrefix(field.Position.Name, "__") {
			continue
		}

		subRoot, err := p.rootFor(root, field, plan, op.Kind)
		if err != nil {
			return err
		}
		source := p.mustNode(subRoot).Source

		var step *Step
		switch {
		case op.Kind == position.Mutation:
			if last != nil && last.SubGraph == source {
				step = last
			}
		default:
			for _, i := range plan.RootStepIndexes {
				if plan.Steps[i].SubGraph == source {
					step = plan.Steps[i]
				}
			}
		}
		if step == nil {
			step = w.newStep(source, StepTypeQuery, rootType, nil)
			if op.Kind == position.Mutation && last != nil {
				step.DependsOn = append(step.DependsOn, last.ID)
			}
			plan.RootStepIndexes = append(plan.RootStepIndexes, step.ID)
		}
		last = step

		pctx := querygraph.PathContext{}
		if frag != nil {
			pctx = pctx.WithConditionals(frag.Directives())
		}
		planned, err := w.selection(step, subRoot, field, nil, pctx)
		if err != nil {
			return err
		}
		if frag != nil && len(planned) > 0 {
			body, err := operation.NewSelectionSet(p.api, frag.SelectionSet().Type()).With(planned...)
			if err != nil {
				return err
			}
			planned = []operation.Selection{frag.WithSelectionSet(body)}
		}
		if err := step.add(planned...); err != nil {
			return err
		}
	}
	if len(plan.Steps) == 0 {
		return federror.New(federror.InvalidGraphQL, "Operation %q selects no field a subgraph can resolve", op.Name)
	}
	// Sibling __typename selections folded by normalization are fetched by
	// the step fetching the field they were folded into.
	for _, s := range plan.Steps {
		ss, err := s.SelectionSet.AddBackTypenameInAttachments()
		if err != nil {
			return err
		}
		s.SelectionSet = ss
	}
	return nil
}

// rootSelection unwraps the root selections the planner accepts: fields,
// possibly inside a single conditional inline fragment.
func rootSelection(sel operation.Selection) (*operation.Field, *operation.InlineFragment, error) {
	switch s := sel.(type) {
	case *operation.Field:
		return s, nil, nil
	case *operation.InlineFragment:
		fields := s.SelectionSet().Fields()
		if len(fields) != 1 || s.SelectionSet().Len() != 1 {
			return nil, nil, federror.Internalf("Root inline fragments must hold exactly one field after normalization, got %s", s.SelectionSet())
		}
		return fields[0], s, nil
	}
	return nil, nil, federror.Internalf("Unexpected root selection %T: operations must be normalized before planning", sel)
}

// rootFor picks the subgraph root resolving field. Subgraphs that already
// have a step in the plan are preferred.
func (p *Planner) rootFor(root querygraph.NodeIndex, field *operation.Field, plan *Plan, kind position.RootKind) (querygraph.NodeIndex, error) {
	var candidates []querygraph.NodeIndex
	for _, e := range p.graph.OutEdges(root) {
		if e.Transition.Kind != querygraph.SubgraphEnteringTransition {
			continue
		}
		fe, err := p.graph.EdgeForField(e.Tail, field)
		if err != nil {
			return 0, err
		}
		if fe != nil {
			candidates = append(candidates, e.Tail)
		}
	}
	if len(candidates) == 0 {
		return 0, federror.New(federror.SatisfiabilityError, "No subgraph can resolve root field %q of the %s type", field.Position.Name, kind)
	}
	for _, c := range candidates {
		source := p.mustNode(c).Source
		for _, i := range plan.RootStepIndexes {
			if plan.Steps[i].SubGraph == source {
				return c, nil
			}
		}
	}
	return candidates[0], nil
}

func (p *Planner) mustNode(i querygraph.NodeIndex) *querygraph.Node {
	n, err := p.graph.Node(i)
	if err != nil {
		panic(err)
	}
	return n
}
