// Package composition merges subgraph schemas into a supergraph schema
// carrying join metadata, and validates that the result can be served by
// the subgraphs.
package composition

import (
	"context"
	"runtime"

	"github.com/google/uuid"
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
	"github.com/n9te9/go-graphql-federation-core/federation/querygraph"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
	"github.com/n9te9/go-graphql-federation-core/federation/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "github.com/n9te9/go-graphql-federation-core/federation/composition"

// Option configures Compose.
type Option func(*options)

type options struct {
	logger             *zap.Logger
	catalog            *federror.Catalog
	workers            int
	maxPaths           int
	conditionCacheSize int
	skipSatisfiability bool
	forQueryPlanning   bool
}

// WithLogger sets the logger used during composition.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCatalog sets the catalog used to rank hints.
func WithCatalog(c *federror.Catalog) Option {
	return func(o *options) {
		if c != nil {
			o.catalog = c
		}
	}
}

// WithWorkers bounds the number of types merged concurrently. Non-positive
// values keep the default of one worker per CPU.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMaxValidationSubgraphPaths is passed on to the satisfiability check.
func WithMaxValidationSubgraphPaths(n int) Option {
	return func(o *options) {
		o.maxPaths = n
	}
}

// WithConditionCacheSize sets the size of the condition resolution memo
// used by the satisfiability check.
func WithConditionCacheSize(n int) Option {
	return func(o *options) {
		o.conditionCacheSize = n
	}
}

// SkipSatisfiability disables the satisfiability check.
func SkipSatisfiability(skip bool) Option {
	return func(o *options) {
		o.skipSatisfiability = skip
	}
}

// ForQueryPlanning controls the extra abstract type edges of the federated
// query graph returned in Result.QueryGraph.
func ForQueryPlanning(enabled bool) Option {
	return func(o *options) {
		o.forQueryPlanning = enabled
	}
}

// Result is a successful composition.
type Result struct {
	// ID identifies the composition run in logs and traces.
	ID uuid.UUID
	// SupergraphSDL is the printed supergraph schema, join metadata included.
	SupergraphSDL string
	Supergraph    *schema.Schema
	// APISchema is the schema exposed to clients: no join metadata and no
	// @inaccessible elements.
	APISchema *schema.Schema
	// QueryGraph is the federated query graph of the subgraphs.
	QueryGraph *querygraph.QueryGraph
	Hints      []federror.Hint
	// FieldOwners maps "Type.field" to the subgraphs resolving the field.
	FieldOwners map[string][]string
	// InterfaceObjectTypes names the interfaces some subgraph declares as an
	// @interfaceObject. Operations are normalized with it before planning.
	InterfaceObjectTypes map[string]bool
}

// FieldOwnersOf returns the subgraphs resolving typeName.fieldName, in
// subgraph order.
func (r *Result) FieldOwnersOf(typeName, fieldName string) []string {
	return r.FieldOwners[typeName+"."+fieldName]
}

// Compose merges subgraphs into a supergraph. On failure the returned error
// is a *federror.MultipleErrors holding every problem found, or the context
// error when ctx is done first.
func Compose(ctx context.Context, subgraphs []*schema.Subgraph, opts ...Option) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "composition.Compose")
	defer span.End()

	o := options{
		logger:           zap.NewNop(),
		workers:          runtime.NumCPU(),
		forQueryPlanning: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalog == nil {
		o.catalog = federror.NewCatalog()
	}

	id := uuid.New()
	logger := o.logger.With(zap.String("composition_id", id.String()))
	span.SetAttributes(
		attribute.String("composition.id", id.String()),
		attribute.Int("composition.subgraphs", len(subgraphs)),
	)

	res, err := compose(ctx, subgraphs, o, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Info("composition failed", zap.Int("errors", len(federror.Flatten(err))))
		return nil, err
	}
	res.ID = id
	span.SetAttributes(attribute.Int("composition.hints", len(res.Hints)))
	logger.Info("composition succeeded",
		zap.Int("types", len(res.Supergraph.Types())),
		zap.Int("hints", len(res.Hints)),
	)
	return res, nil
}

func compose(ctx context.Context, subgraphs []*schema.Subgraph, o options, logger *zap.Logger) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateSubgraphs(subgraphs); err != nil {
		return nil, err
	}

	m := newMerger(subgraphs, o, logger)
	merged, err := m.mergeTypes(ctx)
	if err != nil {
		return nil, err
	}
	m.checkMerged(merged)
	if m.errs.Len() > 0 {
		return nil, m.errs.Result()
	}

	sdl, err := m.printSupergraph(merged)
	if err != nil {
		return nil, err
	}
	supergraph, err := schema.Parse("supergraph", sdl)
	if err != nil {
		return nil, federror.Internalf("Composed supergraph is invalid: %v", err).WithCause(err)
	}
	apiSDL, err := m.printAPISchema(merged)
	if err != nil {
		return nil, err
	}
	api, err := schema.Parse("api", apiSDL)
	if err != nil {
		return nil, federror.Internalf("Composed API schema is invalid: %v", err).WithCause(err)
	}

	fed, err := querygraph.BuildFederatedQueryGraph(ctx, api, subgraphs,
		querygraph.WithLogger(logger),
		querygraph.ForQueryPlanning(o.forQueryPlanning),
	)
	if err != nil {
		return nil, err
	}

	hints := m.hints(merged)
	if !o.skipSatisfiability {
		more, err := m.validateSatisfiability(ctx, api)
		if err != nil {
			return nil, err
		}
		hints = append(hints, more...)
	}

	return &Result{
		SupergraphSDL: sdl,
		Supergraph:    supergraph,
		APISchema:     api,
		QueryGraph:    fed,
		Hints:         hints,
		FieldOwners:   fieldOwners(merged),

		InterfaceObjectTypes: m.interfaceObjectTypes(),
	}, nil
}

func (m *merger) interfaceObjectTypes() map[string]bool {
	out := make(map[string]bool, len(m.interfaceObjects))
	for name := range m.interfaceObjects {
		out[name] = true
	}
	return out
}

func validateSubgraphs(subgraphs []*schema.Subgraph) error {
	if len(subgraphs) == 0 {
		return federror.New(federror.InvalidSubgraphs, "No subgraphs to compose")
	}
	errs := &federror.MultipleErrors{}
	seen := make(map[string]bool, len(subgraphs))
	for i, sg := range subgraphs {
		if sg == nil {
			return federror.Internalf("Subgraph %d is nil", i)
		}
		if sg.Name == querygraph.FederatedGraphSource {
			errs.Push(federror.New(federror.InvalidSubgraphName, "Invalid name %q for a subgraph: this name is reserved", sg.Name))
			continue
		}
		if seen[sg.Name] {
			errs.Push(federror.New(federror.InvalidSubgraphs, "A subgraph named %q already exists", sg.Name))
			continue
		}
		seen[sg.Name] = true
	}
	if errs.Len() > 0 {
		return errs
	}
	return nil
}

// validateSatisfiability checks the API schema against the subgraphs. The
// API graph is built from api alone; the federated graph used for the check
// ignores ForQueryPlanning.
func (m *merger) validateSatisfiability(ctx context.Context, api *schema.Schema) ([]federror.Hint, error) {
	apiGraph, err := querygraph.BuildQueryGraph("api", api, querygraph.WithLogger(m.logger))
	if err != nil {
		return nil, err
	}
	fed, err := querygraph.BuildFederatedQueryGraph(ctx, api, m.subgraphs,
		querygraph.WithLogger(m.logger),
		querygraph.ForQueryPlanning(false),
	)
	if err != nil {
		return nil, err
	}

	res, err := validation.ValidateSatisfiability(ctx, apiGraph, fed,
		validation.WithLogger(m.logger),
		validation.WithCatalog(m.o.catalog),
		validation.WithMaxValidationSubgraphPaths(m.o.maxPaths),
		validation.WithConditionCacheSize(m.o.conditionCacheSize),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if federror.IsInternal(err) {
			return nil, err
		}
		errs := &federror.MultipleErrors{}
		errs.Push(err)
		return nil, errs
	}
	return res.Hints, nil
}
