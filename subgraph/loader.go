// Package subgraph loads the subgraphs named by the configuration, from
// schema files or from the running services.
package subgraph

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/n9te9/go-graphql-federation-core/config"
	"github.com/n9te9/go-graphql-federation-core/federation/schema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Option func(*Loader)

// WithHTTPClient sets the client used to fetch SDLs.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTracing instruments SDL fetches with OpenTelemetry.
func WithTracing(enabled bool) Option {
	return func(l *Loader) { l.tracing = enabled }
}

// Loader builds schema.Subgraphs.
type Loader struct {
	client  *http.Client
	logger  *zap.Logger
	tracing bool
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{client: &http.Client{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	if l.tracing {
		transport := l.client.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		l.client = &http.Client{
			Timeout:   l.client.Timeout,
			Transport: otelhttp.NewTransport(transport),
		}
	}
	return l
}

// Load reads every subgraph concurrently. The result keeps the order of
// subgraphs.
func (l *Loader) Load(ctx context.Context, subgraphs []config.Subgraph) ([]*schema.Subgraph, error) {
	out := make([]*schema.Subgraph, len(subgraphs))
	eg, ctx := errgroup.WithContext(ctx)
	for i, s := range subgraphs {
		eg.Go(func() error {
			sdl, err := l.sdl(ctx, s)
			if err != nil {
				return fmt.Errorf("subgraph %q: %w", s.Name, err)
			}
			sg, err := schema.NewSubgraph(s.Name, sdl, s.Host)
			if err != nil {
				return fmt.Errorf("subgraph %q: %w", s.Name, err)
			}
			out[i] = sg
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) sdl(ctx context.Context, s config.Subgraph) ([]byte, error) {
	if len(s.SchemaFiles) == 0 {
		sdl, err := l.fetchSDL(ctx, s.Host, s.Retry)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("fetched subgraph SDL", zap.String("subgraph", s.Name), zap.String("host", s.Host))
		return []byte(sdl), nil
	}

	var src []byte
	for _, f := range s.SchemaFiles {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		src = append(src, b...)
		src = append(src, '\n')
	}
	l.logger.Debug("read subgraph schema files", zap.String("subgraph", s.Name), zap.Strings("files", s.SchemaFiles))
	return src, nil
}
