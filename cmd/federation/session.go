package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/n9te9/go-graphql-federation-core/config"
	"github.com/n9te9/go-graphql-federation-core/federation/composition"
	"github.com/n9te9/go-graphql-federation-core/subgraph"
	"github.com/n9te9/go-graphql-federation-core/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session holds what every command needs: the configuration, a logger and
// the tracer provider shutdown.
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	shutdown telemetry.ShutdownFunc
}

func newSession(cmd *cobra.Command) (*session, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	_, shutdown, err := telemetry.NewTracerProvider(cmd.Context(), cfg.Opentelemetry.TracingSetting)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, shutdown: shutdown}, nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.shutdown(ctx); err != nil {
		s.logger.Warn("failed to shut down tracer provider", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// compose loads the subgraphs and composes them. Hints are logged.
func (s *session) compose(ctx context.Context, skipSatisfiability bool) (*composition.Result, error) {
	loader := subgraph.NewLoader(
		subgraph.WithLogger(s.logger),
		subgraph.WithTracing(s.cfg.Opentelemetry.TracingSetting.Enable),
	)
	subgraphs, err := loader.Load(ctx, s.cfg.Subgraphs)
	if err != nil {
		return nil, err
	}

	res, err := composition.Compose(ctx, subgraphs,
		composition.WithLogger(s.logger),
		composition.WithWorkers(s.cfg.Composition.Workers),
		composition.WithMaxValidationSubgraphPaths(s.cfg.Composition.MaxValidationSubgraphPaths),
		composition.WithConditionCacheSize(s.cfg.QueryGraph.ConditionCacheSize),
		composition.SkipSatisfiability(skipSatisfiability || s.cfg.Composition.SkipSatisfiability),
		composition.ForQueryPlanning(s.cfg.QueryGraph.IsForQueryPlanning()),
	)
	if err != nil {
		return nil, err
	}
	for _, h := range res.Hints {
		s.logger.Info("composition hint",
			zap.String("code", string(h.Code)),
			zap.String("level", h.Level.String()),
			zap.String("message", h.Message),
		)
	}
	return res, nil
}

// writeOutput writes data to path, or to the command output when path is
// empty.
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
