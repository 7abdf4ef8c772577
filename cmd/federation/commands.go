package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/n9te9/go-graphql-federation-core/federation/operation"
	"github.com/n9te9/go-graphql-federation-core/federation/planner"
	"github.com/n9te9/go-graphql-federation-core/federation/querygraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newComposeCmd() *cobra.Command {
	var out string
	var skipSatisfiability bool
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose the configured subgraphs and print the supergraph SDL",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.compose(cmd.Context(), skipSatisfiability)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, []byte(res.SupergraphSDL))
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the supergraph SDL to this file instead of stdout")
	cmd.Flags().BoolVar(&skipSatisfiability, "skip-satisfiability", false, "skip the satisfiability check")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the configured subgraphs compose",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.compose(cmd.Context(), false)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "composition %s succeeded: %d subgraphs, %d types, %d hints\n",
				res.ID, len(s.cfg.Subgraphs), len(res.Supergraph.Types()), len(res.Hints))
			for _, h := range res.Hints {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", h)
			}
			return nil
		},
	}
}

func newGraphCmd() *cobra.Command {
	var out string
	var api bool
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Dump the federated query graph as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.compose(cmd.Context(), false)
			if err != nil {
				return err
			}
			g := res.QueryGraph
			if api {
				if g, err = querygraph.BuildQueryGraph("api", res.APISchema, querygraph.WithLogger(s.logger)); err != nil {
					return err
				}
			}
			var buf bytes.Buffer
			if err := g.WriteYAML(&buf); err != nil {
				return err
			}
			return writeOutput(cmd, out, buf.Bytes())
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the graph to this file instead of stdout")
	cmd.Flags().BoolVar(&api, "api", false, "dump the query graph of the API schema instead")
	return cmd
}

func newPlanCmd() *cobra.Command {
	var queryPath, operationName string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the execution plan of an operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := os.ReadFile(queryPath)
			if err != nil {
				return fmt.Errorf("failed to read query: %w", err)
			}
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.compose(cmd.Context(), false)
			if err != nil {
				return err
			}
			op, err := operation.ParseOperation(res.APISchema, string(query), operationName, operation.NormalizeOptions{
				InterfaceObjectTypes: res.InterfaceObjectTypes,
			})
			if err != nil {
				return err
			}
			p, err := planner.New(res.QueryGraph,
				planner.WithLogger(s.logger),
				planner.WithConditionCacheSize(s.cfg.QueryGraph.ConditionCacheSize),
			)
			if err != nil {
				return err
			}
			plan, err := p.Plan(cmd.Context(), op)
			if err != nil {
				return err
			}
			s.logger.Debug("plan ready", zap.String("plan_id", plan.ID.String()))
			_, err = fmt.Fprint(cmd.OutOrStdout(), plan.String())
			return err
		},
	}
	cmd.Flags().StringVarP(&queryPath, "query", "q", "", "file holding the GraphQL operation")
	cmd.Flags().StringVar(&operationName, "operation", "", "name of the operation to plan")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
