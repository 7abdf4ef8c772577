package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "v0.0.0-rc"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of the federation tools",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "federation %s\n", version)
	},
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "federation",
		Short:         "Compose, validate and plan over Apollo Federation subgraphs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "federation.yaml", "path to the configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newComposeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newPlanCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
