// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest - CSV-to-database ingestion pipeline",
		Long: `ingest downloads a remote CSV resource, validates and type-casts its
rows in bounded batches against a JSON schema, and loads them into a
relational table (or a MongoDB collection) with a configurable write
policy: replace, append or upsert.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewRunCmd(), NewFetchCmd())

	return rootCmd
}
