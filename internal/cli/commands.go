package cli

import (
	"github.com/spf13/cobra"
)

// RunOptions collects every flag of the "run" command.
type RunOptions struct {
	URL        string
	Output     string
	DSN        string
	Table      string
	Mode       string
	SchemaFile string
	BatchSize  int
	Target     string
	MongoDB    string
	Resume     bool
	DryRun     bool
}

// NewRunCmd creates the "run" sub-command: the full
// fetch → transform → load pipeline.
func NewRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch a CSV resource and load it into the target table",
		RunE: func(c *cobra.Command, args []string) error {
			return runIngest(c.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.URL, "url", "u", "", "URL of the CSV resource")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Local path for the downloaded artifact")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "Database connection string (falls back to DATABASE_URL)")
	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "Target table (or collection) name (defaults to the schema's table)")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "append", "Write mode: replace, append or upsert")
	cmd.Flags().StringVarP(&opts.SchemaFile, "schema", "s", "configs/schema.json", "Path to the JSON schema file")
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 1000, "Maximum rows per batch")
	cmd.Flags().StringVar(&opts.Target, "target", "sql", "Target backend: sql or mongo")
	cmd.Flags().StringVar(&opts.MongoDB, "mongo-database", "", "Mongo database name (mongo target only)")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "Continue from the last committed batch of a failed run")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Fetch and validate only, write nothing")

	cmd.MarkFlagRequired("url")
	cmd.MarkFlagRequired("output")

	return cmd
}

// NewFetchCmd creates the "fetch" sub-command, running the download
// stage on its own.
func NewFetchCmd() *cobra.Command {
	var url, output string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the CSV resource to a local artifact and print its checksum",
		RunE: func(c *cobra.Command, args []string) error {
			return runFetch(c.Context(), url, output)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "", "URL of the CSV resource")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Local path for the downloaded artifact")
	cmd.MarkFlagRequired("url")
	cmd.MarkFlagRequired("output")

	return cmd
}
