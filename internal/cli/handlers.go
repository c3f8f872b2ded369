package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/datapress/ingest/internal/config"
	"github.com/datapress/ingest/internal/fetch"
	"github.com/datapress/ingest/internal/load"
	"github.com/datapress/ingest/internal/pipeline"
	"github.com/datapress/ingest/pkg/database"
	"github.com/datapress/ingest/pkg/models"
)

func runIngest(ctx context.Context, opts *RunOptions) error {
	cfg := config.Load()

	mode, err := load.ParseMode(opts.Mode)
	if err != nil {
		return err
	}

	schemaData, err := os.ReadFile(opts.SchemaFile)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	schema, err := models.LoadSchema(schemaData)
	if err != nil {
		return fmt.Errorf("failed to parse schema file: %w", err)
	}

	opts.Table, err = resolveTable(opts.Table, schema)
	if err != nil {
		return err
	}

	loader, err := buildLoader(opts, cfg, schema)
	if err != nil {
		return err
	}
	defer loader.Close()

	p := pipeline.New(fetch.New(), loader, schema, pipeline.Options{
		URL:          opts.URL,
		ArtifactPath: opts.Output,
		Mode:         mode,
		BatchSize:    opts.BatchSize,
		DryRun:       opts.DryRun,
		Resume:       opts.Resume,
	})

	res, err := p.Run(ctx)
	reportRejections(res)
	if err != nil {
		return summarize(err)
	}

	logrus.Infof("done: %d rows loaded into %s (%d rejected)",
		res.RowsLoaded, opts.Table, res.RowsRejected)
	return nil
}

// resolveTable prefers the explicit flag over the schema file's table
// name.
func resolveTable(flag string, schema *models.Schema) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if schema.Table != "" {
		return schema.Table, nil
	}
	return "", fmt.Errorf(`no table given: set --table or "table" in the schema file`)
}

func buildLoader(opts *RunOptions, cfg *config.Config, schema *models.Schema) (load.Loader, error) {
	switch opts.Target {
	case "sql":
		dsn := opts.DSN
		if dsn == "" {
			dsn = cfg.DatabaseURL
		}
		if dsn == "" {
			return nil, fmt.Errorf("no DSN given: set --dsn or DATABASE_URL")
		}
		db, driver, err := database.ConnectSQL(dsn)
		if err != nil {
			return nil, err
		}
		return load.NewSQLLoader(db, driver, opts.Table, schema)

	case "mongo":
		dsn := opts.DSN
		if dsn == "" {
			dsn = cfg.MongoURL
		}
		if dsn == "" {
			return nil, fmt.Errorf("no DSN given: set --dsn or MONGO_URL")
		}
		client, err := database.ConnectMongo(dsn)
		if err != nil {
			return nil, err
		}
		dbName := opts.MongoDB
		if dbName == "" {
			dbName = cfg.MongoDatabase
		}
		return load.NewMongoLoader(client, dbName, opts.Table, schema), nil

	default:
		return nil, fmt.Errorf("unsupported target: %s (want sql or mongo)", opts.Target)
	}
}

func runFetch(ctx context.Context, url, output string) error {
	art, err := fetch.New().Fetch(ctx, url, output)
	if err != nil {
		return summarize(err)
	}
	fmt.Printf("%s  %s (%d bytes)\n", art.Checksum, art.Path, art.Size)
	return nil
}

// summarize turns stage errors into the human-readable run summary the
// process exits with.
func summarize(err error) error {
	var netErr *fetch.NetworkError
	if errors.As(err, &netErr) {
		return fmt.Errorf("fetch failed, nothing was written: %w", netErr)
	}

	var writeErr *load.WriteError
	if errors.As(err, &writeErr) {
		return fmt.Errorf("load failed: %w; rerun with --resume to continue from row %d",
			writeErr.Err, writeErr.Offset)
	}
	return err
}

func reportRejections(res *pipeline.Result) {
	if res == nil || res.RowsRejected == 0 {
		return
	}
	logrus.Warnf("%d of %d rows rejected during validation", res.RowsRejected, res.RowsRead)
	for _, re := range res.Rejections {
		logrus.Warnf("  %s", re.Error())
	}
	if int64(len(res.Rejections)) < res.RowsRejected {
		logrus.Warnf("  … and %d more", res.RowsRejected-int64(len(res.Rejections)))
	}
}
