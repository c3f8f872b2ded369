// Package pipeline wires the fetch, transform and load stages into one
// sequential run: the artifact is fully downloaded first, then batches
// are produced and consumed in lockstep, one commit per batch.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/datapress/ingest/internal/fetch"
	"github.com/datapress/ingest/internal/load"
	"github.com/datapress/ingest/internal/transform"
	"github.com/datapress/ingest/pkg/models"
)

// Options configure a single run.
type Options struct {
	URL          string
	ArtifactPath string
	Mode         load.Mode
	BatchSize    int
	DryRun       bool // fetch and transform, skip all writes
	Resume       bool // continue from a matching checkpoint
}

// Result summarises a completed (or failed) run. The row-count invariant
// is RowsLoaded + RowsSkipped == RowsAccepted.
type Result struct {
	Artifact     *fetch.Artifact
	RowsRead     int64
	RowsAccepted int64
	RowsRejected int64
	RowsLoaded   int64
	RowsSkipped  int64 // already loaded before a resumed run
	Batches      int
	Rejections   []transform.RowError
}

type Pipeline struct {
	fetcher *fetch.Fetcher
	loader  load.Loader
	schema  *models.Schema
	opts    Options
	runID   string
}

func New(fetcher *fetch.Fetcher, loader load.Loader, schema *models.Schema, opts Options) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		loader:  loader,
		schema:  schema,
		opts:    opts,
		runID:   uuid.NewString(),
	}
}

// Run executes fetch → transform → load. Fatal errors (network, write)
// abort the run; per-row validation failures only show up in the result
// counts. The returned Result is valid even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	log := logrus.WithField("run", p.runID[:8])
	res := &Result{}
	start := time.Now()

	art, err := p.acquireArtifact(ctx, log)
	if err != nil {
		return res, err
	}
	res.Artifact = art

	reader, err := transform.NewReader(art.Path, p.schema, p.opts.BatchSize)
	if err != nil {
		return res, err
	}
	defer reader.Close()

	skip := int64(0)
	cpPath := checkpointPath(p.opts.ArtifactPath)
	if p.opts.Resume && p.opts.Mode != load.ModeReplace {
		if cp := loadCheckpoint(cpPath); cp != nil {
			if cp.Checksum == art.Checksum {
				skip = cp.Offset
				log.Infof("resuming from checkpoint: %d rows already loaded", skip)
			} else {
				log.Warn("checkpoint does not match current artifact, starting over")
			}
		}
	}

	if !p.opts.DryRun {
		if err := p.loader.Prepare(ctx, p.opts.Mode); err != nil {
			return res, err
		}
	}

	log.Infof("starting load: mode=%s batch_size=%d dry_run=%v",
		p.opts.Mode, p.opts.BatchSize, p.opts.DryRun)

	for {
		batch, err := reader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			p.fill(res, reader.Summary())
			return res, err
		}

		rows, offset := trimLoaded(batch, skip)
		res.RowsSkipped += int64(len(batch.Rows) - len(rows))
		if len(rows) == 0 {
			continue
		}
		batch = &transform.Batch{Offset: offset, Rows: rows}

		if p.opts.DryRun {
			log.Infof("[dry run] would load %d rows at offset %d", len(batch.Rows), batch.Offset)
			continue
		}

		if err := p.loader.Load(ctx, batch); err != nil {
			p.fill(res, reader.Summary())
			return res, err
		}

		res.RowsLoaded += int64(len(batch.Rows))
		res.Batches++
		saveCheckpoint(cpPath, &checkpoint{
			Run:      p.runID,
			Checksum: art.Checksum,
			Offset:   batch.Offset + int64(len(batch.Rows)),
		})

		rate := float64(res.RowsLoaded) / time.Since(start).Seconds()
		log.Infof("batch done. loaded=%d rejected=%d rate=%.0f rows/sec",
			res.RowsLoaded, reader.Summary().RowsRejected, rate)
	}

	p.fill(res, reader.Summary())

	if !p.opts.DryRun {
		if got, want := res.RowsLoaded+res.RowsSkipped, res.RowsAccepted; got != want {
			return res, fmt.Errorf("row count mismatch: loaded %d of %d accepted rows", got, want)
		}
		removeCheckpoint(cpPath)
	}

	log.Infof("pipeline finished: read=%d accepted=%d rejected=%d loaded=%d in %s",
		res.RowsRead, res.RowsAccepted, res.RowsRejected, res.RowsLoaded,
		time.Since(start).Round(time.Millisecond))
	return res, nil
}

// acquireArtifact downloads the resource, except on a resumed run whose
// on-disk artifact still matches the checkpoint's checksum; then the
// local copy is reused so resumption does not depend on the source
// being reachable again.
func (p *Pipeline) acquireArtifact(ctx context.Context, log *logrus.Entry) (*fetch.Artifact, error) {
	if p.opts.Resume && p.opts.Mode != load.ModeReplace {
		if cp := loadCheckpoint(checkpointPath(p.opts.ArtifactPath)); cp != nil {
			sum, err := fetch.ChecksumFile(p.opts.ArtifactPath)
			if err == nil && sum == cp.Checksum {
				info, err := os.Stat(p.opts.ArtifactPath)
				if err == nil {
					log.Infof("reusing existing artifact %s (matches checkpoint)", p.opts.ArtifactPath)
					return &fetch.Artifact{
						URL:      p.opts.URL,
						Path:     p.opts.ArtifactPath,
						Size:     info.Size(),
						Checksum: sum,
					}, nil
				}
			}
		}
	}
	return p.fetcher.Fetch(ctx, p.opts.URL, p.opts.ArtifactPath)
}

func (p *Pipeline) fill(res *Result, s transform.Summary) {
	res.RowsRead = s.RowsRead
	res.RowsAccepted = s.RowsAccepted
	res.RowsRejected = s.RowsRejected
	res.Rejections = s.Rejections
}

// trimLoaded drops the prefix of a batch that a resumed run has already
// committed, returning the remaining rows and their starting offset.
func trimLoaded(batch *transform.Batch, skip int64) ([]transform.Row, int64) {
	end := batch.Offset + int64(len(batch.Rows))
	if end <= skip {
		return nil, end
	}
	if batch.Offset >= skip {
		return batch.Rows, batch.Offset
	}
	return batch.Rows[skip-batch.Offset:], skip
}
