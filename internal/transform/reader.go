// Package transform streams schema-checked row batches out of a CSV
// artifact. Rows that fail type coercion are dropped and counted, never
// fatal; source-file order is preserved.
package transform

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/datapress/ingest/pkg/models"
	"github.com/datapress/ingest/pkg/utils"
)

// Row is one accepted record: values aligned to schema column order,
// each already coerced to its declared type (or nil for SQL NULL).
type Row []interface{}

// Batch is a bounded group of accepted rows processed as one unit.
// Offset is the 0-based index of the batch's first row among accepted
// rows, which is the resume coordinate when a downstream write fails.
type Batch struct {
	Offset int64
	Rows   []Row
}

// RowError records a single rejected source row.
type RowError struct {
	Line   int64 // 1-based data row number in the source file
	Column string
	Err    error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d, column %s: %v", e.Line, e.Column, e.Err)
}

// Summary reports the outcome of a full pass over the artifact.
type Summary struct {
	RowsRead     int64
	RowsAccepted int64
	RowsRejected int64
	Rejections   []RowError // first few samples only
}

const maxRejectionSamples = 10

// Reader produces Batches lazily from an artifact. It is restartable:
// a fresh Reader over the same artifact replays the same batches.
type Reader struct {
	schema    *models.Schema
	batchSize int

	file    *os.File
	csv     *csv.Reader
	index   []int // schema column position -> CSV field index, -1 when absent
	line    int64
	summary Summary
	eof     bool
}

// NewReader opens the artifact at path and prepares batched reading.
// Gzip-compressed artifacts are detected by magic bytes and decompressed
// transparently. The first CSV record must be the header row.
func NewReader(path string, schema *models.Schema, batchSize int) (*Reader, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening artifact %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening gzip artifact %s: %w", path, err)
		}
		src = gz
	}

	cr := csv.NewReader(src)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	r := &Reader{
		schema:    schema,
		batchSize: batchSize,
		file:      f,
		csv:       cr,
	}

	header, err := cr.Read()
	if err == io.EOF {
		// 0-byte artifact: zero batches, not an error.
		r.eof = true
		return r, nil
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	if err := r.bindHeader(header); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// bindHeader maps each schema column onto its CSV field index. A missing
// header is fatal for required columns and a NULL source otherwise.
func (r *Reader) bindHeader(header []string) error {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[h] = i
	}

	r.index = make([]int, len(r.schema.Columns))
	for i, col := range r.schema.Columns {
		idx, ok := pos[col.SourceHeader()]
		if !ok {
			if col.Required {
				return fmt.Errorf("required column '%s' not found in csv header", col.SourceHeader())
			}
			logrus.Warnf("column '%s' not found in csv header, loading as NULL", col.SourceHeader())
			idx = -1
		}
		r.index[i] = idx
	}
	return nil
}

// Next returns the next batch of at most batchSize accepted rows, or
// io.EOF once the artifact is exhausted.
func (r *Reader) Next(ctx context.Context) (*Batch, error) {
	if r.eof {
		return nil, io.EOF
	}

	batch := &Batch{Offset: r.summary.RowsAccepted}

	for len(batch.Rows) < r.batchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := r.csv.Read()
		if err == io.EOF {
			r.eof = true
			break
		}
		r.line++
		if err != nil {
			r.reject(RowError{Line: r.line, Column: "-", Err: err})
			continue
		}

		r.summary.RowsRead++
		row, rowErr := r.convert(record)
		if rowErr != nil {
			r.reject(*rowErr)
			continue
		}

		r.summary.RowsAccepted++
		batch.Rows = append(batch.Rows, row)
	}

	if len(batch.Rows) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (r *Reader) convert(record []string) (Row, *RowError) {
	row := make(Row, len(r.schema.Columns))
	for i, col := range r.schema.Columns {
		raw := ""
		if idx := r.index[i]; idx >= 0 && idx < len(record) {
			raw = record[idx]
		}
		val, err := utils.CoerceValue(raw, col)
		if err != nil {
			return nil, &RowError{Line: r.line, Column: col.Name, Err: err}
		}
		row[i] = val
	}
	return row, nil
}

func (r *Reader) reject(re RowError) {
	// Malformed csv lines never hit RowsRead, so count them here too.
	if re.Column == "-" {
		r.summary.RowsRead++
	}
	r.summary.RowsRejected++
	if len(r.summary.Rejections) < maxRejectionSamples {
		r.summary.Rejections = append(r.summary.Rejections, re)
	}
}

// Summary reports totals for the rows consumed so far. Call after Next
// has returned io.EOF for the full-pass report.
func (r *Reader) Summary() Summary {
	return r.summary
}

func (r *Reader) Close() error {
	return r.file.Close()
}
