// Package load writes row batches into a target store. Each batch is a
// single atomic unit; a failed batch surfaces the offset a caller needs
// to resume from. The target is exclusively owned by the running
// pipeline for the duration of a load.
package load

import (
	"context"
	"fmt"

	"github.com/datapress/ingest/internal/transform"
)

// Mode selects how a run treats prior table contents.
type Mode string

const (
	// ModeReplace clears prior contents before the first batch.
	ModeReplace Mode = "replace"
	// ModeAppend appends every batch.
	ModeAppend Mode = "append"
	// ModeUpsert inserts or updates by the schema's key columns.
	ModeUpsert Mode = "upsert"
)

// ParseMode validates a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeReplace, ModeAppend, ModeUpsert:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unsupported write mode: %s (want replace, append or upsert)", s)
	}
}

// WriteError reports a failed batch write. Offset is the 0-based row
// offset of the failed batch's first row; everything before it was
// committed, so a caller can resume from there. Batch writes are not
// retried automatically.
type WriteError struct {
	Offset int64
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write failed at row offset %d: %v", e.Offset, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Loader is the behaviour expected from any target back-end.
type Loader interface {
	// Prepare sets up the target for the given mode (create the table if
	// absent, clear prior contents in replace mode).
	Prepare(ctx context.Context, mode Mode) error

	// Load writes one batch atomically. On failure it returns a
	// *WriteError carrying the batch's starting offset.
	Load(ctx context.Context, batch *transform.Batch) error

	// Close releases the underlying connection.
	Close() error
}
