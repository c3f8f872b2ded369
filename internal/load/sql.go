package load

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/datapress/ingest/internal/transform"
	"github.com/datapress/ingest/pkg/models"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLLoader writes batches into a relational table through database/sql.
// Each batch runs in its own transaction, so a mid-run failure only
// loses the failing batch.
type SQLLoader struct {
	db      *sqlx.DB
	table   string
	schema  *models.Schema
	dialect dialect

	mode     Mode
	insert   string // rebound insert (or single-statement upsert)
	update   string // rebound update half of the upsert fallback
	exists   string // rebound existence probe, all-key fallback only
	fallback bool
	keyIdx   []int
	valIdx   []int // non-key column positions, for the fallback UPDATE
}

// NewSQLLoader builds a loader for the given driver ("postgres",
// "sqlite" or "sqlserver"). Table and column names are restricted to
// plain identifiers since they are interpolated into statements.
func NewSQLLoader(db *sqlx.DB, driver, table string, schema *models.Schema) (*SQLLoader, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if !identifierRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}
	for _, col := range schema.Columns {
		if !identifierRe.MatchString(col.Name) {
			return nil, fmt.Errorf("invalid column name: %q", col.Name)
		}
	}

	return &SQLLoader{
		db:      db,
		table:   table,
		schema:  schema,
		dialect: d,
	}, nil
}

func (l *SQLLoader) Prepare(ctx context.Context, mode Mode) error {
	if mode == ModeUpsert && len(l.schema.Keys) == 0 {
		return fmt.Errorf("upsert mode requires key columns in the schema")
	}
	l.mode = mode

	if _, err := l.db.ExecContext(ctx, l.dialect.CreateTable(l.table, l.schema)); err != nil {
		return fmt.Errorf("ensuring table %s: %w", l.table, err)
	}

	if mode == ModeReplace {
		if _, err := l.db.ExecContext(ctx, l.dialect.Clear(l.table)); err != nil {
			return fmt.Errorf("clearing table %s: %w", l.table, err)
		}
		logrus.Infof("cleared prior contents of %s", l.table)
	}

	if mode == ModeUpsert {
		if stmt, ok := l.dialect.Upsert(l.table, l.schema); ok {
			l.insert = l.db.Rebind(stmt)
			return nil
		}
		l.prepareFallback()
		return nil
	}

	l.insert = l.db.Rebind(insertSQL(l.table, l.schema.ColumnNames()))
	return nil
}

// prepareFallback builds the statements for the update-then-insert
// upsert used by dialects without ON CONFLICT. With an all-key schema
// there is nothing to update, so an existence probe makes duplicate
// rows a no-op, matching the DO NOTHING form of the other dialects.
func (l *SQLLoader) prepareFallback() {
	l.fallback = true
	l.insert = l.db.Rebind(insertSQL(l.table, l.schema.ColumnNames()))
	l.update = l.db.Rebind(updateByKeysSQL(l.table, l.schema))
	if l.update == "" {
		l.exists = l.db.Rebind(existsByKeysSQL(l.table, l.schema))
	}
	l.keyIdx = l.schema.KeyIndexes()
	l.valIdx = nil
	keys := make(map[int]bool, len(l.keyIdx))
	for _, i := range l.keyIdx {
		keys[i] = true
	}
	for i := range l.schema.Columns {
		if !keys[i] {
			l.valIdx = append(l.valIdx, i)
		}
	}
}

// Load writes one batch inside a single transaction. On any failure the
// transaction is rolled back and a *WriteError carries the batch's
// starting row offset for resumption.
func (l *SQLLoader) Load(ctx context.Context, batch *transform.Batch) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return &WriteError{Offset: batch.Offset, Err: err}
	}

	if err := l.loadTx(ctx, tx, batch); err != nil {
		tx.Rollback()
		return &WriteError{Offset: batch.Offset, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &WriteError{Offset: batch.Offset, Err: err}
	}
	return nil
}

func (l *SQLLoader) loadTx(ctx context.Context, tx *sqlx.Tx, batch *transform.Batch) error {
	if l.fallback {
		return l.loadFallback(ctx, tx, batch)
	}

	stmt, err := tx.PreparexContext(ctx, l.insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range batch.Rows {
		if _, err := stmt.ExecContext(ctx, []interface{}(row)...); err != nil {
			return err
		}
	}
	return nil
}

// loadFallback performs the per-row update-then-insert upsert used when
// the dialect has no single-statement form.
func (l *SQLLoader) loadFallback(ctx context.Context, tx *sqlx.Tx, batch *transform.Batch) error {
	for _, row := range batch.Rows {
		keyArgs := make([]interface{}, 0, len(l.keyIdx))
		for _, i := range l.keyIdx {
			keyArgs = append(keyArgs, row[i])
		}

		if l.update != "" {
			args := make([]interface{}, 0, len(row))
			for _, i := range l.valIdx {
				args = append(args, row[i])
			}
			args = append(args, keyArgs...)
			res, err := tx.ExecContext(ctx, l.update, args...)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				continue
			}
		} else {
			var n int
			if err := tx.GetContext(ctx, &n, l.exists, keyArgs...); err != nil {
				return err
			}
			if n > 0 {
				continue
			}
		}

		if _, err := tx.ExecContext(ctx, l.insert, []interface{}(row)...); err != nil {
			return err
		}
	}
	return nil
}

func (l *SQLLoader) Close() error {
	return l.db.Close()
}
