package load

import (
	"fmt"
	"strings"

	"github.com/datapress/ingest/pkg/models"
)

// dialect covers the SQL that differs between supported drivers: column
// type names, create-if-absent DDL, clearing a table, and the upsert
// form. Placeholders are written as '?' and rebound per driver by sqlx.
type dialect interface {
	ColumnType(t models.ColumnType) string
	CreateTable(table string, schema *models.Schema) string
	Clear(table string) string
	// Upsert returns the single-statement upsert and true, or "" and
	// false when the driver needs the update-then-insert fallback.
	Upsert(table string, schema *models.Schema) (string, bool)
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "postgres":
		return postgresDialect{}, nil
	case "sqlite":
		return sqliteDialect{}, nil
	case "sqlserver":
		return sqlserverDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}
}

func columnDefs(schema *models.Schema, d dialect) string {
	defs := make([]string, 0, len(schema.Columns)+1)
	for _, col := range schema.Columns {
		def := fmt.Sprintf("%s %s", col.Name, d.ColumnType(col.Type))
		if col.Required {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if len(schema.Keys) > 0 {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(schema.Keys, ", ")))
	}
	return strings.Join(defs, ", ")
}

func insertSQL(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

// onConflictUpsert builds the ON CONFLICT form shared by postgres and
// sqlite. Non-key columns take the incoming value; when every column is
// a key the conflict is ignored.
func onConflictUpsert(table string, schema *models.Schema) string {
	keys := make(map[string]bool, len(schema.Keys))
	for _, k := range schema.Keys {
		keys[k] = true
	}

	var sets []string
	for _, col := range schema.Columns {
		if !keys[col.Name] {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", col.Name, col.Name))
		}
	}

	base := insertSQL(table, schema.ColumnNames())
	if len(sets) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", base, strings.Join(schema.Keys, ", "))
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		base, strings.Join(schema.Keys, ", "), strings.Join(sets, ", "))
}

type postgresDialect struct{}

func (postgresDialect) ColumnType(t models.ColumnType) string {
	switch t {
	case models.TypeInt:
		return "BIGINT"
	case models.TypeFloat:
		return "DOUBLE PRECISION"
	case models.TypeBool:
		return "BOOLEAN"
	case models.TypeDatetime:
		return "TIMESTAMP"
	case models.TypeDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

func (d postgresDialect) CreateTable(table string, schema *models.Schema) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, columnDefs(schema, d))
}

func (postgresDialect) Clear(table string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s", table)
}

func (postgresDialect) Upsert(table string, schema *models.Schema) (string, bool) {
	return onConflictUpsert(table, schema), true
}

type sqliteDialect struct{}

func (sqliteDialect) ColumnType(t models.ColumnType) string {
	switch t {
	case models.TypeInt:
		return "INTEGER"
	case models.TypeFloat:
		return "REAL"
	case models.TypeBool:
		return "BOOLEAN"
	case models.TypeDatetime:
		return "TIMESTAMP"
	case models.TypeDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

func (d sqliteDialect) CreateTable(table string, schema *models.Schema) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, columnDefs(schema, d))
}

func (sqliteDialect) Clear(table string) string {
	return fmt.Sprintf("DELETE FROM %s", table)
}

func (sqliteDialect) Upsert(table string, schema *models.Schema) (string, bool) {
	return onConflictUpsert(table, schema), true
}

type sqlserverDialect struct{}

func (sqlserverDialect) ColumnType(t models.ColumnType) string {
	switch t {
	case models.TypeInt:
		return "BIGINT"
	case models.TypeFloat:
		return "FLOAT"
	case models.TypeBool:
		return "BIT"
	case models.TypeDatetime:
		return "DATETIME2"
	case models.TypeDate:
		return "DATE"
	default:
		// Indexable, so string key columns can back the UNIQUE constraint.
		return "NVARCHAR(450)"
	}
}

func (d sqlserverDialect) CreateTable(table string, schema *models.Schema) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
		table, table, columnDefs(schema, d))
}

func (sqlserverDialect) Clear(table string) string {
	return fmt.Sprintf("DELETE FROM %s", table)
}

func (sqlserverDialect) Upsert(string, *models.Schema) (string, bool) {
	// No ON CONFLICT; the loader falls back to update-then-insert.
	return "", false
}

// existsByKeysSQL builds the existence probe the upsert fallback uses
// when every column is a key, so a duplicate row becomes a no-op
// instead of a constraint violation.
func existsByKeysSQL(table string, schema *models.Schema) string {
	var where []string
	for _, k := range schema.Keys {
		where = append(where, fmt.Sprintf("%s = ?", k))
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, strings.Join(where, " AND "))
}

// updateByKeysSQL builds the UPDATE half of the sqlserver upsert
// fallback. Returns "" when the schema has no non-key columns.
func updateByKeysSQL(table string, schema *models.Schema) string {
	keys := make(map[string]bool, len(schema.Keys))
	for _, k := range schema.Keys {
		keys[k] = true
	}

	var sets []string
	for _, col := range schema.Columns {
		if !keys[col.Name] {
			sets = append(sets, fmt.Sprintf("%s = ?", col.Name))
		}
	}
	if len(sets) == 0 {
		return ""
	}

	var where []string
	for _, k := range schema.Keys {
		where = append(where, fmt.Sprintf("%s = ?", k))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		table, strings.Join(sets, ", "), strings.Join(where, " AND "))
}
