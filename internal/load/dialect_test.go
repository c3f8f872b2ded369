package load

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapress/ingest/pkg/models"
)

func TestPostgresDialect(t *testing.T) {
	d, err := dialectFor("postgres")
	require.NoError(t, err)
	schema := keyedSchema()

	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS trips (id BIGINT NOT NULL, name TEXT, score DOUBLE PRECISION, UNIQUE (id))",
		d.CreateTable("trips", schema))
	assert.Equal(t, "TRUNCATE TABLE trips", d.Clear("trips"))

	stmt, ok := d.Upsert("trips", schema)
	require.True(t, ok)
	assert.Equal(t,
		"INSERT INTO trips (id, name, score) VALUES (?, ?, ?)"+
			" ON CONFLICT (id) DO UPDATE SET name = excluded.name, score = excluded.score",
		stmt)
}

func TestSqliteDialectAllKeysConflictIsIgnored(t *testing.T) {
	d, err := dialectFor("sqlite")
	require.NoError(t, err)

	schema := &models.Schema{
		Columns: []models.Column{{Name: "id", Type: models.TypeInt}},
		Keys:    []string{"id"},
	}

	stmt, ok := d.Upsert("trips", schema)
	require.True(t, ok)
	assert.Equal(t, "INSERT INTO trips (id) VALUES (?) ON CONFLICT (id) DO NOTHING", stmt)
}

func TestSqlserverDialect(t *testing.T) {
	d, err := dialectFor("sqlserver")
	require.NoError(t, err)
	schema := keyedSchema()

	assert.Equal(t,
		"IF OBJECT_ID(N'trips', N'U') IS NULL CREATE TABLE trips"+
			" (id BIGINT NOT NULL, name NVARCHAR(450), score FLOAT, UNIQUE (id))",
		d.CreateTable("trips", schema))

	_, ok := d.Upsert("trips", schema)
	assert.False(t, ok, "sqlserver uses the update-then-insert fallback")

	assert.Equal(t,
		"UPDATE trips SET name = ?, score = ? WHERE id = ?",
		updateByKeysSQL("trips", schema))

	allKeys := &models.Schema{
		Columns: []models.Column{{Name: "id", Type: models.TypeInt}},
		Keys:    []string{"id"},
	}
	assert.Empty(t, updateByKeysSQL("trips", allKeys), "nothing to update when every column is a key")
	assert.Equal(t,
		"SELECT COUNT(*) FROM trips WHERE id = ?",
		existsByKeysSQL("trips", allKeys))
}
