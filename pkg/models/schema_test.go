package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchema(t *testing.T) {
	t.Run("parses a valid schema preserving column order", func(t *testing.T) {
		data := []byte(`{
			"table": "trips",
			"columns": [
				{"name": "trip_id", "type": "int", "required": true},
				{"name": "pickup_at", "source": "tpep_pickup_datetime", "type": "datetime", "format": "2006-01-02 15:04:05"},
				{"name": "distance", "type": "float"}
			],
			"keys": ["trip_id"]
		}`)

		s, err := LoadSchema(data)

		require.NoError(t, err)
		assert.Equal(t, "trips", s.Table)
		assert.Equal(t, []string{"trip_id", "pickup_at", "distance"}, s.ColumnNames())
		assert.Equal(t, "tpep_pickup_datetime", s.Columns[1].SourceHeader())
		assert.Equal(t, "trip_id", s.Columns[0].SourceHeader())
		assert.True(t, s.Columns[0].Required)
	})

	t.Run("rejects empty column list", func(t *testing.T) {
		_, err := LoadSchema([]byte(`{"columns": []}`))
		assert.ErrorContains(t, err, "at least one column")
	})

	t.Run("rejects duplicate column names", func(t *testing.T) {
		_, err := LoadSchema([]byte(`{"columns": [
			{"name": "a", "type": "int"},
			{"name": "a", "type": "string"}
		]}`))
		assert.ErrorContains(t, err, "duplicate column name")
	})

	t.Run("rejects unknown column type", func(t *testing.T) {
		_, err := LoadSchema([]byte(`{"columns": [{"name": "a", "type": "decimal"}]}`))
		assert.ErrorContains(t, err, "unknown type")
	})

	t.Run("rejects missing column type", func(t *testing.T) {
		_, err := LoadSchema([]byte(`{"columns": [{"name": "a"}]}`))
		assert.ErrorContains(t, err, "missing type")
	})

	t.Run("rejects key not declared as column", func(t *testing.T) {
		_, err := LoadSchema([]byte(`{
			"columns": [{"name": "a", "type": "int"}],
			"keys": ["b"]
		}`))
		assert.ErrorContains(t, err, "not declared")
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		_, err := LoadSchema([]byte(`{"columns": [`))
		assert.Error(t, err)
	})
}

func TestSchemaKeyIndexes(t *testing.T) {
	s := &Schema{
		Columns: []Column{
			{Name: "a", Type: TypeInt},
			{Name: "b", Type: TypeString},
			{Name: "c", Type: TypeFloat},
		},
		Keys: []string{"c", "a"},
	}
	require.NoError(t, s.Validate())

	assert.Equal(t, []int{2, 0}, s.KeyIndexes())
}
