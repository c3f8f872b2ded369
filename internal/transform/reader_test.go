package transform

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapress/ingest/pkg/models"
)

func testSchema() *models.Schema {
	return &models.Schema{
		Columns: []models.Column{
			{Name: "id", Type: models.TypeInt, Required: true},
			{Name: "name", Type: models.TypeString},
			{Name: "score", Type: models.TypeFloat},
		},
	}
}

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func drain(t *testing.T, r *Reader) []*Batch {
	t.Helper()
	var batches []*Batch
	for {
		b, err := r.Next(context.Background())
		if err == io.EOF {
			return batches
		}
		require.NoError(t, err)
		batches = append(batches, b)
	}
}

func TestReaderBatching(t *testing.T) {
	path := writeArtifact(t, "id,name,score\n1,a,1.5\n2,b,2.5\n3,c,3.5\n4,d,4.5\n5,e,5.5\n")

	r, err := NewReader(path, testSchema(), 2)
	require.NoError(t, err)
	defer r.Close()

	batches := drain(t, r)

	require.Len(t, batches, 3)
	assert.Equal(t, int64(0), batches[0].Offset)
	assert.Equal(t, int64(2), batches[1].Offset)
	assert.Equal(t, int64(4), batches[2].Offset)
	assert.Len(t, batches[0].Rows, 2)
	assert.Len(t, batches[2].Rows, 1)

	// Source-file order is preserved and values are typed.
	assert.Equal(t, Row{int64(1), "a", 1.5}, batches[0].Rows[0])
	assert.Equal(t, Row{int64(5), "e", 5.5}, batches[2].Rows[0])

	s := r.Summary()
	assert.Equal(t, int64(5), s.RowsRead)
	assert.Equal(t, int64(5), s.RowsAccepted)
	assert.Equal(t, int64(0), s.RowsRejected)
}

func TestReaderRejectsBadRows(t *testing.T) {
	// Row 2 has a non-coercible score, row 4 is missing its required id.
	path := writeArtifact(t, "id,name,score\n1,a,1.5\n2,b,oops\n3,c,3.5\n,d,4.5\n5,e,5.5\n")

	r, err := NewReader(path, testSchema(), 10)
	require.NoError(t, err)
	defer r.Close()

	batches := drain(t, r)

	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Rows, 3)

	s := r.Summary()
	assert.Equal(t, int64(5), s.RowsRead)
	assert.Equal(t, int64(3), s.RowsAccepted)
	assert.Equal(t, int64(2), s.RowsRejected)
	assert.Equal(t, s.RowsRead, s.RowsAccepted+s.RowsRejected)

	require.Len(t, s.Rejections, 2)
	assert.Equal(t, int64(2), s.Rejections[0].Line)
	assert.Equal(t, "score", s.Rejections[0].Column)
	assert.Equal(t, int64(4), s.Rejections[1].Line)
	assert.Equal(t, "id", s.Rejections[1].Column)
}

func TestReaderEmptyArtifact(t *testing.T) {
	t.Run("0-byte file yields zero batches", func(t *testing.T) {
		r, err := NewReader(writeArtifact(t, ""), testSchema(), 10)
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Next(context.Background())
		assert.Equal(t, io.EOF, err)
		assert.Equal(t, Summary{}, r.Summary())
	})

	t.Run("header-only file yields zero batches", func(t *testing.T) {
		r, err := NewReader(writeArtifact(t, "id,name,score\n"), testSchema(), 10)
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Next(context.Background())
		assert.Equal(t, io.EOF, err)
		assert.Equal(t, int64(0), r.Summary().RowsRead)
	})
}

func TestReaderGzipArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("id,name,score\n1,a,1.5\n2,b,2.5\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	r, err := NewReader(path, testSchema(), 10)
	require.NoError(t, err)
	defer r.Close()

	batches := drain(t, r)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Rows, 2)
	assert.Equal(t, Row{int64(1), "a", 1.5}, batches[0].Rows[0])
}

func TestReaderHeaderBinding(t *testing.T) {
	t.Run("source alias maps a differently named header", func(t *testing.T) {
		schema := &models.Schema{
			Columns: []models.Column{
				{Name: "trip_id", Source: "id", Type: models.TypeInt, Required: true},
			},
		}
		r, err := NewReader(writeArtifact(t, "id,extra\n7,x\n"), schema, 10)
		require.NoError(t, err)
		defer r.Close()

		batches := drain(t, r)
		require.Len(t, batches, 1)
		assert.Equal(t, Row{int64(7)}, batches[0].Rows[0])
	})

	t.Run("missing optional header loads as NULL", func(t *testing.T) {
		r, err := NewReader(writeArtifact(t, "id,name\n1,a\n"), testSchema(), 10)
		require.NoError(t, err)
		defer r.Close()

		batches := drain(t, r)
		require.Len(t, batches, 1)
		assert.Equal(t, Row{int64(1), "a", nil}, batches[0].Rows[0])
	})

	t.Run("missing required header is fatal", func(t *testing.T) {
		_, err := NewReader(writeArtifact(t, "name,score\na,1.5\n"), testSchema(), 10)
		assert.ErrorContains(t, err, "required column 'id' not found")
	})
}

func TestReaderIsRestartable(t *testing.T) {
	path := writeArtifact(t, "id,name,score\n1,a,1.5\n2,b,2.5\n3,c,3.5\n")
	schema := testSchema()

	read := func() []*Batch {
		r, err := NewReader(path, schema, 2)
		require.NoError(t, err)
		defer r.Close()
		return drain(t, r)
	}

	first := read()
	second := read()
	assert.Equal(t, first, second)
}

func TestReaderRejectsBadBatchSize(t *testing.T) {
	_, err := NewReader(writeArtifact(t, "id\n1\n"), testSchema(), 0)
	assert.ErrorContains(t, err, "batch size")
}
