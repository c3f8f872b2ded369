package load

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/datapress/ingest/internal/transform"
	"github.com/datapress/ingest/pkg/models"
)

// MongoLoader writes batches into a MongoDB collection, the
// supplementary non-relational target. Replace mode drops the
// collection up front; upsert mode bulk-writes keyed update models.
type MongoLoader struct {
	client     *mongo.Client
	database   string
	collection string
	schema     *models.Schema
	mode       Mode
}

func NewMongoLoader(client *mongo.Client, database, collection string, schema *models.Schema) *MongoLoader {
	return &MongoLoader{
		client:     client,
		database:   database,
		collection: collection,
		schema:     schema,
	}
}

func (m *MongoLoader) coll() *mongo.Collection {
	return m.client.Database(m.database).Collection(m.collection)
}

func (m *MongoLoader) Prepare(ctx context.Context, mode Mode) error {
	if mode == ModeUpsert && len(m.schema.Keys) == 0 {
		return fmt.Errorf("upsert mode requires key columns in the schema")
	}
	m.mode = mode

	if mode == ModeReplace {
		if err := m.coll().Drop(ctx); err != nil {
			return fmt.Errorf("dropping collection %s: %w", m.collection, err)
		}
	}
	return nil
}

func (m *MongoLoader) Load(ctx context.Context, batch *transform.Batch) error {
	if m.mode == ModeUpsert {
		return m.upsert(ctx, batch)
	}

	docs := make([]interface{}, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		docs = append(docs, m.document(row))
	}

	// Ordered insert keeps source-file order within the batch.
	if _, err := m.coll().InsertMany(ctx, docs); err != nil {
		return &WriteError{Offset: batch.Offset, Err: err}
	}
	return nil
}

func (m *MongoLoader) upsert(ctx context.Context, batch *transform.Batch) error {
	keyIdx := m.schema.KeyIndexes()

	writes := make([]mongo.WriteModel, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		doc := m.document(row)

		filter := bson.M{}
		for _, i := range keyIdx {
			filter[m.schema.Columns[i].Name] = row[i]
		}

		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	if _, err := m.coll().BulkWrite(ctx, writes); err != nil {
		return &WriteError{Offset: batch.Offset, Err: err}
	}
	return nil
}

func (m *MongoLoader) document(row transform.Row) bson.M {
	doc := bson.M{}
	for i, col := range m.schema.Columns {
		doc[col.Name] = row[i]
	}
	return doc
}

func (m *MongoLoader) Close() error {
	return m.client.Disconnect(context.Background())
}
