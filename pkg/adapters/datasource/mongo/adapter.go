// Package mongo implements the document store over the official MongoDB driver.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/logging"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// Adapter runs aggregation pipelines against one MongoDB deployment.
type Adapter struct {
	client *mongodriver.Client
	logger *zap.Logger
}

// NewAdapter connects to MongoDB and verifies the deployment is reachable.
func NewAdapter(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(cfg.URI()))
	if err != nil {
		return nil, fmt.Errorf("connect to document store: %s", logging.SanitizeError(err))
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("connection test failed: %s", logging.SanitizeError(err))
	}

	logger.Debug("Opened document store connection",
		zap.String("uri", logging.SanitizeConnectionString(cfg.URI())))

	return &Adapter{client: client, logger: logger}, nil
}

// Aggregate runs pipeline against database.collection with disk use allowed.
func (a *Adapter) Aggregate(ctx context.Context, database, collection string, pipeline []bson.D) ([]models.ResourceRecord, error) {
	coll := a.client.Database(database).Collection(collection)

	cursor, err := coll.Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s.%s: %w", database, collection, err)
	}
	defer cursor.Close(ctx)

	records := make([]models.ResourceRecord, 0)
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		records = append(records, DocumentToRecord(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursor: %w", err)
	}

	a.logger.Debug("Aggregation complete",
		zap.String("database", database),
		zap.String("collection", collection),
		zap.Int("stages", len(pipeline)),
		zap.Int("documents", len(records)))
	return records, nil
}

// Close disconnects the client.
func (a *Adapter) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

// DocumentToRecord converts a decoded document into an ordered record.
// Nested documents become ordered records, arrays become []any and BSON
// dates become time.Time.
func DocumentToRecord(doc bson.D) models.ResourceRecord {
	rec := models.NewResourceRecord()
	for _, elem := range doc {
		rec.Set(elem.Key, convertValue(elem.Value))
	}
	return rec
}

func convertValue(v any) any {
	switch t := v.(type) {
	case bson.D:
		return DocumentToRecord(t)
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = convertValue(item)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}

// Ensure Adapter implements DocumentStore at compile time.
var _ datasource.DocumentStore = (*Adapter)(nil)
