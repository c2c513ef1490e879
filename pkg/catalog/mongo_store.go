package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// Default location of the live catalog.
const (
	DefaultDatabase   = "heatstack"
	DefaultCollection = "policy_rules"
)

// DocumentStoreCatalog reads engine schemas from a document-store collection.
type DocumentStoreCatalog struct {
	store      datasource.DocumentStore
	database   string
	collection string
}

// NewDocumentStoreCatalog creates a live catalog over store. Empty names use
// DefaultDatabase and DefaultCollection.
func NewDocumentStoreCatalog(store datasource.DocumentStore, database, collection string) *DocumentStoreCatalog {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &DocumentStoreCatalog{store: store, database: database, collection: collection}
}

// FindByName returns the first catalog document named name.
func (c *DocumentStoreCatalog) FindByName(ctx context.Context, name string) (*models.EngineSchema, bool, error) {
	pipeline := []bson.D{
		{{Key: "$match", Value: bson.D{{Key: "name", Value: name}}}},
		{{Key: "$limit", Value: 1}},
	}
	records, err := c.store.Aggregate(ctx, c.database, c.collection, pipeline)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}

	data, err := json.Marshal(records[0])
	if err != nil {
		return nil, false, fmt.Errorf("encode catalog document: %w", err)
	}
	var schema models.EngineSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, false, fmt.Errorf("decode catalog document %q: %w", name, err)
	}
	return &schema, true, nil
}

// Ensure DocumentStoreCatalog implements Store at compile time.
var _ Store = (*DocumentStoreCatalog)(nil)
