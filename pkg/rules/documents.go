package rules

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// openDocumentStore opens the document store named by the connection
// arguments and returns it with the database the routine should read.
func openDocumentStore(ctx context.Context, stores datasource.StoreFactory, connArgs models.ConnectionArgs) (datasource.DocumentStore, string, error) {
	database := connArgs.String("database_name")
	if database == "" {
		return nil, "", fmt.Errorf("connection args do not name a database")
	}
	store, err := stores.NewDocumentStore(ctx, connArgs)
	if err != nil {
		return nil, "", fmt.Errorf("open document store: %w", err)
	}
	return store, database, nil
}

// findOne returns the first document of collection matching filter.
func findOne(ctx context.Context, store datasource.DocumentStore, database, collection string, filter bson.D) (models.ResourceRecord, bool, error) {
	records, err := store.Aggregate(ctx, database, collection, []bson.D{
		{{Key: "$match", Value: filter}},
		{{Key: "$limit", Value: 1}},
	})
	if err != nil {
		return nil, false, fmt.Errorf("query %s: %w", collection, err)
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

// find returns every document of collection matching filter.
func find(ctx context.Context, store datasource.DocumentStore, database, collection string, filter bson.D) ([]models.ResourceRecord, error) {
	records, err := store.Aggregate(ctx, database, collection, []bson.D{
		{{Key: "$match", Value: filter}},
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return records, nil
}

// field walks nested records along path.
func field(rec models.ResourceRecord, path ...string) (any, bool) {
	var cur any = rec
	for _, key := range path {
		r, ok := cur.(models.ResourceRecord)
		if !ok || r == nil {
			return nil, false
		}
		cur, ok = r.Get(key)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// records returns the nested records of an array field.
func records(rec models.ResourceRecord, path ...string) []models.ResourceRecord {
	v, ok := field(rec, path...)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]models.ResourceRecord, 0, len(items))
	for _, item := range items {
		if r, ok := item.(models.ResourceRecord); ok {
			out = append(out, r)
		}
	}
	return out
}
