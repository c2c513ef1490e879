package rules

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

type aggregateCall struct {
	database   string
	collection string
	pipeline   []bson.D
}

// fakeDocuments answers aggregations per collection.
type fakeDocuments struct {
	results map[string][]models.ResourceRecord
	errs    map[string]error
	calls   []aggregateCall
	closed  int
}

func (f *fakeDocuments) Aggregate(ctx context.Context, database, collection string, pipeline []bson.D) ([]models.ResourceRecord, error) {
	f.calls = append(f.calls, aggregateCall{database, collection, pipeline})
	if err := f.errs[collection]; err != nil {
		return nil, err
	}
	return f.results[collection], nil
}

func (f *fakeDocuments) Close(ctx context.Context) error {
	f.closed++
	return nil
}

func (f *fakeDocuments) callsTo(collection string) []aggregateCall {
	var out []aggregateCall
	for _, c := range f.calls {
		if c.collection == collection {
			out = append(out, c)
		}
	}
	return out
}

type fakeStores struct {
	docs    *fakeDocuments
	lastArg models.ConnectionArgs
}

func (f *fakeStores) NewRelationalStore(ctx context.Context, args models.ConnectionArgs) (datasource.RelationalStore, error) {
	return nil, errors.New("not used")
}

func (f *fakeStores) NewDocumentStore(ctx context.Context, args models.ConnectionArgs) (datasource.DocumentStore, error) {
	f.lastArg = args
	return f.docs, nil
}

func rec(kv ...any) models.ResourceRecord {
	return models.NewResourceRecord(kv...)
}

// matchStage returns the $match document of the first pipeline stage.
func matchStage(call aggregateCall) bson.D {
	if len(call.pipeline) == 0 || len(call.pipeline[0]) == 0 || call.pipeline[0][0].Key != "$match" {
		return nil
	}
	d, _ := call.pipeline[0][0].Value.(bson.D)
	return d
}
