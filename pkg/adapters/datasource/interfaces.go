package datasource

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// RelationalStore executes report-store commands.
// Each implementation owns its connection and must be closed when done.
type RelationalStore interface {
	// Execute runs a command and returns the rows of every result set it
	// produced, concatenated in order.
	Execute(ctx context.Context, command string) ([]models.ResourceRecord, error)

	// Close releases the connection.
	Close() error
}

// DocumentStore runs aggregation pipelines against a document database.
// Each implementation owns its client and must be closed when done.
type DocumentStore interface {
	// Aggregate runs pipeline against database.collection. Returned records
	// keep the field order of the stored documents.
	Aggregate(ctx context.Context, database, collection string, pipeline []bson.D) ([]models.ResourceRecord, error)

	// Close disconnects the client.
	Close(ctx context.Context) error
}
