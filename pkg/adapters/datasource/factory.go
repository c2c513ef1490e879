package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// Adapter type names used by the built-in adapters.
const (
	TypeMSSQL    = "mssql"
	TypeSQLProxy = "sqlproxy"
	TypeMongoDB  = "mongodb"
)

// StoreFactory opens backend stores for a single policy execution.
type StoreFactory interface {
	// NewRelationalStore opens the SQL report store. Connection arguments
	// carrying execute_url select the HTTP proxy adapter.
	NewRelationalStore(ctx context.Context, args models.ConnectionArgs) (RelationalStore, error)

	// NewDocumentStore opens the document store.
	NewDocumentStore(ctx context.Context, args models.ConnectionArgs) (DocumentStore, error)
}

type registryFactory struct {
	logger *zap.Logger
}

// NewStoreFactory returns a factory that uses the global registry.
func NewStoreFactory(logger *zap.Logger) StoreFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registryFactory{logger: logger}
}

// RelationalAdapterType picks the relational adapter for the given arguments.
func RelationalAdapterType(args models.ConnectionArgs) string {
	if args.String("execute_url") != "" {
		return TypeSQLProxy
	}
	return TypeMSSQL
}

func (f *registryFactory) NewRelationalStore(ctx context.Context, args models.ConnectionArgs) (RelationalStore, error) {
	adapterType := RelationalAdapterType(args)
	factory := GetRelationalFactory(adapterType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported relational adapter: %s (not registered)", adapterType)
	}
	return factory(ctx, args, f.logger.Named(adapterType))
}

func (f *registryFactory) NewDocumentStore(ctx context.Context, args models.ConnectionArgs) (DocumentStore, error) {
	factory := GetDocumentFactory(TypeMongoDB)
	if factory == nil {
		return nil, fmt.Errorf("unsupported document adapter: %s (not registered)", TypeMongoDB)
	}
	return factory(ctx, args, f.logger.Named(TypeMongoDB))
}

// Ensure registryFactory implements StoreFactory at compile time.
var _ StoreFactory = (*registryFactory)(nil)
