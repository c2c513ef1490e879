package mongo

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        datasource.TypeMongoDB,
			DisplayName: "MongoDB",
			Description: "Document store for aggregation policies and the policy catalog",
		},
		DocumentFactory: func(ctx context.Context, args models.ConnectionArgs, logger *zap.Logger) (datasource.DocumentStore, error) {
			cfg, err := FromArgs(args)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, logger)
		},
	})
}
