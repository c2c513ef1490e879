package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        datasource.TypeMSSQL,
			DisplayName: "Microsoft SQL Server",
			Description: "Direct connection to the SQL Server report store",
		},
		RelationalFactory: func(ctx context.Context, args models.ConnectionArgs, logger *zap.Logger) (datasource.RelationalStore, error) {
			cfg, err := FromArgs(args)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, logger)
		},
	})
}
