package sqlproxy

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

var requestTimeout atomic.Int64

// SetTimeout sets the request timeout used by registry-created clients.
// Non-positive values restore DefaultTimeout.
func SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	requestTimeout.Store(int64(d))
}

func timeout() time.Duration {
	if d := requestTimeout.Load(); d > 0 {
		return time.Duration(d)
	}
	return DefaultTimeout
}

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        datasource.TypeSQLProxy,
			DisplayName: "SQL Server (HTTP proxy)",
			Description: "Report store reached through an execute_url endpoint",
		},
		RelationalFactory: func(ctx context.Context, args models.ConnectionArgs, logger *zap.Logger) (datasource.RelationalStore, error) {
			cfg, err := FromArgs(args)
			if err != nil {
				return nil, err
			}
			return NewClient(cfg, &http.Client{Timeout: timeout()}, logger), nil
		},
	})
}
