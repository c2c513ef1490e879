package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/policy-interface/pkg/adapters/datasource/mongo"
	_ "github.com/ekaya-inc/policy-interface/pkg/adapters/datasource/mssql"
	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource/sqlproxy"
	"github.com/ekaya-inc/policy-interface/pkg/catalog"
	"github.com/ekaya-inc/policy-interface/pkg/cloud/aws"
	"github.com/ekaya-inc/policy-interface/pkg/config"
	"github.com/ekaya-inc/policy-interface/pkg/logging"
	"github.com/ekaya-inc/policy-interface/pkg/metrics"
	"github.com/ekaya-inc/policy-interface/pkg/models"
	"github.com/ekaya-inc/policy-interface/pkg/rules"
	"github.com/ekaya-inc/policy-interface/pkg/services"
)

// app holds the collaborators of one command invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	policies *services.PolicyInterface

	catalogStore datasource.DocumentStore
}

func newApp(ctx context.Context, flags *globalFlags, version string) (*app, error) {
	cfg, err := config.Load(flags.configPath, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger = logger.With(zap.String("version", cfg.Version), zap.String("env", cfg.Env))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m, err := metrics.New(cfg.Metrics.Namespace, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	sqlproxy.SetTimeout(cfg.Proxy.Timeout())
	stores := datasource.NewStoreFactory(logger.Named("datasource"))

	a := &app{cfg: cfg, logger: logger, registry: registry}

	static, err := catalog.LoadStatic()
	if err != nil {
		return nil, fmt.Errorf("failed to load bundled catalog: %w", err)
	}
	var live catalog.Store
	if cfg.Catalog.Enabled {
		store, err := stores.NewDocumentStore(ctx, models.ConnectionArgs(cfg.Catalog.ConnectionArgs()))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to catalog: %w", err)
		}
		a.catalogStore = store
		live = catalog.NewDocumentStoreCatalog(store, cfg.Catalog.Database, cfg.Catalog.Collection)
		logger.Info("Live catalog enabled",
			zap.String("host", cfg.Catalog.ResolvedHost()),
			zap.String("database", cfg.Catalog.Database),
			zap.String("collection", cfg.Catalog.Collection))
	}
	resolver := catalog.NewResolver(live, static, logger)

	endpoints := aws.NewEndpointResolver(cfg.AWS.EndpointConfigPath, logger)
	assumer := aws.NewSTSAssumer(aws.STSAssumerConfig{
		MFAMaxAttempts: cfg.AWS.MFAMaxAttempts,
		MFAWait:        cfg.AWS.MFAWait(),
	}, endpoints, m, logger)
	invoker := aws.NewInvoker(aws.InvokerConfig{
		MaxAttempts:  cfg.AWS.ThrottleMaxAttempts,
		ThrottleStep: cfg.AWS.ThrottleStep(),
	}, assumer, endpoints, m, logger)

	routines := rules.NewRegistry()
	rules.RegisterBuiltins(routines, rules.Deps{
		Stores: stores,
		AWS:    invoker,
		Now:    time.Now,
		Logger: logger,
	})

	dispatcher := services.NewDispatcher(services.DispatcherConfig{
		ServiceAccountTable: cfg.Report.ServiceAccountTable,
		InventoryTable:      cfg.Report.InventoryTable,
	}, routines, stores, m, logger)
	a.policies = services.NewPolicyInterface(services.NewPolicyValidator(resolver, logger), dispatcher, m, logger)

	return a, nil
}

// Close releases the catalog connection and pushes metrics when a push
// gateway is configured.
func (a *app) Close(ctx context.Context) {
	if a.catalogStore != nil {
		if err := a.catalogStore.Close(ctx); err != nil {
			a.logger.Warn("Failed to close catalog connection", zap.String("error", logging.SanitizeError(err)))
		}
	}
	if url := a.cfg.Metrics.PushGatewayURL; url != "" {
		if err := push.New(url, a.cfg.Metrics.PushJob).Gatherer(a.registry).PushContext(ctx); err != nil {
			a.logger.Warn("Failed to push metrics", zap.String("url", url), zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
