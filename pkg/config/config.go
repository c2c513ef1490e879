// Package config loads process configuration from config.yaml with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for policy-interface.
// Environment variables always override YAML values.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"`

	Log     LogConfig     `yaml:"log"`
	Catalog CatalogConfig `yaml:"catalog"`
	Report  ReportConfig  `yaml:"report"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	AWS     AWSConfig     `yaml:"aws"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// CatalogConfig locates the live engine schema catalog. When Enabled is
// false only the bundled catalog is consulted.
type CatalogConfig struct {
	Enabled      bool   `yaml:"enabled" env:"CATALOG_ENABLED" env-default:"false"`
	Host         string `yaml:"host" env:"CATALOG_HOST" env-default:"localhost"`
	Port         int    `yaml:"port" env:"CATALOG_PORT" env-default:"27017"`
	Username     string `yaml:"username" env:"CATALOG_USERNAME" env-default:""`
	Password     string `yaml:"-" env:"CATALOG_PASSWORD"` // Secret - not in YAML
	AuthDatabase string `yaml:"auth_database" env:"CATALOG_AUTH_DATABASE" env-default:"admin"`
	Database     string `yaml:"database" env:"CATALOG_DATABASE" env-default:"heatstack"`
	Collection   string `yaml:"collection" env:"CATALOG_COLLECTION" env-default:"policy_rules"`
	GatewayHost  string `yaml:"gateway_host" env:"CATALOG_GATEWAY_HOST" env-default:"host.docker.internal"`
}

// ConnectionArgs returns the catalog location in the document-store
// connection argument form.
func (c *CatalogConfig) ConnectionArgs() map[string]any {
	return map[string]any{
		"host":          c.ResolvedHost(),
		"port":          c.Port,
		"username":      c.Username,
		"password":      c.Password,
		"auth_database": c.AuthDatabase,
	}
}

// ReportConfig names the report-store tables used around SQL dispatch.
type ReportConfig struct {
	ServiceAccountTable string `yaml:"service_account_table" env:"REPORT_SERVICE_ACCOUNT_TABLE" env-default:"report.ServiceAccount"`
	InventoryTable      string `yaml:"inventory_table" env:"REPORT_INVENTORY_TABLE" env-default:"report.ServiceResourceInventory"`
}

// ProxyConfig tunes the HTTP query proxy client.
type ProxyConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" env:"PROXY_TIMEOUT_SECONDS" env-default:"60"`
}

// Timeout returns the proxy timeout as a duration.
func (p *ProxyConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// AWSConfig controls cloud API calls made by managed routines.
type AWSConfig struct {
	EndpointConfigPath  string `yaml:"endpoint_config_path" env:"AWS_ENDPOINT_CONFIG_PATH" env-default:"/etc/corestack/corestack.conf"`
	ThrottleMaxAttempts int    `yaml:"throttle_max_attempts" env:"AWS_THROTTLE_MAX_ATTEMPTS" env-default:"15"`
	ThrottleStepSeconds int    `yaml:"throttle_step_seconds" env:"AWS_THROTTLE_STEP_SECONDS" env-default:"5"`
	MFAMaxAttempts      int    `yaml:"mfa_max_attempts" env:"AWS_MFA_MAX_ATTEMPTS" env-default:"5"`
	MFAWaitSeconds      int    `yaml:"mfa_wait_seconds" env:"AWS_MFA_WAIT_SECONDS" env-default:"10"`
}

// ThrottleStep returns the linear throttling backoff step.
func (a *AWSConfig) ThrottleStep() time.Duration {
	return time.Duration(a.ThrottleStepSeconds) * time.Second
}

// MFAWait returns the pause between MFA attempts.
func (a *AWSConfig) MFAWait() time.Duration {
	return time.Duration(a.MFAWaitSeconds) * time.Second
}

// MetricsConfig controls Prometheus instrumentation. Metrics are pushed to
// PushGatewayURL when it is set.
type MetricsConfig struct {
	Namespace      string `yaml:"namespace" env:"METRICS_NAMESPACE" env-default:"policy_interface"`
	PushGatewayURL string `yaml:"pushgateway_url" env:"METRICS_PUSHGATEWAY_URL" env-default:""`
	PushJob        string `yaml:"push_job" env:"METRICS_PUSH_JOB" env-default:"policy_interface"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error: defaults and the environment are used.
func Load(path, version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	cfg.Version = version

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Proxy.TimeoutSeconds <= 0 {
		return fmt.Errorf("proxy.timeout_seconds must be positive, got %d", c.Proxy.TimeoutSeconds)
	}
	if c.AWS.ThrottleMaxAttempts < 0 {
		return fmt.Errorf("aws.throttle_max_attempts must not be negative")
	}
	if c.Catalog.Enabled && (c.Catalog.Database == "" || c.Catalog.Collection == "") {
		return fmt.Errorf("catalog.database and catalog.collection are required when the catalog is enabled")
	}
	return nil
}
