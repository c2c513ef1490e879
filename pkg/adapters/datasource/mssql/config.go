package mssql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/policy-interface/pkg/jsonutil"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// Config contains SQL Server connection options for the report store.
type Config struct {
	Server   string
	Port     int
	Database string
	User     string
	Password string

	ConnectionTimeout int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromArgs creates a Config from policy connection arguments.
// A server written as "host,port" carries its own port.
func FromArgs(args models.ConnectionArgs) (*Config, error) {
	cfg := &Config{
		Server:            args.String("server"),
		Port:              DefaultPort(),
		Database:          args.String("database"),
		User:              args.String("user"),
		Password:          args.String("password"),
		ConnectionTimeout: DefaultConnectionTimeout(),
	}

	if host, port, ok := strings.Cut(cfg.Server, ","); ok {
		p, err := strconv.Atoi(strings.TrimSpace(port))
		if err != nil {
			return nil, fmt.Errorf("invalid port in server %q", cfg.Server)
		}
		cfg.Server = strings.TrimSpace(host)
		cfg.Port = p
	}

	if raw, ok := args["port"]; ok && raw != nil && raw != "" {
		port, ok := jsonutil.FlexibleInt(raw)
		if !ok {
			return nil, fmt.Errorf("invalid port: %v", raw)
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required fields are present.
func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}
