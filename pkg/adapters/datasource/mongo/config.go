package mongo

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/policy-interface/pkg/jsonutil"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// Config contains document store connection options.
type Config struct {
	Host         string
	Port         int
	Username     string
	Password     string
	AuthDatabase string
}

// DefaultPort returns the default MongoDB port.
func DefaultPort() int {
	return 27017
}

// FromArgs creates a Config from policy connection arguments.
func FromArgs(args models.ConnectionArgs) (*Config, error) {
	cfg := &Config{
		Host:         args.String("host"),
		Port:         DefaultPort(),
		Username:     args.String("username"),
		Password:     args.String("password"),
		AuthDatabase: args.String("auth_database"),
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if raw, ok := args["port"]; ok && raw != nil && raw != "" {
		port, ok := jsonutil.FlexibleInt(raw)
		if !ok || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port: %v", raw)
		}
		cfg.Port = port
	}
	return cfg, nil
}

// URI builds the connection URI. Credentials are only included when the
// username, password and authentication database are all present.
func (c *Config) URI() string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	if c.Username != "" && c.Password != "" && c.AuthDatabase != "" {
		u.User = url.UserPassword(c.Username, c.Password)
		u.Path = "/" + c.AuthDatabase
	}
	return u.String()
}
