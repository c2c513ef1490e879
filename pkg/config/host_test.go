package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatewayFor(t *testing.T) {
	tests := []struct {
		name          string
		host          string
		gateway       string
		containerized bool
		want          string
	}{
		{"outside a container", "localhost", "host.docker.internal", false, "localhost"},
		{"localhost in a container", "localhost", "host.docker.internal", true, "host.docker.internal"},
		{"uppercase localhost", "LocalHost", "host.docker.internal", true, "host.docker.internal"},
		{"ipv4 loopback", "127.0.0.1", "172.17.0.1", true, "172.17.0.1"},
		{"other ipv4 loopback", "127.0.1.1", "172.17.0.1", true, "172.17.0.1"},
		{"ipv6 loopback", "::1", "host.docker.internal", true, "host.docker.internal"},
		{"remote host", "mongo.internal", "host.docker.internal", true, "mongo.internal"},
		{"private address", "10.0.0.12", "host.docker.internal", true, "10.0.0.12"},
		{"gateway disabled", "localhost", "", true, "localhost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gatewayFor(tt.host, tt.gateway, tt.containerized))
		})
	}
}

func TestCatalogConfig_ResolvedHost(t *testing.T) {
	c := CatalogConfig{Host: "mongo.internal", GatewayHost: "host.docker.internal"}
	assert.Equal(t, "mongo.internal", c.ResolvedHost())

	c = CatalogConfig{Host: "localhost"}
	assert.Equal(t, "localhost", c.ResolvedHost())
}
