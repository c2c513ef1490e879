package config

import (
	"net"
	"os"
	"strings"
	"sync"
)

// containerMarker is created at the filesystem root by the container runtime.
const containerMarker = "/.dockerenv"

var inContainer = sync.OnceValue(func() bool {
	_, err := os.Stat(containerMarker)
	return err == nil
})

// ResolvedHost returns the host used to dial the catalog. Inside a
// container a loopback host names the container itself, so it is replaced
// by GatewayHost. An empty GatewayHost keeps Host as configured.
func (c *CatalogConfig) ResolvedHost() string {
	return gatewayFor(c.Host, c.GatewayHost, inContainer())
}

func gatewayFor(host, gateway string, containerized bool) string {
	if !containerized || gateway == "" || !isLoopback(host) {
		return host
	}
	return gateway
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
