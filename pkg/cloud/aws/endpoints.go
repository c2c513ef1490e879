package aws

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-ini/ini"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultEndpointConfigPath is where private endpoint settings are read from.
const DefaultEndpointConfigPath = "/etc/corestack/corestack.conf"

const (
	sectionVPCEndpoint  = "vpc_endpoint"
	sectionInterfaceIDs = "interface_endpoint_identifier"
)

// EndpointResolver maps (service, region) to a VPC endpoint URL using the
// INI endpoint configuration. Any missing or malformed setting means the
// SDK default endpoint is used.
type EndpointResolver struct {
	path   string
	logger *zap.Logger

	once sync.Once
	file *ini.File
}

// NewEndpointResolver creates a resolver reading path on first use.
func NewEndpointResolver(path string, logger *zap.Logger) *EndpointResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EndpointResolver{path: path, logger: logger.Named("aws-endpoints")}
}

func (r *EndpointResolver) load() *ini.File {
	r.once.Do(func() {
		if r.path == "" {
			return
		}
		file, err := ini.LoadSources(ini.LoadOptions{
			AllowPythonMultilineValues: true,
			InsensitiveKeys:            true,
			SkipUnrecognizableLines:    true,
		}, r.path)
		if err != nil {
			r.logger.Debug("No endpoint configuration loaded", zap.String("path", r.path), zap.Error(err))
			return
		}
		r.file = file
	})
	return r.file
}

// Resolve returns the endpoint URL for service in region, or "" for the
// SDK default. An empty region is only meaningful for sts, which then uses
// DefaultSTSRegion.
func (r *EndpointResolver) Resolve(service, region string) string {
	if r == nil {
		return ""
	}
	file := r.load()
	if file == nil {
		return ""
	}
	endpoint, err := resolveEndpoint(file, service, region)
	if err != nil {
		r.logger.Debug("Ignoring endpoint configuration",
			zap.String("service", service),
			zap.String("region", region),
			zap.Error(err))
		return ""
	}
	return endpoint
}

func resolveEndpoint(file *ini.File, service, region string) (string, error) {
	vpc, err := file.GetSection(sectionVPCEndpoint)
	if err != nil {
		return "", err
	}
	enabled, err := boolKey(vpc, "enabled")
	if err != nil {
		return "", err
	}
	privateDNS, err := boolKey(vpc, "private_dns_enabled")
	if err != nil {
		return "", err
	}

	if service == "sts" && region == "" {
		region = DefaultSTSRegion
	}
	if service == "" || region == "" {
		return "", nil
	}

	if enabled && privateDNS {
		return fmt.Sprintf("https://%s.%s.amazonaws.com", service, region), nil
	}
	if !enabled || !vpc.HasKey("interface_supported_endpoints") {
		return "", nil
	}
	if !containsService(vpc.Key("interface_supported_endpoints").String(), service) {
		return "", nil
	}

	ids, err := file.GetSection(sectionInterfaceIDs)
	if err != nil {
		return "", err
	}
	if !ids.HasKey(service) {
		return "", nil
	}
	var byRegion map[string]string
	if err := yaml.Unmarshal([]byte(ids.Key(service).String()), &byRegion); err != nil {
		return "", fmt.Errorf("parse %s.%s: %w", sectionInterfaceIDs, service, err)
	}
	id := byRegion[region]
	if id == "" {
		return "", nil
	}
	return fmt.Sprintf("https://%s.%s.%s.vpce.amazonaws.com", id, service, region), nil
}

func boolKey(section *ini.Section, name string) (bool, error) {
	if !section.HasKey(name) {
		return false, fmt.Errorf("%s.%s is not set", section.Name(), name)
	}
	return strconv.ParseBool(strings.ToLower(strings.TrimSpace(section.Key(name).String())))
}

// containsService matches service against a comma or whitespace separated list.
func containsService(list, service string) bool {
	for _, s := range strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '[' || r == ']' || r == '"' || r == '\''
	}) {
		if s == service {
			return true
		}
	}
	return false
}
