// Package aws runs AWS API operations for managed routines: it builds SDK
// configuration from account credentials, resolves private endpoints,
// retries throttled calls and refreshes expired credentials through STS.
package aws

import (
	"fmt"
	"strconv"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// CloudType selects the AWS partition.
type CloudType string

const (
	CloudStandard CloudType = "aws_standard"
	CloudGov      CloudType = "aws_gov_cloud"
)

// Default regions.
const (
	DefaultRegion    = "us-east-1"
	DefaultGovRegion = "us-gov-west-1"
	DefaultSTSRegion = "us-east-1"
)

// Credentials is an account's AWS access material as supplied in
// auth_values. The value is never mutated; refreshed credentials are
// returned as a new value.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	CloudType    CloudType

	AssumeRoleARN        string
	AssumeRoleExternalID string
	AssumeRoleRegion     string
	AssumeRoleAccessKey  string
	AssumeRoleSecretKey  string

	MFAEnabled      bool
	MFADeviceID     string
	MFADeviceSecret string
}

// CredentialsFromAuthValues reads credentials from execution auth_values.
func CredentialsFromAuthValues(values map[string]any) (Credentials, error) {
	str := func(key string) string {
		v, ok := values[key]
		if !ok || v == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}

	creds := Credentials{
		AccessKey:            str("access_key"),
		SecretKey:            str("secret_key"),
		SessionToken:         str("session_token"),
		CloudType:            CloudType(str("cloud_type")),
		AssumeRoleARN:        str("assume_role_arn"),
		AssumeRoleExternalID: str("assume_role_external_id"),
		AssumeRoleRegion:     str("assume_role_region"),
		AssumeRoleAccessKey:  str("assume_role_access_key"),
		AssumeRoleSecretKey:  str("assume_role_secret_key"),
		MFAEnabled:           flag(values["assume_role_mfa_enabled"]),
		MFADeviceID:          str("assume_role_mfa_device_id"),
		MFADeviceSecret:      str("assume_role_mfa_device_secret"),
	}
	if creds.CloudType == "" {
		creds.CloudType = CloudStandard
	}
	if creds.AssumeRoleRegion == "" {
		creds.AssumeRoleRegion = DefaultSTSRegion
	}

	if creds.CloudType != CloudStandard && creds.CloudType != CloudGov {
		return Credentials{}, fmt.Errorf("unsupported cloud_type %q (expected %s or %s)", creds.CloudType, CloudStandard, CloudGov)
	}
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return Credentials{}, fmt.Errorf("auth_values must include access_key and secret_key")
	}
	return creds, nil
}

// CanAssumeRole reports whether the credentials carry what STS AssumeRole needs.
func (c Credentials) CanAssumeRole() bool {
	return c.AssumeRoleARN != "" && c.AssumeRoleAccessKey != "" && c.AssumeRoleSecretKey != ""
}

// SessionName is the last path segment of the role ARN.
func (c Credentials) SessionName() string {
	parts := strings.Split(c.AssumeRoleARN, "/")
	return parts[len(parts)-1]
}

// WithSession returns a copy carrying temporary session credentials.
func (c Credentials) WithSession(accessKey, secretKey, sessionToken string) Credentials {
	c.AccessKey = accessKey
	c.SecretKey = secretKey
	c.SessionToken = sessionToken
	return c
}

// region returns the region to call and whether it should be used for
// endpoint resolution. Gov-cloud accounts default to DefaultGovRegion.
func (c Credentials) region(requested string) (string, bool) {
	if requested != "" {
		return requested, true
	}
	if c.CloudType == CloudGov {
		return DefaultGovRegion, true
	}
	return DefaultRegion, false
}

// flag reads a boolean auth value. Strings are parsed as booleans, so
// "false" and "0" disable the option.
func flag(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return models.Truthy(v)
	}
}

func staticProvider(accessKey, secretKey, sessionToken string) awssdk.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(accessKey, secretKey, sessionToken)
}
