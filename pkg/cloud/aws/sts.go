package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/metrics"
)

// RoleAssumer exchanges long-lived assume-role keys for session credentials.
type RoleAssumer interface {
	AssumeRole(ctx context.Context, creds Credentials) (Credentials, error)
}

// STSClient is the subset of the STS API used for role assumption.
type STSClient interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// STSAssumerConfig tunes MFA handling.
type STSAssumerConfig struct {
	MFAMaxAttempts int
	MFAWait        time.Duration
}

// STSAssumer implements RoleAssumer with STS AssumeRole. When MFA is
// enabled a TOTP code is generated from the device secret; a rejected code
// is retried once the authenticator has rolled over to a new one.
type STSAssumer struct {
	cfg       STSAssumerConfig
	endpoints *EndpointResolver
	metrics   *metrics.Metrics
	logger    *zap.Logger

	newClient func(awssdk.Config) STSClient
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewSTSAssumer creates an assumer backed by the AWS STS client.
func NewSTSAssumer(cfg STSAssumerConfig, endpoints *EndpointResolver, m *metrics.Metrics, logger *zap.Logger) *STSAssumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MFAMaxAttempts <= 0 {
		cfg.MFAMaxAttempts = 5
	}
	if cfg.MFAWait <= 0 {
		cfg.MFAWait = 10 * time.Second
	}
	return &STSAssumer{
		cfg:       cfg,
		endpoints: endpoints,
		metrics:   m,
		logger:    logger.Named("sts"),
		newClient: func(c awssdk.Config) STSClient { return sts.NewFromConfig(c) },
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// AssumeRole returns creds with the session credentials of the assumed role.
func (a *STSAssumer) AssumeRole(ctx context.Context, creds Credentials) (Credentials, error) {
	if !creds.CanAssumeRole() {
		return Credentials{}, fmt.Errorf("credentials are expired and no assume role configuration is available")
	}

	region := creds.AssumeRoleRegion
	if region == "" {
		region = DefaultSTSRegion
	}
	cfg := awssdk.Config{
		Region:      region,
		Credentials: staticProvider(creds.AssumeRoleAccessKey, creds.AssumeRoleSecretKey, ""),
	}
	if endpoint := a.endpoints.Resolve("sts", region); endpoint != "" {
		cfg.BaseEndpoint = awssdk.String(endpoint)
	}
	client := a.newClient(cfg)

	input := &sts.AssumeRoleInput{
		RoleArn:         awssdk.String(creds.AssumeRoleARN),
		RoleSessionName: awssdk.String(creds.SessionName()),
	}
	if creds.AssumeRoleExternalID != "" {
		input.ExternalId = awssdk.String(creds.AssumeRoleExternalID)
	}
	if creds.MFAEnabled {
		code, err := totp.GenerateCode(creds.MFADeviceSecret, a.now())
		if err != nil {
			return Credentials{}, fmt.Errorf("generate MFA code: %w", err)
		}
		input.SerialNumber = awssdk.String(creds.MFADeviceID)
		input.TokenCode = awssdk.String(code)
	}

	retries := a.cfg.MFAMaxAttempts
	for {
		out, err := client.AssumeRole(ctx, input)
		if err == nil {
			if out.Credentials == nil {
				return Credentials{}, fmt.Errorf("assume role %s returned no credentials", creds.AssumeRoleARN)
			}
			a.logger.Info("Assumed role",
				zap.String("role_arn", creds.AssumeRoleARN),
				zap.String("session_name", creds.SessionName()))
			return creds.WithSession(
				awssdk.ToString(out.Credentials.AccessKeyId),
				awssdk.ToString(out.Credentials.SecretAccessKey),
				awssdk.ToString(out.Credentials.SessionToken),
			), nil
		}

		if !creds.MFAEnabled || !isMFAFailure(err) || retries <= 0 {
			return Credentials{}, fmt.Errorf("assume role %s: %w", creds.AssumeRoleARN, err)
		}
		retries--
		a.metrics.RecordCloudRetry("mfa")

		code, err := a.nextCode(ctx, creds.MFADeviceSecret, awssdk.ToString(input.TokenCode))
		if err != nil {
			return Credentials{}, err
		}
		input.TokenCode = awssdk.String(code)
	}
}

// nextCode waits until the authenticator yields a code different from previous.
func (a *STSAssumer) nextCode(ctx context.Context, secret, previous string) (string, error) {
	for {
		code, err := totp.GenerateCode(secret, a.now())
		if err != nil {
			return "", fmt.Errorf("generate MFA code: %w", err)
		}
		if code != previous {
			return code, nil
		}
		if err := a.sleep(ctx, a.cfg.MFAWait); err != nil {
			return "", err
		}
	}
}

func isMFAFailure(err error) bool {
	return strings.Contains(err.Error(), "MultiFactorAuthentication failed")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
