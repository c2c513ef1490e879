package aws

import (
	"context"
	"errors"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/logging"
	"github.com/ekaya-inc/policy-interface/pkg/metrics"
	"github.com/ekaya-inc/policy-interface/pkg/retry"
)

// Call performs one AWS operation with a ready SDK configuration.
type Call func(ctx context.Context, cfg awssdk.Config) error

// InvokerConfig tunes throttling retries.
type InvokerConfig struct {
	// MaxAttempts caps the number of calls made for a throttled operation.
	MaxAttempts int
	// ThrottleStep is the linear backoff unit: the n-th retry waits n*ThrottleStep.
	ThrottleStep time.Duration
}

// Invoker runs AWS operations for an account.
type Invoker struct {
	throttle  retry.Linear
	assumer   RoleAssumer
	endpoints *EndpointResolver
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewInvoker creates an invoker. assumer may be nil, in which case expired
// credentials are reported as errors.
func NewInvoker(cfg InvokerConfig, assumer RoleAssumer, endpoints *EndpointResolver, m *metrics.Metrics, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 15
	}
	if cfg.ThrottleStep <= 0 {
		cfg.ThrottleStep = 5 * time.Second
	}
	return &Invoker{
		throttle:  retry.Linear{MaxAttempts: cfg.MaxAttempts - 1, Step: cfg.ThrottleStep},
		assumer:   assumer,
		endpoints: endpoints,
		metrics:   m,
		logger:    logger.Named("aws"),
	}
}

// Config builds the SDK configuration for service in region. SDK-level
// retries are disabled; throttling is handled by Invoke.
func (i *Invoker) Config(creds Credentials, service, region string) awssdk.Config {
	resolved, explicit := creds.region(region)
	cfg := awssdk.Config{
		Region:      resolved,
		Credentials: staticProvider(creds.AccessKey, creds.SecretKey, creds.SessionToken),
		Retryer:     func() awssdk.Retryer { return awssdk.NopRetryer{} },
	}
	if explicit {
		if endpoint := i.endpoints.Resolve(service, resolved); endpoint != "" {
			cfg.BaseEndpoint = awssdk.String(endpoint)
		}
	}
	return cfg
}

// Invoke runs call, retrying throttled attempts with linear backoff. When
// the account's session credentials have expired, fresh credentials are
// obtained from the role assumer and the call is retried with them. The
// credentials that were finally used are returned so callers can reuse them.
func (i *Invoker) Invoke(ctx context.Context, creds Credentials, service, region string, call Call) (Credentials, error) {
	err := i.run(ctx, creds, service, region, call)
	if err == nil || !IsExpiredToken(err) || i.assumer == nil {
		return creds, err
	}

	i.logger.Info("Credentials expired, assuming role",
		zap.String("service", service),
		zap.String("region", region),
		zap.String("error", logging.SanitizeError(err)))
	i.metrics.RecordCloudRetry("expired_token")

	fresh, aerr := i.assumer.AssumeRole(ctx, creds)
	if aerr != nil {
		return creds, aerr
	}
	return fresh, i.run(ctx, fresh, service, region, call)
}

func (i *Invoker) run(ctx context.Context, creds Credentials, service, region string, call Call) error {
	cfg := i.Config(creds, service, region)
	return i.throttle.Do(ctx, func(err error) bool {
		if !IsThrottling(err) {
			return false
		}
		i.metrics.RecordCloudRetry("throttled")
		i.logger.Debug("Request throttled", zap.String("service", service))
		return true
	}, func() error {
		return call(ctx, cfg)
	})
}

// WithSleep replaces the throttling wait, for tests.
func (i *Invoker) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Invoker {
	i.throttle.Sleep = sleep
	return i
}

var expiredCodes = []string{"ExpiredToken", "RequestExpired", "ExpiredTokenException"}

// IsExpiredToken reports whether err says the session credentials expired.
func IsExpiredToken(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		for _, code := range expiredCodes {
			if apiErr.ErrorCode() == code {
				return true
			}
		}
	}
	msg := err.Error()
	for _, code := range expiredCodes {
		if strings.Contains(msg, "("+code+")") {
			return true
		}
	}
	return false
}

// IsThrottling reports whether err is a provider rate-limit rejection.
func IsThrottling(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.ErrorCode(), "Throttling") {
		return true
	}
	return strings.Contains(err.Error(), "Throttling")
}
