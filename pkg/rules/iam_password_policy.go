package rules

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"go.uber.org/zap"

	cloudaws "github.com/ekaya-inc/policy-interface/pkg/cloud/aws"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// AWSInvoker runs AWS operations with retry and credential refresh.
type AWSInvoker interface {
	Invoke(ctx context.Context, creds cloudaws.Credentials, service, region string, call cloudaws.Call) (cloudaws.Credentials, error)
}

// IAMClient is the subset of the IAM API used by routines.
type IAMClient interface {
	GetAccountPasswordPolicy(ctx context.Context, params *iam.GetAccountPasswordPolicyInput, optFns ...func(*iam.Options)) (*iam.GetAccountPasswordPolicyOutput, error)
}

// PasswordReuseCheck reports AWS accounts whose IAM password policy does
// not prevent password reuse. An account without any password policy is
// reported as well.
type PasswordReuseCheck struct {
	invoker   AWSInvoker
	newClient func(awssdk.Config) IAMClient
	logger    *zap.Logger
}

// NewPasswordReuseCheck creates the check.
func NewPasswordReuseCheck(invoker AWSInvoker, logger *zap.Logger) *PasswordReuseCheck {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordReuseCheck{
		invoker:   invoker,
		newClient: func(cfg awssdk.Config) IAMClient { return iam.NewFromConfig(cfg) },
		logger:    logger,
	}
}

// Execute reads the account password policy.
func (c *PasswordReuseCheck) Execute(ctx context.Context, execArgs *models.ExecutionArgs, _ models.ConnectionArgs) (*models.Result, error) {
	if c.invoker == nil {
		return nil, fmt.Errorf("no AWS invoker configured")
	}
	creds, err := cloudaws.CredentialsFromAuthValues(execArgs.AuthValues)
	if err != nil {
		return nil, err
	}

	var policy *iamtypes.PasswordPolicy
	noPolicy := false
	_, err = c.invoker.Invoke(ctx, creds, "iam", "", func(ctx context.Context, cfg awssdk.Config) error {
		out, err := c.newClient(cfg).GetAccountPasswordPolicy(ctx, &iam.GetAccountPasswordPolicyInput{})
		if err != nil {
			var nse *iamtypes.NoSuchEntityException
			if errors.As(err, &nse) {
				noPolicy = true
				return nil
			}
			return err
		}
		policy = out.PasswordPolicy
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get account password policy: %w", err)
	}

	result := &models.Result{}
	if noPolicy || policy == nil || policy.PasswordReusePrevention == nil {
		c.logger.Debug("Password reuse not prevented",
			zap.String("service_account_id", execArgs.ServiceAccountID),
			zap.Bool("no_policy", noPolicy))
		result.EvaluatedResources = 1
		result.Violations = append(result.Violations, models.NewResourceRecord(
			"ResourceId", execArgs.ServiceAccountID,
			"ResourceName", execArgs.ServiceAccountName,
			"Resource", "Accounts",
			"ResourceType", "AWS_Organizations",
			"ResourceCategory", "Governance",
		))
	}
	return result, nil
}
