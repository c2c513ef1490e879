package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/apperrors"
	"github.com/ekaya-inc/policy-interface/pkg/metrics"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// PolicyInterface is the entry point callers use to validate and run policies.
type PolicyInterface struct {
	validator  *PolicyValidator
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewPolicyInterface wires a validator and a dispatcher together.
func NewPolicyInterface(validator *PolicyValidator, dispatcher *Dispatcher, m *metrics.Metrics, logger *zap.Logger) *PolicyInterface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyInterface{
		validator:  validator,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.Named("policy-interface"),
	}
}

// Validate checks the policy document, resolves its engine schema and then
// checks the execution and connection arguments against it. The returned
// result can be handed to ExecutePolicy to skip revalidating the document.
func (p *PolicyInterface) Validate(ctx context.Context, policy *models.PolicyDocument, execArgs *models.ExecutionArgs, connArgs models.ConnectionArgs) (*ValidationResult, error) {
	vr, err := p.validator.ValidatePolicy(ctx, policy)
	if err == nil {
		err = ValidateExecutionArgs(policy, execArgs)
	}
	if err == nil {
		err = ValidateConnectionArgs(vr.QuerySource, connArgs)
	}
	if err != nil {
		p.metrics.RecordValidationFailure(string(apperrors.CodeOf(err)))
		p.logger.Debug("Policy rejected",
			zap.String("code", string(apperrors.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}
	return vr, nil
}

// ExecutePolicy runs the policy. When pre is nil the policy is validated
// first; otherwise only the execution and connection arguments are checked
// again before dispatch.
func (p *PolicyInterface) ExecutePolicy(ctx context.Context, policy *models.PolicyDocument, execArgs *models.ExecutionArgs, connArgs models.ConnectionArgs, pre *ValidationResult) (*models.Result, error) {
	if pre == nil {
		vr, err := p.Validate(ctx, policy, execArgs, connArgs)
		if err != nil {
			return nil, err
		}
		pre = vr
	}
	return p.dispatcher.Execute(ctx, pre, policy, execArgs, connArgs)
}
