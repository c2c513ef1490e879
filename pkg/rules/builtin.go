package rules

import (
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
)

// Deps are the collaborators of the built-in routines.
type Deps struct {
	Stores datasource.StoreFactory
	AWS    AWSInvoker
	Now    func() time.Time
	Logger *zap.Logger
}

// RegisterBuiltins registers the routines shipped with the engine.
func RegisterBuiltins(r *Registry, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("rules")

	r.Register("aws_budgets.AwsAccountLevelBudget", NewBudgetScopeCheck(ScopeAccount, deps.Stores, logger))
	r.Register("aws_budgets.AwsRegionLevelBudget", NewBudgetScopeCheck(ScopeRegion, deps.Stores, logger))
	r.Register("actual_amount_exceeded_budget", NewCostThresholdCheck(CostActual, deps.Stores, deps.Now, logger))
	r.Register("forecasted_amount_exceeded_budget", NewCostThresholdCheck(CostForecast, deps.Stores, deps.Now, logger))
	r.Register("aws_audit_iam_passwordpolicy_does_not_prevent_passwordreuse", NewPasswordReuseCheck(deps.AWS, logger))
}
