package rules

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// Budget scopes.
const (
	ScopeAccount = "Account"
	ScopeRegion  = "Region"
)

// BudgetScopeCheck reports accounts that have budgets mapped to templates
// but none of those templates covers the given scope.
type BudgetScopeCheck struct {
	scope  string
	stores datasource.StoreFactory
	logger *zap.Logger
}

// NewBudgetScopeCheck creates a check for scope (ScopeAccount or ScopeRegion).
func NewBudgetScopeCheck(scope string, stores datasource.StoreFactory, logger *zap.Logger) *BudgetScopeCheck {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetScopeCheck{scope: scope, stores: stores, logger: logger}
}

// Execute evaluates the account as a single resource.
func (c *BudgetScopeCheck) Execute(ctx context.Context, execArgs *models.ExecutionArgs, connArgs models.ConnectionArgs) (*models.Result, error) {
	store, database, err := openDocumentStore(ctx, c.stores, connArgs)
	if err != nil {
		return nil, err
	}
	defer store.Close(ctx)

	accountID := execArgs.ServiceAccountID
	grouped, err := store.Aggregate(ctx, database, "budget", []bson.D{
		{{Key: "$match", Value: bson.D{
			{Key: "service_account_id", Value: accountID},
			{Key: "mapped_template_id", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: "NA"}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "mapped_template_ids", Value: bson.D{{Key: "$push", Value: bson.D{
				{Key: "$convert", Value: bson.D{
					{Key: "input", Value: "$mapped_template_id"},
					{Key: "to", Value: "objectId"},
					{Key: "onError", Value: "$$REMOVE"},
					{Key: "onNull", Value: "$$REMOVE"},
				}},
			}}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("query budget: %w", err)
	}

	result := &models.Result{EvaluatedResources: 1}
	if len(grouped) == 0 {
		return result, nil
	}

	ids, _ := field(grouped[0], "mapped_template_ids")
	templateIDs, _ := ids.([]any)
	if templateIDs == nil {
		templateIDs = []any{}
	}

	_, found, err := findOne(ctx, store, database, "budget_definition_template", bson.D{
		{Key: "_id", Value: bson.D{{Key: "$in", Value: templateIDs}}},
		{Key: "budget_scope", Value: c.scope},
	})
	if err != nil {
		return nil, err
	}
	if !found {
		c.logger.Debug("No budget template for scope",
			zap.String("service_account_id", accountID),
			zap.String("scope", c.scope))
		result.Violations = append(result.Violations, models.NewResourceRecord(
			"ResourceId", nil,
			"BudgetType", "COST",
			"Scope", c.scope,
			"ServiceAccountId", accountID,
			"ServiceAccountName", execArgs.ServiceAccountName,
		))
	}
	return result, nil
}
