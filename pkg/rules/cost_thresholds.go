package rules

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/jsonutil"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// ServiceAWS is the service_name of AWS accounts. AWS budgets store their
// period upper-cased; other providers use title case.
const ServiceAWS = "AWS"

const (
	actualOverrunPercent   = 30.0
	forecastOverrunPercent = 50.0
)

// CostMode selects which spend figure a CostThresholdCheck compares.
type CostMode int

const (
	// CostActual compares last month's total cost against each budget.
	CostActual CostMode = iota
	// CostForecast compares this month's projected cost against each budget.
	CostForecast
)

// CostThresholdCheck reports monthly budgets whose spend exceeded the budget
// by more than a fixed margin. Every active monthly budget is an evaluated
// resource.
type CostThresholdCheck struct {
	mode   CostMode
	stores datasource.StoreFactory
	now    func() time.Time
	logger *zap.Logger
}

// NewCostThresholdCheck creates a check. now defaults to time.Now.
func NewCostThresholdCheck(mode CostMode, stores datasource.StoreFactory, now func() time.Time, logger *zap.Logger) *CostThresholdCheck {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostThresholdCheck{mode: mode, stores: stores, now: now, logger: logger}
}

// Execute evaluates the account's active monthly budgets.
func (c *CostThresholdCheck) Execute(ctx context.Context, execArgs *models.ExecutionArgs, connArgs models.ConnectionArgs) (*models.Result, error) {
	store, database, err := openDocumentStore(ctx, c.stores, connArgs)
	if err != nil {
		return nil, err
	}
	defer store.Close(ctx)

	period := "Monthly"
	if execArgs.ServiceName == ServiceAWS {
		period = "MONTHLY"
	}
	budgets, err := find(ctx, store, database, "budget", bson.D{
		{Key: "service_account_id", Value: execArgs.ServiceAccountID},
		{Key: "is_active", Value: true},
		{Key: "budget.period", Value: period},
	})
	if err != nil {
		return nil, err
	}

	result := &models.Result{EvaluatedResources: len(budgets)}
	if len(budgets) == 0 {
		return result, nil
	}

	accountOID, err := primitive.ObjectIDFromHex(execArgs.ServiceAccountID)
	if err != nil {
		return nil, fmt.Errorf("service account id %q is not an object id: %w", execArgs.ServiceAccountID, err)
	}

	spend, ok, err := c.spend(ctx, store, database, accountOID)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logger.Debug("No cost data for account", zap.String("service_account_id", execArgs.ServiceAccountID))
		return result, nil
	}

	// A budget without an amount is compared against the previous budget's amount.
	var amount float64
	haveAmount := false
	for _, budget := range budgets {
		if v, ok := field(budget, "budget", "amount"); ok && models.Truthy(v) {
			if f, ok := jsonutil.FlexibleFloat(v); ok {
				amount, haveAmount = f, true
			}
		}
		if !haveAmount || spend <= amount {
			continue
		}
		if c.overrun(spend, amount) {
			result.Violations = append(result.Violations, c.violation(budget, spend, amount))
		}
	}
	return result, nil
}

func (c *CostThresholdCheck) overrun(spend, amount float64) bool {
	switch c.mode {
	case CostForecast:
		return (spend-amount)/spend*100 > forecastOverrunPercent
	default:
		if amount == 0 {
			return spend > 0
		}
		return (spend-amount)/amount*100 > actualOverrunPercent
	}
}

func (c *CostThresholdCheck) violation(budget models.ResourceRecord, spend, amount float64) models.ResourceRecord {
	name, _ := field(budget, "budget", "budget_name")
	budgetType, _ := field(budget, "budget", "budget_type")
	costKey := "ActualCost"
	if c.mode == CostForecast {
		costKey = "ForecastedCost"
	}
	return models.NewResourceRecord(
		"ResourceId", name,
		"ResourceType", "Budget",
		"BudgetType", budgetType,
		costKey, spend,
		"Budget", amount,
	)
}

// spend reads the account's cost figure for the mode from account_summary.
func (c *CostThresholdCheck) spend(ctx context.Context, store datasource.DocumentStore, database string, accountOID primitive.ObjectID) (float64, bool, error) {
	today := c.now()

	if c.mode == CostForecast {
		month := today.Format("2006-01")
		summary, found, err := findOne(ctx, store, database, "account_summary", bson.D{
			{Key: "service_account_id", Value: accountOID},
			{Key: "day.month", Value: month},
		})
		if err != nil || !found {
			return 0, false, err
		}
		days := records(summary, "day")
		if len(days) == 0 {
			return 0, false, nil
		}
		v, ok := field(days[0], "projected_cost")
		if !ok {
			return 0, false, nil
		}
		f, ok := jsonutil.FlexibleFloat(v)
		return f, ok, nil
	}

	lastMonth := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, today.Location()).Format("2006-01")
	summary, found, err := findOne(ctx, store, database, "account_summary", bson.D{
		{Key: "service_account_id", Value: accountOID},
		{Key: "month.by_month.month", Value: lastMonth},
	})
	if err != nil || !found {
		return 0, false, err
	}
	months := records(summary, "month")
	if len(months) == 0 {
		return 0, false, nil
	}
	for _, m := range records(months[0], "by_month") {
		if month, _ := field(m, "month"); month == lastMonth {
			v, _ := field(m, "total_cost")
			f, ok := jsonutil.FlexibleFloat(v)
			return f, ok, nil
		}
	}
	return 0, false, nil
}
