package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/apperrors"
	"github.com/ekaya-inc/policy-interface/pkg/jsonutil"
	"github.com/ekaya-inc/policy-interface/pkg/logging"
	"github.com/ekaya-inc/policy-interface/pkg/metrics"
	"github.com/ekaya-inc/policy-interface/pkg/models"
	"github.com/ekaya-inc/policy-interface/pkg/rules"
	"github.com/ekaya-inc/policy-interface/pkg/sql"
)

const (
	defaultServiceAccountTable = "report.ServiceAccount"
	defaultInventoryTable      = "report.ServiceResourceInventory"

	totalResourceCountField = "TotalResourceCount"
)

// RoutineLookup resolves managed code references to routines.
type RoutineLookup interface {
	Lookup(codeRef, className string) (rules.PolicyRoutine, error)
}

// DispatcherConfig names the report-store tables used around SQL execution.
type DispatcherConfig struct {
	ServiceAccountTable string
	InventoryTable      string
}

// Dispatcher executes validated policies against the backend they resolve to.
type Dispatcher struct {
	routines RoutineLookup
	stores   datasource.StoreFactory
	cfg      DispatcherConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(cfg DispatcherConfig, routines RoutineLookup, stores datasource.StoreFactory, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ServiceAccountTable == "" {
		cfg.ServiceAccountTable = defaultServiceAccountTable
	}
	if cfg.InventoryTable == "" {
		cfg.InventoryTable = defaultInventoryTable
	}
	return &Dispatcher{
		routines: routines,
		stores:   stores,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Named("dispatcher"),
	}
}

// execution carries the state of one dispatch.
type execution struct {
	id       string
	vr       *ValidationResult
	policy   *models.PolicyDocument
	execArgs *models.ExecutionArgs
	args     map[string]any
	connArgs models.ConnectionArgs
	logger   *zap.Logger
}

// Execute runs a policy that ValidatePolicy accepted. Execution and
// connection arguments are checked again first. Validation failures are
// returned as *apperrors.Error; anything that fails afterwards is wrapped
// in an *apperrors.ExecutionError.
func (d *Dispatcher) Execute(ctx context.Context, vr *ValidationResult, policy *models.PolicyDocument, execArgs *models.ExecutionArgs, connArgs models.ConnectionArgs) (*models.Result, error) {
	if vr == nil || !vr.Resolution.Found() {
		return nil, apperrors.InvalidPolicy(msgSchemaNotFound)
	}
	if err := ValidateExecutionArgs(policy, execArgs); err != nil {
		d.metrics.RecordValidationFailure(string(apperrors.CodeOf(err)))
		return nil, err
	}
	if err := ValidateConnectionArgs(vr.QuerySource, connArgs); err != nil {
		d.metrics.RecordValidationFailure(string(apperrors.CodeOf(err)))
		return nil, err
	}
	args, _ := execArgs.ArgsMap()

	ex := &execution{
		id:       uuid.NewString(),
		vr:       vr,
		policy:   policy,
		execArgs: execArgs,
		args:     args,
		connArgs: connArgs.Clone(),
	}
	ex.logger = d.logger.With(
		zap.String("execution_id", ex.id),
		zap.String("rule_name", policy.RuleName),
		zap.String("schema", vr.SchemaName()))

	branch := d.branch(vr)
	start := time.Now()
	ex.logger.Debug("Dispatching policy",
		zap.String("branch", branch),
		zap.String("policy_type", string(vr.PolicyType)),
		zap.String("query_source", string(vr.QuerySource)),
		zap.Strings("args", logging.SanitizeArgs(args)))

	result, err := d.dispatch(ctx, branch, ex)
	violations := 0
	if result != nil {
		violations = len(result.Violations)
	}
	d.metrics.RecordExecution(branch, time.Since(start), violations, err)

	if err != nil {
		ex.logger.Error("Policy execution failed",
			zap.String("branch", branch),
			zap.String("error", logging.SanitizeError(err)))
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, &apperrors.ExecutionError{
			RuleName:   policy.RuleName,
			SchemaName: vr.SchemaName(),
			Trace:      string(debug.Stack()),
			Cause:      err,
		}
	}

	ex.logger.Info("Policy executed",
		zap.String("branch", branch),
		zap.Int("violations", violations),
		zap.Int("evaluated_resources", result.EvaluatedResources),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (d *Dispatcher) branch(vr *ValidationResult) string {
	switch {
	case vr.Resolution.Primary().CodeRef != "":
		return metrics.BranchManagedCode
	case vr.QuerySource == models.QuerySourceSQL && vr.PolicyType == models.PolicyTypeManaged:
		return metrics.BranchManagedSQL
	case vr.QuerySource == models.QuerySourceSQL:
		return metrics.BranchCustomSQL
	default:
		return metrics.BranchDocument
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, branch string, ex *execution) (*models.Result, error) {
	switch branch {
	case metrics.BranchManagedCode:
		return d.runRoutine(ctx, ex)
	case metrics.BranchManagedSQL, metrics.BranchCustomSQL:
		if results := sql.CheckAllParameters(ex.args); len(results) > 0 {
			names := make([]string, len(results))
			for i, r := range results {
				names[i] = r.ParamName
				ex.logger.Warn("Rejected injection-shaped argument", zap.String("check", r.String()))
			}
			return nil, apperrors.InvalidParam("Request Invalid. Possible SQL injection in args: %s", strings.Join(names, ", "))
		}
		return d.runSQL(ctx, branch, ex)
	default:
		return d.runDocumentQuery(ctx, ex)
	}
}

func (d *Dispatcher) runRoutine(ctx context.Context, ex *execution) (*models.Result, error) {
	schema := ex.vr.Resolution.Primary()
	if d.routines == nil {
		return nil, fmt.Errorf("no managed routines configured for code_ref %q", schema.CodeRef)
	}
	routine, err := d.routines.Lookup(schema.CodeRef, schema.ClassName)
	if err != nil {
		return nil, err
	}
	if ex.vr.QuerySource == models.QuerySourceMongoDB {
		ex.connArgs["database_name"] = schema.DatabaseRef
	}
	result, err := routine.Execute(ctx, ex.execArgs, ex.connArgs)
	if err != nil {
		return nil, fmt.Errorf("routine %s: %w", schema.CodeRef, err)
	}
	if result == nil {
		result = &models.Result{}
	}
	return result, nil
}

func (d *Dispatcher) runSQL(ctx context.Context, branch string, ex *execution) (*models.Result, error) {
	store, err := d.stores.NewRelationalStore(ctx, ex.connArgs)
	if err != nil {
		return nil, fmt.Errorf("open report store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			ex.logger.Warn("Failed to close report store", zap.String("error", logging.SanitizeError(err)))
		}
	}()

	accountRef, err := d.lookupServiceAccount(ctx, store, ex.execArgs.ServiceAccountID)
	if err != nil {
		return nil, err
	}

	var command string
	if branch == metrics.BranchManagedSQL {
		command, err = procedureCommand(ex.vr.Resolution.Primary(), ex.execArgs, ex.args, accountRef)
	} else {
		command, err = templateCommand(ex.policy.Query, ex.vr.Resolution.All(), ex.args, accountRef)
	}
	if err != nil {
		return nil, err
	}

	ex.logger.Debug("Executing report command", zap.String("command", logging.SanitizeQuery(command)))
	rows, err := store.Execute(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("execute report command: %w", err)
	}

	result := &models.Result{}
	if branch == metrics.BranchManagedSQL {
		rows, result.EvaluatedResources = popResourceCount(ex.vr.Resolution.Primary(), ex.execArgs, rows)
	}
	result.Violations = d.rewriteResourceNames(ctx, store, ex.logger, rows)
	return result, nil
}

// lookupServiceAccount maps the caller's account id to the report store's
// internal account reference.
func (d *Dispatcher) lookupServiceAccount(ctx context.Context, store datasource.RelationalStore, accountID string) (string, error) {
	command := fmt.Sprintf("SELECT ServiceAccountID FROM %s WHERE isDeleted=0 AND ID=%s;",
		d.cfg.ServiceAccountTable, sql.QuoteString(accountID))
	rows, err := store.Execute(ctx, command)
	if err != nil {
		return "", fmt.Errorf("look up service account: %w", err)
	}
	if len(rows) == 0 {
		return "", apperrors.BadRequest("Data Not Available.")
	}
	v, _ := rows[0].Get("ServiceAccountID")
	return jsonutil.FlexibleString(v), nil
}

// procedureCommand builds the stored procedure call of a managed SQL policy.
// The account reference comes first, then the schema's fixed parameters,
// then caller arguments in name order.
func procedureCommand(schema *models.EngineSchema, execArgs *models.ExecutionArgs, args map[string]any, accountRef string) (string, error) {
	params := []string{fmt.Sprintf("@%s=%s", schema.ServiceAccountRef.Name, accountRef)}
	if schema.ResourceTypeRef != "" {
		params = append(params, fmt.Sprintf("@%s=%s", schema.ResourceTypeRef, sql.QuoteString(execArgs.ResourceType)))
	}
	if schema.ResourceRef != "" {
		params = append(params, fmt.Sprintf("@%s=%s", schema.ResourceRef, sql.QuoteString(execArgs.Resource)))
	}
	if schema.AssessmentRef != "" && execArgs.IsAssessment {
		value, _ := sql.Render(true, sql.StyleProcedureArg)
		params = append(params, fmt.Sprintf("@%s=%s", schema.AssessmentRef, value))
	}
	if schema.AttributesSupported && len(execArgs.ResourceProperties) > 0 {
		params = append(params, fmt.Sprintf("@Attributes=%s", sql.QuoteString(strings.Join(execArgs.ResourceProperties, ","))))
	}
	for _, name := range models.SortedArgKeys(args) {
		value, err := sql.Render(args[name], sql.StyleProcedureArg)
		if err != nil {
			return "", fmt.Errorf("argument %s: %w", name, err)
		}
		params = append(params, fmt.Sprintf("@%s=%s", name, value))
	}
	return fmt.Sprintf("EXEC %s %s;", schema.QuerySourceIdentifier, strings.Join(params, ", ")), nil
}

// templateCommand fills the query template of a custom SQL policy. Every
// schema's account placeholder receives the account reference verbatim.
func templateCommand(query string, schemas []*models.EngineSchema, args map[string]any, accountRef string) (string, error) {
	values := make(map[string]string, len(schemas)+len(args))
	for _, schema := range schemas {
		values[schema.ServiceAccountRef.Name] = accountRef
	}
	for name, value := range args {
		rendered, err := sql.Render(value, sql.StyleLiteral)
		if err != nil {
			return "", fmt.Errorf("argument %s: %w", name, err)
		}
		values[name] = rendered
	}
	command, err := sql.FormatTemplate(query, values)
	if err != nil {
		return "", err
	}
	return sql.SingleStatement(command)
}

// popResourceCount takes the evaluated resource count off the last row of
// an assessment run.
func popResourceCount(schema *models.EngineSchema, execArgs *models.ExecutionArgs, rows []models.ResourceRecord) ([]models.ResourceRecord, int) {
	if schema.AssessmentRef == "" || !execArgs.IsAssessment || len(rows) == 0 {
		return rows, 0
	}
	last := rows[len(rows)-1]
	v, ok := last.Get(totalResourceCountField)
	if !ok {
		return rows, 0
	}
	count, _ := jsonutil.FlexibleInt(v)
	return rows[:len(rows)-1], count
}

func (d *Dispatcher) runDocumentQuery(ctx context.Context, ex *execution) (*models.Result, error) {
	schema := ex.vr.Resolution.Primary()

	query, params := schema.Query, schema.InputParameters
	if ex.vr.PolicyType == models.PolicyTypeCustom {
		query, params = ex.policy.Query, ex.policy.InputParameters
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("schema %s defines no query", schema.Name)
	}

	scope, err := accountScope(schema, ex.execArgs.ServiceAccountID)
	if err != nil {
		return nil, err
	}
	query, err = substituteDocumentArgs(query, ex.args, params)
	if err != nil {
		return nil, err
	}
	pipeline, err := parsePipeline(query)
	if err != nil {
		return nil, err
	}
	pipeline = scopePipeline(pipeline, scope)

	store, err := d.stores.NewDocumentStore(ctx, ex.connArgs)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	defer func() {
		if err := store.Close(ctx); err != nil {
			ex.logger.Warn("Failed to close document store", zap.String("error", logging.SanitizeError(err)))
		}
	}()

	ex.logger.Debug("Running aggregation",
		zap.String("database", schema.DatabaseRef),
		zap.String("collection", schema.QuerySourceIdentifier),
		zap.Int("stages", len(pipeline)))
	rows, err := store.Aggregate(ctx, schema.DatabaseRef, schema.QuerySourceIdentifier, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s.%s: %w", schema.DatabaseRef, schema.QuerySourceIdentifier, err)
	}
	return &models.Result{Violations: rows}, nil
}
