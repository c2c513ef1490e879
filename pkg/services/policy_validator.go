package services

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/apperrors"
	"github.com/ekaya-inc/policy-interface/pkg/catalog"
	"github.com/ekaya-inc/policy-interface/pkg/models"
	"github.com/ekaya-inc/policy-interface/pkg/sql"
)

// Validation messages. Callers match on these, keep them stable.
const (
	msgInvalidSchema       = "Invalid Policy schema. Please verify the content."
	msgRuleReference       = "RuleReference is missing. Please verify the content."
	msgSchemaNotFound      = "Invalid Policy content. Unable to find the elements used in system."
	msgWildcardColumn      = "Invalid Policy content. Using * in SELECT not allowed in Query."
	msgMissingWhereFields  = "Invalid Policy content. Missing mandatory fields on WHERE: %s"
	msgAccountPlaceholder  = "Invalid Policy content. Cloud Account reference must be specified in Query like {AccountRef}"
	msgPlaceholderMismatch = "Invalid Policy content. InputParameters and Query not matching. All input params must be specified in Query like {NameOfParameter}."
	msgInvalidColumns      = "Invalid Policy content. Invalid column names in Query: %s"
	msgMultipleStatements  = "Invalid Policy content. Multiple statements not allowed in Query."
	msgMissingManaged      = "Invalid Policy content. InputParameters missing mandatory params: %s"
	msgInvalidManaged      = "Invalid Policy content. InputParameters having invalid params: %s"
)

// ValidationResult is what a successful validation resolved the policy to.
// It is passed back into execution so the catalog is not consulted twice.
type ValidationResult struct {
	PolicyType  models.PolicyType
	QuerySource models.QuerySource
	Resolution  catalog.Resolution
}

// SchemaName returns the name of the primary resolved schema, if any.
func (v *ValidationResult) SchemaName() string {
	if v == nil {
		return ""
	}
	if schema := v.Resolution.Primary(); schema != nil {
		return schema.Name
	}
	return ""
}

// DecodePolicy parses a JSON or YAML policy document. Any decoding failure,
// including a field of the wrong type, is reported as an invalid schema.
func DecodePolicy(data []byte) (*models.PolicyDocument, error) {
	policy, err := models.ParsePolicy(data)
	if err != nil {
		return nil, apperrors.InvalidSchema(msgInvalidSchema)
	}
	return policy, nil
}

// PolicyValidator checks a policy document against the fixed document shape
// and against the engine schema it resolves to.
type PolicyValidator struct {
	resolver *catalog.Resolver
	validate *validator.Validate
	logger   *zap.Logger
}

// NewPolicyValidator creates a validator that resolves schemas through resolver.
func NewPolicyValidator(resolver *catalog.Resolver, logger *zap.Logger) *PolicyValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyValidator{
		resolver: resolver,
		validate: validator.New(),
		logger:   logger.Named("validator"),
	}
}

// ValidatePolicy runs every document check in order and stops at the first
// failure. Only catalog store failures are returned as plain errors; every
// other failure is an *apperrors.Error.
func (v *PolicyValidator) ValidatePolicy(ctx context.Context, policy *models.PolicyDocument) (*ValidationResult, error) {
	if policy == nil {
		return nil, apperrors.InvalidSchema(msgInvalidSchema)
	}
	if err := v.validate.Struct(policy); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			v.logger.Debug("Policy failed structural validation",
				zap.String("rule_name", policy.RuleName),
				zap.String("field", invalid[0].Field()),
				zap.String("tag", invalid[0].Tag()))
		}
		return nil, apperrors.InvalidSchema(msgInvalidSchema)
	}
	if err := checkQueryPresence(policy); err != nil {
		return nil, err
	}

	policyType, resolution, err := v.resolver.Resolve(ctx, policy)
	if err != nil {
		return nil, err
	}
	if !resolution.Found() {
		return nil, apperrors.InvalidPolicy(msgSchemaNotFound)
	}
	for _, schema := range resolution.All() {
		if schema.RuleReferenceRequired && len(policy.RuleReference) == 0 {
			return nil, apperrors.InvalidSchema(msgRuleReference)
		}
	}

	result := &ValidationResult{PolicyType: policyType, Resolution: resolution}
	switch {
	case policyType == models.PolicyTypeCustom && resolution.IsList():
		result.QuerySource = policy.QuerySource
		err = checkCustomSQL(policy, resolution.All())
	case policyType == models.PolicyTypeCustom:
		result.QuerySource = policy.QuerySource
		err = checkPlaceholderCount(policy, sql.ExtractPlaceholders(policy.Query))
	default:
		result.QuerySource = resolution.Primary().QuerySource
		err = checkManagedParameters(policy, resolution.Primary())
	}
	if err != nil {
		return nil, err
	}

	v.logger.Debug("Policy validated",
		zap.String("rule_name", policy.RuleName),
		zap.String("policy_type", string(result.PolicyType)),
		zap.String("query_source", string(result.QuerySource)),
		zap.Int("schemas", len(resolution.All())))
	return result, nil
}

// checkQueryPresence enforces that custom policies carry a query (and a
// collection for document queries) while managed policies carry neither.
func checkQueryPresence(policy *models.PolicyDocument) error {
	if policy.QuerySource != "" {
		if policy.Query == "" {
			return apperrors.InvalidSchema(msgInvalidSchema)
		}
		if policy.QuerySource == models.QuerySourceMongoDB && policy.QuerySourceIdentifier == "" {
			return apperrors.InvalidSchema(msgInvalidSchema)
		}
		return nil
	}
	if policy.Query != "" || policy.QuerySourceIdentifier != "" {
		return apperrors.InvalidSchema(msgInvalidSchema)
	}
	return nil
}

func checkCustomSQL(policy *models.PolicyDocument, schemas []*models.EngineSchema) error {
	var columns []string
	for _, column := range sql.Columns(policy.Query) {
		parts := strings.Split(column, ".")
		columns = append(columns, parts[len(parts)-1])
	}
	if slices.Contains(columns, "*") {
		return apperrors.InvalidPolicy(msgWildcardColumn)
	}

	var missing []string
	for _, term := range defaultTerms(schemas) {
		if !strings.Contains(policy.Query, term) {
			missing = append(missing, strings.SplitN(term, "=", 2)[0])
		}
	}
	if len(missing) > 0 {
		return apperrors.InvalidPolicy(msgMissingWhereFields, strings.Join(missing, ", "))
	}

	// Account placeholders are consumed first; what is left must line up
	// with the declared input parameters by count only.
	placeholders := sql.ExtractPlaceholders(policy.Query)
	for _, ref := range accountRefs(schemas) {
		idx := slices.Index(placeholders, ref)
		if idx < 0 {
			return apperrors.InvalidPolicy(msgAccountPlaceholder)
		}
		placeholders = slices.Delete(placeholders, idx, idx+1)
	}
	if err := checkPlaceholderCount(policy, placeholders); err != nil {
		return err
	}

	allowed := make(map[string]bool)
	for _, schema := range schemas {
		for _, column := range schema.Columns {
			allowed[column] = true
		}
	}
	invalid := make(map[string]bool)
	for _, column := range columns {
		if !allowed[column] {
			invalid[column] = true
		}
	}
	if len(invalid) > 0 {
		return apperrors.InvalidPolicy(msgInvalidColumns, strings.Join(sortedSet(invalid), ", "))
	}

	if _, err := sql.SingleStatement(policy.Query); err != nil {
		return apperrors.InvalidPolicy(msgMultipleStatements)
	}
	return nil
}

func checkPlaceholderCount(policy *models.PolicyDocument, placeholders []string) error {
	if len(placeholders) != len(policy.InputParameters) {
		return apperrors.InvalidPolicy(msgPlaceholderMismatch)
	}
	return nil
}

func checkManagedParameters(policy *models.PolicyDocument, schema *models.EngineSchema) error {
	var missing []string
	for _, name := range schema.InputParameterNames() {
		if schema.InputParameters[name].Optional {
			continue
		}
		if _, ok := policy.InputParameters[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperrors.InvalidPolicy(msgMissingManaged, strings.Join(missing, ", "))
	}

	var extra []string
	for _, name := range policy.InputParameterNames() {
		if _, ok := schema.InputParameters[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		return apperrors.InvalidPolicy(msgInvalidManaged, strings.Join(extra, ", "))
	}
	return nil
}

// defaultTerms returns the distinct default filter terms of all schemas in
// catalog order.
func defaultTerms(schemas []*models.EngineSchema) []string {
	var terms []string
	for _, schema := range schemas {
		for _, term := range schema.DefaultQuery.Terms {
			if !slices.Contains(terms, term) {
				terms = append(terms, term)
			}
		}
	}
	return terms
}

// accountRefs returns the distinct account placeholder names of all schemas.
func accountRefs(schemas []*models.EngineSchema) []string {
	var refs []string
	for _, schema := range schemas {
		ref := schema.ServiceAccountRef.Name
		if ref != "" && !slices.Contains(refs, ref) {
			refs = append(refs, ref)
		}
	}
	return refs
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
