package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/policy-interface/pkg/apperrors"
	"github.com/ekaya-inc/policy-interface/pkg/catalog"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

func requireAppError(t *testing.T, err error, code apperrors.Code, message string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr), "expected *apperrors.Error, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

func TestDecodePolicy(t *testing.T) {
	policy, err := DecodePolicy([]byte(`{"Version": "1.0", "RuleName": "r_proc"}`))
	require.NoError(t, err)
	assert.Equal(t, "r_proc", policy.RuleName)

	_, err = DecodePolicy([]byte(`{"Version": "1.0", "RuleName": "r", "InputParameters": ["a"]}`))
	requireAppError(t, err, apperrors.CodeInvalidSchema, msgInvalidSchema)

	_, err = DecodePolicy([]byte(``))
	requireAppError(t, err, apperrors.CodeInvalidSchema, msgInvalidSchema)
}

func TestValidatePolicy_Structure(t *testing.T) {
	tests := []struct {
		name   string
		policy *models.PolicyDocument
	}{
		{name: "nil policy", policy: nil},
		{name: "missing version", policy: &models.PolicyDocument{RuleName: "r_proc"}},
		{name: "unsupported version", policy: &models.PolicyDocument{Version: "2.0", RuleName: "r_proc"}},
		{name: "missing rule name", policy: &models.PolicyDocument{Version: "1.0"}},
		{name: "unknown query source", policy: &models.PolicyDocument{Version: "1.0", RuleName: "r", QuerySource: "Oracle", Query: "x"}},
		{name: "query source without query", policy: &models.PolicyDocument{Version: "1.0", RuleName: "r", QuerySource: models.QuerySourceSQL}},
		{
			name: "query source without query ignores other fields",
			policy: &models.PolicyDocument{
				Version: "1.0", RuleName: "r", QuerySource: models.QuerySourceSQL,
				QuerySourceIdentifier: "report.Resources",
				InputParameters:       map[string]models.ParamSpec{"a": {}},
			},
		},
		{name: "document query without collection", policy: &models.PolicyDocument{Version: "1.0", RuleName: "r", QuerySource: models.QuerySourceMongoDB, Query: "[]"}},
		{name: "managed with query", policy: &models.PolicyDocument{Version: "1.0", RuleName: "r_proc", Query: "SELECT 1"}},
		{name: "managed with collection", policy: &models.PolicyDocument{Version: "1.0", RuleName: "r_proc", QuerySourceIdentifier: "coll1"}},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidatePolicy(context.Background(), tt.policy)
			requireAppError(t, err, apperrors.CodeInvalidSchema, msgInvalidSchema)
		})
	}
}

func TestValidatePolicy_Resolution(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()

	t.Run("unknown managed rule", func(t *testing.T) {
		_, err := v.ValidatePolicy(ctx, &models.PolicyDocument{Version: "1.0", RuleName: "nope"})
		requireAppError(t, err, apperrors.CodeInvalidPolicy, msgSchemaNotFound)
	})

	t.Run("custom SQL over an unknown table", func(t *testing.T) {
		policy := customSQLPolicy()
		policy.Query = "SELECT ResourceId FROM report.Other WHERE isDeleted=0"
		_, err := v.ValidatePolicy(ctx, policy)
		requireAppError(t, err, apperrors.CodeInvalidPolicy, msgSchemaNotFound)
	})

	t.Run("rule reference required", func(t *testing.T) {
		_, err := v.ValidatePolicy(ctx, &models.PolicyDocument{Version: "1.0", RuleName: "r_ref_required"})
		requireAppError(t, err, apperrors.CodeInvalidSchema, msgRuleReference)

		vr, err := v.ValidatePolicy(ctx, &models.PolicyDocument{
			Version: "1.0", RuleName: "r_ref_required",
			RuleReference: map[string]any{"CIS": "1.10"},
		})
		require.NoError(t, err)
		assert.Equal(t, "r_ref_required", vr.SchemaName())
	})

	t.Run("store error propagates", func(t *testing.T) {
		boom := errors.New("catalog unavailable")
		resolver := catalog.NewResolver(failingStore{err: boom}, testCatalog(), nil)
		_, err := NewPolicyValidator(resolver, nil).ValidatePolicy(ctx, &models.PolicyDocument{Version: "1.0", RuleName: "r_proc"})
		assert.ErrorIs(t, err, boom)
	})
}

type failingStore struct{ err error }

func (f failingStore) FindByName(ctx context.Context, name string) (*models.EngineSchema, bool, error) {
	return nil, false, f.err
}

func TestValidatePolicy_CustomSQL(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		params  []string
		wantMsg string
	}{
		{
			name:   "valid",
			query:  customSQLPolicy().Query,
			params: []string{"regions"},
		},
		{
			name:    "wildcard column",
			query:   "SELECT * FROM report.Resources WHERE isDeleted=0 AND ServiceAccountID={AccountRef}",
			wantMsg: msgWildcardColumn,
		},
		{
			name:    "qualified wildcard column",
			query:   "SELECT r.* FROM report.Resources r WHERE isDeleted=0 AND ServiceAccountID={AccountRef}",
			wantMsg: msgWildcardColumn,
		},
		{
			name:    "missing default term",
			query:   "SELECT ResourceId FROM report.Resources WHERE ServiceAccountID={AccountRef}",
			wantMsg: "Invalid Policy content. Missing mandatory fields on WHERE: isDeleted",
		},
		{
			name:    "missing account placeholder",
			query:   "SELECT ResourceId FROM report.Resources WHERE isDeleted=0 AND Region IN {regions}",
			params:  []string{"regions"},
			wantMsg: msgAccountPlaceholder,
		},
		{
			name:    "undeclared placeholder",
			query:   "SELECT ResourceId FROM report.Resources WHERE isDeleted=0 AND ServiceAccountID={AccountRef} AND Region IN {regions}",
			wantMsg: msgPlaceholderMismatch,
		},
		{
			// Placeholders are compared by count only: {other} stands in for
			// the declared "regions" and still passes.
			name:   "placeholder names are not compared",
			query:  "SELECT ResourceId FROM report.Resources WHERE isDeleted=0 AND ServiceAccountID={AccountRef} AND Region IN {other}",
			params: []string{"regions"},
		},
		{
			name:  "literal in list",
			query: "SELECT ResourceId FROM report.Resources WHERE isDeleted=0 AND ServiceAccountID={AccountRef} AND Region IN ('us-east-1', 'eu-west-1')",
		},
		{
			name:   "bracketed conditions",
			query:  "SELECT ResourceId FROM report.Resources WHERE (isDeleted=0) AND ServiceAccountID={AccountRef} AND (Region = {regions} OR ResourceName IS NULL)",
			params: []string{"regions"},
		},
		{
			name:  "not exists subquery",
			query: "SELECT ResourceId FROM report.Resources WHERE isDeleted=0 AND ServiceAccountID={AccountRef} AND NOT EXISTS (SELECT ResourceId FROM report.Resources WHERE Region = 'x')",
		},
		{
			name:    "subquery column outside the schema",
			query:   "SELECT ResourceId FROM report.Resources WHERE isDeleted=0 AND ServiceAccountID={AccountRef} AND ResourceId IN (SELECT Owner FROM report.Resources)",
			wantMsg: "Invalid Policy content. Invalid column names in Query: Owner",
		},
		{
			name:    "column outside the schema",
			query:   "SELECT ResourceId, Secret, Owner FROM report.Resources WHERE isDeleted=0 AND ServiceAccountID={AccountRef}",
			wantMsg: "Invalid Policy content. Invalid column names in Query: Owner, Secret",
		},
		{
			name:    "multiple statements",
			query:   "SELECT ResourceId FROM report.Resources WHERE isDeleted=0 AND ServiceAccountID={AccountRef}; DELETE FROM report.Resources",
			wantMsg: msgMultipleStatements,
		},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := &models.PolicyDocument{
				Version:         "1.0",
				RuleName:        "custom",
				QuerySource:     models.QuerySourceSQL,
				Query:           tt.query,
				InputParameters: map[string]models.ParamSpec{},
			}
			for _, p := range tt.params {
				policy.InputParameters[p] = models.ParamSpec{}
			}

			vr, err := v.ValidatePolicy(context.Background(), policy)
			if tt.wantMsg != "" {
				requireAppError(t, err, apperrors.CodeInvalidPolicy, tt.wantMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.PolicyTypeCustom, vr.PolicyType)
			assert.Equal(t, models.QuerySourceSQL, vr.QuerySource)
			assert.True(t, vr.Resolution.IsList())
			assert.Equal(t, "resources", vr.SchemaName())
		})
	}
}

func TestValidatePolicy_CustomDocument(t *testing.T) {
	v := newTestValidator()

	vr, err := v.ValidatePolicy(context.Background(), mongoPolicy())
	require.NoError(t, err)
	assert.Equal(t, models.PolicyTypeCustom, vr.PolicyType)
	assert.Equal(t, models.QuerySourceMongoDB, vr.QuerySource)
	assert.Equal(t, "coll1", vr.SchemaName())

	policy := mongoPolicy()
	policy.InputParameters["p2"] = models.ParamSpec{Optional: true}
	_, err = v.ValidatePolicy(context.Background(), policy)
	requireAppError(t, err, apperrors.CodeInvalidPolicy, msgPlaceholderMismatch)
}

func TestValidatePolicy_Managed(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()

	vr, err := v.ValidatePolicy(ctx, &models.PolicyDocument{
		Version: "1.0", RuleName: "r_assess",
		InputParameters: map[string]models.ParamSpec{"tags": {}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PolicyTypeManaged, vr.PolicyType)
	assert.Equal(t, models.QuerySourceSQL, vr.QuerySource)

	_, err = v.ValidatePolicy(ctx, &models.PolicyDocument{Version: "1.0", RuleName: "r_assess"})
	requireAppError(t, err, apperrors.CodeInvalidPolicy, "Invalid Policy content. InputParameters missing mandatory params: tags")

	_, err = v.ValidatePolicy(ctx, &models.PolicyDocument{
		Version: "1.0", RuleName: "r_assess",
		InputParameters: map[string]models.ParamSpec{"tags": {}, "zone": {}, "owner": {}},
	})
	requireAppError(t, err, apperrors.CodeInvalidPolicy, "Invalid Policy content. InputParameters having invalid params: owner, zone")

	vr, err = v.ValidatePolicy(ctx, &models.PolicyDocument{Version: "1.0", RuleName: "r_code"})
	require.NoError(t, err)
	assert.Equal(t, models.QuerySourceMongoDB, vr.QuerySource)
}
