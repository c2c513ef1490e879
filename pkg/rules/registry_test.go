package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/policy-interface/pkg/models"
)

func namedRoutine(name string) RoutineFunc {
	return func(ctx context.Context, execArgs *models.ExecutionArgs, connArgs models.ConnectionArgs) (*models.Result, error) {
		return &models.Result{Violations: []models.ResourceRecord{rec("ResourceId", name)}}, nil
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	r.Register("aws_budgets.AwsAccountLevelBudget", namedRoutine("account"))
	r.Register("actual_amount_exceeded_budget", namedRoutine("actual"))
	r.Register("custom.RuleExecutor", namedRoutine("explicit-default"))

	tests := []struct {
		name      string
		codeRef   string
		className string
		want      string
		wantErr   string
	}{
		{name: "qualified", codeRef: "aws_budgets", className: "AwsAccountLevelBudget", want: "account"},
		{name: "bare code ref with empty class", codeRef: "actual_amount_exceeded_budget", want: "actual"},
		{name: "bare code ref with default class", codeRef: "actual_amount_exceeded_budget", className: DefaultClassName, want: "actual"},
		{name: "default class registered explicitly", codeRef: "custom", want: "explicit-default"},
		{name: "unknown class", codeRef: "aws_budgets", className: "Nope", wantErr: `unknown code_ref "aws_budgets"`},
		{name: "bare code ref does not match other classes", codeRef: "actual_amount_exceeded_budget", className: "Other", wantErr: "unknown code_ref"},
		{name: "unknown code ref", codeRef: "missing", wantErr: `unknown code_ref "missing"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routine, err := r.Lookup(tt.codeRef, tt.className)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			res, err := routine.Execute(context.Background(), &models.ExecutionArgs{}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, models.RecordString(res.Violations[0], "ResourceId"))
		})
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, Deps{Stores: &fakeStores{docs: &fakeDocuments{}}})

	assert.Equal(t, []string{
		"actual_amount_exceeded_budget",
		"aws_audit_iam_passwordpolicy_does_not_prevent_passwordreuse",
		"aws_budgets.AwsAccountLevelBudget",
		"aws_budgets.AwsRegionLevelBudget",
		"forecasted_amount_exceeded_budget",
	}, r.Keys())
}
