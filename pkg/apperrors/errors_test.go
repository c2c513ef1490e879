package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MessageIncludesCode(t *testing.T) {
	err := InvalidParam("Invalid params in args: %s", "foo")
	assert.Equal(t, "INVALID_PARAM: Invalid params in args: foo", err.Error())
}

func TestError_IsMatchesSentinelByCode(t *testing.T) {
	err := fmt.Errorf("validate: %w", MandatoryParamMissing("Account Id is mandatory."))

	assert.True(t, errors.Is(err, ErrMandatoryParamMissing))
	assert.False(t, errors.Is(err, ErrInvalidParam))
	assert.Equal(t, CodeMandatoryParamMissing, CodeOf(err))
}

func TestCodeOf_UnknownForPlainErrors(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
}

func TestExecutionError_KeepsCause(t *testing.T) {
	cause := BadRequest("Data Not Available.")
	err := &ExecutionError{SchemaName: "aws_budget", Cause: cause}

	assert.Contains(t, err.Error(), "aws_budget")
	assert.Contains(t, err.Error(), "Data Not Available.")
	assert.True(t, errors.Is(err, ErrBadRequest))

	var execErr *ExecutionError
	assert.True(t, errors.As(fmt.Errorf("outer: %w", err), &execErr))
}
