package services

import (
	"strings"

	"github.com/ekaya-inc/policy-interface/pkg/apperrors"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// connectionOption is one accepted connection argument of an engine.
type connectionOption struct {
	name     string
	required bool
}

// connectionOptions lists the accepted connection arguments per engine in
// the order missing ones are reported.
var connectionOptions = map[models.QuerySource][]connectionOption{
	models.QuerySourceMongoDB: {
		{name: "host", required: true},
		{name: "port", required: true},
		{name: "username"},
		{name: "password"},
		{name: "auth_database"},
	},
	models.QuerySourceSQL: {
		{name: "server", required: true},
		{name: "user", required: true},
		{name: "password", required: true},
		{name: "database", required: true},
		{name: "port"},
		{name: "execute_url"},
		{name: "auth_user"},
		{name: "auth_password"},
	},
}

// ValidateConnectionArgs checks connection arguments against the option set
// of engine. Unknown keys are reported before missing required ones.
func ValidateConnectionArgs(engine models.QuerySource, args models.ConnectionArgs) error {
	options, ok := connectionOptions[engine]
	if !ok {
		return apperrors.InvalidParam("Unsupported query source for connection args: %s", engine)
	}

	known := make(map[string]bool, len(options))
	for _, opt := range options {
		known[opt.name] = true
	}
	invalid := make(map[string]bool)
	for key := range args {
		if !known[key] {
			invalid[key] = true
		}
	}
	if len(invalid) > 0 {
		return apperrors.InvalidParam("Invalid params in connection args: %s", strings.Join(sortedSet(invalid), ", "))
	}

	var missing []string
	for _, opt := range options {
		if opt.required && !models.Truthy(args[opt.name]) {
			missing = append(missing, opt.name)
		}
	}
	if len(missing) > 0 {
		return apperrors.MandatoryParamMissing("Missing required params in connection args: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateExecutionArgs checks the per-call arguments against the policy's
// declared input parameters.
func ValidateExecutionArgs(policy *models.PolicyDocument, execArgs *models.ExecutionArgs) error {
	if execArgs == nil || execArgs.ServiceAccountID == "" {
		return apperrors.MandatoryParamMissing("Account Id is mandatory.")
	}
	args, ok := execArgs.ArgsMap()
	if !ok {
		return apperrors.InvalidParam("Request Invalid. Args must need to be object.")
	}

	invalid := make(map[string]bool)
	for key := range args {
		if _, declared := policy.InputParameters[key]; !declared {
			invalid[key] = true
		}
	}
	if len(invalid) > 0 {
		return apperrors.InvalidParam("Invalid params in args: %s", strings.Join(sortedSet(invalid), ", "))
	}

	var missing []string
	for _, name := range policy.InputParameterNames() {
		if !policy.InputParameters[name].Optional && !models.Truthy(args[name]) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperrors.MandatoryParamMissing("Missing required params in args: %s", strings.Join(missing, ", "))
	}
	return nil
}
