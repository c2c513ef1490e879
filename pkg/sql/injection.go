package sql

import (
	"fmt"
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes an argument value that looks like SQL injection.
type InjectionCheckResult struct {
	ParamName   string
	ParamValue  any
	Fingerprint string
}

func (r *InjectionCheckResult) String() string {
	return fmt.Sprintf("%s (fingerprint %s)", r.ParamName, r.Fingerprint)
}

// CheckParameterForInjection runs libinjection over a string value, or over
// each string element of a list value. Other kinds cannot carry injection and
// return nil.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	switch KindOf(value) {
	case KindString:
		if isSQLi, fingerprint := libinjection.IsSQLi(value.(string)); isSQLi {
			return &InjectionCheckResult{ParamName: paramName, ParamValue: value, Fingerprint: string(fingerprint)}
		}
	case KindList:
		for _, item := range listItems(value) {
			if result := CheckParameterForInjection(paramName, item); result != nil {
				result.ParamValue = value
				return result
			}
		}
	}
	return nil
}

// CheckAllParameters checks every argument and returns the offending ones
// ordered by name.
func CheckAllParameters(params map[string]any) []*InjectionCheckResult {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []*InjectionCheckResult
	for _, name := range names {
		if result := CheckParameterForInjection(name, params[name]); result != nil {
			results = append(results, result)
		}
	}
	return results
}
