package models

import (
	"encoding/json"
	"fmt"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ConnectionArgs carries per-engine credentials and addressing.
// Keys are validated against a fixed per-engine option set before use.
type ConnectionArgs map[string]any

// String returns the value for key rendered as a string, or "" when absent.
func (c ConnectionArgs) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy so callers' maps are never mutated.
func (c ConnectionArgs) Clone() ConnectionArgs {
	out := make(ConnectionArgs, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// ExecutionArgs are the per-call inputs of a policy run.
// Args is kept untyped so a non-object value can be rejected explicitly.
type ExecutionArgs struct {
	ServiceAccountID   string         `json:"service_account_id"`
	ServiceAccountName string         `json:"service_account_name,omitempty"`
	ServiceName        string         `json:"service_name,omitempty"`
	Args               any            `json:"args,omitempty"`
	Regions            []string       `json:"regions,omitempty"`
	ResourceGroups     []string       `json:"resource_groups,omitempty"`
	AuthValues         map[string]any `json:"auth_values,omitempty"`
	IsAssessment       bool           `json:"IsAssessment,omitempty"`
	ResourceProperties []string       `json:"ResourceProperties,omitempty"`
	Resource           string         `json:"resource,omitempty"`
	ResourceType       string         `json:"resource_type,omitempty"`
}

// ArgsMap returns Args as a mapping. A missing Args is an empty mapping;
// ok is false when Args holds anything other than an object.
func (e *ExecutionArgs) ArgsMap() (map[string]any, bool) {
	switch a := e.Args.(type) {
	case nil:
		return map[string]any{}, true
	case map[string]any:
		return a, true
	default:
		return nil, false
	}
}

// SortedArgKeys returns the keys of Args in a stable order.
func SortedArgKeys(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResourceRecord is one output row. Field order is significant to
// downstream consumers, so records are ordered maps.
type ResourceRecord = *orderedmap.OrderedMap[string, any]

// NewResourceRecord builds a record from alternating key/value pairs.
func NewResourceRecord(kv ...any) ResourceRecord {
	rec := orderedmap.New[string, any]()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		rec.Set(key, kv[i+1])
	}
	return rec
}

// RecordString returns the value of key as a string, or "" if absent or nil.
func RecordString(rec ResourceRecord, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Result is the normalized outcome of a policy run.
type Result struct {
	Violations         []ResourceRecord `json:"violations"`
	EvaluatedResources int              `json:"evaluated_resources"`
}

// MarshalJSON keeps an empty violation list as [] rather than null.
func (r Result) MarshalJSON() ([]byte, error) {
	violations := r.Violations
	if violations == nil {
		violations = []ResourceRecord{}
	}
	return json.Marshal(struct {
		Violations         []ResourceRecord `json:"violations"`
		EvaluatedResources int              `json:"evaluated_resources"`
	}{violations, r.EvaluatedResources})
}
