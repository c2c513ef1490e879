package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// QuerySource identifies the engine a custom policy query runs against.
type QuerySource string

const (
	QuerySourceSQL     QuerySource = "SQL"
	QuerySourceMongoDB QuerySource = "MongoDB"
)

// PolicyType distinguishes policies backed by a predefined routine from
// policies carrying their own query template.
type PolicyType string

const (
	PolicyTypeManaged PolicyType = "managed"
	PolicyTypeCustom  PolicyType = "custom"
)

// SupportedPolicyVersion is the only accepted policy document version.
const SupportedPolicyVersion = "1.0"

// ParamSpec declares a single input parameter of a policy or engine schema.
type ParamSpec struct {
	Optional   bool           `json:"optional"`
	QueryField bool           `json:"query_field,omitempty"`
	Attributes map[string]any `json:"-"` // engine specific attributes, kept verbatim
}

// UnmarshalJSON accepts any object; optional and query_field use truthiness
// so that documents written with 0/1 or "true" keep working.
func (p *ParamSpec) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parameter spec must be an object: %w", err)
	}
	p.Optional = Truthy(raw["optional"])
	p.QueryField = Truthy(raw["query_field"])
	p.Attributes = make(map[string]any)
	for k, v := range raw {
		if k == "optional" || k == "query_field" {
			continue
		}
		p.Attributes[k] = v
	}
	return nil
}

// MarshalJSON writes the declared flags together with the extra attributes.
func (p ParamSpec) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Attributes)+2)
	for k, v := range p.Attributes {
		out[k] = v
	}
	out["optional"] = p.Optional
	if p.QueryField {
		out["query_field"] = true
	}
	return json.Marshal(out)
}

// PolicyDocument is the declarative description of a compliance check.
type PolicyDocument struct {
	Version                        string               `json:"Version" validate:"required,oneof=1.0"`
	RuleName                       string               `json:"RuleName" validate:"required"`
	QuerySource                    QuerySource          `json:"QuerySource,omitempty" validate:"omitempty,oneof=SQL MongoDB"`
	QuerySourceIdentifier          string               `json:"QuerySourceIdentifier,omitempty"`
	Query                          string               `json:"Query,omitempty"`
	InputParameters                map[string]ParamSpec `json:"InputParameters,omitempty"`
	ResourceAttributes             []any                `json:"ResourceAttributes,omitempty"`
	CostSavingsRuleName            string               `json:"CostSavingsRuleName,omitempty"`
	CostSavingsRuleInputParameters map[string]any       `json:"CostSavingsRuleInputParameters,omitempty"`
	RuleReference                  map[string]any       `json:"RuleReference,omitempty"`
}

// PolicyType reports managed when no QuerySource is declared.
func (p *PolicyDocument) PolicyType() PolicyType {
	if p.QuerySource == "" {
		return PolicyTypeManaged
	}
	return PolicyTypeCustom
}

// InputParameterNames returns the declared parameter names in sorted order.
func (p *PolicyDocument) InputParameterNames() []string {
	return sortedKeys(p.InputParameters)
}

// ParsePolicy decodes a policy document from JSON or YAML.
// Unknown fields are ignored; type mismatches on known fields are errors.
func ParsePolicy(data []byte) (*PolicyDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty policy document")
	}

	if trimmed[0] != '{' {
		converted, err := yamlToJSON(trimmed)
		if err != nil {
			return nil, err
		}
		trimmed = converted
	}

	var doc PolicyDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode policy document: %w", err)
	}
	return &doc, nil
}

// yamlToJSON converts a YAML document into JSON so both formats share one decoder.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode policy yaml: %w", err)
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert policy yaml: %w", err)
	}
	return out, nil
}

// Truthy reports whether an argument value counts as present: nil, false,
// zero numbers, empty strings and empty collections do not. Any non-empty
// string is present, including "false".
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case float32:
		return t != 0
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
