package models

import (
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ServiceAccountRef names where the caller's account is bound in a query.
// SQL schemas carry a bare column/parameter name; MongoDB schemas carry a
// document key together with its storage type.
type ServiceAccountRef struct {
	Name    string // SQL: stored procedure parameter or template placeholder
	KeyName string // MongoDB: field matched against the account id
	KeyType string // MongoDB: "string" or anything else for ObjectID
}

// UnmarshalJSON accepts either a string or a {key_name, key_type} object.
func (r *ServiceAccountRef) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.Name = name
		return nil
	}
	var obj struct {
		KeyName string `json:"key_name"`
		KeyType string `json:"key_type"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("service_account_ref must be a string or object: %w", err)
	}
	r.KeyName = obj.KeyName
	r.KeyType = obj.KeyType
	return nil
}

// MarshalJSON writes the form that was read.
func (r ServiceAccountRef) MarshalJSON() ([]byte, error) {
	if r.KeyName != "" {
		return json.Marshal(map[string]string{"key_name": r.KeyName, "key_type": r.KeyType})
	}
	return json.Marshal(r.Name)
}

// IsStringKey reports whether the MongoDB account key is stored as a plain string.
func (r ServiceAccountRef) IsStringKey() bool {
	return r.KeyType == "string"
}

// DefaultQuery holds the filter a schema always applies. SQL schemas list
// terms that must literally appear in a custom query ("isDeleted=0");
// MongoDB schemas carry a $match document merged into the pipeline; its
// keys keep the order the catalog stored them in.
type DefaultQuery struct {
	Terms []string
	Match *orderedmap.OrderedMap[string, any]
}

// UnmarshalJSON accepts a list of strings, a single string or an object.
func (d *DefaultQuery) UnmarshalJSON(data []byte) error {
	var terms []string
	if err := json.Unmarshal(data, &terms); err == nil {
		d.Terms = terms
		return nil
	}
	var term string
	if err := json.Unmarshal(data, &term); err == nil {
		if term != "" {
			d.Terms = []string{term}
		}
		return nil
	}
	match := orderedmap.New[string, any]()
	if err := json.Unmarshal(data, match); err != nil {
		return fmt.Errorf("default_query must be a list, string or object: %w", err)
	}
	d.Match = match
	return nil
}

// MarshalJSON writes the form that was read.
func (d DefaultQuery) MarshalJSON() ([]byte, error) {
	if d.Match != nil {
		return json.Marshal(d.Match)
	}
	if d.Terms == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.Terms)
}

// EngineSchema is a catalog record describing how a policy is executed.
// Records are read-only once loaded.
type EngineSchema struct {
	Name                  string               `json:"name"`
	QuerySource           QuerySource          `json:"query_source"`
	QuerySourceIdentifier string               `json:"query_source_identifier"`
	CodeRef               string               `json:"code_ref,omitempty"`
	ClassName             string               `json:"class_name,omitempty"`
	DatabaseRef           string               `json:"database_ref,omitempty"`
	ServiceAccountRef     ServiceAccountRef    `json:"service_account_ref"`
	Query                 string               `json:"query,omitempty"`
	DefaultQuery          DefaultQuery         `json:"default_query,omitempty"`
	Columns               []string             `json:"columns,omitempty"`
	InputParameters       map[string]ParamSpec `json:"input_parameters,omitempty"`
	AssessmentRef         string               `json:"assessment_ref,omitempty"`
	ResourceRef           string               `json:"resource_ref,omitempty"`
	ResourceTypeRef       string               `json:"resource_type_ref,omitempty"`
	AttributesSupported   bool                 `json:"AttributesSupported,omitempty"`
	RuleReferenceRequired bool                 `json:"rule_reference_required,omitempty"`
}

// InputParameterNames returns the declared schema parameters in sorted order.
func (s *EngineSchema) InputParameterNames() []string {
	return sortedKeys(s.InputParameters)
}
