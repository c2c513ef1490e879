package models

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineSchema_SQLForm(t *testing.T) {
	var s EngineSchema
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "sql_resources",
		"query_source": "SQL",
		"query_source_identifier": "report.Resources",
		"service_account_ref": "AccountRef",
		"default_query": ["isDeleted=0"],
		"columns": ["ResourceId", "Region"]
	}`), &s))

	assert.Equal(t, "AccountRef", s.ServiceAccountRef.Name)
	assert.Empty(t, s.ServiceAccountRef.KeyName)
	assert.Equal(t, []string{"isDeleted=0"}, s.DefaultQuery.Terms)
	assert.Nil(t, s.DefaultQuery.Match)
}

func TestEngineSchema_MongoForm(t *testing.T) {
	var s EngineSchema
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "mongo_coll",
		"query_source": "MongoDB",
		"query_source_identifier": "coll1",
		"database_ref": "heatstack",
		"service_account_ref": {"key_name": "acct", "key_type": "string"},
		"default_query": {"is_active": true}
	}`), &s))

	assert.Equal(t, "acct", s.ServiceAccountRef.KeyName)
	assert.True(t, s.ServiceAccountRef.IsStringKey())
	require.NotNil(t, s.DefaultQuery.Match)
	active, ok := s.DefaultQuery.Match.Get("is_active")
	require.True(t, ok)
	assert.Equal(t, true, active)
}

func TestDefaultQuery_KeepsMatchOrder(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"declared order", `{"is_deleted": false, "cloud": "aws"}`, []string{"is_deleted", "cloud"}},
		{"reverse alphabetical", `{"zone": "a", "status": "b", "account": "c"}`, []string{"zone", "status", "account"}},
		{"single key", `{"is_active": true}`, []string{"is_active"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d DefaultQuery
			require.NoError(t, json.Unmarshal([]byte(tt.in), &d))
			require.NotNil(t, d.Match)

			var keys []string
			for pair := d.Match.Oldest(); pair != nil; pair = pair.Next() {
				keys = append(keys, pair.Key)
			}
			assert.Equal(t, tt.want, keys)

			out, err := json.Marshal(d)
			require.NoError(t, err)
			assert.Equal(t, compactJSON(t, tt.in), string(out))
		})
	}
}

func compactJSON(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.Compact(&buf, []byte(s)))
	return buf.String()
}

func TestEngineSchema_RejectsMalformedRef(t *testing.T) {
	var s EngineSchema
	err := json.Unmarshal([]byte(`{"service_account_ref": 12}`), &s)
	assert.Error(t, err)
}

func TestServiceAccountRef_MarshalKeepsForm(t *testing.T) {
	out, err := json.Marshal(ServiceAccountRef{Name: "Acct"})
	require.NoError(t, err)
	assert.Equal(t, `"Acct"`, string(out))

	out, err = json.Marshal(ServiceAccountRef{KeyName: "acct", KeyType: "objectid"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key_name":"acct","key_type":"objectid"}`, string(out))
}
