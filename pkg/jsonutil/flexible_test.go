package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlexibleInt(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   int
		wantOK bool
	}{
		{name: "int64", input: int64(42), want: 42, wantOK: true},
		{name: "float64", input: 7.0, want: 7, wantOK: true},
		{name: "json number", input: json.Number("12"), want: 12, wantOK: true},
		{name: "numeric string", input: " 9 ", want: 9, wantOK: true},
		{name: "decimal bytes", input: []byte("15.00"), want: 15, wantOK: true},
		{name: "non numeric string", input: "abc", wantOK: false},
		{name: "nil", input: nil, wantOK: false},
		{name: "bool", input: true, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FlexibleInt(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFlexibleString(t *testing.T) {
	assert.Equal(t, "42", FlexibleString(42.0))
	assert.Equal(t, "4.5", FlexibleString(4.5))
	assert.Equal(t, "42", FlexibleString(int64(42)))
	assert.Equal(t, "abc", FlexibleString([]byte("abc")))
	assert.Equal(t, "", FlexibleString(nil))
}

func TestFlexibleFloat(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   float64
		wantOK bool
	}{
		{name: "float64", input: 1250.75, want: 1250.75, wantOK: true},
		{name: "int32", input: int32(300), want: 300, wantOK: true},
		{name: "int64", input: int64(-4), want: -4, wantOK: true},
		{name: "json number", input: json.Number("10.5"), want: 10.5, wantOK: true},
		{name: "numeric string", input: " 99.9 ", want: 99.9, wantOK: true},
		{name: "decimal bytes", input: []byte("15.25"), want: 15.25, wantOK: true},
		{name: "non numeric", input: "NA", wantOK: false},
		{name: "nil", input: nil, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FlexibleFloat(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
