package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "string", input: `"2026"`, want: "2026"},
		{name: "integer", input: `2026`, want: "2026"},
		{name: "zero padded month stays string", input: `"03"`, want: "03"},
		{name: "bare month number", input: `3`, want: "3"},
		{name: "float", input: `3.5`, want: "3.5"},
		{name: "boolean", input: `true`, want: "true"},
		{name: "null", input: `null`, want: ""},
		{name: "empty", input: ``, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStringValue(json.RawMessage(tt.input))
			if got != tt.want {
				t.Errorf("FlexibleStringValue(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
