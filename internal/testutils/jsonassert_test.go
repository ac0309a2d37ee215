package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONAsserter(t *testing.T) {
	// GOAL: Verify JSON output is compared structurally with placeholders and ignored fields
	//
	// TEST SCENARIO: Expected/actual pairs → assert → errors only for real differences

	tests := []struct {
		name     string
		opts     []Option
		actual   string
		expected string
		wantErr  bool
	}{
		{
			name:     "key order does not matter",
			actual:   `{"die":"XIAO","value":4}`,
			expected: `{"value":4,"die":"XIAO"}`,
		},
		{
			name:     "extra keys are ignored by default",
			actual:   `{"value":4,"busy":false}`,
			expected: `{"value":4}`,
		},
		{
			name:     "extra keys fail when strict",
			opts:     []Option{WithIgnoreExtraKeys(false)},
			actual:   `{"value":4,"busy":false}`,
			expected: `{"value":4}`,
			wantErr:  true,
		},
		{
			name:     "presence placeholder matches any value",
			actual:   `[{"id":"a","last_seen":"2026-01-02T03:04:05Z"}]`,
			expected: `[{"id":"a","last_seen":"<<PRESENCE>>"}]`,
		},
		{
			name:     "presence placeholder requires the key",
			actual:   `{"id":"a"}`,
			expected: `{"id":"a","last_seen":"<<PRESENCE>>"}`,
			wantErr:  true,
		},
		{
			name:     "ignored fields are dropped on both sides",
			opts:     []Option{WithIgnoredFields("updated_at")},
			actual:   `{"bonds":[{"id":"a","updated_at":"x"}]}`,
			expected: `{"bonds":[{"id":"a","updated_at":"y"}]}`,
		},
		{
			name:     "value mismatch is reported",
			actual:   `{"value":5}`,
			expected: `{"value":4}`,
			wantErr:  true,
		},
		{
			name:     "invalid actual JSON is reported",
			actual:   `{"value":`,
			expected: `{"value":4}`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			NewJSONAsserterWithInterface(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			if tt.wantErr {
				assert.NotEmpty(t, rec.errors, "difference MUST be reported")
			} else {
				assert.Empty(t, rec.errors, "equivalent documents MUST NOT report errors")
			}
		})
	}
}
