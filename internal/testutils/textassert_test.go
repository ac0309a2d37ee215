package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingT captures Errorf calls so failing assertions can be inspected.
type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestTextAsserter_Normalize(t *testing.T) {
	// GOAL: Verify command output is normalized the way terminal users see it
	//
	// TEST SCENARIO: Raw output with escapes and redraws → normalize → only the final visible text remains

	tests := []struct {
		name     string
		opts     []TextOption
		input    string
		expected string
	}{
		{
			name:     "progress redraws collapse to the last write",
			input:    "\rScanning (3s)   \rScanning (2s)   \r\x1b[KFound 1 die\n",
			expected: "Found 1 die",
		},
		{
			name:     "colors are stripped",
			input:    "\x1b[36;1mRolled:\x1b[0m \x1b[32;1m4\x1b[0m",
			expected: "Rolled: 4",
		},
		{
			name:     "trailing whitespace is ignored",
			input:    "ID  NAME   \nx   y  ",
			expected: "ID  NAME\nx   y",
		},
		{
			name:     "empty lines are dropped when requested",
			opts:     []TextOption{WithIgnoreEmptyLines(true)},
			input:    "a\n\n\nb",
			expected: "a\nb",
		},
		{
			name:     "escapes are kept when stripping is off",
			opts:     []TextOption{WithStripANSI(false), WithDropProgress(false)},
			input:    "\x1b[1mX\x1b[0m",
			expected: "\x1b[1mX\x1b[0m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := NewTextAsserter(t).WithOptions(tt.opts...)
			assert.Equal(t, tt.expected, ta.Normalize(tt.input), "normalized text MUST match")
		})
	}
}

func TestTextAsserter_AssertReportsDiff(t *testing.T) {
	// GOAL: Verify a mismatch is reported as a unified diff
	//
	// TEST SCENARIO: Compare different texts → one error with -expected/+actual lines

	rec := &recordingT{}
	NewTextAsserterWithInterface(rec).Assert("Rolled: 5\n", "Rolled: 4\n")

	assert.Len(t, rec.errors, 1, "mismatch MUST report exactly one error")
	assert.Contains(t, rec.errors[0], "-Rolled: 4", "diff MUST show the expected line")
	assert.Contains(t, rec.errors[0], "+Rolled: 5", "diff MUST show the actual line")
}

func TestTextAsserter_AssertMatches(t *testing.T) {
	rec := &recordingT{}
	NewTextAsserterWithInterface(rec).Assert("\rConnecting...\r\x1b[KRolled: 4  \n", "Rolled: 4")
	assert.Empty(t, rec.errors, "equivalent output MUST NOT report errors")
}

func TestTextAsserter_ColoredDiff(t *testing.T) {
	rec := &recordingT{}
	NewTextAsserterWithInterface(rec).WithOptions(WithEnableColors(true)).Assert("b", "a")

	assert.Len(t, rec.errors, 1)
	assert.True(t, strings.Contains(rec.errors[0], "\x1b["), "colored diff MUST contain escape sequences")
}
