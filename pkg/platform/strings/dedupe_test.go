package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		trimmed   []string
		lowercase []string
	}{
		{name: "nil slice", input: nil, trimmed: nil, lowercase: nil},
		{name: "empty slice", input: []string{}, trimmed: []string{}, lowercase: []string{}},
		{
			name:      "trims and drops blanks",
			input:     []string{"  acme ", "", "   ", "bravo"},
			trimmed:   []string{"acme", "bravo"},
			lowercase: []string{"acme", "bravo"},
		},
		{
			name:      "keeps first occurrence order",
			input:     []string{"charlie", "acme", "charlie", "bravo", "acme"},
			trimmed:   []string{"charlie", "acme", "bravo"},
			lowercase: []string{"charlie", "acme", "bravo"},
		},
		{
			name:      "case only matters when lowercasing",
			input:     []string{"Acme", "acme ", "ACME"},
			trimmed:   []string{"Acme", "acme", "ACME"},
			lowercase: []string{"acme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.trimmed, DedupeAndTrim(tt.input))
			assert.Equal(t, tt.lowercase, DedupeAndTrimLower(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"acme", "bravo"}, SplitList(" acme, bravo ,acme,,"))
}

func TestUnion(t *testing.T) {
	tests := []struct {
		name     string
		input    [][]string
		expected []string
	}{
		{name: "no lists", input: nil, expected: nil},
		{name: "single list is sorted", input: [][]string{{"c", "a"}}, expected: []string{"a", "c"}},
		{name: "overlapping lists", input: [][]string{{"acme", "bravo"}, {"bravo", "charlie"}}, expected: []string{"acme", "bravo", "charlie"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Union(tt.input...))
		})
	}
}
