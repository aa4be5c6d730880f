package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  /a/  ", "/b/  ", "  /c/"},
			expected: []string{"/a/", "/b/", "/c/"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"/a/", "/b/", "/a/", "/c/", "/b/"},
			expected: []string{"/a/", "/b/", "/c/"},
		},
		{
			name:     "removes empty strings",
			input:    []string{"/a/", "", "  ", "/b/"},
			expected: []string{"/a/", "/b/"},
		},
		{
			name:     "preserves case",
			input:    []string{"/orgs/A/", "/orgs/a/"},
			expected: []string{"/orgs/A/", "/orgs/a/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DedupeAndTrim(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestPathSegments(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: []string{}},
		{name: "root", input: "/", expected: []string{}},
		{name: "trailing slash", input: "/orgs/O/sources/S/", expected: []string{"orgs", "O", "sources", "S"}},
		{name: "double slashes", input: "orgs//O", expected: []string{"orgs", "O"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PathSegments(tt.input))
		})
	}
}

func TestContainsFold(t *testing.T) {
	assert.True(t, ContainsFold("Malaria", "mal"))
	assert.True(t, ContainsFold("Malaria", ""))
	assert.False(t, ContainsFold("Fever", "mal"))
}
