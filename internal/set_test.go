package internal

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringSet(t *testing.T) {
	s := NewStringSet()

	// Test Add and Contains
	s.Add("apple")
	s.Add("banana")
	s.Add("apple") // Add duplicate

	assert.True(t, s.Contains("apple"))
	assert.True(t, s.Contains("banana"))
	assert.False(t, s.Contains("cherry"))

	// Test Len
	assert.Equal(t, 2, s.Len())

	// Test Remove
	s.Remove("apple")
	assert.False(t, s.Contains("apple"))
	assert.Equal(t, 1, s.Len())

	// Test Elements
	s.Add("cherry")
	elements := s.Elements()
	sort.Strings(elements)
	assert.Equal(t, []string{"banana", "cherry"}, elements)
}

func TestStringContains(t *testing.T) {
	assert.True(t, StringContains([]string{"a", "b"}, "b"))
	assert.False(t, StringContains([]string{"a", "b"}, "c"))
	assert.False(t, StringContains(nil, "a"))
}
