package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitNonEmpty(t *testing.T) {
	assert.Nil(t, splitNonEmpty(""))
	assert.Equal(t, []string{"a", "b", "c"}, splitNonEmpty("a,b,c"))
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a, , b ,"))
}

func TestNameOrDefault(t *testing.T) {
	assert.Equal(t, "given", nameOrDefault("given", "fallback"))
	assert.Equal(t, "fallback", nameOrDefault("", "fallback"))
}
