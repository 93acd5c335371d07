package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	a := HashString("what are stocks")
	b := HashString("what are stocks")
	c := HashString("what are bonds")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestHashFields(t *testing.T) {
	// The separator keeps adjacent fields from colliding.
	assert.NotEqual(t, HashFields("ab", "c"), HashFields("a", "bc"))
	assert.Equal(t, HashFields("a", "b"), HashFields("a", "b"))
	assert.Equal(t, HashString("solo"), HashFields("solo"))
}
