package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneOrEmpty(t *testing.T) {
	var nilSlice []string
	result := CloneOrEmpty(nilSlice)
	assert.NotNil(t, result)
	assert.Empty(t, result)

	original := []string{"signal_term", "signal_kill"}
	result = CloneOrEmpty(original)
	assert.Equal(t, original, result)

	result[0] = "mutated"
	assert.Equal(t, "signal_term", original[0])
}

func TestSliceToSet(t *testing.T) {
	set := SliceToSet([]string{"sudo", "pkexec", "sudo"})
	assert.Len(t, set, 2)

	_, exists := set["sudo"]
	assert.True(t, exists)
	_, exists = set["doas"]
	assert.False(t, exists)
}
