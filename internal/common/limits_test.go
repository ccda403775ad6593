package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalValue_States(t *testing.T) {
	unset := NewUnsetOptionalValue[int64]()
	assert.False(t, unset.IsSet())
	assert.False(t, unset.IsUnlimited())
	assert.Panics(t, func() { unset.Value() })

	zero := NewOptionalValue[int64](0)
	assert.True(t, zero.IsSet())
	assert.True(t, zero.IsUnlimited())
	assert.Equal(t, int64(0), zero.Value())

	set := NewOptionalValue[int64](4096)
	assert.True(t, set.IsSet())
	assert.False(t, set.IsUnlimited())
	assert.Equal(t, int64(4096), set.Value())
}

func TestNewOutputLimit(t *testing.T) {
	limit, err := NewOutputLimit(1024)
	require.NoError(t, err)
	assert.True(t, limit.IsSet())
	assert.Equal(t, int64(1024), limit.Value())

	_, err = NewOutputLimit(-1)
	assert.Error(t, err)

	var invalidErr ErrInvalidOutputLimit
	assert.ErrorAs(t, err, &invalidErr)
}

func TestResolveOutputLimit(t *testing.T) {
	callLimit, err := NewOutputLimit(512)
	require.NoError(t, err)
	policyLimit, err := NewOutputLimit(2048)
	require.NoError(t, err)
	unlimited, err := NewOutputLimit(0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		call   OutputLimit
		policy OutputLimit
		want   int64
	}{
		{"call level wins", callLimit, policyLimit, 512},
		{"policy when call unset", NewUnsetOutputLimit(), policyLimit, 2048},
		{"default when both unset", NewUnsetOutputLimit(), NewUnsetOutputLimit(), DefaultOutputLimit},
		{"explicit unlimited at call level wins", unlimited, policyLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveOutputLimit(tt.call, tt.policy)
			assert.Equal(t, tt.want, got.Value())
		})
	}
}
