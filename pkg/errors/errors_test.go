package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Classification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"spawn", NewSpawnError("spawn failed", nil), IsSpawnError},
		{"unhealthy", NewUnhealthyError("stdin closed", nil), IsUnhealthyError},
		{"escalation", NewEscalationError("identity unresolved", nil), IsEscalationError},
		{"io", NewIOError("write failed", nil), IsIOError},
		{"validation", NewValidationError("bad input", nil), IsValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)))
			assert.False(t, IsConflictError(tt.err))
		})
	}
}

func TestDomainError_MessageAndContext(t *testing.T) {
	cause := fmt.Errorf("exec format error")
	err := NewSpawnError("failed to start uplink", cause).WithContext("attempt", "shim")

	assert.Equal(t, "spawn: failed to start uplink: exec format error", err.Error())
	assert.Equal(t, "shim", err.Context["attempt"])
	assert.ErrorIs(t, err, cause)
}

func TestErrorCollection(t *testing.T) {
	collection := NewErrorCollection()
	assert.False(t, collection.HasErrors())
	assert.NoError(t, collection.ToError())

	collection.Add(nil)
	collection.Add(NewIOError("close stdin", nil))
	collection.Add(NewIOError("close stdout", nil))

	require.True(t, collection.HasErrors())
	assert.Len(t, collection.Errors(), 2)
	assert.True(t, IsIOError(collection.ToError()))
}
