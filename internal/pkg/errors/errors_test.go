package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsAPIErrorPassesThrough(t *testing.T) {
	err := NewConflictError("user exists")
	apiErr := AsAPIError(err)
	assert.Equal(t, "conflict", apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "user exists", apiErr.Message)
}

func TestAsAPIErrorHidesInternalDetail(t *testing.T) {
	raw := errors.New("pg: connection reset by peer")
	apiErr := AsAPIError(raw)
	assert.Equal(t, ErrInternal, apiErr)
	assert.NotContains(t, apiErr.Message, "connection reset")
}

func TestWithMessageDoesNotMutateOriginal(t *testing.T) {
	custom := ErrValidation.WithMessage("password too short")
	assert.Equal(t, "password too short", custom.Message)
	assert.Equal(t, "One or more fields failed validation", ErrValidation.Message)
	assert.Equal(t, ErrValidation.Code, custom.Code)
}
