package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type joinBody struct {
	ClientID string `json:"clientId" validate:"omitempty,max=8,printascii"`
	Name     string `json:"name" validate:"required"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	_, ok := v.Validate(joinBody{Name: "a"})
	assert.True(t, ok)

	errs, ok := v.Validate(joinBody{ClientID: "way-too-long-id"})
	require.False(t, ok)
	require.Len(t, errs, 2)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "MAX", byField["clientId"].Code)
	assert.Equal(t, "clientId must not exceed 8 characters", byField["clientId"].Message)
	assert.Equal(t, "REQUIRED", byField["name"].Code)
}
