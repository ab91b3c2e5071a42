package utils

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(16)
	require.NoError(t, err)
	assert.Len(t, code, 32)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]+$`), code)

	other, err := GenerateCode(16)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestRandomRequestNumber(t *testing.T) {
	n, err := RandomRequestNumber()
	require.NoError(t, err)
	assert.Len(t, n, 18)
	assert.Regexp(t, regexp.MustCompile(`^[1-9][0-9]{17}$`), n)
}

func TestCircuitBreakerPassesThroughResults(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	wantErr := errors.New("boom")
	_, err = cb.Execute(context.Background(), func() (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
