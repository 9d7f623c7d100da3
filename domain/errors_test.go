package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfFollowsWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("%w: %w", ErrNotPersisted, cause)

	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, ErrCodeUnavailable, code)
	assert.True(t, IsDomainError(err, ErrCodeUnavailable))
	assert.ErrorIs(t, err, cause)

	_, ok = CodeOf(cause)
	assert.False(t, ok)
	assert.False(t, IsDomainError(nil, ErrCodeInternal))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := WrapError(ErrCodeInvalid, "invalid date", errors.New("month out of range"))
	assert.Equal(t, "invalid date: month out of range", err.Error())
	assert.Equal(t, "activity not found", ErrActivityNotFound.Error())
}
