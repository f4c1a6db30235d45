package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(CodeBadRequest, "missing field")
	assert.Equal(t, "missing field", err.Error())
	assert.True(t, Is(err, CodeBadRequest))
	assert.False(t, Is(err, CodeInternal))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "store unavailable")

	assert.Equal(t, "store unavailable: connection refused", err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.True(t, Is(err, CodeInternal))
}

func TestIsWalksWrappedCodes(t *testing.T) {
	inner := New(CodeConfig, "unknown outcome type")
	outer := Wrap(inner, CodeInternal, "classify failed")

	assert.True(t, Is(outer, CodeConfig))
	assert.True(t, Is(outer, CodeInternal))
	assert.False(t, Is(outer, CodeNotFound))
}

func TestIsHandlesUncodedErrors(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), CodeInternal))
	assert.False(t, Is(nil, CodeInternal))
	assert.False(t, Is(fmt.Errorf("wrapped: %w", errors.New("plain")), CodeBadRequest))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeTimeout, CodeOf(New(CodeTimeout, "deadline")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
