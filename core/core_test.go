package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusValues(t *testing.T) {
	// The numeric values are part of the boundary contract and must not drift.
	assert.EqualValues(t, 0, StatusOK)
	assert.EqualValues(t, 1, StatusExceededContextWindowSize)
	assert.EqualValues(t, 2, StatusAssetsUnavailable)
	assert.EqualValues(t, 3, StatusGuardrailViolation)
	assert.EqualValues(t, 4, StatusUnsupportedGuide)
	assert.EqualValues(t, 5, StatusUnsupportedLanguageOrLocale)
	assert.EqualValues(t, 6, StatusDecodingFailure)
	assert.EqualValues(t, 7, StatusRateLimited)
	assert.EqualValues(t, 8, StatusConcurrentRequests)
	assert.EqualValues(t, 9, StatusRefusal)
	assert.EqualValues(t, 10, StatusInvalidSchema)
	assert.EqualValues(t, 11, StatusCancelled)
	assert.EqualValues(t, 255, StatusUnknown)
}

func TestStatusOK(t *testing.T) {
	assert.True(t, StatusOK.OK())
	assert.False(t, StatusRefusal.OK())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "guardrail_violation", StatusGuardrailViolation.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
	assert.Equal(t, "unknown", Status(199).String())
}

func TestUnavailableReasonValues(t *testing.T) {
	assert.EqualValues(t, 0, UnavailablePolicyDisabled)
	assert.EqualValues(t, 1, UnavailableDeviceNotEligible)
	assert.EqualValues(t, 2, UnavailableModelNotReady)
	assert.EqualValues(t, 0xFF, UnavailableUnknown)
}

func TestBridgeError(t *testing.T) {
	err := NewBridgeError(StatusInvalidSchema, "property %q has no name", "x")
	assert.Equal(t, StatusInvalidSchema, err.Code)
	assert.Contains(t, err.Error(), "code 10")
	assert.Contains(t, err.Error(), `property "x" has no name`)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusRefusal, StatusOf(NewBridgeError(StatusRefusal, "nope")))
	// Coded errors survive wrapping.
	wrapped := fmt.Errorf("turn failed: %w", NewBridgeError(StatusRateLimited, "slow down"))
	assert.Equal(t, StatusRateLimited, StatusOf(wrapped))
	assert.Equal(t, StatusCancelled, StatusOf(context.Canceled))
	assert.Equal(t, StatusUnknown, StatusOf(fmt.Errorf("boom")))
}

func TestNewID(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
