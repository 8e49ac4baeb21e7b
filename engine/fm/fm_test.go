//go:build !darwin

package fm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
)

func TestStubAvailability(t *testing.T) {
	e := New()

	avail := e.Availability(context.Background())
	assert.False(t, avail.Available)
	assert.Equal(t, core.UnavailableDeviceNotEligible, avail.Reason)
}

func TestStubGenerate(t *testing.T) {
	e := New()

	respCh, errCh := e.Generate(context.Background(), engine.Request{
		Messages: []engine.Message{{Role: engine.RolePrompt, Text: "Hello"}},
	})

	for range respCh {
		t.Fatal("stub engine must not produce responses")
	}

	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, core.StatusAssetsUnavailable, core.StatusOf(err))
}
