//go:build !darwin

package fm

import (
	"context"

	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
)

// Engine is the non-darwin placeholder for the Foundation Models adapter.
// The framework only exists on Apple platforms, so it reports the device
// not eligible and refuses to generate.
type Engine struct {
	opts Options
}

// New creates the placeholder engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		UseCase:    core.UseCaseGeneral,
		Guardrails: core.GuardrailsDefault,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{opts: opts}
}

// Availability implements engine.Engine.
func (e *Engine) Availability(ctx context.Context) engine.Availability {
	return engine.Unavailable(core.UnavailableDeviceNotEligible)
}

// Info implements engine.Engine.
func (e *Engine) Info() engine.Info {
	return engine.Info{
		Name:                     "system-language-model",
		Provider:                 "fm",
		SupportsTools:            false,
		SupportsGuidedGeneration: true,
	}
}

// Generate implements engine.Engine by failing with the assets-unavailable
// status.
func (e *Engine) Generate(ctx context.Context, req engine.Request) (<-chan engine.Response, <-chan error) {
	out := make(chan engine.Response)
	errCh := make(chan error, 1)

	errCh <- core.NewBridgeError(core.StatusAssetsUnavailable, "Foundation Models is only available on Apple platforms")
	close(out)
	close(errCh)

	return out, errCh
}
