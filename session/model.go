package session

import (
	"context"

	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
	"github.com/hupe1980/modelbridge/logging"
)

// ModelOptions configures a Model.
type ModelOptions struct {
	// UseCase selects the specialization the model is configured for.
	UseCase core.UseCase
	// Guardrails selects the content-safety policy applied to generations.
	Guardrails core.Guardrails
	// Temperature overrides the engine's default sampling temperature.
	Temperature *float64
	// MaximumResponseTokens caps the length of generated responses.
	MaximumResponseTokens *int
	// Logger receives model-level diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Model is an immutable binding of an engine to its configuration. Sessions
// hold exactly one model; several sessions may share it.
type Model struct {
	engine engine.Engine
	opts   ModelOptions
}

// NewModel binds an engine to the given configuration.
func NewModel(eng engine.Engine, optFns ...func(o *ModelOptions)) *Model {
	opts := ModelOptions{
		UseCase:    core.UseCaseGeneral,
		Guardrails: core.GuardrailsDefault,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{engine: eng, opts: opts}
}

// Engine returns the underlying engine.
func (m *Model) Engine() engine.Engine { return m.engine }

// UseCase returns the configured use case.
func (m *Model) UseCase() core.UseCase { return m.opts.UseCase }

// Guardrails returns the configured guardrail policy.
func (m *Model) Guardrails() core.Guardrails { return m.opts.Guardrails }

// Availability queries the engine. Synchronous and side-effect-free.
func (m *Model) Availability(ctx context.Context) engine.Availability {
	return m.engine.Availability(ctx)
}

// IsAvailable reports whether the engine can serve requests, and the reason
// when it cannot.
func (m *Model) IsAvailable(ctx context.Context) (bool, core.UnavailableReason) {
	av := m.engine.Availability(ctx)
	return av.Available, av.Reason
}

// generationOptions projects the model configuration into per-request
// engine options.
func (m *Model) generationOptions() engine.Options {
	return engine.Options{
		Temperature:           m.opts.Temperature,
		MaximumResponseTokens: m.opts.MaximumResponseTokens,
	}
}
