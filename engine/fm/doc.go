// Package fm drives generation through the on-device Foundation Models
// framework on macOS, reached over purego and the vendor's C bindings
// dylib. No cgo is involved: symbols are resolved at runtime, so the
// package builds everywhere and reports the model unavailable where the
// framework (or the dylib) is missing.
//
// The adapter covers plain and streaming text generation plus guided
// generation through the bindings' schema-from-JSON entry point. Bridged
// tools are not wired through this adapter.
package fm

import "github.com/hupe1980/modelbridge/core"

// Options configures the Foundation Models engine adapter.
type Options struct {
	// LibraryPath overrides the search for the C bindings dylib. The
	// FM_BRIDGE_LIBRARY environment variable takes precedence over the
	// built-in search paths but not over this field.
	LibraryPath string

	// UseCase selects the system model specialization.
	UseCase core.UseCase

	// Guardrails selects the system model safety posture.
	Guardrails core.Guardrails
}
