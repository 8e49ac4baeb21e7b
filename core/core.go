// Package core defines the shared vocabulary of the bridge: callback status
// codes, availability reasons, model configuration enums, coded errors and
// identifier helpers. Every other package depends on core; core depends on
// nothing but the standard library and the UUID generator.
package core

import "github.com/google/uuid"

// NewID generates a unique identifier for transcript entries and generations.
func NewID() string { return uuid.NewString() }
