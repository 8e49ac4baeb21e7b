// Package engine defines the neutral contract between the bridge and a
// generative language-model implementation: a normalized request carrying
// instructions, conversation history, tool definitions, and an optional
// response schema, answered by a channel of partial and final responses.
//
// Concrete engines live in subpackages (engine/openai, engine/anthropic,
// engine/fm). The Scripted engine in this package is deterministic and
// backs tests and examples.
package engine
