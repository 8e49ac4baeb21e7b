// Package content models structured generated output: the JSON documents a
// guided generation call produces. A Content wraps one document, tracks
// whether it is a finished response or an in-flight snapshot, and exposes
// typed accessors that fail with coded errors instead of silently coercing.
//
// Validate checks a finished document against the schema that guided it,
// covering required properties, declared types, closed enum sets, numeric
// bounds, and array length constraints.
package content
