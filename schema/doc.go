// Package schema implements the builder for structured-output generation
// schemas: named object types with typed, optionally constrained properties.
//
// A Schema is assembled incrementally — create it, create properties, attach
// validation guides, add the properties and any referenced schemas — and is
// frozen the first time it is serialized or passed into a generation call.
// Serialization produces a canonical JSON-Schema-like document ($defs/$ref
// composition, enum/pattern/minimum/maximum/minItems/maxItems constraints,
// an x-order extension preserving property order) that both sides of the
// bridge can exchange as plain UTF-8 text.
//
// Schemas may reference other schemas, including themselves, so recursive
// shapes (a Person whose children are Persons) serialize naturally.
package schema
