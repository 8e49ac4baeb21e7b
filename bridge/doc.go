// Package bridge is the boundary surface of the module: opaque, type-erased,
// reference-counted handles over models, sessions, tasks, streams, schemas,
// generated content and tools, plus the boundary operations that drive them.
//
// Every reference obtained through a Bridge is born with an ownership count
// of one and must be released exactly once by its owner; Retain adds shared
// owners. Releasing the last owner tears the underlying object down. The
// registry is internally synchronized and fails fast on unknown references
// and kind mismatches instead of misinterpreting a handle.
//
// Callback payloads transfer ownership: a content reference delivered to a
// guided-generation callback or a tool callable belongs to the receiver,
// which must release it.
package bridge
