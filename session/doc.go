// Package session implements conversation state over a black-box engine: a
// Model binds an engine to use-case, guardrail and generation configuration;
// a Session accumulates a transcript, enforces at most one active request,
// and runs the typed respond, streaming and guided operations. Every
// asynchronous request is represented by a cancellable Task; streaming
// requests additionally expose a Stream whose iteration delivers
// monotonically growing snapshots terminated by one nil sentinel.
package session
