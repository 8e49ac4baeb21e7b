// Package modelbridge provides a high-level façade over the bridge core:
// opaque reference-counted handles, asynchronous and streaming callback
// delivery, structured-output schemas and bridged tools over an on-device
// generative engine. Most applications interact with this package by:
//  1. Creating a Bridge via New() (or sharing the process-wide Default())
//  2. Creating a session handle, optionally with instructions and tools
//  3. Issuing respond / stream / guided requests and releasing handles when
//     done
//
// The synchronous helpers AskSync and StreamSync drain the callback
// protocol for callers that want a blocking call instead of wiring
// callbacks themselves.
package modelbridge

import (
	"context"
	"sync"

	"github.com/hupe1980/modelbridge/bridge"
	"github.com/hupe1980/modelbridge/core"
)

// Version of the module.
const Version = "0.1.0"

// New creates a Bridge with optional overrides. By default it drives the
// on-device Foundation Models engine, which reports itself unavailable off
// Apple platforms.
func New(optFns ...func(o *bridge.Options)) *bridge.Bridge {
	return bridge.New(optFns...)
}

var (
	defaultOnce   sync.Once
	defaultBridge *bridge.Bridge
)

// Default returns the process-wide bridge, lazily initialized on first use
// and never torn down before process exit. Tests needing isolation should
// construct their own bridge with New.
func Default() *bridge.Bridge {
	defaultOnce.Do(func() {
		defaultBridge = bridge.New()
	})

	return defaultBridge
}

// AskSync issues one non-streaming request on a session and blocks until
// its terminal delivery, returning the response text. Cancelling ctx
// cancels the task; the distinguished cancelled status surfaces as the
// context error.
func AskSync(ctx context.Context, b *bridge.Bridge, sessionRef bridge.Ref, prompt string) (string, error) {
	type delivery struct {
		status core.Status
		text   string
	}

	ch := make(chan delivery, 1)

	taskRef, err := b.Respond(sessionRef, prompt, func(status core.Status, text *string) {
		d := delivery{status: status}
		if text != nil {
			d.text = *text
		}

		ch <- d
	})
	if err != nil {
		return "", err
	}

	defer func() { _ = b.Release(taskRef) }()

	select {
	case <-ctx.Done():
		_ = b.CancelTask(taskRef)
		<-ch

		return "", ctx.Err()
	case d := <-ch:
		if !d.status.OK() {
			return "", core.NewBridgeError(d.status, "generation failed: %s", d.status)
		}

		return d.text, nil
	}
}

// StreamSync issues one streaming request on a session, forwards every
// snapshot to fn, and blocks until the end-of-stream sentinel, returning
// the final snapshot.
func StreamSync(ctx context.Context, b *bridge.Bridge, sessionRef bridge.Ref, prompt string, fn func(snapshot string)) (string, error) {
	streamRef, err := b.StreamResponse(sessionRef, prompt)
	if err != nil {
		return "", err
	}

	defer func() { _ = b.Release(streamRef) }()

	type terminal struct {
		status core.Status
	}

	var (
		mu   sync.Mutex
		last string
	)

	done := make(chan terminal, 1)

	err = b.IterateStream(streamRef, func(status core.Status, snapshot *string) {
		if !status.OK() || snapshot == nil {
			done <- terminal{status: status}
			return
		}

		mu.Lock()
		last = *snapshot
		mu.Unlock()

		if fn != nil {
			fn(*snapshot)
		}
	})
	if err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		_ = b.CancelTask(streamRef)
		<-done

		return "", ctx.Err()
	case t := <-done:
		if !t.status.OK() {
			return "", core.NewBridgeError(t.status, "generation failed: %s", t.status)
		}

		mu.Lock()
		defer mu.Unlock()

		return last, nil
	}
}
