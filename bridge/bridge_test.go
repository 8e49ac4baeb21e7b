package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
	"github.com/hupe1980/modelbridge/internal/testutil"
	"github.com/hupe1980/modelbridge/schema"
)

func newBridge(eng engine.Engine) *Bridge {
	return New(func(o *Options) { o.Engine = eng })
}

func waitTask(t *testing.T, b *Bridge, taskRef Ref) {
	t.Helper()

	task, err := b.task(taskRef)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), testutil.WaitTimeout)
	defer cancel()

	require.NoError(t, task.Wait(ctx))
}

func TestAcquireDefaultModelIsSingleton(t *testing.T) {
	b := newBridge(engine.NewScripted("test"))

	first := b.AcquireDefaultModel()
	second := b.AcquireDefaultModel()
	assert.Equal(t, first, second)

	// Both acquisitions are releasable; the bridge's base count keeps the
	// singleton alive past them.
	require.NoError(t, b.Release(first))
	require.NoError(t, b.Release(second))

	ok, _, err := b.IsAvailable(first)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAvailableReportsReason(t *testing.T) {
	eng := engine.NewScripted("test")
	eng.SetUnavailable(core.UnavailableModelNotReady)

	b := newBridge(eng)
	model := b.AcquireDefaultModel()

	ok, reason, err := b.IsAvailable(model)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, core.UnavailableModelNotReady, reason)
}

func TestWrongKindFailsFast(t *testing.T) {
	b := newBridge(engine.NewScripted("test"))

	model := b.AcquireDefaultModel()

	_, err := b.TranscriptJSON(model)
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = b.Respond(model, "prompt", func(core.Status, *string) {})
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = b.Respond(Ref(12345), "prompt", func(core.Status, *string) {})
	assert.ErrorIs(t, err, ErrUnknownRef)
}

func TestRespondThroughBoundary(t *testing.T) {
	eng := engine.NewScripted("test")
	eng.AddResponse("Say hello", "Bonjour!")

	b := newBridge(eng)

	sessionRef, err := b.CreateSession(NilRef, "Respond only in French")
	require.NoError(t, err)

	texts := make(chan *string, 1)

	taskRef, err := b.Respond(sessionRef, "Say hello", func(status core.Status, text *string) {
		require.True(t, status.OK())
		texts <- text
	})
	require.NoError(t, err)

	waitTask(t, b, taskRef)

	text := <-texts
	require.NotNil(t, text)
	assert.Equal(t, "Bonjour!", *text)

	responding, err := b.IsResponding(sessionRef)
	require.NoError(t, err)
	assert.False(t, responding)

	raw, err := b.TranscriptJSON(sessionRef)
	require.NoError(t, err)
	assert.Equal(t, "Bonjour!", gjson.Get(raw, "transcript.entries.2.contents.0.text").Str)

	require.NoError(t, b.Release(taskRef))
	require.NoError(t, b.Release(sessionRef))
}

func TestStreamThroughBoundary(t *testing.T) {
	eng := engine.NewScripted("test")
	eng.AddResponse("Say hello", "Bonjour tout le monde!")

	b := newBridge(eng)

	sessionRef, err := b.CreateSession(NilRef, "Respond only in French")
	require.NoError(t, err)

	streamRef, err := b.StreamResponse(sessionRef, "Say hello")
	require.NoError(t, err)

	var rec testutil.SnapshotRecorder
	require.NoError(t, b.IterateStream(streamRef, rec.Record))

	st, err := b.stream(streamRef)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), testutil.WaitTimeout)
	defer cancel()
	require.NoError(t, st.Task().Wait(ctx))

	snapshots := rec.Snapshots()
	require.NotEmpty(t, snapshots)

	for i := 1; i < len(snapshots); i++ {
		require.True(t, strings.HasPrefix(snapshots[i], snapshots[i-1]))
	}

	assert.Equal(t, "Bonjour tout le monde!", snapshots[len(snapshots)-1])
	assert.Equal(t, 1, rec.Sentinels())

	require.NoError(t, b.Release(streamRef))
	require.NoError(t, b.Release(sessionRef))
}

func TestGuidedGenerationThroughBoundary(t *testing.T) {
	eng := engine.NewScripted("test")
	eng.AddResponse("Describe a cat", `{"name": "Whiskers", "age": 3}`)

	b := newBridge(eng)

	schemaRef := b.CreateSchema("Cat", "A cat")

	nameProp := b.CreateProperty("name", "The cat's name", schema.TypeString, false)
	require.NoError(t, b.AddProperty(schemaRef, nameProp))

	ageProp := b.CreateProperty("age", "The cat's age", schema.TypeInteger, false)
	require.NoError(t, b.AddGuide(ageProp, schema.Range(0, 30)))
	require.NoError(t, b.AddProperty(schemaRef, ageProp))

	doc, err := b.SchemaJSON(schemaRef)
	require.NoError(t, err)
	assert.Equal(t, "Cat", gjson.Get(doc, "title").Str)
	assert.Equal(t, int64(0), gjson.Get(doc, "properties.age.minimum").Int())

	sessionRef, err := b.CreateSession(NilRef, "")
	require.NoError(t, err)

	contents := make(chan Ref, 1)

	taskRef, err := b.RespondWithSchema(sessionRef, "Describe a cat", schemaRef, func(status core.Status, contentRef Ref) {
		require.True(t, status.OK())
		contents <- contentRef
	})
	require.NoError(t, err)

	waitTask(t, b, taskRef)

	contentRef := <-contents
	require.NotEqual(t, NilRef, contentRef)

	name, err := b.ContentText(contentRef, "name")
	require.NoError(t, err)
	assert.Equal(t, "Whiskers", name)

	age, err := b.ContentInt(contentRef, "age")
	require.NoError(t, err)
	assert.Equal(t, int64(3), age)

	complete, err := b.ContentIsComplete(contentRef)
	require.NoError(t, err)
	assert.True(t, complete)

	// A never-present property fails with not-found, never a crash.
	_, err = b.ContentText(contentRef, "color")
	require.Error(t, err)

	// The callback transferred ownership of the content reference.
	require.NoError(t, b.Release(contentRef))
	assert.ErrorIs(t, b.Release(contentRef), ErrUnknownRef)

	require.NoError(t, b.Release(taskRef))
	require.NoError(t, b.Release(sessionRef))
	require.NoError(t, b.Release(nameProp))
	require.NoError(t, b.Release(ageProp))
	require.NoError(t, b.Release(schemaRef))
}

func TestToolCallThroughBoundary(t *testing.T) {
	eng := engine.NewScripted("test")
	eng.AddToolCalls("What's the weather in Cupertino?", engine.ToolCall{
		ID:        "call-1",
		Name:      "get_weather",
		Arguments: json.RawMessage(`{"city": "Cupertino"}`),
	})
	eng.AddResponse("Sunny in Cupertino", "It is sunny in Cupertino today.")

	b := newBridge(eng)

	paramsRef := b.CreateSchema("WeatherParams", "Parameters for the weather tool")
	cityProp := b.CreateProperty("city", "The city to look up", schema.TypeString, false)
	require.NoError(t, b.AddProperty(paramsRef, cityProp))

	var toolRef Ref

	toolRef, err := b.CreateTool("get_weather", "Gets current weather for a city", paramsRef, func(args Ref, callID uint64) {
		// Dispatch notification: compute elsewhere and finish by id.
		go func() {
			city, err := b.ContentText(args, "city")
			assert.NoError(t, err)
			assert.NoError(t, b.Release(args))

			assert.NoError(t, b.FinishCall(toolRef, callID, "Sunny in "+city))

			// Finishing the same call twice is flagged.
			assert.Error(t, b.FinishCall(toolRef, callID, "again"))
		}()
	})
	require.NoError(t, err)

	sessionRef, err := b.CreateSession(NilRef, "", toolRef)
	require.NoError(t, err)

	texts := make(chan *string, 1)

	taskRef, err := b.Respond(sessionRef, "What's the weather in Cupertino?", func(status core.Status, text *string) {
		require.True(t, status.OK())
		texts <- text
	})
	require.NoError(t, err)

	waitTask(t, b, taskRef)

	text := <-texts
	require.NotNil(t, text)
	assert.Equal(t, "It is sunny in Cupertino today.", *text)

	require.NoError(t, b.Release(taskRef))
	require.NoError(t, b.Release(sessionRef))
	require.NoError(t, b.Release(toolRef))
	require.NoError(t, b.Release(cityProp))
	require.NoError(t, b.Release(paramsRef))
}

func TestCancelTaskIsIdempotent(t *testing.T) {
	eng := testutil.NewHanging()
	b := newBridge(eng)

	sessionRef, err := b.CreateSession(NilRef, "")
	require.NoError(t, err)

	statuses := make(chan core.Status, 4)

	taskRef, err := b.Respond(sessionRef, "hang", func(status core.Status, text *string) {
		statuses <- status
	})
	require.NoError(t, err)

	<-eng.Started

	require.NoError(t, b.CancelTask(taskRef))
	require.NoError(t, b.CancelTask(taskRef))

	waitTask(t, b, taskRef)

	assert.Equal(t, core.StatusCancelled, <-statuses)

	select {
	case status := <-statuses:
		t.Fatalf("second terminal delivery with status %v", status)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, b.Release(taskRef))
	require.NoError(t, b.Release(sessionRef))
}

func TestReleaseSessionCancelsActiveTask(t *testing.T) {
	eng := testutil.NewHanging()
	b := newBridge(eng)

	sessionRef, err := b.CreateSession(NilRef, "")
	require.NoError(t, err)

	statuses := make(chan core.Status, 1)

	taskRef, err := b.Respond(sessionRef, "hang", func(status core.Status, text *string) {
		statuses <- status
	})
	require.NoError(t, err)

	<-eng.Started

	// Releasing the last owner of the session tears it down, cancelling
	// the in-flight task.
	require.NoError(t, b.Release(sessionRef))

	assert.Equal(t, core.StatusCancelled, <-statuses)

	require.NoError(t, b.Release(taskRef))
}

func TestContentFromJSONBoundary(t *testing.T) {
	b := newBridge(engine.NewScripted("test"))

	ref, err := b.ContentFromJSON(`{"answer": 42, "ok": true}`)
	require.NoError(t, err)

	answer, err := b.ContentInt(ref, "answer")
	require.NoError(t, err)
	assert.Equal(t, int64(42), answer)

	ok, err := b.ContentBool(ref, "ok")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = b.ContentFromJSON(`{"answer": `)
	require.Error(t, err)

	var be *core.BridgeError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, core.StatusDecodingFailure, be.Code)

	require.NoError(t, b.Release(ref))
}
