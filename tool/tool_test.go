package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/modelbridge/content"
	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/schema"
)

func citySchema(t *testing.T) *schema.Schema {
	t.Helper()

	s := schema.New("WeatherParams", "Parameters for the weather tool")
	require.NoError(t, s.AddProperty(schema.NewProperty("city", "The city to look up", schema.TypeString, false)))

	return s
}

func cityArgs(t *testing.T) *content.Content {
	t.Helper()

	c, err := content.FromJSON(`{"city": "Cupertino"}`)
	require.NoError(t, err)

	return c
}

func TestNewValidation(t *testing.T) {
	noop := func(args *content.Content, callID uint64) {}

	tests := []struct {
		name     string
		toolName string
		params   *schema.Schema
		callable Callable
	}{
		{name: "empty name", toolName: "", params: schema.New("P", ""), callable: noop},
		{name: "nil schema", toolName: "weather", params: nil, callable: noop},
		{name: "nil callable", toolName: "weather", params: schema.New("P", ""), callable: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.toolName, "desc", tt.params, tt.callable)
			require.Error(t, err)

			var be *core.BridgeError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, core.StatusInvalidSchema, be.Code)
		})
	}
}

func TestDispatchAndFinish(t *testing.T) {
	var (
		gotCity string
		gotID   uint64
	)

	var tl *Tool

	tl, err := New("get_weather", "Gets current weather for a city", citySchema(t), func(args *content.Content, callID uint64) {
		gotCity, _ = args.Text("city")
		gotID = callID

		go func() {
			assert.NoError(t, tl.FinishCall(callID, "Sunny, 25C"))
		}()
	})
	require.NoError(t, err)

	ledger := NewLedger()
	require.NoError(t, ledger.Register(tl))

	id, ch := ledger.Dispatch(tl, cityArgs(t))

	res, err := ledger.Await(context.Background(), id, ch)
	require.NoError(t, err)
	assert.Equal(t, "Sunny, 25C", res.Output)
	assert.Equal(t, "Cupertino", gotCity)
	assert.Equal(t, id, gotID)
	assert.Zero(t, ledger.Outstanding())
}

func TestDoubleFinishIsFlagged(t *testing.T) {
	tl, err := New("get_weather", "desc", citySchema(t), func(args *content.Content, callID uint64) {})
	require.NoError(t, err)

	ledger := NewLedger()
	require.NoError(t, ledger.Register(tl))

	id, ch := ledger.Dispatch(tl, cityArgs(t))

	require.NoError(t, tl.FinishCall(id, "first"))
	assert.ErrorIs(t, tl.FinishCall(id, "second"), ErrCallFinished)

	res := <-ch
	assert.Equal(t, "first", res.Output)
}

func TestFinishUnknownCall(t *testing.T) {
	tl, err := New("get_weather", "desc", citySchema(t), func(args *content.Content, callID uint64) {})
	require.NoError(t, err)

	ledger := NewLedger()
	require.NoError(t, ledger.Register(tl))

	assert.ErrorIs(t, tl.FinishCall(42, "out"), ErrNoSuchCall)
}

func TestFinishUnboundTool(t *testing.T) {
	tl, err := New("get_weather", "desc", citySchema(t), func(args *content.Content, callID uint64) {})
	require.NoError(t, err)

	assert.ErrorIs(t, tl.FinishCall(1, "out"), ErrNoSuchCall)
}

func TestOutOfOrderCompletion(t *testing.T) {
	type dispatched struct {
		id uint64
	}

	calls := make(chan dispatched, 2)

	tl, err := New("get_weather", "desc", citySchema(t), func(args *content.Content, callID uint64) {
		calls <- dispatched{id: callID}
	})
	require.NoError(t, err)

	ledger := NewLedger()
	require.NoError(t, ledger.Register(tl))

	id1, ch1 := ledger.Dispatch(tl, cityArgs(t))
	id2, ch2 := ledger.Dispatch(tl, cityArgs(t))

	<-calls
	<-calls

	// Finish the second call before the first.
	require.NoError(t, tl.FinishCall(id2, "second"))
	require.NoError(t, tl.FinishCall(id1, "first"))

	res2, err := ledger.Await(context.Background(), id2, ch2)
	require.NoError(t, err)
	assert.Equal(t, "second", res2.Output)

	res1, err := ledger.Await(context.Background(), id1, ch1)
	require.NoError(t, err)
	assert.Equal(t, "first", res1.Output)
}

func TestAwaitCancellation(t *testing.T) {
	tl, err := New("slow", "desc", citySchema(t), func(args *content.Content, callID uint64) {})
	require.NoError(t, err)

	ledger := NewLedger()
	require.NoError(t, ledger.Register(tl))

	id, ch := ledger.Dispatch(tl, cityArgs(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ledger.Await(ctx, id, ch)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToolBoundToOneSession(t *testing.T) {
	tl, err := New("get_weather", "desc", citySchema(t), func(args *content.Content, callID uint64) {})
	require.NoError(t, err)

	first := NewLedger()
	require.NoError(t, first.Register(tl))

	second := NewLedger()
	err = second.Register(tl)
	require.Error(t, err)

	var be *core.BridgeError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, core.StatusConcurrentRequests, be.Code)

	// After the first session closes, the tool is free again.
	first.Close()
	require.NoError(t, second.Register(tl))
}

func TestNewFuncRequiresFunction(t *testing.T) {
	_, err := NewFunc("get_weather", "desc", citySchema(t), nil)
	require.Error(t, err)

	var be *core.BridgeError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, core.StatusInvalidSchema, be.Code)
}

func TestNewFuncFinishesAutomatically(t *testing.T) {
	tl, err := NewFunc("get_weather", "desc", citySchema(t), func(args *content.Content) (string, error) {
		city, err := args.Text("city")
		if err != nil {
			return "", err
		}

		return "Weather in " + city + ": sunny", nil
	})
	require.NoError(t, err)

	ledger := NewLedger()
	require.NoError(t, ledger.Register(tl))

	id, ch := ledger.Dispatch(tl, cityArgs(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := ledger.Await(ctx, id, ch)
	require.NoError(t, err)
	assert.Equal(t, "Weather in Cupertino: sunny", res.Output)
}

func TestNewFuncRendersErrors(t *testing.T) {
	tl, err := NewFunc("get_weather", "desc", citySchema(t), func(args *content.Content) (string, error) {
		return "", errors.New("service unreachable")
	})
	require.NoError(t, err)

	ledger := NewLedger()
	require.NoError(t, ledger.Register(tl))

	id, ch := ledger.Dispatch(tl, cityArgs(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := ledger.Await(ctx, id, ch)
	require.NoError(t, err)
	assert.Equal(t, "Tool error: service unreachable", res.Output)
}
