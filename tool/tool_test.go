package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/logging"
)

var sumParams = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"a": map[string]any{"type": "number"},
		"b": map[string]any{"type": "number"},
	},
	"required": []string{"a", "b"},
}

func sumTool(optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	return NewFunctionTool("sum", "Add numbers", sumParams, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	}, optFns...)
}

func TestFunctionTool_Success(t *testing.T) {
	rec := logging.NewRecorder()
	res, err := sumTool(func(o *FunctionToolOptions) { o.Logger = rec }).Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "5", res.Content)
	assert.Equal(t, 5.0, res.Data)
	assert.Equal(t, 1, rec.Count("tool.call.success"))
}

func TestFunctionTool_ValidationError(t *testing.T) {
	rec := logging.NewRecorder()
	_, err := sumTool(func(o *FunctionToolOptions) { o.Logger = rec }).Call(context.Background(), map[string]any{"a": 1.0})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "b", verr.Field)
	assert.Equal(t, 1, rec.Count("tool.call.validation_failed"))
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	boom := errors.New("boom")
	failing := NewFunctionTool("fail", "Fails", nil, func(context.Context, map[string]any) (any, error) {
		return nil, boom
	})
	_, err := failing.Call(context.Background(), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.ErrorIs(t, err, boom)
}

func TestFunctionTool_CustomToolErrorPreserved(t *testing.T) {
	custom := NewFunctionTool("quota", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, NewToolError("quota", "limit reached", "QUOTA")
	})
	_, err := custom.Call(context.Background(), nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "QUOTA", toolErr.Code)
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
	assert.Equal(t, "tool error in demo: x", NewToolError("demo", "x", "").Error())
}

func TestNewResult(t *testing.T) {
	assert.Equal(t, "plain", NewResult("plain").Content)
	assert.Equal(t, `{"k":1}`, NewResult(map[string]int{"k": 1}).Content)
	assert.Equal(t, "", NewResult(nil).Content)
}

type asyncEcho struct{ calls int }

func (a *asyncEcho) Name() string               { return "async_echo" }
func (a *asyncEcho) Description() string        { return "echoes asynchronously" }
func (a *asyncEcho) Parameters() map[string]any { return nil }
func (a *asyncEcho) Call(context.Context, map[string]any) (Result, error) {
	return Result{}, errors.New("sync path must not be used")
}
func (a *asyncEcho) CallAsync(ctx context.Context, args map[string]any) *async.Task[Result] {
	a.calls++
	return async.Go(ctx, func(context.Context) (Result, error) {
		return NewResult(args["text"]), nil
	})
}

func TestInvoke(t *testing.T) {
	ctx := context.Background()

	t.Run("sync tool is lazy", func(t *testing.T) {
		task := Invoke(ctx, sumTool(), map[string]any{"a": 1.0, "b": 1.0})
		assert.Equal(t, async.StatePending, task.State())
		res, err := task.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2", res.Content)
	})

	t.Run("async tool", func(t *testing.T) {
		echo := &asyncEcho{}
		res, err := Invoke(ctx, echo, map[string]any{"text": "hi"}).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, "hi", res.Content)
		assert.Equal(t, 1, echo.calls)
	})

	t.Run("nil tool", func(t *testing.T) {
		_, err := Invoke(ctx, nil, nil).Await(ctx)
		assert.ErrorIs(t, err, ErrToolNotFound)
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(sumTool(), NewCalculatorTool())

	assert.Equal(t, []string{"calculator", "sum"}, r.Names())
	assert.True(t, r.Has("sum"))
	assert.Equal(t, 2, r.Len())

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "calculator", defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrToolNotFound)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)

	assert.True(t, r.Remove("sum"))
	assert.False(t, r.Remove("sum"))
	assert.Error(t, r.Register(nil))

	r.Clear()
	assert.Empty(t, r.Names())
}
