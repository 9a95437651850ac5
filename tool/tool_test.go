package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/statemesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multiplySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}
}

func newMultiply() *FunctionTool {
	return NewFunctionTool("multiply", "Multiply two numbers", multiplySchema(), func(_ context.Context, args map[string]any) (any, error) {
		return map[string]any{"result": args["a"].(float64) * args["b"].(float64)}, nil
	})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	env := newMultiply().Execute(context.Background(), Call{ID: "c1", Tool: "multiply", Arguments: map[string]any{"a": 3.0, "b": 4.0}})
	require.True(t, env.OK())
	assert.Equal(t, "multiply", env.Tool)
	assert.Equal(t, map[string]any{"result": 12.0}, env.Result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	env := newMultiply().Execute(context.Background(), Call{Arguments: map[string]any{"a": 3.0}})
	require.False(t, env.OK())
	assert.Equal(t, core.ToolRequestFailed, env.Err.Code)
	assert.Contains(t, env.Err.Detail, "parameter validation failed")
	assert.Equal(t, "multiply", env.Err.Tool)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	failing := NewFunctionTool("fail", "Fails", nil, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	env := failing.Execute(context.Background(), Call{})
	require.False(t, env.OK())
	assert.Equal(t, core.ToolRequestFailed, env.Err.Code)
	assert.Equal(t, "boom", env.Err.Detail)

	custom := NewFunctionTool("custom", "Custom", nil, func(context.Context, map[string]any) (any, error) {
		return nil, core.NewToolCallError("custom", core.InvalidResponseFormat, "garbled")
	})
	env = custom.Execute(context.Background(), Call{})
	assert.Equal(t, core.InvalidResponseFormat, env.Err.Code)
}

func TestFunctionTool_PanicRecovered(t *testing.T) {
	panicky := NewFunctionTool("panicky", "Panics", nil, func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	})
	env := panicky.Execute(context.Background(), Call{})
	require.False(t, env.OK())
	assert.Contains(t, env.Err.Detail, "kaboom")
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type args struct {
		City string `json:"city" description:"City name"`
	}
	weather := NewFunctionToolFromStruct("weather", "Get weather", args{}, func(_ context.Context, a map[string]any) (any, error) {
		return "sunny in " + a["city"].(string), nil
	})
	props := weather.Parameters()["properties"].(map[string]any)
	assert.Contains(t, props, "city")

	env := weather.Execute(context.Background(), Call{Arguments: map[string]any{"city": "Berlin"}})
	assert.Equal(t, "sunny in Berlin", env.Result)
}

func TestNormalizeResult(t *testing.T) {
	env := NormalizeResult("multiply", map[string]any{"result": 12})
	assert.True(t, env.OK())

	env = NormalizeResult("multiply", map[string]any{"error": "tool_request_failed", "detail": "down", "tool_name": "remote_multiply"})
	require.False(t, env.OK())
	assert.Equal(t, "remote_multiply", env.Tool)
	assert.Equal(t, "down", env.Err.Detail)

	env = NormalizeResult("echo", "plain")
	assert.Equal(t, "plain", env.Result)
}

// -------------------- Registry Tests --------------------

func TestRegistry(t *testing.T) {
	r := NewRegistry(newMultiply())
	r.Register(NewDeferredTool("calendar_add", "Add a calendar event", nil), "add_event")

	assert.Equal(t, []string{"calendar_add", "multiply"}, r.Names())
	assert.Equal(t, 2, r.Len())

	got, err := r.Lookup("add_event")
	require.NoError(t, err)
	assert.Equal(t, "calendar_add", got.Name())

	got, err = r.Lookup("MULTIPLY")
	require.NoError(t, err)
	assert.Equal(t, "multiply", got.Name())

	_, err = r.Lookup("divide")
	assert.ErrorIs(t, err, core.ErrToolNotFound)

	_, isExec := got.(Executor)
	assert.True(t, isExec)
	deferred, _ := r.Lookup("calendar_add")
	_, isExec = deferred.(Executor)
	assert.False(t, isExec)
}

// -------------------- HTTPInvoker Tests --------------------

func fastInvoker(url string) *HTTPInvoker {
	return NewHTTPInvoker(func(o *HTTPOptions) {
		o.BaseURL = url
		o.Timeout = 2 * time.Second
		o.Resilience.RetryMaxAttempts = 3
		o.Resilience.RetryInitialDelay = time.Millisecond
		o.Resilience.RetryBackoffMultiplier = 1
	})
}

func TestHTTPInvoker_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/multiply", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		_, _ = io.WriteString(w, `{"result": 12}`)
	}))
	defer srv.Close()

	env := fastInvoker(srv.URL).Invoke(context.Background(), "multiply", map[string]any{"a": 3, "b": 4}, map[string]any{"user": "u1"})
	require.True(t, env.OK(), "%+v", env.Err)
	assert.Equal(t, map[string]any{"result": 12.0}, env.Result)

	assert.Equal(t, "multiply", got["tool_name"])
	assert.Equal(t, map[string]any{"a": 3.0, "b": 4.0}, got["parameters"])
	assert.Equal(t, map[string]any{"user": "u1"}, got["session_state"])
}

func TestHTTPInvoker_EmptySessionStateIsObject(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	fastInvoker(srv.URL).Invoke(context.Background(), "noop", nil, nil)
	assert.Equal(t, map[string]any{}, got["session_state"])
	assert.Equal(t, map[string]any{}, got["parameters"])
}

func TestHTTPInvoker_ErrorEnvelopePassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error": "tool_request_failed", "detail": "calendar offline", "tool_name": "calendar_add"}`)
	}))
	defer srv.Close()

	env := fastInvoker(srv.URL).Invoke(context.Background(), "calendar_add", nil, nil)
	require.False(t, env.OK())
	assert.Equal(t, "calendar offline", env.Err.Detail)
	assert.Equal(t, "calendar_add", env.Err.Tool)
}

func TestHTTPInvoker_InvalidResponseFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>not json</html>`)
	}))
	defer srv.Close()

	env := fastInvoker(srv.URL).Invoke(context.Background(), "multiply", nil, nil)
	require.False(t, env.OK())
	assert.Equal(t, core.InvalidResponseFormat, env.Err.Code)
	assert.Equal(t, "multiply", env.Err.Tool)
}

func TestHTTPInvoker_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	env := fastInvoker(srv.URL).Invoke(context.Background(), "multiply", nil, nil)
	require.False(t, env.OK())
	assert.Equal(t, core.ToolRequestFailed, env.Err.Code)
	assert.Contains(t, env.Err.Detail, "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPInvoker_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"result": 12}`)
	}))
	defer srv.Close()

	env := fastInvoker(srv.URL).Invoke(context.Background(), "multiply", nil, nil)
	require.True(t, env.OK(), "%+v", env.Err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPInvoker_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	env := fastInvoker(url).Invoke(context.Background(), "multiply", nil, nil)
	require.False(t, env.OK())
	assert.Equal(t, core.ToolRequestFailed, env.Err.Code)
}

func TestHTTPInvoker_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(func(o *HTTPOptions) {
		o.BaseURL = srv.URL
		o.Timeout = 50 * time.Millisecond
		o.Resilience.RetryMaxAttempts = 1
	})

	start := time.Now()
	env := inv.Invoke(context.Background(), "slow", nil, nil)
	require.False(t, env.OK())
	assert.Equal(t, core.ToolRequestFailed, env.Err.Code)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHTTPInvoker_NoEndpoint(t *testing.T) {
	env := NewHTTPInvoker().Invoke(context.Background(), "multiply", nil, nil)
	require.False(t, env.OK())
	assert.Contains(t, env.Err.Detail, "no endpoint")
}

func TestHTTPInvoker_OversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result": "0123456789012345678901234567890123456789"}`)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(func(o *HTTPOptions) {
		o.Endpoints = map[string]string{"big": srv.URL}
		o.MaxResponseBytes = 16
	})
	env := inv.Invoke(context.Background(), "big", nil, nil)
	require.False(t, env.OK())
	assert.Equal(t, core.InvalidResponseFormat, env.Err.Code)
}

func TestRemoteTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result": 12}`)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker()
	inv.Register("multiply", srv.URL)

	var exec Executor = NewRemoteTool("multiply", "Multiply", multiplySchema(), inv)
	env := exec.Execute(context.Background(), Call{Arguments: map[string]any{"a": 3, "b": 4}})
	require.True(t, env.OK())
	assert.Equal(t, map[string]any{"result": 12.0}, env.Result)
}
