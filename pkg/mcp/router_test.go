package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_RegisterMethod(t *testing.T) {
	router := NewRouter()
	handler := func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return "result", nil
	}

	require.NoError(t, router.RegisterMethod("b.method", handler))
	require.NoError(t, router.RegisterMethod("a.method", handler))
	assert.True(t, router.HasMethod("a.method"))
	assert.Equal(t, []string{"a.method", "b.method"}, router.Methods())

	err := router.RegisterMethod("nil.method", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler cannot be nil")

	assert.Error(t, router.RegisterMethod("", handler))
}

func TestParseRequest(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		req, err := ParseRequest([]byte(`{"jsonrpc":"2.0","id":7,"method":"ping","params":{"k":"v"}}`))
		require.NoError(t, err)
		assert.Equal(t, "ping", req.Method)
		assert.Equal(t, json.RawMessage("7"), req.ID)
		assert.False(t, req.IsNotification())
	})

	t.Run("string id", func(t *testing.T) {
		req, err := ParseRequest([]byte(`{"jsonrpc":"2.0","id":"abc","method":"ping"}`))
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage(`"abc"`), req.ID)
	})

	t.Run("notification", func(t *testing.T) {
		req, err := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
		require.NoError(t, err)
		assert.True(t, req.IsNotification())
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseRequest([]byte(`{not json`))
		var rpcErr *RPCError
		require.True(t, errors.As(err, &rpcErr))
		assert.Equal(t, ParseError, rpcErr.Code)
	})

	t.Run("wrong version", func(t *testing.T) {
		req, err := ParseRequest([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`))
		var rpcErr *RPCError
		require.True(t, errors.As(err, &rpcErr))
		assert.Equal(t, InvalidRequest, rpcErr.Code)
		assert.Equal(t, json.RawMessage("1"), req.ID)
	})

	t.Run("missing method", func(t *testing.T) {
		_, err := ParseRequest([]byte(`{"jsonrpc":"2.0","id":1}`))
		var rpcErr *RPCError
		require.True(t, errors.As(err, &rpcErr))
		assert.Equal(t, InvalidRequest, rpcErr.Code)
	})
}

func TestRouter_Route(t *testing.T) {
	router := NewRouter()
	calls := 0
	require.NoError(t, router.RegisterMethod("ok", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		calls++
		return map[string]int{"n": calls}, nil
	}))
	require.NoError(t, router.RegisterMethod("bad.params", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}))
	require.NoError(t, router.RegisterMethod("fails", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return nil, errors.New("exploded")
	}))

	ctx := context.Background()
	id := json.RawMessage("1")

	resp := router.Route(ctx, &Request{JSONRPC: JSONRPCVersion, ID: id, Method: "ok"})
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]int{"n": 1}, resp.Result)
	assert.Equal(t, id, resp.ID)

	resp = router.Route(ctx, &Request{JSONRPC: JSONRPCVersion, Method: "ok"})
	assert.Nil(t, resp, "notifications get no response")
	assert.Equal(t, 2, calls, "notifications still run")

	resp = router.Route(ctx, &Request{JSONRPC: JSONRPCVersion, ID: id, Method: "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)

	assert.Nil(t, router.Route(ctx, &Request{JSONRPC: JSONRPCVersion, Method: "missing"}))

	resp = router.Route(ctx, &Request{JSONRPC: JSONRPCVersion, ID: id, Method: "bad.params"})
	assert.Equal(t, InvalidParams, resp.Error.Code)

	resp = router.Route(ctx, &Request{JSONRPC: JSONRPCVersion, ID: id, Method: "fails"})
	assert.Equal(t, InternalError, resp.Error.Code)
	assert.Equal(t, "exploded", resp.Error.Message)
}

func TestErrorResponse_NullID(t *testing.T) {
	resp := errorResponse(nil, &RPCError{Code: ParseError, Message: "Parse error"})

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`, string(data))
}
