package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc handles one RPC method. Returning an *RPCError controls the
// error code sent to the client; any other error is reported as an internal
// error.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Router handles RPC method registration and request routing
type Router struct {
	mu      sync.RWMutex
	methods map[string]HandlerFunc
}

// NewRouter creates a new RPC router
func NewRouter() *Router {
	return &Router{methods: make(map[string]HandlerFunc)}
}

// RegisterMethod registers an RPC method handler
func (r *Router) RegisterMethod(name string, handler HandlerFunc) error {
	if name == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.methods[name] = handler
	return nil
}

// HasMethod checks if a method is registered
func (r *Router) HasMethod(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.methods[name]
	return exists
}

// Methods returns all registered method names, sorted
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.methods))
	for name := range r.methods {
		methods = append(methods, name)
	}
	sort.Strings(methods)
	return methods
}

// ParseRequest parses and validates a JSON-RPC request
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{
			Code:    ParseError,
			Message: "Parse error",
			Data:    err.Error(),
		}
	}

	if req.JSONRPC != JSONRPCVersion {
		return &req, &RPCError{
			Code:    InvalidRequest,
			Message: "Invalid request: jsonrpc must be \"2.0\"",
		}
	}

	if req.Method == "" {
		return &req, &RPCError{
			Code:    InvalidRequest,
			Message: "Invalid request: missing method field",
		}
	}

	return &req, nil
}

// Route runs the handler for req. Notifications are handled but produce no
// response.
func (r *Router) Route(ctx context.Context, req *Request) *Response {
	r.mu.RLock()
	handler, exists := r.methods[req.Method]
	r.mu.RUnlock()

	if !exists {
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, &RPCError{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		})
	}

	result, err := handler(ctx, req.Params)
	if req.IsNotification() {
		return nil
	}
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &RPCError{Code: InternalError, Message: err.Error()}
		}
		return errorResponse(req.ID, rpcErr)
	}

	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      req.ID,
		Result:  result,
	}
}

func errorResponse(id json.RawMessage, rpcErr *RPCError) *Response {
	if len(id) == 0 {
		id = nullID
	}
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   rpcErr,
	}
}

// decodeParams unmarshals params into v, treating absent params as empty.
// Numbers inside untyped fields stay json.Number.
func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(params))
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		return &RPCError{
			Code:    InvalidParams,
			Message: "Invalid params",
			Data:    err.Error(),
		}
	}
	return nil
}
