package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/toolgate/pkg/capability"
)

// registerBuiltinMethods registers the MCP methods
func (s *Server) registerBuiltinMethods() error {
	methods := map[string]HandlerFunc{
		"initialize":                s.handleInitialize,
		"notifications/initialized": s.handleInitialized,
		"ping":                      s.handlePing,
		"tools/list":                s.handleToolsList,
		"tools/call":                s.handleToolsCall,
	}

	for name, handler := range methods {
		if err := s.router.RegisterMethod(name, handler); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}
	return nil
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p initializeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	if sess := sessionFromContext(ctx); sess != nil {
		sess.setClient(p.ClientInfo.Name, p.ClientInfo.Version)
	}

	s.logger.Info().
		Str("client", p.ClientInfo.Name).
		Str("client_version", p.ClientInfo.Version).
		Str("requested_protocol", p.ProtocolVersion).
		Msg("Client initializing")

	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: ToolsCapability{ListChanged: true}},
		ServerInfo:      s.info,
	}, nil
}

func (s *Server) handleInitialized(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if sess := sessionFromContext(ctx); sess != nil {
		sess.markInitialized()
	}
	return struct{}{}, nil
}

func (s *Server) handlePing(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return struct{}{}, nil
}

func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return ListToolsResult{Tools: s.dispatcher.ListDescriptors()}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p CallToolParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params: missing tool name"}
	}

	envelope := s.dispatcher.Invoke(ctx, p.Name, capability.Args(p.Arguments))

	text, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result of %s: %w", p.Name, err)
	}

	return CallToolResult{
		Content: []Content{{Type: "text", Text: string(text)}},
	}, nil
}
