package mcpserver

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 protocol types

// JSONRPCRequest represents a JSON-RPC 2.0 request or notification.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`

	// nullID is set when a decoded message carried "id": null.
	nullID bool
}

// UnmarshalJSON tells an explicit null id apart from an absent one.
func (r *JSONRPCRequest) UnmarshalJSON(b []byte) error {
	type plain JSONRPCRequest
	var msg struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &msg); err != nil {
		return err
	}
	*r = JSONRPCRequest(msg.plain)
	r.ID = nil
	switch {
	case msg.ID == nil:
	case string(msg.ID) == "null":
		r.nullID = true
	default:
		if err := json.Unmarshal(msg.ID, &r.ID); err != nil {
			return err
		}
	}
	return nil
}

// IsNotification reports whether the message expects no response. A message
// with "id": null is a malformed request, not a notification.
func (r *JSONRPCRequest) IsNotification() bool { return r.ID == nil && !r.nullID }

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorData is the data member of every error this server produces.
type ErrorData struct {
	Kind string `json:"kind"`
}

// Kind returns the failure kind carried in Data, for errors built locally
// and for errors decoded from the wire.
func (e *RPCError) Kind() string {
	switch d := e.Data.(type) {
	case ErrorData:
		return d.Kind
	case *ErrorData:
		return d.Kind
	case map[string]any:
		k, _ := d["kind"].(string)
		return k
	}
	return ""
}

// MCP protocol types

// InitializeParams is sent by the client to open a session.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      ServerInfo     `json:"clientInfo"`
}

// InitializeResult is the response to an initialize request.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ServerCapabilities describes the server's supported features.
type ServerCapabilities struct {
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability describes the tools capability.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ServerInfo describes a server or client implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolDef represents a tool definition for listing.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolsListResult is the result of a tools/list request. The whole catalog
// is always returned, so NextCursor stays empty.
type ToolsListResult struct {
	Tools      []ToolDef `json:"tools"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// ToolCallResult is the standard result from executing a tool.
type ToolCallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content represents a piece of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextResult creates a ToolCallResult with a plain text message.
func TextResult(text string) *ToolCallResult {
	return &ToolCallResult{
		Content: []Content{{Type: "text", Text: text}},
	}
}

// decodeObject turns request params into a JSON object. Params arrive as a
// decoded map from the transports; any other Go value is round-tripped.
func decodeObject(params any) (map[string]any, error) {
	switch p := params.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return p, nil
	case json.RawMessage:
		return unmarshalObject(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("params: %w", err)
		}
		return unmarshalObject(b)
	}
}

func unmarshalObject(b []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, fmt.Errorf("params must be an object: %w", err)
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}
