// Package mcpserver provides a reusable MCP (Model Context Protocol) server framework.
//
// A Server owns the immutable tool Registry and the server identity. Each
// connected caller gets a Session that walks the protocol lifecycle:
//
//	Uninitialized --initialize--> Ready --notifications/initialized--> Serving
//
// tools/list and tools/call are only accepted while Serving. Every failure is
// returned as a JSON-RPC error carrying a Kind; nothing escapes HandleRequest.
//
// Quick Start:
//
//	registry := mcpserver.MustRegistry(&MyTool{})
//	server := mcpserver.New("my-server", "1.0.0", registry)
//	server.RunStdio(ctx) // or server.RunHTTP(ctx, ":8080")
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/schema"
)

// DefaultProtocolVersions lists the MCP revisions the server speaks, newest first.
var DefaultProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// Server is the core MCP server that manages tools and handles JSON-RPC requests.
type Server struct {
	name             string
	version          string
	protocolVersions []string
	instructions     string
	registry         *Registry
	middleware       []Middleware
	logger           *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(text string) Option {
	return func(s *Server) { s.instructions = text }
}

// WithProtocolVersions overrides the supported protocol versions, newest first.
func WithProtocolVersions(versions ...string) Option {
	return func(s *Server) {
		if len(versions) > 0 {
			s.protocolVersions = append([]string(nil), versions...)
		}
	}
}

// New creates a new MCP server with the given name, version and catalog.
func New(name, version string, registry *Registry, opts ...Option) *Server {
	s := &Server{
		name:             name,
		version:          version,
		protocolVersions: DefaultProtocolVersions,
		registry:         registry,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = MustRegistry()
	}
	return s
}

// Use adds middleware to the server's processing chain. It must be called
// before the first session is created.
func (s *Server) Use(mw Middleware) {
	s.middleware = append(s.middleware, mw)
}

// Name returns the server name reported in initialize.
func (s *Server) Name() string { return s.name }

// Version returns the server version reported in initialize.
func (s *Server) Version() string { return s.version }

// Registry returns the tool catalog.
func (s *Server) Registry() *Registry { return s.registry }

// State is a session's position in the protocol lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateServing
	StateClosed
)

func (st State) String() string {
	switch st {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateServing:
		return "serving"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(st))
	}
}

// Session is one caller's view of the server. Only the lifecycle state is
// per session; requests do not share any other state.
type Session struct {
	id      string
	server  *Server
	state   atomic.Int32
	handler HandlerFunc
	created time.Time
}

// NewSession starts a session in the Uninitialized state. An empty id is
// replaced with a random one.
func (s *Server) NewSession(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	sess := &Session{id: id, server: s, created: time.Now()}
	handler := sess.dispatch
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i](handler)
	}
	sess.handler = handler
	return sess
}

// ID returns the session id.
func (sess *Session) ID() string { return sess.id }

// State returns the current lifecycle state.
func (sess *Session) State() State { return State(sess.state.Load()) }

// Close moves the session to the terminal Closed state.
func (sess *Session) Close() {
	prev := State(sess.state.Swap(int32(StateClosed)))
	if prev != StateClosed {
		sess.server.logger.Debug("session closed", "session", sess.id, "age", time.Since(sess.created))
	}
}

type sessionKey struct{}

// SessionFromContext returns the session handling the current request.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*Session)
	return sess, ok
}

// HandleRequest processes a single JSON-RPC message. It returns nil for
// notifications and a response for everything else.
func (sess *Session) HandleRequest(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	ctx = context.WithValue(ctx, sessionKey{}, sess)
	return sess.handler(ctx, req)
}

func (sess *Session) dispatch(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	if req.IsNotification() {
		sess.handleNotification(req)
		return nil
	}
	if req.nullID {
		return errorResponse(nil, newError(KindInvalidRequest, nil, "invalid request: id must not be null"))
	}
	result, err := sess.route(ctx, req)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (sess *Session) route(ctx context.Context, req *JSONRPCRequest) (any, error) {
	switch sess.State() {
	case StateClosed:
		return nil, newError(KindProtocolOrdering, nil, "%s: session is closed", req.Method)
	case StateUninitialized:
		// Nothing but initialize is answered before the handshake starts,
		// including ping and methods the server does not implement.
		if req.Method != "initialize" {
			return nil, newError(KindProtocolOrdering, nil, "%s: received before initialize", req.Method)
		}
	}

	switch req.Method {
	case "initialize":
		return sess.initialize(req.Params)
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		if err := sess.requireServing(req.Method); err != nil {
			return nil, err
		}
		return &ToolsListResult{Tools: sess.server.registry.List()}, nil
	case "tools/call":
		if err := sess.requireServing(req.Method); err != nil {
			return nil, err
		}
		return sess.server.callTool(ctx, req.Params)
	default:
		return nil, newError(KindMethodNotFound, nil, "method not found: %s", req.Method)
	}
}

func (sess *Session) requireServing(method string) error {
	switch st := sess.State(); st {
	case StateServing:
		return nil
	case StateUninitialized:
		return newError(KindProtocolOrdering, nil, "%s: received before initialize", method)
	case StateReady:
		return newError(KindProtocolOrdering, nil, "%s: received before notifications/initialized", method)
	default:
		return newError(KindProtocolOrdering, nil, "%s: not allowed in state %s", method, st)
	}
}

func (sess *Session) initialize(params any) (*InitializeResult, error) {
	if !sess.state.CompareAndSwap(int32(StateUninitialized), int32(StateReady)) {
		return nil, newError(KindProtocolOrdering, nil, "initialize: session already %s", sess.State())
	}

	var p InitializeParams
	obj, err := decodeObject(params)
	if err != nil {
		// Give the session back so the client can retry the handshake.
		sess.state.CompareAndSwap(int32(StateReady), int32(StateUninitialized))
		return nil, newError(KindInvalidParameters, err, "invalid parameters: %v", err)
	}
	p.ProtocolVersion, _ = obj["protocolVersion"].(string)
	if info, ok := obj["clientInfo"].(map[string]any); ok {
		p.ClientInfo.Name, _ = info["name"].(string)
		p.ClientInfo.Version, _ = info["version"].(string)
	}

	s := sess.server
	version := s.negotiateVersion(p.ProtocolVersion)
	s.logger.Info("client connected",
		"session", sess.id,
		"client", p.ClientInfo.Name,
		"client_version", p.ClientInfo.Version,
		"protocol", version,
	)
	return &InitializeResult{
		ProtocolVersion: version,
		Capabilities: ServerCapabilities{
			Tools: ToolsCapability{ListChanged: false},
		},
		ServerInfo: ServerInfo{
			Name:    s.name,
			Version: s.version,
		},
		Instructions: s.instructions,
	}, nil
}

// negotiateVersion echoes the client's version when supported and answers
// with the newest supported version otherwise.
func (s *Server) negotiateVersion(requested string) string {
	for _, v := range s.protocolVersions {
		if v == requested {
			return v
		}
	}
	return s.protocolVersions[0]
}

func (sess *Session) handleNotification(req *JSONRPCRequest) {
	logger := sess.server.logger
	switch req.Method {
	case "notifications/initialized":
		if sess.state.CompareAndSwap(int32(StateReady), int32(StateServing)) {
			logger.Info("client initialized", "session", sess.id)
			return
		}
		logger.Warn("unexpected initialized notification", "session", sess.id, "state", sess.State())
	default:
		logger.Debug("ignoring notification", "session", sess.id, "method", req.Method)
	}
}

func (s *Server) callTool(ctx context.Context, params any) (*ToolCallResult, error) {
	obj, err := decodeObject(params)
	if err != nil {
		return nil, newError(KindInvalidParameters, err, "invalid parameters: %v", err)
	}
	name, ok := obj["name"].(string)
	if !ok || name == "" {
		return nil, newError(KindInvalidParameters, nil, "invalid parameters: missing tool name")
	}

	tool, ok := s.registry.Lookup(name)
	if !ok {
		return nil, newError(KindUnknownTool, nil, "unknown tool: %s", name)
	}

	var args map[string]any
	switch a := obj["arguments"].(type) {
	case nil:
		args = map[string]any{}
	case map[string]any:
		args = a
	default:
		return nil, newError(KindInvalidParameters, nil, "invalid parameters: arguments must be an object")
	}

	values, err := tool.Shape().Bind(args)
	if err != nil {
		return nil, newError(KindInvalidParameters, err, "invalid parameters: %v", err)
	}

	invocation := uuid.NewString()
	start := time.Now()
	text, err := s.execute(ctx, tool, values)
	if err != nil {
		s.logger.Warn("tool failed",
			"tool", name, "invocation", invocation, "duration", time.Since(start), "error", err)
		var fe *schema.FieldError
		if errors.As(err, &fe) {
			return nil, newError(KindInvalidParameters, err, "invalid parameters: %v", err)
		}
		return nil, newError(KindInternal, err, "%s", err.Error())
	}
	s.logger.Info("tool called",
		"tool", name, "invocation", invocation, "duration", time.Since(start), "bytes", len(text))
	return TextResult(text), nil
}

func (s *Server) execute(ctx context.Context, tool ToolHandler, values schema.Values) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s failed: %v", tool.Name(), r)
		}
	}()
	return tool.Execute(ctx, values)
}
