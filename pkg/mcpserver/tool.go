package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/schema"
)

// ToolHandler is the interface for MCP tools.
type ToolHandler interface {
	// Name returns the unique tool name.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Shape returns the parameter shape arguments are bound against.
	Shape() *schema.Shape

	// Execute runs the tool with arguments already bound to Shape. A returned
	// *schema.FieldError is reported as invalid parameters, anything else as
	// an internal error.
	Execute(ctx context.Context, args schema.Values) (string, error)
}

// BaseTool provides a base implementation for common tool fields.
// Embed this in your tool structs and implement Execute().
type BaseTool struct {
	ToolName        string
	ToolDescription string
	ToolShape       *schema.Shape
}

func (t *BaseTool) Name() string         { return t.ToolName }
func (t *BaseTool) Description() string  { return t.ToolDescription }
func (t *BaseTool) Shape() *schema.Shape { return t.ToolShape }

// Middleware is a function that wraps a request handler.
type Middleware func(next HandlerFunc) HandlerFunc

// HandlerFunc is a function that handles a JSON-RPC request. It returns nil
// for notifications.
type HandlerFunc func(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse

// Registry is the fixed tool catalog. It is built once and only read
// afterwards, so it is safe to share between sessions.
type Registry struct {
	tools []ToolHandler
	defs  []ToolDef
	index map[string]int
}

// NewRegistry validates and indexes tools in the given order.
func NewRegistry(tools ...ToolHandler) (*Registry, error) {
	r := &Registry{
		tools: make([]ToolHandler, 0, len(tools)),
		defs:  make([]ToolDef, 0, len(tools)),
		index: make(map[string]int, len(tools)),
	}
	for i, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("register tool #%d: nil tool", i)
		}
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("register tool #%d: empty name", i)
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("register tool %q: duplicate name", name)
		}
		if t.Shape() == nil {
			return nil, fmt.Errorf("register tool %q: no parameter shape", name)
		}
		doc := t.Shape().Schema()
		if len(doc) == 0 || !json.Valid(doc) {
			return nil, fmt.Errorf("register tool %q: %w", name, errors.New("invalid input schema"))
		}
		r.index[name] = len(r.tools)
		r.tools = append(r.tools, t)
		r.defs = append(r.defs, ToolDef{
			Name:        name,
			Description: t.Description(),
			InputSchema: doc,
		})
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
func MustRegistry(tools ...ToolHandler) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// List returns the catalog in registration order.
func (r *Registry) List() []ToolDef {
	return append([]ToolDef(nil), r.defs...)
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (ToolHandler, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.tools[i], true
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }
