package mcpserver

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware logs all incoming requests and their results.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
			start := time.Now()
			attrs := []any{"method", req.Method, "id", req.ID}
			if sess, ok := SessionFromContext(ctx); ok {
				attrs = append(attrs, "session", sess.ID())
			}
			logger.Debug("mcp request", attrs...)
			resp := next(ctx, req)
			attrs = append(attrs, "duration", time.Since(start))
			if resp != nil && resp.Error != nil {
				logger.Error("mcp error", append(attrs,
					"code", resp.Error.Code,
					"kind", resp.Error.Kind(),
					"message", resp.Error.Message,
				)...)
			}
			return resp
		}
	}
}

// RecoveryMiddleware catches panics and returns a JSON-RPC internal error.
// Notifications that panic are dropped.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *JSONRPCRequest) (resp *JSONRPCResponse) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic in MCP handler", "method", req.Method, "panic", r)
					if req.IsNotification() {
						resp = nil
						return
					}
					resp = errorResponse(req.ID, newError(KindInternal, nil, "internal error"))
				}
			}()
			return next(ctx, req)
		}
	}
}
