package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// SessionHeader carries the session id on every request after initialize.
const SessionHeader = "Mcp-Session-Id"

const maxRequestBytes = 1 << 20

// HTTPServer wraps the MCP Server to serve over HTTP with SSE support.
// Each initialize request opens a new session.
type HTTPServer struct {
	server     *Server
	router     chi.Router
	authSecret []byte
	maxConns   int
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// HTTPOption configures an HTTPServer.
type HTTPOption func(*HTTPServer)

// WithAuthSecret requires an HS256 bearer token signed with secret on the
// MCP and API routes. An empty secret leaves them open.
func WithAuthSecret(secret string) HTTPOption {
	return func(hs *HTTPServer) { hs.authSecret = []byte(secret) }
}

// WithMaxConnections caps simultaneously accepted connections in RunHTTP.
// Zero means no limit.
func WithMaxConnections(n int) HTTPOption {
	return func(hs *HTTPServer) { hs.maxConns = n }
}

// NewHTTPServer builds the HTTP transport for s.
func (s *Server) NewHTTPServer(opts ...HTTPOption) *HTTPServer {
	hs := &HTTPServer{
		server:   s,
		logger:   s.logger,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(hs)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hs.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", hs.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(hs.requireAuth)
		r.Post("/mcp", hs.handleMCPRequest)
		r.Delete("/mcp", hs.handleDeleteSession)
		r.Get("/api/tools", hs.handleToolsList)
	})
	hs.router = r
	return hs
}

// Handler returns the root HTTP handler.
func (hs *HTTPServer) Handler() http.Handler { return hs.router }

// SessionCount returns the number of open sessions.
func (hs *HTTPServer) SessionCount() int {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return len(hs.sessions)
}

// RunHTTP serves the MCP server on addr until ctx is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string, opts ...HTTPOption) error {
	hs := s.NewHTTPServer(opts...)
	srv := &http.Server{
		Addr:              addr,
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if hs.maxConns > 0 {
		ln = netutil.LimitListener(ln, hs.maxConns)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting MCP server (http)",
			"addr", ln.Addr().String(), "tools", s.registry.Len(),
			"auth", len(hs.authSecret) > 0, "max_conns", hs.maxConns)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hs.closeAll()
		s.logger.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (hs *HTTPServer) handleMCPRequest(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		hs.writeError(w, http.StatusBadRequest, nil, newError(KindParse, err, "parse error: %v", err))
		return
	}

	sess, status, err := hs.sessionFor(r, &req)
	if err != nil {
		if req.IsNotification() {
			w.WriteHeader(status)
			return
		}
		hs.writeError(w, status, req.ID, err)
		return
	}

	resp := sess.HandleRequest(r.Context(), &req)
	if req.Method == "initialize" && r.Header.Get(SessionHeader) == "" && resp != nil && resp.Error == nil {
		hs.mu.Lock()
		hs.sessions[sess.ID()] = sess
		hs.mu.Unlock()
		w.Header().Set(SessionHeader, sess.ID())
	}
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Choose response format based on Accept header
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		hs.sendSSE(w, resp)
	} else {
		hs.sendJSON(w, http.StatusOK, resp)
	}
}

// sessionFor finds the session named by the request header. An initialize
// without a header gets a fresh, not yet stored session.
func (hs *HTTPServer) sessionFor(r *http.Request, req *JSONRPCRequest) (*Session, int, error) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		if req.Method == "initialize" {
			return hs.server.NewSession(uuid.NewString()), http.StatusOK, nil
		}
		return nil, http.StatusBadRequest, newError(KindProtocolOrdering, nil,
			"%s: missing %s header; send initialize first", req.Method, SessionHeader)
	}

	hs.mu.RLock()
	sess, ok := hs.sessions[id]
	hs.mu.RUnlock()
	if !ok {
		return nil, http.StatusNotFound, newError(KindProtocolOrdering, nil,
			"%s: unknown session %q; send initialize first", req.Method, id)
	}
	return sess, http.StatusOK, nil
}

func (hs *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionHeader)
	hs.mu.Lock()
	sess, ok := hs.sessions[id]
	delete(hs.sessions, id)
	hs.mu.Unlock()
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	sess.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (hs *HTTPServer) closeAll() {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	for id, sess := range hs.sessions {
		sess.Close()
		delete(hs.sessions, id)
	}
}

func (hs *HTTPServer) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (hs *HTTPServer) sendSSE(w http.ResponseWriter, resp *JSONRPCResponse) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		hs.sendJSON(w, http.StatusOK, resp)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	respBytes, err := json.Marshal(resp)
	if err != nil {
		hs.logger.Error("encode SSE response", "error", err)
		return
	}
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", respBytes)
	flusher.Flush()
}

func (hs *HTTPServer) handleToolsList(w http.ResponseWriter, _ *http.Request) {
	hs.sendJSON(w, http.StatusOK, &ToolsListResult{Tools: hs.server.registry.List()})
}

func (hs *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	hs.sendJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"server":    hs.server.name,
		"version":   hs.server.version,
		"tools":     hs.server.registry.Len(),
		"sessions":  hs.SessionCount(),
	})
}

func (hs *HTTPServer) writeError(w http.ResponseWriter, status int, id any, err error) {
	hs.sendJSON(w, status, errorResponse(id, err))
}

func (hs *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		hs.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
