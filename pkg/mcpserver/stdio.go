package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// RunStdio starts the server using stdin/stdout (stdio transport).
func (s *Server) RunStdio(ctx context.Context) error {
	return s.ServeStdio(ctx, os.Stdin, os.Stdout)
}

// ServeStdio serves one session over a line-delimited stream: one JSON
// object per line in, one response per request out. Requests are handled one
// at a time in arrival order. It returns nil at end of input.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	sess := s.NewSession("")
	defer sess.Close()

	s.logger.Info("starting MCP server (stdio)",
		"name", s.name, "version", s.version, "tools", s.registry.Len(), "session", sess.ID())

	reader := bufio.NewReader(in)
	encoder := json.NewEncoder(out)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("read request: %w", readErr)
		}

		if line = bytes.TrimSpace(line); len(line) > 0 {
			if resp := s.handleLine(ctx, sess, line); resp != nil {
				if err := encoder.Encode(resp); err != nil {
					return fmt.Errorf("encode response: %w", err)
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			s.logger.Info("stdin closed, stopping", "session", sess.ID())
			return nil
		}
	}
}

func (s *Server) handleLine(ctx context.Context, sess *Session, line []byte) *JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn("malformed request line", "session", sess.ID(), "error", err)
		return errorResponse(nil, newError(KindParse, err, "parse error: %v", err))
	}
	return sess.HandleRequest(ctx, &req)
}
