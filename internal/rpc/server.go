package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Handler resolves one method call to a result value or an *Error.
type Handler func(ctx context.Context, params json.RawMessage) (any, *Error)

// Server reads line-delimited JSON-RPC requests from an io.Reader and
// writes responses/notifications to an io.Writer, one line each. Writes
// are serialized so a notification emitted mid-request never interleaves
// with a response.
type Server struct {
	handlers map[string]Handler
	in       *bufio.Scanner
	out      io.Writer

	mu sync.Mutex
}

// NewServer builds a Server reading from in and writing to out.
func NewServer(in io.Reader, out io.Writer) *Server {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Server{handlers: make(map[string]Handler), in: scanner, out: out}
}

// Register binds method to handler. Last registration for a given method
// wins.
func (s *Server) Register(method string, handler Handler) {
	s.handlers[method] = handler
}

// Notify writes an unsolicited chat.event notification.
func (s *Server) Notify(params EventParams) error {
	return s.writeLine(Notification{JSONRPC: "2.0", Method: "chat.event", Params: params})
}

// Serve reads requests until ctx is cancelled or the input reaches EOF.
// Each request is dispatched synchronously in the order received; a
// handler wanting concurrency spawns its own goroutines and returns once
// it has nothing more to emit inline.
func (s *Server) Serve(ctx context.Context) error {
	for s.in.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := s.in.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleLine(ctx, line)
	}
	if err := s.in.Err(); err != nil {
		return fmt.Errorf("rpc: read: %w", err)
	}
	return nil
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeError(nil, NewError(ErrParse, "invalid json: "+err.Error()))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeError(req.ID, NewError(ErrInvalidRequest, "missing jsonrpc version or method"))
		return
	}

	handler, ok := s.handlers[req.Method]
	if !ok {
		if !req.IsNotification() {
			s.writeError(req.ID, NewError(ErrMethodNotFound, "unknown method: "+req.Method))
		}
		return
	}

	result, rpcErr := handler(ctx, req.Params)
	if req.IsNotification() {
		if rpcErr != nil {
			slog.Warn("rpc notification handler failed", "method", req.Method, "error", rpcErr.Message)
		}
		return
	}
	if rpcErr != nil {
		s.writeError(req.ID, rpcErr)
		return
	}
	s.writeResult(req.ID, result)
}

func (s *Server) writeResult(id json.RawMessage, result any) {
	if err := s.writeLine(Response{JSONRPC: "2.0", ID: id, Result: result}); err != nil {
		slog.Warn("rpc: failed to write response", "error", err)
	}
}

func (s *Server) writeError(id json.RawMessage, err *Error) {
	if werr := s.writeLine(Response{JSONRPC: "2.0", ID: id, Error: err}); werr != nil {
		slog.Warn("rpc: failed to write error response", "error", werr)
	}
}

func (s *Server) writeLine(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpc: marshal response: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("rpc: write response: %w", err)
	}
	return nil
}
