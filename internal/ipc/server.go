package ipc

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortexd/cortexd/internal/types"
)

// PriorityIPCServer is IPCServer's position in the daemon's start order
// (spec.md §4.1).
const PriorityIPCServer = 100

// maxSocketPathLen is the conventional sun_path limit on Linux
// (sockaddr_un.sun_path is 108 bytes, including the NUL terminator).
const maxSocketPathLen = 107

const defaultMaxMessageBytes = 4 * 1024 * 1024
const defaultTimeout = 5 * time.Second
const defaultBacklog = 64

// Server is IPCServer: a Unix-domain socket listener dispatching one
// JSON-RPC request per connection to a registered handler.
type Server struct {
	path            string
	maxMessageBytes int
	timeout         time.Duration
	rateLimiter     *RateLimiter
	logger          *slog.Logger
	registry        *registry

	running  atomic.Bool
	listener net.Listener
	listenMu sync.Mutex

	inFlightMu   sync.Mutex
	inFlightCond *sync.Cond
	inFlight     int

	acceptDone chan struct{}
}

// NewServer builds a Server listening at path, rejecting more than
// maxPerSecond requests per second from the process as a whole (the
// original daemon's limiter is not per-client; spec.md does not require
// per-client scoping).
func NewServer(path string, maxPerSecond, maxMessageBytes int, timeout time.Duration, logger *slog.Logger) *Server {
	if maxMessageBytes <= 0 {
		maxMessageBytes = defaultMaxMessageBytes
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s := &Server{
		path:            path,
		maxMessageBytes: maxMessageBytes,
		timeout:         timeout,
		rateLimiter:     NewRateLimiter(maxPerSecond),
		logger:          logger,
		registry:        newRegistry(),
	}
	s.inFlightCond = sync.NewCond(&s.inFlightMu)
	return s
}

// Name identifies this component in logs and the daemon registry.
func (s *Server) Name() string { return "ipc_server" }

// Priority implements the Service contract.
func (s *Server) Priority() int { return PriorityIPCServer }

// RegisterHandler adds method to the dispatch table.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.registry.Register(method, h)
}

// Start validates the socket path, removes a stale file, binds, sets
// world-writable permissions (local-only socket; directory permissions
// are the real access control), and spawns the accept loop. Returns false
// on any setup failure.
func (s *Server) Start() bool {
	if s.running.Load() {
		return true
	}
	if len(s.path) > maxSocketPathLen {
		s.logger.Error("socket path exceeds platform limit", "path", s.path, "len", len(s.path))
		return false
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.logger.Error("create socket directory", "dir", dir, "error", err)
			return false
		}
	}
	_ = os.Remove(s.path)

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		s.logger.Error("listen on socket", "path", s.path, "error", err)
		return false
	}
	if err := os.Chmod(s.path, 0o666); err != nil {
		s.logger.Error("chmod socket", "path", s.path, "error", err)
		ln.Close()
		os.Remove(s.path)
		return false
	}

	s.listenMu.Lock()
	s.listener = ln
	s.listenMu.Unlock()

	s.running.Store(true)
	s.acceptDone = make(chan struct{})
	go s.acceptLoop()
	return true
}

// IsRunning reports whether the accept loop is active.
func (s *Server) IsRunning() bool { return s.running.Load() }

// IsHealthy reports whether the server is running and its listening fd is
// still valid.
func (s *Server) IsHealthy() bool {
	if !s.running.Load() {
		return false
	}
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	return s.listener != nil
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)
	for {
		s.listenMu.Lock()
		ln := s.listener
		s.listenMu.Unlock()
		if ln == nil {
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.inFlightMu.Lock()
		s.inFlight++
		s.inFlightMu.Unlock()

		go s.handleConn(conn)
	}
}

// Stop shuts down the listener (unblocking a pending Accept), waits for
// the accept loop to exit, then drains in-flight handlers before
// unlinking the socket path. Idempotent; safe even if Start was never
// called.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.listenMu.Lock()
	ln := s.listener
	s.listener = nil
	s.listenMu.Unlock()
	if ln != nil {
		ln.Close()
	}
	if s.acceptDone != nil {
		<-s.acceptDone
	}

	s.inFlightMu.Lock()
	for s.inFlight > 0 {
		s.inFlightCond.Wait()
	}
	s.inFlightMu.Unlock()

	os.Remove(s.path)
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		conn.Close()
		s.inFlightMu.Lock()
		s.inFlight--
		s.inFlightMu.Unlock()
		s.inFlightCond.Broadcast()
	}()

	conn.SetDeadline(time.Now().Add(s.timeout))

	buf := make([]byte, s.maxMessageBytes)
	n, err := conn.Read(buf)
	if err != nil || n <= 0 {
		return
	}
	raw := buf[:n]

	req, parseErr := decodeRequest(raw)

	if !s.rateLimiter.Allow() {
		s.send(conn, errorResponse(req.ID, types.CodeRateLimited, "rate limit exceeded"))
		return
	}

	if parseErr != nil {
		s.send(conn, errorResponse(req.ID, types.CodeParseError, "malformed request"))
		return
	}

	handler, ok := s.registry.Lookup(req.Method)
	if !ok {
		s.send(conn, errorResponse(req.ID, types.CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method)))
		return
	}

	resp := s.invoke(handler, req)
	s.send(conn, resp)
}

// invoke calls handler inside a recover barrier: no panic may cross the
// connection boundary (spec.md §7 "Handler exception").
func (s *Server) invoke(h Handler, req types.RequestEnvelope) (resp types.ResponseEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", "method", req.Method, "panic", fmt.Sprint(r))
			resp = errorResponse(req.ID, types.CodeInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	data, errDetail := h(req.Params)
	if errDetail != nil {
		return types.ResponseEnvelope{Success: false, Error: errDetail, ID: req.ID}
	}
	return successResponse(req.ID, data)
}

func (s *Server) send(conn net.Conn, resp types.ResponseEnvelope) {
	body, err := encodeResponse(resp)
	if err != nil {
		s.logger.Error("encode response", "error", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if _, err := conn.Write(body); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

// invalidParams is a convenience for handlers rejecting malformed params.
func invalidParams(msg string) *types.ErrorDetail {
	return &types.ErrorDetail{Code: types.CodeInvalidParams, Message: msg}
}
