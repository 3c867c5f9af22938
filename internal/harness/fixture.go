package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"
)

// DefaultBinary is where a source build drops the server executable.
const DefaultBinary = "build/bin/slang-server"

// defaultHandshakeTimeout bounds the initialize round trip during Acquire.
const defaultHandshakeTimeout = 30 * time.Second

// releaseTimeout bounds each best-effort teardown step.
const releaseTimeout = 5 * time.Second

// Config describes how to acquire a test session.
type Config struct {
	// Binary is the server executable. Defaults to DefaultBinary.
	Binary string

	// ExtraArgs are appended to the server command line.
	ExtraArgs []string

	// Env entries are appended to the server's environment.
	Env []string

	// Record runs the server under `rr record`.
	Record bool

	// DebugWait pauses after spawn for a debugger to attach. Ignored when
	// Record is set.
	DebugWait time.Duration

	// WorkspaceRoot is sent as the root uri in initialize. Defaults to the
	// current directory.
	WorkspaceRoot string

	// HandshakeTimeout bounds the initialize round trip.
	HandshakeTimeout time.Duration

	// Logger receives harness and relayed server output. Defaults to
	// zap.NewNop().
	Logger *zap.Logger
}

func (c *Config) wrap(logger *zap.Logger) Wrap {
	switch {
	case c.Record:
		if c.DebugWait > 0 {
			logger.Warn("record takes precedence over debug-wait")
		}
		return WrapRecord()
	case c.DebugWait > 0:
		return WrapDebugWait(c.DebugWait)
	default:
		return WrapNone()
	}
}

// SessionState tracks where a session is in its lifecycle.
type SessionState int

const (
	StateUnstarted SessionState = iota
	StateStarting
	StateInitialized
	StateShuttingDown
	StateExited

	// StateFailed is terminal; operations on a failed session fail fast.
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarting:
		return "starting"
	case StateInitialized:
		return "initialized"
	case StateShuttingDown:
		return "shutting-down"
	case StateExited:
		return "exited"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session aggregates a running server process, the protocol client on top of
// it, and the workspace root the server was initialized with. Valid between
// a successful Acquire and Release.
type Session struct {
	ID     string
	proc   *ServerProcess
	client *Client
	logger *zap.Logger
	root   string
	state  SessionState

	// failure records why the session entered StateFailed, wrapped so both
	// ErrSessionFailed and the root cause stay in the chain.
	failure error

	initResult *protocol.InitializeResult
}

// Acquire starts the server, performs the initialize handshake, and returns
// a ready session. On any failure the partially started process is torn
// down before the error is returned.
func Acquire(ctx context.Context, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("session", id))

	binary := cfg.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	root := cfg.WorkspaceRoot
	if root == "" {
		root, _ = os.Getwd()
	}
	handshakeTimeout := cfg.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}

	s := &Session{ID: id, logger: logger, root: root, state: StateStarting}

	proc, err := StartServer(StartOptions{
		Binary:    binary,
		ExtraArgs: cfg.ExtraArgs,
		Env:       cfg.Env,
		Wrap:      cfg.wrap(logger),
	}, logger)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	s.proc = proc

	// The client's dispatch loop outlives the acquire call; only the
	// handshake itself runs under the handshake deadline.
	s.client = NewClient(context.WithoutCancel(ctx), proc, logger)

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	result, err := s.client.Initialize(hctx, uri.File(root))
	if err != nil {
		s.failAndCleanup()
		return nil, err
	}
	s.initResult = result
	if err := s.client.Initialized(hctx); err != nil {
		s.failAndCleanup()
		return nil, err
	}

	s.state = StateInitialized
	logger.Debug("session initialized", zap.String("root", root))
	return s, nil
}

func (s *Session) failAndCleanup() {
	s.state = StateFailed
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.proc != nil {
		_ = s.proc.Stop()
	}
}

// Client returns the protocol client, or an error wrapping ErrSessionFailed
// and the root cause once the session has failed. Every call after the first
// failure returns the same error.
func (s *Session) Client() (*Client, error) {
	if s.failure != nil {
		return nil, s.failure
	}
	if s.state == StateFailed {
		s.failure = ErrSessionFailed
		return nil, s.failure
	}
	if err := s.client.Failure(); err != nil {
		s.state = StateFailed
		s.failure = fmt.Errorf("%w: %w", ErrSessionFailed, err)
		return nil, s.failure
	}
	return s.client, nil
}

// Process returns the server process handle.
func (s *Session) Process() *ServerProcess { return s.proc }

// InitializeResult returns the server's initialize response.
func (s *Session) InitializeResult() *protocol.InitializeResult { return s.initResult }

// State returns the session's lifecycle state.
func (s *Session) State() SessionState { return s.state }

// FileURI converts a path relative to the workspace root into a document
// uri.
func (s *Session) FileURI(rel string) protocol.DocumentURI {
	return uri.File(filepath.Join(s.root, rel))
}

// RootURI returns the workspace root as a uri.
func (s *Session) RootURI() protocol.DocumentURI {
	return uri.File(s.root)
}

// Release tears the session down: shutdown request, exit notification, stop
// the process. Every step is best-effort; a crashed server must not make
// cleanup hang or mask the test's own failure, so errors are logged and
// swallowed. Safe to call on a failed session and after the process has
// already exited.
func (s *Session) Release() {
	if s.state == StateExited {
		return
	}
	s.state = StateShuttingDown

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := s.client.Shutdown(ctx); err != nil {
		s.logger.Warn("shutdown request failed", zap.Error(err))
	}
	if err := s.client.Exit(ctx); err != nil {
		s.logger.Warn("exit notification failed", zap.Error(err))
	}
	if err := s.proc.Stop(); err != nil {
		s.logger.Warn("stopping server failed", zap.Error(err))
	}
	if err := s.client.Close(); err != nil {
		s.logger.Debug("closing client", zap.Error(err))
	}

	s.state = StateExited
}
