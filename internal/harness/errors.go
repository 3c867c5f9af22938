package harness

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"syscall"

	"go.lsp.dev/jsonrpc2"
)

// Error kinds used throughout the harness. Callers classify failures with
// errors.Is rather than matching message text.
var (
	// ErrProcess marks failures of the server process itself: it could not
	// be spawned, or it exited while work was still outstanding. Fatal to
	// the session.
	ErrProcess = errors.New("server process error")

	// ErrProtocol marks an error-coded response or a malformed frame.
	// Scoped to the single call that observed it; the session stays usable.
	ErrProtocol = errors.New("protocol error")

	// ErrTimeout marks an await that ran out of patience. Scoped to the
	// awaiting call only.
	ErrTimeout = errors.New("timed out")

	// ErrSessionFailed is returned by operations on a session that has
	// already transitioned to the Failed state.
	ErrSessionFailed = errors.New("session is in failed state")
)

// processErr wraps err so that errors.Is(err, ErrProcess) holds.
func processErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProcess, fmt.Sprintf(format, args...))
}

// classifyCallError maps an error returned by a JSON-RPC call onto the
// harness taxonomy. Error-coded responses arrive as *jsonrpc2.Error; a
// write to a closed pipe means the process went away.
func classifyCallError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: server replied with code %d: %s", ErrProtocol, rpcErr.Code, rpcErr.Message)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, fs.ErrClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EPIPE) {
		return processErr("connection closed: %v", err)
	}
	return err
}
