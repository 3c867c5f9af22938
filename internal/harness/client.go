package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// pipeStream glues the server's stdout (reads) and stdin (writes) into the
// single ReadWriteCloser the JSON-RPC stream wants.
type pipeStream struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (s pipeStream) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s pipeStream) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s pipeStream) Close() error {
	if err := s.r.Close(); err != nil {
		return err
	}
	return s.w.Close()
}

// waitResult is what a notification waiter eventually receives.
type waitResult struct {
	params json.RawMessage
	err    error
}

// pendingWait is a single outstanding waiter for one notification method: a
// one-shot completion channel plus an optional observer callback.
type pendingWait struct {
	ch       chan waitResult
	observer func(json.RawMessage)
}

// NotificationWait is a handle to a registered notification wait. It resolves
// the next time a notification with the registered method is dispatched.
type NotificationWait struct {
	method string
	ch     chan waitResult
}

// Await blocks until the notification arrives, the session fails, or ctx
// expires.
func (w *NotificationWait) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case res := <-w.ch:
		return res.params, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w waiting for %q", ErrTimeout, w.method)
		}
		return nil, ctx.Err()
	}
}

// Client speaks LSP to the server process over its stdio pipes. It owns the
// JSON-RPC connection, the per-method notification waiter slots, and the
// diagnostics/message logs. All incoming traffic is dispatched from the
// connection's single handler; test code only registers waiters and reads
// logs.
type Client struct {
	conn   jsonrpc2.Conn
	proc   *ServerProcess
	logger *zap.Logger

	// lifetime is cancelled with the failure cause when the connection or
	// the process dies, so no call or waiter can hang past that point.
	lifetime context.Context
	fail     context.CancelCauseFunc

	mu          sync.Mutex
	waiters     map[string]*pendingWait
	diagnostics map[protocol.DocumentURI][]protocol.Diagnostic
	messages    []protocol.ShowMessageParams
	logMessages []protocol.LogMessageParams
	cancelled   []interface{}
	failErr     error
}

// NewClient wraps the process's stdio streams in a JSON-RPC connection and
// starts dispatching incoming traffic.
func NewClient(ctx context.Context, proc *ServerProcess, logger *zap.Logger) *Client {
	c := newClient(ctx, pipeStream{r: proc.Stdout(), w: proc.Stdin()}, proc.Done(), logger)
	c.proc = proc
	return c
}

// newClient builds a client over an arbitrary stream. procDone may be nil
// when there is no process to watch.
func newClient(ctx context.Context, rwc io.ReadWriteCloser, procDone <-chan struct{}, logger *zap.Logger) *Client {
	c := &Client{
		logger:      logger,
		waiters:     make(map[string]*pendingWait),
		diagnostics: make(map[protocol.DocumentURI][]protocol.Diagnostic),
	}
	c.lifetime, c.fail = context.WithCancelCause(ctx)

	c.conn = jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	c.conn.Go(ctx, c.handler())

	// A dead connection or a dead process must fail every outstanding
	// await; a silently stuck awaiter shows up as a hung test run.
	go func() {
		select {
		case <-c.conn.Done():
			c.failAll(processErr("connection closed: %v", c.conn.Err()))
		case <-procDone:
			c.failAll(processErr("server exited unexpectedly"))
		case <-c.lifetime.Done():
		}
	}()

	return c
}

// failAll marks the client failed and resolves every pending waiter with err.
// The first failure wins; later calls are no-ops.
func (c *Client) failAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return
	}
	c.failErr = err
	c.fail(err)
	for method, w := range c.waiters {
		w.ch <- waitResult{err: err}
		delete(c.waiters, method)
	}
}

// Failure returns the terminal failure, if the client has one.
func (c *Client) Failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failErr
}

// Close tears down the JSON-RPC connection.
func (c *Client) Close() error {
	c.failAll(processErr("client closed"))
	return c.conn.Close()
}

// handler dispatches everything the server sends us. Waiter slots and logs
// are only touched from here (under the client mutex), so registration and
// dispatch cannot race on a method's slot.
func (c *Client) handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		if _, ok := req.(*jsonrpc2.Call); ok {
			// The harness never answers server-to-client requests.
			c.logger.Warn("ignoring server request", zap.String("method", req.Method()))
			return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
		}

		if req.Method() == protocol.MethodCancelRequest {
			var params protocol.CancelParams
			if err := json.Unmarshal(req.Params(), &params); err == nil {
				c.recordCancel(params.ID)
			}
			return reply(ctx, nil, nil)
		}

		c.dispatchNotification(req.Method(), req.Params())
		return reply(ctx, nil, nil)
	}
}

// dispatchNotification resolves a pending waiter for the method, if any, and
// then runs the regular handling for known methods. Unknown methods are
// logged and dropped, never an error.
func (c *Client) dispatchNotification(method string, raw json.RawMessage) {
	c.mu.Lock()
	w := c.waiters[method]
	delete(c.waiters, method)

	switch method {
	case protocol.MethodTextDocumentPublishDiagnostics:
		var params protocol.PublishDiagnosticsParams
		if err := json.Unmarshal(raw, &params); err != nil {
			c.logger.Warn("malformed publishDiagnostics", zap.Error(err))
		} else {
			c.diagnostics[params.URI] = params.Diagnostics
		}
	case protocol.MethodWindowShowMessage:
		var params protocol.ShowMessageParams
		if err := json.Unmarshal(raw, &params); err != nil {
			c.logger.Warn("malformed showMessage", zap.Error(err))
		} else {
			c.messages = append(c.messages, params)
		}
	case protocol.MethodWindowLogMessage:
		var params protocol.LogMessageParams
		if err := json.Unmarshal(raw, &params); err != nil {
			c.logger.Warn("malformed logMessage", zap.Error(err))
		} else {
			c.logMessages = append(c.logMessages, params)
		}
	default:
		if w == nil {
			c.logger.Warn("ignoring notification for unknown method", zap.String("method", method))
		}
	}
	c.mu.Unlock()

	if w != nil {
		if w.observer != nil {
			w.observer(raw)
		}
		w.ch <- waitResult{params: raw}
	}
}

func (c *Client) recordCancel(id interface{}) {
	c.mu.Lock()
	c.cancelled = append(c.cancelled, id)
	c.mu.Unlock()
	c.logger.Debug("server cancelled request", zap.Any("id", id))
}

// ExpectNotification registers a wait for the next notification with the
// given method. At most one wait per method is outstanding: registering
// again replaces the slot and the previous wait is never resolved. Register
// before triggering the notification; earlier notifications are not
// buffered.
func (c *Client) ExpectNotification(method string) *NotificationWait {
	return c.expect(method, nil)
}

// ExpectNotificationFunc is ExpectNotification with an observer callback
// that runs with the raw parameters before the wait resolves.
func (c *Client) ExpectNotificationFunc(method string, observer func(json.RawMessage)) *NotificationWait {
	return c.expect(method, observer)
}

func (c *Client) expect(method string, observer func(json.RawMessage)) *NotificationWait {
	w := &NotificationWait{method: method, ch: make(chan waitResult, 1)}

	c.mu.Lock()
	if c.failErr != nil {
		w.ch <- waitResult{err: c.failErr}
	} else {
		c.waiters[method] = &pendingWait{ch: w.ch, observer: observer}
	}
	c.mu.Unlock()

	return w
}

// WaitForNotification registers a wait for method and blocks until it
// resolves.
func (c *Client) WaitForNotification(ctx context.Context, method string) (json.RawMessage, error) {
	return c.ExpectNotification(method).Await(ctx)
}

// call issues a request and decodes the response into result. It fails fast
// once the client has a terminal failure and classifies response errors.
func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	if err := c.Failure(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.lifetime, cancel)
	defer stop()

	_, err := c.conn.Call(ctx, method, params, result)
	if err == nil {
		return nil
	}
	// Once the process is gone the terminal failure is the real story, not
	// whatever error the aborted call surfaced.
	if ferr := c.Failure(); ferr != nil {
		return ferr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no response to %q", ErrTimeout, method)
	}
	return classifyCallError(err)
}

// notify sends a one-way notification.
func (c *Client) notify(ctx context.Context, method string, params interface{}) error {
	if err := c.Failure(); err != nil {
		return err
	}
	if err := c.conn.Notify(ctx, method, params); err != nil {
		return classifyCallError(err)
	}
	return nil
}

// Initialize performs the initialize request with empty client capabilities
// and the given workspace root.
func (c *Client) Initialize(ctx context.Context, rootURI protocol.DocumentURI) (*protocol.InitializeResult, error) {
	params := &protocol.InitializeParams{
		Capabilities: protocol.ClientCapabilities{},
		RootURI:      rootURI,
	}
	var result protocol.InitializeResult
	if err := c.call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Initialized sends the initialized notification that completes the
// handshake.
func (c *Client) Initialized(ctx context.Context) error {
	return c.notify(ctx, protocol.MethodInitialized, &protocol.InitializedParams{})
}

// Shutdown sends the shutdown request.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.call(ctx, protocol.MethodShutdown, nil, nil)
}

// Exit sends the exit notification.
func (c *Client) Exit(ctx context.Context) error {
	return c.notify(ctx, protocol.MethodExit, nil)
}

// DocumentSymbols requests the symbol tree for a document.
func (c *Client) DocumentSymbols(ctx context.Context, uri protocol.DocumentURI) ([]protocol.DocumentSymbol, error) {
	params := &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}
	var symbols []protocol.DocumentSymbol
	if err := c.call(ctx, protocol.MethodTextDocumentDocumentSymbol, params, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

// WaitForDiagnostics registers for the next publishDiagnostics notification
// and decodes it.
func (c *Client) WaitForDiagnostics(ctx context.Context) (*protocol.PublishDiagnosticsParams, error) {
	raw, err := c.WaitForNotification(ctx, protocol.MethodTextDocumentPublishDiagnostics)
	if err != nil {
		return nil, err
	}
	var params protocol.PublishDiagnosticsParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("%w: malformed publishDiagnostics: %v", ErrProtocol, err)
	}
	return &params, nil
}

// Diagnostics returns the most recently published diagnostics for uri.
func (c *Client) Diagnostics(uri protocol.DocumentURI) ([]protocol.Diagnostic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	diags, ok := c.diagnostics[uri]
	return diags, ok
}

// Messages returns all window/showMessage notifications received so far.
func (c *Client) Messages() []protocol.ShowMessageParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.ShowMessageParams, len(c.messages))
	copy(out, c.messages)
	return out
}

// LogMessages returns all window/logMessage notifications received so far.
func (c *Client) LogMessages() []protocol.LogMessageParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.LogMessageParams, len(c.logMessages))
	copy(out, c.logMessages)
	return out
}

// CancelledRequests returns the ids of $/cancelRequest notifications the
// server has sent.
func (c *Client) CancelledRequests() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interface{}, len(c.cancelled))
	copy(out, c.cancelled)
	return out
}
