// Package fakeserver implements a minimal SystemVerilog language server over
// JSON-RPC stdio. It stands in for the real slang server in the harness's
// own tests: it answers the lifecycle handshake, tracks open documents
// through incremental edits, publishes diagnostics, and serves the document
// symbol tree produced by the svlang scanner.
package fakeserver

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"

	"github.com/svlang/slang-harness/internal/svlang"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// Server implements the stand-in language server.
type Server struct {
	// docs holds the current text of each open document.
	docs map[protocol.DocumentURI]string

	// versions holds the last version seen per document.
	versions map[protocol.DocumentURI]int32

	conn   jsonrpc2.Conn
	client protocol.Client
	logger *log.Logger

	capabilities protocol.ServerCapabilities

	// shutdown is set once the shutdown request has been received.
	shutdown bool

	// cancel signals server exit.
	cancel context.CancelFunc
}

// NewServer creates a server instance. Diagnostic chatter goes to stderr,
// where the harness's relay picks it up.
func NewServer() *Server {
	logger := log.New(os.Stderr, "[slang-server] ", log.LstdFlags)

	return &Server{
		docs:     make(map[protocol.DocumentURI]string),
		versions: make(map[protocol.DocumentURI]int32),
		logger:   logger,
		capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindIncremental,
			},
			DocumentSymbolProvider: true,
		},
	}
}

// Run serves LSP over stdin/stdout until exit is requested or the input
// stream ends.
func (s *Server) Run(ctx context.Context) error {
	return s.RunOn(ctx, stdrwc{})
}

// RunOn serves LSP over the given stream.
func (s *Server) RunOn(ctx context.Context, rwc io.ReadWriteCloser) error {
	s.logger.Println("starting slang server")

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	stream := jsonrpc2.NewStream(rwc)
	conn := jsonrpc2.NewConn(stream)
	s.conn = conn
	s.client = protocol.ClientDispatcher(conn, zap.NewNop())

	conn.Go(ctx, s.handler())

	select {
	case <-ctx.Done():
	case <-conn.Done():
	}

	s.logger.Println("shutting down slang server")
	return conn.Close()
}

// handler returns the JSON-RPC handler function.
func (s *Server) handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		s.logger.Printf("received: %s", req.Method())

		switch req.Method() {
		case protocol.MethodInitialize:
			return s.handleInitialize(ctx, reply, req)
		case protocol.MethodInitialized:
			return s.handleInitialized(ctx, reply, req)
		case protocol.MethodShutdown:
			return s.handleShutdown(ctx, reply, req)
		case protocol.MethodExit:
			return s.handleExit(ctx, reply, req)
		case protocol.MethodTextDocumentDidOpen:
			return s.handleDidOpen(ctx, reply, req)
		case protocol.MethodTextDocumentDidChange:
			return s.handleDidChange(ctx, reply, req)
		case protocol.MethodTextDocumentDocumentSymbol:
			return s.handleDocumentSymbol(ctx, reply, req)
		default:
			return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
		}
	}
}

func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "failed to parse initialize params")
	}

	s.logger.Printf("initialize from client: %v (root %s)", params.ClientInfo, params.RootURI)

	result := protocol.InitializeResult{
		Capabilities: s.capabilities,
		ServerInfo: &protocol.ServerInfo{
			Name:    "slang-server",
			Version: "0.0.1",
		},
	}

	return reply(ctx, result, nil)
}

func (s *Server) handleInitialized(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.logger.Println("client initialized")

	if err := s.client.LogMessage(ctx, &protocol.LogMessageParams{
		Type:    protocol.MessageTypeInfo,
		Message: "slang server ready",
	}); err != nil {
		s.logger.Printf("error sending logMessage: %v", err)
	}

	return reply(ctx, nil, nil)
}

func (s *Server) handleShutdown(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.logger.Println("shutdown requested")
	s.shutdown = true
	return reply(ctx, nil, nil)
}

func (s *Server) handleExit(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.logger.Println("exit requested")
	if err := reply(ctx, nil, nil); err != nil {
		s.logger.Printf("error replying to exit: %v", err)
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *Server) handleDidOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "failed to parse didOpen params")
	}

	uri := params.TextDocument.URI
	s.logger.Printf("document opened: %s (version %d)", uri, params.TextDocument.Version)

	s.docs[uri] = params.TextDocument.Text
	s.versions[uri] = params.TextDocument.Version

	s.publishDiagnostics(ctx, uri)

	return reply(ctx, nil, nil)
}

// contentChange is a didChange event with an optional range: absent for a
// full-document replacement, present for an incremental edit. The protocol
// package's event type has a value range and cannot tell the two apart.
type contentChange struct {
	Range *protocol.Range `json:"range"`
	Text  string          `json:"text"`
}

// didChangeParams mirrors protocol.DidChangeTextDocumentParams with the
// optional-range change events.
type didChangeParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []contentChange                          `json:"contentChanges"`
}

func (s *Server) handleDidChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params didChangeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "failed to parse didChange params")
	}

	uri := params.TextDocument.URI
	version := params.TextDocument.Version
	s.logger.Printf("document changed: %s (version %d)", uri, version)

	if prev, ok := s.versions[uri]; ok && version != prev+1 {
		s.logger.Printf("version gap on %s: %d -> %d", uri, prev, version)
	}
	s.versions[uri] = version

	text, ok := s.docs[uri]
	if !ok {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "change for unopened document")
	}

	s.docs[uri] = applyChanges(text, params.ContentChanges)

	s.publishDiagnostics(ctx, uri)

	return reply(ctx, nil, nil)
}

// applyChanges folds a didChange batch over the document text in order.
func applyChanges(text string, changes []contentChange) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		start := offsetAt(text, change.Range.Start)
		end := offsetAt(text, change.Range.End)
		text = text[:start] + change.Text + text[end:]
	}
	return text
}

func (s *Server) handleDocumentSymbol(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentSymbolParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "failed to parse documentSymbol params")
	}

	text, ok := s.docs[params.TextDocument.URI]
	if !ok {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "symbols for unopened document")
	}

	analysis := svlang.Analyze(text)
	symbols := make([]protocol.DocumentSymbol, 0, len(analysis.Symbols))
	for _, sym := range analysis.Symbols {
		symbols = append(symbols, convertSymbol(sym))
	}

	return reply(ctx, symbols, nil)
}

// publishDiagnostics reanalyzes a document and pushes its diagnostics.
func (s *Server) publishDiagnostics(ctx context.Context, uri protocol.DocumentURI) {
	analysis := svlang.Analyze(s.docs[uri])

	diagnostics := make([]protocol.Diagnostic, 0, len(analysis.Diagnostics))
	for _, d := range analysis.Diagnostics {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    convertRange(d.Range),
			Severity: convertSeverity(d.Severity),
			Source:   "slang",
			Message:  d.Message,
		})
	}

	params := protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	}

	if err := s.client.PublishDiagnostics(ctx, &params); err != nil {
		s.logger.Printf("error publishing diagnostics: %v", err)
	}
}

// replyWithError sends an LSP-compliant error response.
func (s *Server) replyWithError(ctx context.Context, reply jsonrpc2.Replier, code jsonrpc2.Code, message string) error {
	return reply(ctx, nil, &jsonrpc2.Error{
		Code:    code,
		Message: message,
	})
}

func convertSymbol(sym svlang.Symbol) protocol.DocumentSymbol {
	out := protocol.DocumentSymbol{
		Name:           sym.Name,
		Kind:           convertKind(sym.Kind),
		Range:          convertRange(sym.Range),
		SelectionRange: convertRange(sym.Range),
	}
	for _, child := range sym.Children {
		converted := convertSymbol(child)
		out.Children = append(out.Children, converted)
	}
	return out
}

func convertKind(kind svlang.SymbolKind) protocol.SymbolKind {
	switch kind {
	case svlang.KindModule:
		return protocol.SymbolKindModule
	case svlang.KindConstant:
		return protocol.SymbolKindConstant
	case svlang.KindVariable:
		return protocol.SymbolKindVariable
	default:
		return protocol.SymbolKindObject
	}
}

func convertSeverity(severity svlang.DiagnosticSeverity) protocol.DiagnosticSeverity {
	switch severity {
	case svlang.SeverityError:
		return protocol.DiagnosticSeverityError
	case svlang.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case svlang.SeverityInfo:
		return protocol.DiagnosticSeverityInformation
	case svlang.SeverityHint:
		return protocol.DiagnosticSeverityHint
	default:
		return protocol.DiagnosticSeverityError
	}
}

func convertRange(r svlang.Range) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: uint32(r.Start.Line), Character: uint32(r.Start.Character)},
		End:   protocol.Position{Line: uint32(r.End.Line), Character: uint32(r.End.Character)},
	}
}

// offsetAt converts a position into a byte offset in text.
func offsetAt(text string, pos protocol.Position) int {
	offset := 0
	rest := text
	for line := uint32(0); line < pos.Line; line++ {
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			break
		}
		offset += nl + 1
		rest = rest[nl+1:]
	}
	return offset + int(pos.Character)
}

// stdrwc adapts stdin/stdout to io.ReadWriteCloser.
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
