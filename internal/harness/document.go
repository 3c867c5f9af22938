package harness

import (
	"context"
	"strings"

	"go.lsp.dev/protocol"
)

// Document is the client-side shadow of one open text document: its uri, the
// full text as the server should currently see it, and the version counter
// for the next change. It is owned by the test that opened it and mutated
// only through its own methods.
type Document struct {
	client *Client
	uri    protocol.DocumentURI
	text   string

	// nextVersion is the version the next didChange will carry. The open
	// event is version 0, every change after it increments by exactly one,
	// so the server's and our view of document history never diverge.
	nextVersion int32
}

// OpenDocument sends textDocument/didOpen at version 0 and returns the local
// shadow of the document.
func (c *Client) OpenDocument(ctx context.Context, uri protocol.DocumentURI, text string) (*Document, error) {
	params := &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: "systemverilog",
			Version:    0,
			Text:       text,
		},
	}
	if err := c.notify(ctx, protocol.MethodTextDocumentDidOpen, params); err != nil {
		return nil, err
	}
	return &Document{client: c, uri: uri, text: text, nextVersion: 1}, nil
}

// URI returns the document's uri.
func (d *Document) URI() protocol.DocumentURI { return d.uri }

// Text returns the current local text.
func (d *Document) Text() string { return d.text }

// Version returns the version of the last open/change event sent.
func (d *Document) Version() int32 { return d.nextVersion - 1 }

// contentChangeEvent is the didChange wire shape with an optional range. The
// protocol package's event type carries a value range, which cannot express a
// full-document replacement: there the range key must be absent entirely, or
// the server would treat it as a zero-width edit at the document start.
type contentChangeEvent struct {
	Range *protocol.Range `json:"range,omitempty"`
	Text  string          `json:"text"`
}

// didChangeParams mirrors protocol.DidChangeTextDocumentParams with the
// optional-range change events.
type didChangeParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []contentChangeEvent                     `json:"contentChanges"`
}

// ApplyChange applies an edit locally and sends the matching didChange. A
// non-nil rng sends an incremental change carrying exactly the edited
// region; a nil rng sends a full-document replacement.
func (d *Document) ApplyChange(ctx context.Context, rng *protocol.Range, newText string) error {
	change := contentChangeEvent{Text: newText}
	if rng != nil {
		r := *rng
		change.Range = &r
		start := d.OffsetForPosition(rng.Start)
		end := d.OffsetForPosition(rng.End)
		d.text = d.text[:start] + newText + d.text[end:]
	} else {
		d.text = newText
	}

	params := &didChangeParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: d.uri},
			Version:                d.nextVersion,
		},
		ContentChanges: []contentChangeEvent{change},
	}
	d.nextVersion++
	return d.client.notify(ctx, protocol.MethodTextDocumentDidChange, params)
}

// Replace sends a full-document replacement.
func (d *Document) Replace(ctx context.Context, text string) error {
	return d.ApplyChange(ctx, nil, text)
}

// Append inserts text at the current end of the document as a zero-width
// range edit.
func (d *Document) Append(ctx context.Context, text string) error {
	pos := d.PositionForOffset(len(d.text))
	return d.ApplyChange(ctx, &protocol.Range{Start: pos, End: pos}, text)
}

// PositionForOffset converts a byte offset into a (line, character)
// position by walking the buffer's line breaks. Valid for offsets from 0 to
// len(text) inclusive; an offset exactly on a line break maps to the end of
// that line.
func (d *Document) PositionForOffset(offset int) protocol.Position {
	rest := d.text
	remaining := offset
	line := 0
	for {
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 || remaining <= nl {
			return protocol.Position{Line: uint32(line), Character: uint32(remaining)}
		}
		remaining -= nl + 1
		rest = rest[nl+1:]
		line++
	}
}

// OffsetForPosition is the inverse of PositionForOffset.
func (d *Document) OffsetForPosition(pos protocol.Position) int {
	offset := 0
	rest := d.text
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
