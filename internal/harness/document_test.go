package harness

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

func TestPositionForOffset(t *testing.T) {
	doc := &Document{text: "abc\ndef\n\nxy"}

	tests := []struct {
		name   string
		offset int
		want   protocol.Position
	}{
		{"start of text", 0, protocol.Position{Line: 0, Character: 0}},
		{"middle of line", 2, protocol.Position{Line: 0, Character: 2}},
		{"exactly at line break", 3, protocol.Position{Line: 0, Character: 3}},
		{"start of second line", 4, protocol.Position{Line: 1, Character: 0}},
		{"empty line", 8, protocol.Position{Line: 2, Character: 0}},
		{"start of last line", 9, protocol.Position{Line: 3, Character: 0}},
		{"end of text", 11, protocol.Position{Line: 3, Character: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, doc.PositionForOffset(tt.offset))
		})
	}
}

func TestPositionForOffsetTrailingNewline(t *testing.T) {
	doc := &Document{text: "abc\n"}
	assert.Equal(t, protocol.Position{Line: 0, Character: 3}, doc.PositionForOffset(3))
	assert.Equal(t, protocol.Position{Line: 1, Character: 0}, doc.PositionForOffset(4))
}

// Offset-to-position must invert position-to-offset for every offset from 0
// to the text length inclusive.
func TestOffsetPositionRoundTrip(t *testing.T) {
	texts := []string{
		"",
		"x",
		"abc\ndef\n\nxy",
		"module m #() ()\nendmodule\n",
		"\n\n\n",
	}

	for _, text := range texts {
		doc := &Document{text: text}
		for offset := 0; offset <= len(text); offset++ {
			pos := doc.PositionForOffset(offset)
			assert.Equal(t, offset, doc.OffsetForPosition(pos),
				"text %q offset %d -> %v", text, offset, pos)
		}
	}
}

func TestDocumentVersionsCountOperations(t *testing.T) {
	c := startInProcClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc, err := c.OpenDocument(ctx, "file:///v.sv", "module m();\nendmodule\n")
	require.NoError(t, err)
	assert.EqualValues(t, 0, doc.Version())

	// Version sent with change k must equal k; the open event counts as
	// change 0.
	for k := 1; k <= 5; k++ {
		require.NoError(t, doc.Append(ctx, "// edit\n"))
		assert.EqualValues(t, k, doc.Version())
	}
}

func TestAppendUpdatesLocalText(t *testing.T) {
	c := startInProcClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc, err := c.OpenDocument(ctx, "file:///a.sv", "abc")
	require.NoError(t, err)

	require.NoError(t, doc.Append(ctx, "\ndef"))
	assert.Equal(t, "abc\ndef", doc.Text())

	require.NoError(t, doc.Append(ctx, "!"))
	assert.Equal(t, "abc\ndef!", doc.Text())
}

func TestApplyChangeRangeSplicesText(t *testing.T) {
	c := startInProcClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc, err := c.OpenDocument(ctx, "file:///s.sv", "abc\ndef\n")
	require.NoError(t, err)

	require.NoError(t, doc.ApplyChange(ctx, &protocol.Range{
		Start: protocol.Position{Line: 1, Character: 0},
		End:   protocol.Position{Line: 1, Character: 3},
	}, "DEF"))
	assert.Equal(t, "abc\nDEF\n", doc.Text())
}

// A full-document replacement must omit the range key entirely: a zero-value
// range would read as an empty edit at the document start and the server
// would splice instead of replacing.
func TestDidChangeEncodingDistinguishesFullReplacement(t *testing.T) {
	full, err := json.Marshal(contentChangeEvent{Text: "whole file"})
	require.NoError(t, err)
	assert.NotContains(t, string(full), `"range"`)

	incremental, err := json.Marshal(contentChangeEvent{
		Range: &protocol.Range{},
		Text:  "x",
	})
	require.NoError(t, err)
	assert.Contains(t, string(incremental), `"range"`)
}

func TestReplaceIsAppliedByServer(t *testing.T) {
	c := startInProcClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc, err := c.OpenDocument(ctx, "file:///w.sv", "module OldOne();\nendmodule\n")
	require.NoError(t, err)

	require.NoError(t, doc.Replace(ctx, "module NewOne();\nendmodule\n"))

	symbols, err := c.DocumentSymbols(ctx, doc.URI())
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "NewOne", symbols[0].Name)
}

func TestReplaceSendsFullDocument(t *testing.T) {
	c := startInProcClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc, err := c.OpenDocument(ctx, "file:///r.sv", "old")
	require.NoError(t, err)

	require.NoError(t, doc.Replace(ctx, "new text"))
	assert.Equal(t, "new text", doc.Text())
	assert.EqualValues(t, 1, doc.Version())
}
