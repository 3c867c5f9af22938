package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRendersAlignedColumns(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, "LINE", "MESSAGE")
	table.AddRow("1", "short")
	table.AddRow("120", "a longer message")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)

	assert.True(t, strings.HasPrefix(lines[0], "LINE"))
	assert.Contains(t, lines[1], "----")

	// The first column is padded to the widest cell, so both messages
	// start at the same offset.
	assert.Equal(t, strings.Index(lines[2], "short"), strings.Index(lines[3], "a longer"))
}

func TestTableColoredRowKeepsCells(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	var buf bytes.Buffer
	table := NewTable(&buf, "SEVERITY", "MESSAGE")
	table.AddColoredRow(color.New(color.FgRed), "error", "expected ';'")
	table.Render()

	assert.Contains(t, buf.String(), "error")
	assert.Contains(t, buf.String(), "expected ';'")
	assert.Equal(t, 1, table.Len())
}

func TestTableTrimsTrailingPadding(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, "A", "B")
	table.AddRow("x", "y")
	table.Render()

	for _, line := range strings.Split(buf.String(), "\n") {
		assert.Equal(t, strings.TrimRight(line, " "), line)
	}
}
