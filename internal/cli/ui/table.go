// Package ui holds small terminal rendering helpers shared by the CLI
// commands.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Table renders rows of cells with left-aligned, padded columns. Rows may
// carry a color that is applied to the whole line when the output supports
// it.
type Table struct {
	writer  io.Writer
	headers []string
	rows    []tableRow
}

type tableRow struct {
	cells []string
	color *color.Color
}

// NewTable creates a table that renders to w with the given column headers.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{writer: w, headers: headers}
}

// AddRow appends an uncolored row.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, tableRow{cells: cells})
}

// AddColoredRow appends a row rendered with c.
func (t *Table) AddColoredRow(c *color.Color, cells ...string) {
	t.rows = append(t.rows, tableRow{cells: cells, color: c})
}

// Len returns the number of rows added so far.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table. Columns are sized to the widest cell; the header
// row is underlined with dashes.
func (t *Table) Render() {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row.cells {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	header := color.New(color.Bold)
	header.Fprintln(t.writer, formatCells(t.headers, widths))

	var dashes []string
	for _, w := range widths {
		dashes = append(dashes, strings.Repeat("-", w))
	}
	fmt.Fprintln(t.writer, formatCells(dashes, widths))

	for _, row := range t.rows {
		line := formatCells(row.cells, widths)
		if row.color != nil {
			row.color.Fprintln(t.writer, line)
		} else {
			fmt.Fprintln(t.writer, line)
		}
	}
}

func formatCells(cells []string, widths []int) string {
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		if i < len(widths) && i < len(cells)-1 {
			b.WriteString(fmt.Sprintf("%-*s", widths[i], cell))
		} else {
			b.WriteString(cell)
		}
	}
	return strings.TrimRight(b.String(), " ")
}
