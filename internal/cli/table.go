package cli

import (
	"bufio"
	"io"
	"strings"

	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
)

const columnGap = "  "

// column is one table column. Cells wider than max (when positive) are cut
// with an ellipsis; the last column is never padded.
type column struct {
	title string
	max   int
}

// table buffers rows so every column can be sized to its widest cell.
type table struct {
	cols   []column
	rows   [][]string
	widths []int
}

func newTable(cols ...column) *table {
	t := &table{cols: cols, widths: make([]int, len(cols))}
	for i, c := range cols {
		t.widths[i] = ansi.PrintableRuneWidth(c.title)
	}
	return t
}

// add appends a row. Missing trailing cells are blank, extra cells dropped.
// Runs of whitespace, line breaks included, collapse to a single space.
func (t *table) add(cells ...string) {
	row := make([]string, len(t.cols))
	for i := range row {
		if i >= len(cells) {
			break
		}
		cell := strings.Join(strings.Fields(cells[i]), " ")
		if limit := t.cols[i].max; limit > 0 {
			cell = truncate.StringWithTail(cell, uint(limit), "…")
		}
		row[i] = cell
		if w := ansi.PrintableRuneWidth(cell); w > t.widths[i] {
			t.widths[i] = w
		}
	}
	t.rows = append(t.rows, row)
}

func (t *table) render(out io.Writer) error {
	if len(t.cols) == 0 {
		return nil
	}
	w := bufio.NewWriter(out)
	titles := make([]string, len(t.cols))
	for i, c := range t.cols {
		titles[i] = c.title
	}
	t.writeRow(w, titles)
	for _, row := range t.rows {
		t.writeRow(w, row)
	}
	return w.Flush()
}

// writeRow relies on bufio.Writer keeping the first error; Flush reports it.
func (t *table) writeRow(w *bufio.Writer, row []string) {
	last := len(row) - 1
	for last > 0 && row[last] == "" {
		last--
	}
	for i := 0; i <= last; i++ {
		w.WriteString(row[i])
		if i < last {
			w.WriteString(strings.Repeat(" ", t.widths[i]-ansi.PrintableRuneWidth(row[i])))
			w.WriteString(columnGap)
		}
	}
	w.WriteByte('\n')
}
