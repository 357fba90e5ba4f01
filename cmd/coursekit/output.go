package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// listing collects rows for a rounded go-pretty table.
type listing struct {
	headers []string
	right   map[int]bool
	rows    []table.Row
	footer  table.Row
}

func newListing(headers ...string) *listing {
	return &listing{headers: headers, right: map[int]bool{}}
}

// alignRight right-aligns the given zero-based columns.
func (l *listing) alignRight(cols ...int) *listing {
	for _, c := range cols {
		l.right[c] = true
	}
	return l
}

// add appends a row. Missing cells render empty; extra cells are dropped.
func (l *listing) add(cells ...string) {
	row := make(table.Row, len(l.headers))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	l.rows = append(l.rows, row)
}

func (l *listing) setFooter(cells ...any) { l.footer = cells }

func (l *listing) len() int { return len(l.rows) }

// render writes the table to out, or empty when no rows were added.
func (l *listing) render(out io.Writer, empty string) {
	if len(l.rows) == 0 {
		fmt.Fprintln(out, empty)
		return
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	header := make(table.Row, len(l.headers))
	configs := make([]table.ColumnConfig, len(l.headers))
	for i, h := range l.headers {
		header[i] = h
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, Align: text.AlignLeft}
		if l.right[i] {
			configs[i].Align = text.AlignRight
			configs[i].AlignFooter = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.AppendRows(l.rows)
	if len(l.footer) > 0 {
		tw.AppendFooter(l.footer)
	}
	tw.SetColumnConfigs(configs)
	fmt.Fprintln(out, tw.Render())
}

type checkState int

const (
	stateInfo checkState = iota
	statePass
	stateFail
)

var checkStyles = map[checkState]struct {
	label  string
	colors text.Colors
}{
	stateInfo: {"INFO", text.Colors{text.FgBlue}},
	statePass: {"OK", text.Colors{text.FgGreen}},
	stateFail: {"FAIL", text.Colors{text.FgRed, text.Bold}},
}

// statusLine renders "  Label:               [OK] detail", colored when color is set.
func statusLine(label string, state checkState, detail string, color bool) string {
	style := checkStyles[state]
	line := fmt.Sprintf("  %-20s [%s]", label+":", style.label)
	if detail != "" {
		line += " " + detail
	}
	if color {
		return style.colors.Sprint(line)
	}
	return line
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func formatBytes[T int64 | uint64](n T) string {
	if n < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
