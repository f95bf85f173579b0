// Package output renders command results as terminal tables, markdown or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
)

// Mode selects how results are rendered.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Modes lists the accepted mode names.
func Modes() []string {
	return []string{string(ModeAuto), string(ModeText), string(ModeMarkdown), string(ModeJSON)}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// Renderer writes command results.
type Renderer struct {
	out  io.Writer
	err  io.Writer
	mode Mode
}

// NewRenderer creates a renderer. ModeAuto resolves to text on a terminal
// and markdown otherwise.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, IsTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" || mode == ModeAuto {
		mode = ModeMarkdown
		if isTTY {
			mode = ModeText
		}
	}
	return &Renderer{out: out, err: errOut, mode: mode}
}

// Mode returns the resolved output mode.
func (r *Renderer) Mode() Mode { return r.mode }

// Table is a titled result table.
type Table struct {
	Title   string
	Header  []string
	Rows    [][]any
	Footer  []any
	Caption string
}

// Render writes t in the renderer's mode.
func (r *Renderer) Render(t Table) error {
	if r.mode == ModeJSON {
		return r.renderJSON(t)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	tw.SetStyle(table.StyleLight)
	if t.Title != "" {
		tw.SetTitle(t.Title)
	}

	header := make(table.Row, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range t.Rows {
		tw.AppendRow(table.Row(row))
	}
	if len(t.Footer) > 0 {
		tw.AppendFooter(table.Row(t.Footer))
	}
	if t.Caption != "" {
		tw.SetCaption(t.Caption)
	}

	if r.mode == ModeMarkdown {
		tw.RenderMarkdown()
		_, _ = fmt.Fprintln(r.out)
		return nil
	}
	tw.Render()
	return nil
}

func (r *Renderer) renderJSON(t Table) error {
	rows := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		m := make(map[string]any, len(t.Header))
		for i, h := range t.Header {
			if i < len(row) {
				m[h] = row[i]
			}
		}
		rows = append(rows, m)
	}

	doc := map[string]any{"rows": rows}
	if t.Title != "" {
		doc["title"] = t.Title
	}
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Warn writes a warning line to the error stream.
func (r *Renderer) Warn(format string, args ...any) {
	_, _ = fmt.Fprintf(r.err, "Warning: "+format+"\n", args...)
}

// Println writes a plain line to the output stream. It is suppressed in JSON
// mode so the output stays parseable.
func (r *Renderer) Println(args ...any) {
	if r.mode == ModeJSON {
		return
	}
	_, _ = fmt.Fprintln(r.out, args...)
}
