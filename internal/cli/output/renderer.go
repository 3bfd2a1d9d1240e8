// Package output renders command results for terminals, pipes and scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// Mode selects how results are rendered.
type Mode string

// Output modes.
const (
	ModeAuto Mode = "auto" // TTY=text, otherwise JSON
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// Modes lists every accepted mode.
var Modes = []Mode{ModeAuto, ModeText, ModeJSON}

// ParseMode validates s. An empty string means ModeAuto.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeAuto, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown output mode %q (want auto, text or json)", s)
}

// Renderer writes results in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
	}
	return NewRendererWithTTY(out, errOut, isTTY, mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{out: out, errOut: errOut, mode: mode, isTTY: isTTY}
}

// EffectiveMode resolves ModeAuto against the TTY state.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeJSON
}

// Writer returns the standard output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// Println writes a line to standard output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text to standard output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Warn writes a line to standard error.
func (r *Renderer) Warn(format string, a ...any) {
	_, _ = fmt.Fprintf(r.errOut, "warning: "+format+"\n", a...)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table renders rows under header.
func (r *Renderer) Table(header []string, rows [][]string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	if r.isTTY {
		tw.SetStyle(table.StyleLight)
		tw.Style().Format.Header = text.FormatDefault
	} else {
		tw.SetStyle(table.StyleDefault)
		tw.Style().Options = table.OptionsNoBordersAndSeparators
	}

	h := make(table.Row, len(header))
	for i, col := range header {
		h[i] = col
	}
	tw.AppendHeader(h)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, cell := range row {
			tr[i] = cell
		}
		tw.AppendRow(tr)
	}
	tw.Render()
}

// Outcome renders an outcome and its children as an indented tree.
func (r *Renderer) Outcome(out core.Outcome) {
	r.outcome(out, 0)
}

func (r *Renderer) outcome(out core.Outcome, depth int) {
	mark := r.mark(out.Success)
	r.Printf("%s%s %s: %s\n", strings.Repeat("  ", depth), mark, out.Node, out.Summary)
	for _, f := range out.Files {
		r.Printf("%s    %s\n", strings.Repeat("  ", depth), f)
	}
	for _, child := range out.Children {
		r.outcome(child, depth+1)
	}
}

func (r *Renderer) mark(ok bool) string {
	switch {
	case ok && r.isTTY:
		return text.FgGreen.Sprint("✓")
	case ok:
		return "ok"
	case r.isTTY:
		return text.FgRed.Sprint("✗")
	default:
		return "FAIL"
	}
}

// YesNo renders a flag column.
func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
