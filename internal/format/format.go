// Package format renders audit and grading results as terminal or
// Markdown tables.
package format

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls the output format.
type Mode int

const (
	ASCII Mode = iota
	Markdown
)

// ParseMode maps a --format flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ascii", "text":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return ASCII, fmt.Errorf("format: unknown mode %q (want ascii or markdown)", s)
	}
}

// Column tunes one rendered column. Index is 1-based; Wrap > 0 wraps
// cell content at that width.
type Column struct {
	Index int
	Right bool
	Wrap  int
}

// TableBuilder collects header, rows and footer, then renders once in the
// Mode fixed by NewTable. Cells go through fmt.Sprint.
type TableBuilder interface {
	Header(cols ...string)
	Row(vals ...any)
	Footer(vals ...any)
	Columns(cols ...Column)
	String() string
}

// NewTable returns a go-pretty backed TableBuilder.
func NewTable(m Mode) TableBuilder {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return &prettyTable{w: w, mode: m}
}

type prettyTable struct {
	w    table.Writer
	mode Mode
}

func (p *prettyTable) Header(cols ...string) {
	hdr := make(table.Row, 0, len(cols))
	for _, c := range cols {
		hdr = append(hdr, c)
	}
	p.w.AppendHeader(hdr)
}

func (p *prettyTable) Row(vals ...any)    { p.w.AppendRow(table.Row(vals)) }
func (p *prettyTable) Footer(vals ...any) { p.w.AppendFooter(table.Row(vals)) }

func (p *prettyTable) Columns(cols ...Column) {
	cfgs := make([]table.ColumnConfig, 0, len(cols))
	for _, c := range cols {
		cfg := table.ColumnConfig{Number: c.Index, WidthMax: c.Wrap}
		if c.Right {
			cfg.Align = text.AlignRight
		}
		cfgs = append(cfgs, cfg)
	}
	p.w.SetColumnConfigs(cfgs)
}

func (p *prettyTable) String() string {
	if p.mode == Markdown {
		return p.w.RenderMarkdown()
	}
	return p.w.Render()
}
