package ux

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Table renders aligned columns. Cells may carry lipgloss styling; widths
// are measured on the visible text.
type Table struct {
	Headers []string
	Rows    [][]string
	// Gap is the number of spaces between columns; zero means two.
	Gap int
}

// AddRow appends one row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (t *Table) widths() []int {
	n := len(t.Headers)
	for _, r := range t.Rows {
		if len(r) > n {
			n = len(r)
		}
	}
	w := make([]int, n)
	measure := func(cells []string) {
		for i, c := range cells {
			if cw := lipgloss.Width(c); cw > w[i] {
				w[i] = cw
			}
		}
	}
	measure(t.Headers)
	for _, r := range t.Rows {
		measure(r)
	}
	return w
}

func (t *Table) String() string {
	gap := t.Gap
	if gap <= 0 {
		gap = 2
	}
	widths := t.widths()

	var b strings.Builder
	line := func(cells []string, style *lipgloss.Style) {
		var parts []string
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if style != nil {
				cell = style.Render(cell)
			}
			if i < len(widths)-1 {
				cell += strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+gap)
			}
			parts = append(parts, cell)
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, ""), " "))
		b.WriteString("\n")
	}

	if len(t.Headers) > 0 {
		line(t.Headers, &headerStyle)
	}
	for _, r := range t.Rows {
		line(r, nil)
	}
	return b.String()
}

// RenderText implements TextRenderer.
func (t *Table) RenderText(w io.Writer) error {
	_, err := io.WriteString(w, t.String())
	return err
}

// Muted renders s in the secondary text colour.
func Muted(s string) string {
	return mutedStyle.Render(s)
}
