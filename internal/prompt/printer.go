// internal/prompt/printer.go
package prompt

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Printer writes operator facing progress lines and page renderings.
// Styling degrades to plain text when out is not a terminal.
type Printer struct {
	out io.Writer

	info    lipgloss.Style
	notice  lipgloss.Style
	warn    lipgloss.Style
	heading lipgloss.Style
	body    lipgloss.Style
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:     out,
		info:    r.NewStyle().Foreground(lipgloss.Color("#8BE9FD")),
		notice:  r.NewStyle().Foreground(lipgloss.Color("#50FA7B")).Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#FFB86C")),
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#BD93F9")).MarginTop(1),
		body:    r.NewStyle().Width(100).PaddingLeft(2),
	}
}

// Infof prints a progress line.
func (p *Printer) Infof(format string, args ...interface{}) {
	fmt.Fprintln(p.out, p.info.Render(fmt.Sprintf(format, args...)))
}

// Noticef prints a highlighted line, such as the selected action.
func (p *Printer) Noticef(format string, args ...interface{}) {
	fmt.Fprintln(p.out, p.notice.Render(fmt.Sprintf(format, args...)))
}

// Warnf prints a warning line.
func (p *Printer) Warnf(format string, args ...interface{}) {
	fmt.Fprintln(p.out, p.warn.Render(fmt.Sprintf(format, args...)))
}

// Page prints a titled page rendering: the summary followed by the page text.
func (p *Printer) Page(title, summary, text string) {
	fmt.Fprintln(p.out, p.heading.Render(title))
	if summary != "" {
		fmt.Fprintln(p.out, p.body.Render(summary))
		fmt.Fprintln(p.out)
	}
	if text != "" {
		fmt.Fprintln(p.out, p.body.Render(text))
	}
}
