package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
)

const notesWidth = 80

// Colors
var (
	primaryColor = lipgloss.Color("#7D56F4")
	dimColor     = lipgloss.Color("#6272A4")
	textColor    = lipgloss.Color("#F8F8F2")
	successColor = lipgloss.Color("#50FA7B")
	warningColor = lipgloss.Color("#FFB86C")
	errorColor   = lipgloss.Color("#FF5555")
)

// Styles
var (
	appStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	textStyle = lipgloss.NewStyle().
			Foreground(textColor)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)
)

// printer writes command output in the configured format. Plain output has
// all escape sequences removed.
type printer struct {
	w      io.Writer
	format string
	width  int
}

func newPrinter(w io.Writer, format string) *printer {
	format = normalizeFormat(format)
	if format != "plain" && termenv.NewOutput(w).Profile == termenv.Ascii {
		format = "plain"
	}
	return &printer{w: w, format: format, width: notesWidth}
}

func normalizeFormat(format string) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "plain", "light":
		return f
	default:
		return "rich"
	}
}

func (p *printer) plain() bool {
	return p.format == "plain"
}

func (p *printer) Println(s string) {
	if p.plain() {
		s = ansi.Strip(s)
	}
	_, _ = fmt.Fprintln(p.w, s)
}

func (p *printer) Printf(format string, args ...any) {
	p.Println(fmt.Sprintf(format, args...))
}

// Notes prints release notes rendered as markdown.
func (p *printer) Notes(body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	p.Println(buildMarkdownRenderer(p.format, p.width)(body))
}

func buildMarkdownRenderer(format string, width int) func(string) string {
	fallback := func(input string) string {
		return wordwrap.String(input, width)
	}

	style := strings.ToLower(strings.TrimSpace(format))
	if style == "" || style == "rich" || style == "dark" {
		style = "dark"
	}
	if style == "plain" {
		return fallback
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}

// header renders "Aria Labels v1.2.0".
func header(name, version string) string {
	if strings.TrimSpace(name) == "" {
		name = "Aria Labels"
	}
	out := appStyle.Render(name)
	if version != "" {
		out += dimStyle.Render(" v" + strings.TrimPrefix(version, "v"))
	}
	return out
}

// formatAge formats how long ago t was, relative to now.
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	return formatDuration(d) + " ago"
}

// formatDuration formats a duration into a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, hours)
}
