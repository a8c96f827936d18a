package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"lessonforge/internal/types"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C6C6C"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E0A800")).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#2E9E44")).
		Bold(true)

	adjustmentStyles = map[types.AdjustmentType]lipgloss.Style{
		types.AdjustPrerequisite: lipgloss.NewStyle().Foreground(lipgloss.Color("#D7263D")).Bold(true),
		types.AdjustReteach:      lipgloss.NewStyle().Foreground(lipgloss.Color("#E0A800")),
		types.AdjustAdvance:      lipgloss.NewStyle().Foreground(lipgloss.Color("#2E9E44")),
		types.AdjustMaintain:     mutedStyle,
	}
)

func styleAdjustment(t types.AdjustmentType) string {
	if s, ok := adjustmentStyles[t]; ok {
		return s.Render(string(t))
	}
	return string(t)
}

// renderMarkdown renders md for the terminal, falling back to the raw text.
func renderMarkdown(md string, plain bool) string {
	if plain {
		return md
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "%s %s\n", warnStyle.Render("warning:"), msg)
	}
}

func header(w io.Writer, text string) {
	fmt.Fprintln(w, titleStyle.Render(text))
	fmt.Fprintln(w, mutedStyle.Render(strings.Repeat("─", lipgloss.Width(text))))
}
