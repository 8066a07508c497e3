package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"pilot/internal/app"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func printReport(w io.Writer, r *app.Report, plain bool) {
	md := r.Markdown()
	if plain {
		fmt.Fprintln(w, md)
		return
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(120),
	)
	if err != nil {
		fmt.Fprintln(w, md)
		return
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		fmt.Fprintln(w, md)
		return
	}
	fmt.Fprint(w, rendered)

	if r.Passed() {
		fmt.Fprintln(w, okStyle.Render("PASS")+" "+dimStyle.Render(r.Scenario))
	} else {
		fmt.Fprintln(w, failStyle.Render("FAIL")+" "+dimStyle.Render(fmt.Sprintf("%s (%d mismatches)", r.Scenario, r.Mismatches)))
	}
}

func printSummary(w io.Writer, total, failed int) {
	if failed == 0 {
		fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("%d scenario(s) replayed, all expectations met", total)))
		return
	}
	fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("%d of %d scenario(s) failed", failed, total)))
}
