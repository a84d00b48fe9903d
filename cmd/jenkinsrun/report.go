package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"jenkinsrun/internal/engine"
	"jenkinsrun/internal/orchestrator"
)

var resultColors = map[engine.Result]lipgloss.Color{
	engine.ResultSuccess:  lipgloss.Color("#34A853"),
	engine.ResultUnstable: lipgloss.Color("#FBBC04"),
	engine.ResultFailure:  lipgloss.Color("#EA4335"),
	engine.ResultAborted:  lipgloss.Color("#9AA0A6"),
	engine.ResultNotBuilt: lipgloss.Color("#9AA0A6"),
}

// renderResult formats "job #number RESULT (duration)" for w. Colors are
// dropped when w is not a terminal.
func renderResult(w io.Writer, res *orchestrator.RunResult) string {
	r := lipgloss.NewRenderer(w)

	job := r.NewStyle().Bold(true).Render(res.Job)
	number := r.NewStyle().Bold(true).Render(fmt.Sprintf("#%d", res.Number))

	resultStyle := r.NewStyle().Bold(true)
	if color, ok := resultColors[res.Result]; ok {
		resultStyle = resultStyle.Foreground(color)
	}
	result := resultStyle.Render(resultLabel(res.Result))

	duration := r.NewStyle().Faint(true).Render(fmt.Sprintf("(%s)", res.Duration().Round(100*time.Millisecond)))

	return fmt.Sprintf("%s %s %s %s", job, number, result, duration)
}

func resultLabel(result engine.Result) string {
	if result == "" {
		return "NO RESULT"
	}
	return string(result)
}
