package tui

import (
	"fmt"
	"strings"

	"droidpilot/internal/todo"
	"droidpilot/internal/trace"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown 使用 Glamour 渲染 markdown 文本
// RenderMarkdown renders markdown text using Glamour
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimRight(rendered, "\n")
}

// plannerContent lists every planner step with its thinking, calls and the
// todo list as it stood after the step.
func plannerContent(run *trace.Run, theme Theme, width int) string {
	if run == nil || len(run.Planner) == 0 {
		return theme.MutedStyle.Render("  No planner steps recorded")
	}
	var b strings.Builder
	for _, step := range run.Planner {
		fmt.Fprintf(&b, "%s  %s  %s\n",
			theme.HeaderStyle.Render(fmt.Sprintf("Step %d", step.StepNumber)),
			theme.StatusStyle(step.Status).Render(step.Status),
			theme.MutedStyle.Render(step.Timestamp))
		if step.UserInput != "" {
			fmt.Fprintf(&b, "  input: %s\n", trace.Truncate(step.UserInput, lineWidth(width)))
		}
		if thinking := strings.TrimSpace(step.Thinking); thinking != "" {
			b.WriteString(indentBlock(wrap(thinking, lineWidth(width)), "  "))
			b.WriteString("\n")
		}
		for _, tc := range step.ToolCalls {
			fmt.Fprintf(&b, "  %s %s\n", theme.ToolStyle.Render("→"), trace.Truncate(trace.FormatCall(tc), lineWidth(width)))
		}
		for _, item := range step.TodoListState {
			fmt.Fprintf(&b, "    %s %s\n", todoMarker(item.Status), item.Content)
		}
		if step.ErrorMessage != "" {
			fmt.Fprintf(&b, "  %s\n", theme.ErrorStyle.Render("error: "+step.ErrorMessage))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// executorContent groups executor steps under the delegation that started
// them.
func executorContent(run *trace.Run, theme Theme, width int) string {
	if run == nil || len(run.Sessions) == 0 {
		return theme.MutedStyle.Render("  No executor sessions recorded")
	}
	var b strings.Builder
	for _, s := range run.Sessions {
		fmt.Fprintf(&b, "%s  %s\n",
			theme.HeaderStyle.Render(s.ID),
			theme.MutedStyle.Render(fmt.Sprintf("planner step %d · %s", s.PlannerStep, s.PlannerToolCallID)))
		fmt.Fprintf(&b, "  query: %s\n", trace.Truncate(s.Query, lineWidth(width)))
		for _, step := range s.Steps {
			fmt.Fprintf(&b, "  %s %s\n",
				fmt.Sprintf("#%d", step.StepNumber),
				theme.StatusStyle(step.Status).Render(step.Status))
			for _, tc := range step.ToolCalls {
				fmt.Fprintf(&b, "    %s %s\n", theme.ToolStyle.Render("→"), trace.Truncate(trace.FormatCall(tc), lineWidth(width)-4))
			}
			for _, res := range step.ToolResults {
				mark := theme.SuccessStyle.Render("✓")
				if !res.Success {
					mark = theme.ErrorStyle.Render("✗")
				}
				fmt.Fprintf(&b, "      %s %s\n", mark, trace.Truncate(res.Result, lineWidth(width)-6))
			}
			if step.Note != "" {
				fmt.Fprintf(&b, "    %s\n", theme.MutedStyle.Render(step.Note))
			}
			if step.ErrorMessage != "" {
				fmt.Fprintf(&b, "    %s\n", theme.ErrorStyle.Render("error: "+step.ErrorMessage))
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// timelineContent renders timeline.md, or the summary when the run has not
// been finalized yet.
func timelineContent(run *trace.Run, theme Theme, width int) string {
	if run == nil {
		return ""
	}
	if strings.TrimSpace(run.Timeline) != "" {
		return RenderMarkdown(run.Timeline, width)
	}
	if strings.TrimSpace(run.Summary) != "" {
		return run.Summary
	}
	return theme.MutedStyle.Render("  Timeline is written when the run ends")
}

func todoMarker(status todo.Status) string {
	switch status {
	case todo.StatusCompleted:
		return "[x]"
	case todo.StatusInProgress:
		return "[~]"
	default:
		return "[ ]"
	}
}

func lineWidth(width int) int {
	if width < 20 {
		return 80
	}
	return width - 4
}

// wrap breaks text on word boundaries at width columns.
func wrap(text string, width int) string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len(line)+1+len(w) > width {
				lines = append(lines, line)
				line = w
				continue
			}
			line += " " + w
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func indentBlock(text, prefix string) string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
