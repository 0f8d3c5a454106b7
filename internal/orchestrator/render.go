package orchestrator

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const ruleWidth = 40

// 控制台输出：每个规划步骤一个标题，随后是思考、计划、工具调用与结果
// Console output: one header per planner step, then the model's reasoning and
// plan, then a line per tool call with its outcome indented below it.

// renderStepHeader opens planner step n. The observed screen size is shown so
// a rotated or resized device is visible in the log.
func renderStepHeader(out io.Writer, n, width, height int) {
	label := fmt.Sprintf(" step %d  %dx%d ", n, width, height)
	pad := max(ruleWidth-len(label), 4)
	_, _ = fmt.Fprintf(out, "\n%s\n", style(strings.Repeat("═", 2)+label+strings.Repeat("═", pad), ansiCyan+";"+ansiBold))
}

// renderThinkingBlock prints reasoning dimmed; it never drives the device.
func renderThinkingBlock(out io.Writer, content string) {
	renderTextBlock(out, "THINK", ansiGray, content, true)
}

// renderAssistantBlock prints the planner's text. Alongside tool calls it is
// the plan for this step; on its own it is a note to the user.
func renderAssistantBlock(out io.Writer, content string, standalone bool) {
	if standalone {
		renderTextBlock(out, "NOTE", ansiCyan, content, false)
		return
	}
	renderTextBlock(out, "PLAN", ansiGray, content, false)
}

func renderTextBlock(out io.Writer, label, color, content string, dim bool) {
	_, _ = fmt.Fprintf(out, "%s %s\n", style("["+label+"]", color+";"+ansiBold), style(strings.Repeat("─", ruleWidth), color))
	for _, line := range squeezeBlankLines(content) {
		if dim && line != "" {
			line = style(line, ansiGray)
		}
		_, _ = fmt.Fprintln(out, line)
	}
}

// renderToolStart prints the call before it runs, so a hung device call is
// visible.
func renderToolStart(out io.Writer, message string) {
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[CALL]", ansiYellow+";"+ansiBold), style(message, ansiYellow))
}

// renderToolResult prints a summary from summarizeToolResult. Delegations that
// came back unsuccessful are shown in red; todo lists keep their markers.
func renderToolResult(out io.Writer, message string) {
	lines := strings.Split(normalizeNewlines(message), "\n")
	head := style(lines[0], ansiGray)
	if strings.HasPrefix(lines[0], "failed") {
		head = style(lines[0], ansiRed)
	}
	_, _ = fmt.Fprintf(out, "  %s %s\n", style("->", ansiGreen+";"+ansiBold), head)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		_, _ = fmt.Fprintf(out, "     %s\n", styleTodoLine(line))
	}
}

// renderToolError prints a call that produced an error result.
func renderToolError(out io.Writer, message string) {
	_, _ = fmt.Fprintf(out, "  %s %s\n", style("x", ansiRed+";"+ansiBold), style(message, ansiRed))
}

func styleTodoLine(line string) string {
	switch {
	case strings.HasPrefix(line, "[x] "):
		return style(line, ansiCyan)
	case strings.HasPrefix(line, "[~] "):
		return style(line, ansiYellow)
	}
	return style(line, ansiGray)
}

func style(text, codes string) string {
	if text == "" || !enableColor() {
		return text
	}
	prefix := strings.ReplaceAll(codes, ";", "")
	if prefix == "" {
		return text
	}
	return prefix + text + ansiReset
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}

// squeezeBlankLines trims leading and trailing blank lines and collapses runs
// of blank lines into one.
func squeezeBlankLines(content string) []string {
	text := strings.Trim(normalizeNewlines(content), "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var lines []string
	blank := false
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if !blank {
				lines = append(lines, "")
			}
			blank = true
			continue
		}
		lines = append(lines, line)
		blank = false
	}
	return lines
}

// enableColor honours NO_COLOR, DROIDPILOT_NO_COLOR and TERM=dumb.
func enableColor() bool {
	for _, key := range []string{"NO_COLOR", "DROIDPILOT_NO_COLOR"} {
		if strings.TrimSpace(os.Getenv(key)) != "" {
			return false
		}
	}
	return !strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb")
}
