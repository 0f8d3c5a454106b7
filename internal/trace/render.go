package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"droidpilot/internal/chat"

	"github.com/mattn/go-runewidth"
)

const (
	rule         = "============================================================"
	queryColumns = 100
)

func renderSummary(meta Metadata, planner []PlannerStep, sessions []*ExecutorSession) string {
	var b strings.Builder
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "TEST RUN SUMMARY: %s\n", meta.RunID)
	b.WriteString(rule + "\n\n")

	fmt.Fprintf(&b, "Goal: %s\n", meta.Goal)
	fmt.Fprintf(&b, "Status: %s\n", meta.FinalStatus)
	fmt.Fprintf(&b, "Success: %t\n", meta.Success != nil && *meta.Success)
	if meta.SuccessReason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", meta.SuccessReason)
	}
	fmt.Fprintf(&b, "Start Time: %s\n", meta.StartTime)
	fmt.Fprintf(&b, "End Time: %s\n", meta.EndTime)
	fmt.Fprintf(&b, "Planner Model: %s\n", meta.ModelConfig.PlannerModel)
	fmt.Fprintf(&b, "Executor Model: %s\n", meta.ModelConfig.ExecutorModel)
	fmt.Fprintf(&b, "Total Planner Steps: %d\n", meta.TotalPlannerSteps)
	fmt.Fprintf(&b, "Total Executor Steps: %d\n", meta.TotalExecutorSteps)
	fmt.Fprintf(&b, "Scale Factor: %g\n", meta.ScaleFactor)
	fmt.Fprintf(&b, "Screen Size: %dx%d\n", meta.LogicalScreenSize[0], meta.LogicalScreenSize[1])
	if meta.ErrorDetails != "" {
		fmt.Fprintf(&b, "\nError Details:\n%s\n", meta.ErrorDetails)
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString("PLANNER STEPS SUMMARY\n")
	b.WriteString(rule + "\n")
	for _, step := range planner {
		fmt.Fprintf(&b, "\nStep %d:\n", step.StepNumber)
		if step.UserInput != "" {
			fmt.Fprintf(&b, "  Input: %s\n", step.UserInput)
		}
		fmt.Fprintf(&b, "  Time: %s\n", step.Timestamp)
		fmt.Fprintf(&b, "  Status: %s\n", step.Status)
		fmt.Fprintf(&b, "  Tool Calls: %d\n", len(step.ToolCalls))
		for _, tc := range step.ToolCalls {
			fmt.Fprintf(&b, "    - %s\n", tc.Function.Name)
		}
		if step.ErrorMessage != "" {
			fmt.Fprintf(&b, "  Error: %s\n", step.ErrorMessage)
		}
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString("EXECUTOR SESSIONS SUMMARY\n")
	b.WriteString(rule + "\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "\n%s: %d steps\n", s.ID, len(s.Steps))
		query := strings.TrimSpace(s.Query)
		if query == "" {
			query = "No query"
		}
		fmt.Fprintf(&b, "  Query: %s\n", Truncate(query, queryColumns))
		if n := len(s.Steps); n > 0 {
			fmt.Fprintf(&b, "  Result: %s\n", s.Steps[n-1].Status)
		}
	}
	return b.String()
}

// Truncate shortens s to at most width display columns, appending "...".
func Truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}

func renderTimeline(dir string, meta Metadata, planner []PlannerStep, sessions []*ExecutorSession) string {
	var b strings.Builder
	title := meta.TaskName
	if title == "" {
		title = "Unknown Task"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString("## Plan Input\n\n")
	fmt.Fprintf(&b, "**Goal:** %s\n\n", meta.Goal)
	b.WriteString("---\n\n")

	// last executor session per planner step
	last := map[int]*ExecutorSession{}
	for _, s := range sessions {
		if len(s.Steps) > 0 {
			last[s.PlannerStep] = s
		}
	}

	for i, step := range planner {
		n := i + 1
		b.WriteString("## Task Thinking\n\n")
		fmt.Fprintf(&b, "### Step %d\n\n", n)

		b.WriteString("**Thoughts:**\n\n")
		if thinking := strings.TrimSpace(step.Thinking); thinking != "" {
			b.WriteString(thinking + "\n\n")
		} else {
			for _, tc := range step.ToolCalls {
				if tc.Function.Name == "update_todos" {
					continue
				}
				if intent := argString(tc.Function.Arguments, "intent"); intent != "" {
					b.WriteString(intent + "\n\n")
				}
			}
		}

		b.WriteString("**Code:**\n\n")
		var code []string
		for _, tc := range step.ToolCalls {
			if tc.Function.Name == "update_todos" {
				continue
			}
			code = append(code, FormatCall(tc))
		}
		if len(code) == 0 {
			b.WriteString("```\nNo action\n```\n\n")
		} else {
			b.WriteString("```\n" + strings.Join(code, "\n") + "\n```\n\n")
		}

		b.WriteString("## Task Execution Result\n\n")
		stepStatus := step.Status
		reason := "Action completed successfully"
		if s, ok := last[step.StepNumber]; ok {
			final := s.Steps[len(s.Steps)-1]
			out := final.Thinking
			if k := len(final.ToolResults); k > 0 && final.ToolResults[k-1].Result != "" {
				out = final.ToolResults[k-1].Result
				reason = out
			}
			if strings.TrimSpace(out) == "" {
				out = "Action executed"
			}
			fmt.Fprintf(&b, "**Output:**\n\n%s\n\n", out)
			stepStatus = final.Status
			if final.ErrorMessage != "" {
				reason = final.ErrorMessage
				stepStatus = StepFailed
			}
		} else {
			for _, tc := range step.ToolCalls {
				if tc.Function.Name == "update_todos" {
					continue
				}
				if intent := argString(tc.Function.Arguments, "intent"); intent != "" {
					fmt.Fprintf(&b, "**Output:**\n\n%s\n\n", intent)
					break
				}
			}
			if step.ErrorMessage != "" {
				reason = step.ErrorMessage
			}
		}

		b.WriteString("## Task End\n\n")
		fmt.Fprintf(&b, "**Success Reason:**\n\n%s\n\n", reason)
		if stepStatus == StepSuccess {
			b.WriteString("**✅ Success**\n\n")
		} else {
			b.WriteString("**❌ Failed**\n\n")
		}

		if step.ScreenshotPath != "" {
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(step.ScreenshotPath))); err == nil {
				fmt.Fprintf(&b, "![Step %d](%s)\n\n", n, step.ScreenshotPath)
			}
		}
		b.WriteString("---\n\n")
	}

	b.WriteString("## Final Task Validation\n\n")
	switch {
	case meta.Success == nil:
		b.WriteString("**⚠️ Task Validation: Not Completed**\n\n")
	case *meta.Success:
		b.WriteString("**✅ Task Validation: PASSED**\n\n")
		fmt.Fprintf(&b, "**Reason:** %s\n\n", meta.SuccessReason)
	default:
		b.WriteString("**❌ Task Validation: FAILED**\n\n")
		fmt.Fprintf(&b, "**Reason:** %s\n\n", meta.SuccessReason)
	}
	if meta.Success != nil && meta.ErrorDetails != "" {
		fmt.Fprintf(&b, "**Error Details:** %s\n\n", meta.ErrorDetails)
	}
	fmt.Fprintf(&b, "**Final Status:** %s\n\n", meta.FinalStatus)
	b.WriteString("---\n")
	return b.String()
}

// FormatCall renders a tool call as name(k="v", ...). The intent argument is
// omitted and keys are sorted.
func FormatCall(tc chat.ToolCall) string {
	name := tc.Function.Name
	raw := strings.TrimSpace(tc.Function.Arguments)
	if raw == "" || raw == "{}" || raw == "null" {
		return name + "()"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return fmt.Sprintf("%s(text=%q)", name, raw)
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		if k == "intent" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	params := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := args[k].(type) {
		case string:
			params = append(params, fmt.Sprintf("%s=%q", k, v))
		case map[string]any, []any:
			enc, _ := json.Marshal(v)
			params = append(params, fmt.Sprintf("%s=%s", k, enc))
		default:
			params = append(params, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return name + "(" + strings.Join(params, ", ") + ")"
}

func argString(raw, key string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return ""
	}
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}
