package tools

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Query turns a delegated planner call into the executor's instruction.
func Query(name string, args map[string]any) string {
	intent := argText(args, "intent")
	switch name {
	case "tap":
		return fmt.Sprintf("Locate and tap on the %s on the current screen. Analyze the screenshot to find the exact coordinates of this element and perform a tap gesture.", intent)
	case "scan_for_element":
		return fmt.Sprintf("Find %s. If it is not visible on the current screen, scroll through the screen in the most likely direction until it appears. Report success once it is visible, or failure if the end of the content is reached without finding it.", intent)
	case "swipe", "gesture":
		return fmt.Sprintf("Perform a swipe gesture to %s. Analyze the current screen and determine the appropriate start and end coordinates for this swipe action.", intent)
	case "swipe_coords":
		q := fmt.Sprintf("Perform a swipe gesture from coordinates (%s, %s) to (%s, %s).",
			argText(args, "start_x"), argText(args, "start_y"), argText(args, "end_x"), argText(args, "end_y"))
		if intent != "" {
			q += " " + intent
		}
		return q
	case "scroll":
		return fmt.Sprintf("Perform a scroll gesture to %s. Analyze the current screen and determine the appropriate coordinates for this scroll action.", intent)
	case "wait":
		seconds := argText(args, "seconds")
		if seconds == "" {
			seconds = "1"
		}
		unit := "seconds"
		if seconds == "1" {
			unit = "second"
		}
		return fmt.Sprintf("Wait for %s %s before proceeding to the next action. No interaction required.", seconds, unit)
	case "open_app":
		app := argText(args, "app_name")
		return fmt.Sprintf("Open the '%s' application. Navigate to the home screen or app drawer if needed, locate the %s app icon, and tap on it to launch the application.", app, app)
	case "clear_text":
		return "Clear all text from the currently focused input field. Select all text and delete it, or use the clear button if available."
	case "type_text":
		if intent == "" {
			intent = "current field"
		}
		return fmt.Sprintf("First, locate and tap on the %s to focus it. Then type the following text exactly: '%s'", intent, argText(args, "text"))
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, argText(args, k)))
	}
	return fmt.Sprintf("Execute %s with parameters: %s", name, strings.Join(parts, ", "))
}

func argText(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
