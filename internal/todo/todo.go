// Package todo holds the planner's task-decomposition checklist.
package todo

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"droidpilot/internal/faults"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Item is one checklist entry.
type Item struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`
}

// UpdateResult is returned to the reasoning engine after a successful update.
type UpdateResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Todos   []Item `json:"todos"`
}

// List is an ordered checklist with whole-list replace semantics.
type List struct {
	mu    sync.RWMutex
	items []Item
}

func New() *List {
	return &List{}
}

// Update validates every record and only then replaces the stored list. On the
// first invalid record the stored list is left untouched.
func (l *List) Update(records []Item) (UpdateResult, error) {
	next := make([]Item, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		item, err := validate(i, rec)
		if err != nil {
			return UpdateResult{}, err
		}
		if _, dup := seen[item.ID]; dup {
			return UpdateResult{}, faults.Validation(fmt.Sprintf("todos[%d].id", i), "duplicate id %q", item.ID)
		}
		seen[item.ID] = struct{}{}
		next = append(next, item)
	}

	l.mu.Lock()
	l.items = next
	l.mu.Unlock()

	return UpdateResult{Success: true, Count: len(next), Todos: l.Read()}, nil
}

// Read returns a copy of the current list in insertion order.
func (l *List) Read() []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Item{}, l.items...)
}

func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *List) Clear() {
	l.mu.Lock()
	l.items = nil
	l.mu.Unlock()
}

// Render groups items by status (in progress, pending, completed), keeping
// insertion order inside each group, and ends with a totals line.
func (l *List) Render() string {
	items := l.Read()
	if len(items) == 0 {
		return "No todos."
	}
	var b strings.Builder
	groups := []struct {
		status Status
		title  string
		marker string
	}{
		{StatusInProgress, "In progress", "[~]"},
		{StatusPending, "Pending", "[ ]"},
		{StatusCompleted, "Completed", "[x]"},
	}
	counts := map[Status]int{}
	for _, it := range items {
		counts[it.Status]++
	}
	for _, g := range groups {
		if counts[g.status] == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", g.title)
		for _, it := range items {
			if it.Status != g.status {
				continue
			}
			fmt.Fprintf(&b, "  %s %s (%s)\n", g.marker, it.Content, it.Priority)
		}
	}
	fmt.Fprintf(&b, "Total: %d (%d in progress, %d pending, %d completed)",
		len(items), counts[StatusInProgress], counts[StatusPending], counts[StatusCompleted])
	return b.String()
}

// Reminder is the system-reminder block appended to planner turns.
func (l *List) Reminder() string {
	items := l.Read()
	if len(items) == 0 {
		return ""
	}
	data, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return "<system-reminder>\nYour todo list has changed. Current contents:\n" + string(data) +
		"\nKeep working through it; update statuses with update_todos as you go.\n</system-reminder>"
}

func validate(i int, rec Item) (Item, error) {
	field := func(name string) string { return fmt.Sprintf("todos[%d].%s", i, name) }
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return Item{}, faults.Validation(field("id"), "is required")
	}
	if strings.TrimSpace(rec.Content) == "" {
		return Item{}, faults.Validation(field("content"), "must not be empty")
	}
	rec.Status = Status(strings.ToLower(strings.TrimSpace(string(rec.Status))))
	switch rec.Status {
	case StatusPending, StatusInProgress, StatusCompleted:
	default:
		return Item{}, faults.Validation(field("status"), "must be pending, in_progress or completed, got %q", rec.Status)
	}
	rec.Priority = Priority(strings.ToLower(strings.TrimSpace(string(rec.Priority))))
	switch rec.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return Item{}, faults.Validation(field("priority"), "must be high, medium or low, got %q", rec.Priority)
	}
	return rec, nil
}
