package todo

import (
	"strings"
	"testing"

	"droidpilot/internal/faults"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateReplacesWholeList(t *testing.T) {
	l := New()
	res, err := l.Update([]Item{{ID: "1", Content: "open settings", Status: "pending", Priority: "high"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, []Item{{ID: "1", Content: "open settings", Status: StatusPending, Priority: PriorityHigh}}, l.Read())

	res, err = l.Update([]Item{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Empty(t, l.Read())
}

func TestUpdateIsAtomic(t *testing.T) {
	base := []Item{{ID: "a", Content: "keep me", Status: StatusPending, Priority: PriorityLow}}
	tests := []struct {
		name    string
		records []Item
	}{
		{name: "empty content", records: []Item{
			{ID: "1", Content: "fine", Status: "pending", Priority: "high"},
			{ID: "2", Content: "   ", Status: "pending", Priority: "high"},
		}},
		{name: "bad priority", records: []Item{
			{ID: "1", Content: "fine", Status: "pending", Priority: "urgent"},
		}},
		{name: "bad status", records: []Item{
			{ID: "1", Content: "fine", Status: "pending", Priority: "high"},
			{ID: "2", Content: "fine", Status: "done", Priority: "high"},
		}},
		{name: "missing id", records: []Item{
			{Content: "fine", Status: "pending", Priority: "high"},
		}},
		{name: "duplicate id", records: []Item{
			{ID: "1", Content: "one", Status: "pending", Priority: "high"},
			{ID: "1", Content: "two", Status: "pending", Priority: "high"},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := New()
			_, err := l.Update(base)
			require.NoError(t, err)

			_, err = l.Update(tc.records)
			require.Error(t, err)
			assert.Equal(t, faults.KindValidation, faults.KindOf(err))
			assert.Equal(t, base, l.Read())
		})
	}
}

func TestUpdateNormalizesCase(t *testing.T) {
	l := New()
	_, err := l.Update([]Item{{ID: " 7 ", Content: "x", Status: "In_Progress", Priority: "HIGH"}})
	require.NoError(t, err)
	got := l.Read()[0]
	assert.Equal(t, "7", got.ID)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, PriorityHigh, got.Priority)
}

func TestRenderGroupsByStatus(t *testing.T) {
	l := New()
	_, err := l.Update([]Item{
		{ID: "1", Content: "first pending", Status: "pending", Priority: "low"},
		{ID: "2", Content: "done", Status: "completed", Priority: "medium"},
		{ID: "3", Content: "working", Status: "in_progress", Priority: "high"},
		{ID: "4", Content: "second pending", Status: "pending", Priority: "high"},
	})
	require.NoError(t, err)

	out := l.Render()
	order := []string{"In progress:", "working", "Pending:", "first pending", "second pending", "Completed:", "done", "Total: 4"}
	last := -1
	for _, s := range order {
		idx := strings.Index(out, s)
		require.GreaterOrEqualf(t, idx, 0, "missing %q in %q", s, out)
		require.Greaterf(t, idx, last, "%q out of order in %q", s, out)
		last = idx
	}
}

func TestReminder(t *testing.T) {
	l := New()
	assert.Equal(t, "", l.Reminder())
	_, err := l.Update([]Item{{ID: "1", Content: "open settings", Status: "pending", Priority: "high"}})
	require.NoError(t, err)
	assert.Contains(t, l.Reminder(), `"content":"open settings"`)

	l.Clear()
	assert.Equal(t, 0, l.Len())
}
