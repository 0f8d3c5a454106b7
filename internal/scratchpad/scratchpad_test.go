package scratchpad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFetchAnyCasing(t *testing.T) {
	p := New()
	payload := "  {\"total\": 42}\n"
	res := p.Create("pad-1", "Expense total", payload)
	require.True(t, res.Success)
	assert.Equal(t, "PAD-1", res.Key)
	assert.True(t, res.IsJSON)

	for _, key := range []string{"PAD-1", "pad-1", " Pad-1 "} {
		got := p.Fetch(key)
		require.Truef(t, got.Success, "fetch %q failed: %s", key, got.Error)
		assert.Equal(t, payload, got.Text)
		assert.Equal(t, "Expense total", got.Title)
	}
}

func TestCreateOverwritesAndKeepsPlainText(t *testing.T) {
	p := New()
	p.Create("notes", "first", "one")
	res := p.Create("NOTES", "second", "not {json")
	assert.False(t, res.IsJSON)

	got := p.Fetch("notes")
	assert.Equal(t, "not {json", got.Text)
	assert.Equal(t, "second", got.Title)
	assert.Equal(t, []string{"NOTES"}, p.Keys())
}

func TestFetchMissingKey(t *testing.T) {
	p := New()
	got := p.Fetch("missing")
	assert.False(t, got.Success)
	assert.Equal(t, "Key 'MISSING' not found in scratchpad", got.Error)
}

func TestKeysSortedAndReminder(t *testing.T) {
	p := New()
	assert.Equal(t, "", p.Reminder())
	p.Create("b", "beta", "2")
	p.Create("a", "alpha", "1")
	p.Create("c", "gamma", "3")
	assert.Equal(t, []string{"A", "B", "C"}, p.Keys())
	assert.Contains(t, p.Reminder(), "- A: alpha\n- B: beta\n- C: gamma")

	p.Clear()
	assert.Empty(t, p.Keys())
}

func TestCreateRejectsEmptyKey(t *testing.T) {
	p := New()
	res := p.Create("   ", "t", "x")
	assert.False(t, res.Success)
	assert.Empty(t, p.Keys())
}
