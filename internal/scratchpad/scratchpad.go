// Package scratchpad is a session-scoped key/value store the planner uses to
// carry data across steps.
package scratchpad

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one stored item. Text is kept exactly as given.
type Entry struct {
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	IsJSON    bool      `json:"is_json"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateResult struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
	Title   string `json:"title"`
	IsJSON  bool   `json:"is_json"`
	Error   string `json:"error,omitempty"`
}

type FetchResult struct {
	Success bool   `json:"success"`
	Key     string `json:"key,omitempty"`
	Title   string `json:"title,omitempty"`
	Text    string `json:"text,omitempty"`
	IsJSON  bool   `json:"is_json,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Pad struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func New() *Pad {
	return &Pad{entries: map[string]Entry{}, now: time.Now}
}

// NormalizeKey trims and upper-cases a key.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Create stores text under the normalized key, overwriting any existing entry.
// IsJSON only informs the caller; the payload is never rewritten.
func (p *Pad) Create(key, title, text string) CreateResult {
	k := NormalizeKey(key)
	if k == "" {
		return CreateResult{Success: false, Error: "key must not be empty"}
	}
	isJSON := json.Valid([]byte(strings.TrimSpace(text))) && strings.TrimSpace(text) != ""
	e := Entry{Key: k, Title: strings.TrimSpace(title), Text: text, IsJSON: isJSON, UpdatedAt: p.now().UTC()}

	p.mu.Lock()
	p.entries[k] = e
	p.mu.Unlock()

	return CreateResult{Success: true, Key: k, Title: e.Title, IsJSON: isJSON}
}

// Fetch never fails: a missing key yields Success=false with a message.
func (p *Pad) Fetch(key string) FetchResult {
	k := NormalizeKey(key)
	p.mu.RLock()
	e, ok := p.entries[k]
	p.mu.RUnlock()
	if !ok {
		return FetchResult{Success: false, Error: fmt.Sprintf("Key '%s' not found in scratchpad", k)}
	}
	return FetchResult{Success: true, Key: e.Key, Title: e.Title, Text: e.Text, IsJSON: e.IsJSON}
}

// Keys lists all keys in sorted order.
func (p *Pad) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns entries sorted by key.
func (p *Pad) Snapshot() []Entry {
	keys := p.Keys()
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if e, ok := p.entries[k]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (p *Pad) Clear() {
	p.mu.Lock()
	p.entries = map[string]Entry{}
	p.mu.Unlock()
}

// Reminder tells the reasoning engine which keys it can fetch.
func (p *Pad) Reminder() string {
	entries := p.Snapshot()
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<system-reminder>\nScratchpad items available via fetchItem:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", e.Key, e.Title)
	}
	b.WriteString("</system-reminder>")
	return b.String()
}
