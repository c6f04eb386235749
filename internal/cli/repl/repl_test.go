package repl

import (
	"path/filepath"
	"testing"
)

func TestCompleter_Complete(t *testing.T) {
	c := NewCompleter()

	got := c.Complete("LP")
	want := map[string]bool{"LPUSH": true, "LPOP": true}
	if len(got) != len(want) {
		t.Fatalf("Complete(LP) = %v, want LPUSH and LPOP", got)
	}
	for _, cmd := range got {
		if !want[cmd] {
			t.Fatalf("Complete(LP) returned unexpected %q", cmd)
		}
	}
}

func TestCompleter_CaseInsensitive(t *testing.T) {
	c := NewCompleter()
	if got := c.Complete("hget"); len(got) != 2 {
		t.Fatalf("Complete(hget) = %v, want HGET and HGETALL", got)
	}
}

func TestCompleter_NoMatch(t *testing.T) {
	c := NewCompleter()
	if got := c.Complete("ZADD"); got != nil {
		t.Fatalf("Complete(ZADD) = %v, want nil", got)
	}
}

func TestHistory_AddAndGet(t *testing.T) {
	h := NewHistory()
	h.Add("SET a 1")
	h.Add("GET a")

	if got := h.Get(0); got != "GET a" {
		t.Fatalf("Get(0) = %q, want most recent entry", got)
	}
	if got := h.Get(1); got != "SET a 1" {
		t.Fatalf("Get(1) = %q, want %q", got, "SET a 1")
	}
	if got := h.Get(5); got != "" {
		t.Fatalf("Get(5) = %q, want empty for out of range", got)
	}
}

func TestHistory_CapEnforced(t *testing.T) {
	h := &History{maxSize: 3}
	for _, cmd := range []string{"a", "b", "c", "d"} {
		h.Add(cmd)
	}
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}
	if got := h.Get(2); got != "b" {
		t.Fatalf("oldest entry = %q, want %q after cap", got, "b")
	}
}

func TestHistory_SaveAndLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "history")

	h := &History{maxSize: 100, file: file}
	h.Add("PING")
	h.Add("INFO")
	if err := h.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	restored := &History{maxSize: 100, file: file}
	if err := restored.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if restored.Len() != 2 || restored.Get(0) != "INFO" {
		t.Fatalf("restored history = %d entries, Get(0) = %q", restored.Len(), restored.Get(0))
	}
}

func TestHistory_LoadMissingFile(t *testing.T) {
	h := &History{maxSize: 10, file: filepath.Join(t.TempDir(), "nope")}
	if err := h.Load(); err != nil {
		t.Fatalf("Load() on missing file error = %v", err)
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"GET key", []string{"GET", "key"}},
		{`SET greeting "hello world"`, []string{"SET", "greeting", "hello world"}},
		{"  PING  ", []string{"PING"}},
	}
	for _, tt := range tests {
		got := splitArgs(tt.line)
		if len(got) != len(tt.want) {
			t.Fatalf("splitArgs(%q) = %v, want %v", tt.line, got, tt.want)
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Fatalf("splitArgs(%q)[%d] = %q, want %q", tt.line, i, got[i], tt.want[i])
			}
		}
	}
}
