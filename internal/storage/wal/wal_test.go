package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/solask/emberdb/internal/core/value"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("x")
	if cfg.Path != "x" {
		t.Fatalf("Path = %q, want %q", cfg.Path, "x")
	}
	if cfg.SyncMode != SyncModeBatch {
		t.Fatalf("SyncMode = %q, want %q", cfg.SyncMode, SyncModeBatch)
	}
	if cfg.SyncInterval != DefaultSyncInterval {
		t.Fatalf("SyncInterval = %v, want %v", cfg.SyncInterval, DefaultSyncInterval)
	}
}

func walPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "mutations.wal")
}

func TestWriter_AppendReplayRoundTrip(t *testing.T) {
	path := walPath(t)
	w, err := NewWriter(Config{Path: path, SyncMode: SyncModeSync})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	deadline := time.Now().Add(time.Hour)
	in := []Entry{
		NewSet("a", value.String("one")),
		NewSetTTL("b", value.Integer(2), deadline),
		NewMutate("c", value.List("x", "y")),
		NewExpire("a", deadline),
		NewPersist("a"),
		NewDelete("b"),
		NewClear(),
	}
	for _, e := range in {
		if err := w.Append(e); err != nil {
			t.Fatalf("Append(%v): %v", e.Op, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out, err := Replay(path)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("replayed %d entries, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Op != in[i].Op || out[i].Key != in[i].Key {
			t.Fatalf("entry %d = {%v %q}, want {%v %q}",
				i, out[i].Op, out[i].Key, in[i].Op, in[i].Key)
		}
	}
	if out[2].Value == nil || !out[2].KeepTTL {
		t.Fatalf("mutate entry = %+v, want value with keep_ttl", out[2])
	}
	if out[1].ExpireAt != deadline.UnixMilli() {
		t.Fatalf("ExpireAt = %d, want %d", out[1].ExpireAt, deadline.UnixMilli())
	}
}

func TestReplay_MissingFile(t *testing.T) {
	entries, err := Replay(filepath.Join(t.TempDir(), "absent.wal"))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("replayed %d entries from missing file, want 0", len(entries))
	}
}

func TestReplay_TornTail(t *testing.T) {
	path := walPath(t)
	w, err := NewWriter(Config{Path: path, SyncMode: SyncModeSync})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(NewSet("a", value.String("1"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(NewSet("b", value.String("2"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Chop the last frame in half, as a crash mid-append would.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.WriteFile(path, raw[:len(raw)-10], 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := Replay(path)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "a" {
		t.Fatalf("replayed %d entries, want the single intact one", len(entries))
	}
}

func TestReplay_CorruptFrameMidFile(t *testing.T) {
	path := walPath(t)
	w, err := NewWriter(Config{Path: path, SyncMode: SyncModeSync})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(NewSet("a", value.String("1"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(NewSet("b", value.String("2"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// Flip a payload byte inside the first frame.
	raw[12] ^= 0xFF
	if err := os.WriteFile(path, raw, 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := Replay(path)
	if err == nil {
		t.Fatal("Replay accepted a corrupt mid-file frame")
	}
	if len(entries) != 0 {
		t.Fatalf("replayed %d entries before the corruption, want 0", len(entries))
	}
}

func TestWriter_Truncate(t *testing.T) {
	path := walPath(t)
	w, err := NewWriter(Config{Path: path, SyncMode: SyncModeSync})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(NewSet("a", value.String("1"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := w.Append(NewSet("b", value.String("2"))); err != nil {
		t.Fatalf("Append after truncate: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := Replay(path)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "b" {
		t.Fatalf("replayed %d entries after truncate, want only the post-truncate one", len(entries))
	}
}

func TestWriter_CloseIsIdempotent(t *testing.T) {
	w, err := NewWriter(Config{Path: walPath(t), SyncMode: SyncModeBatch, SyncInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close #1: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close #2: %v", err)
	}
}
