package storage

import (
	"log/slog"
	"testing"
	"time"

	"github.com/solask/emberdb/internal/core/value"
	"github.com/solask/emberdb/internal/storage/wal"
	"github.com/solask/emberdb/internal/store"
)

func newTestEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	cfg := DefaultConfig(dir)
	cfg.SnapshotInterval = 0 // no background saves during tests
	cfg.WALSyncMode = wal.SyncModeSync
	cfg.Logger = slog.New(slog.DiscardHandler)
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	return e
}

func TestEngine_RecoverFromSnapshot(t *testing.T) {
	dir := t.TempDir()

	e := newTestEngine(t, dir)
	if err := e.Set("name", value.String("ember")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.SetWithTTL("session", value.String("tok"), time.Hour); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2 := newTestEngine(t, dir)
	defer e2.Close()

	got, ok := e2.Get("name")
	if !ok || got.Str != "ember" {
		t.Fatalf("Get(name) = %+v, %v, want restored string", got, ok)
	}
	ttl, status := e2.TTL("session")
	if status != store.TTLSet {
		t.Fatalf("TTL status = %v, want TTLSet", status)
	}
	if ttl < 58*time.Minute || ttl > time.Hour {
		t.Fatalf("restored ttl = %v, want about an hour", ttl)
	}
}

func TestEngine_RecoverReplaysLog(t *testing.T) {
	dir := t.TempDir()

	e := newTestEngine(t, dir)
	if err := e.Set("snapped", value.String("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.TriggerSnapshot(); err != nil {
		t.Fatalf("TriggerSnapshot: %v", err)
	}

	// Post-snapshot mutations live only in the log.
	if err := e.Set("logged", value.Integer(42)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	e.Delete("snapped")
	if _, err := e.Upsert("queue", value.List(), func(v *value.Value) error {
		v.List = append(v.List, "job1")
		return nil
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	// Simulate a crash: close the log without the shutdown snapshot.
	if err := e.wal.Close(); err != nil {
		t.Fatalf("wal close: %v", err)
	}

	e2 := newTestEngine(t, dir)
	defer e2.Close()

	if _, ok := e2.Get("snapped"); ok {
		t.Fatal("logged delete not replayed")
	}
	got, ok := e2.Get("logged")
	if !ok || got.Int != 42 {
		t.Fatalf("Get(logged) = %+v, %v, want replayed integer", got, ok)
	}
	q, ok := e2.Get("queue")
	if !ok || len(q.List) != 1 || q.List[0] != "job1" {
		t.Fatalf("Get(queue) = %+v, %v, want replayed list", q, ok)
	}
}

func TestEngine_SnapshotTruncatesLog(t *testing.T) {
	dir := t.TempDir()

	e := newTestEngine(t, dir)
	defer e.Close()

	if err := e.Set("k", value.String("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.TriggerSnapshot(); err != nil {
		t.Fatalf("TriggerSnapshot: %v", err)
	}

	entries, err := wal.Replay(e.wal.Path())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("log holds %d entries after snapshot, want 0", len(entries))
	}
}

func TestEngine_UpdatePreservesTTLOnReplay(t *testing.T) {
	dir := t.TempDir()

	e := newTestEngine(t, dir)
	if err := e.SetWithTTL("counter", value.Integer(1), time.Hour); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	if _, _, err := e.Update("counter", func(v *value.Value) error {
		v.Int++
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := e.wal.Close(); err != nil {
		t.Fatalf("wal close: %v", err)
	}

	e2 := newTestEngine(t, dir)
	defer e2.Close()

	got, ok := e2.Get("counter")
	if !ok || got.Int != 2 {
		t.Fatalf("Get(counter) = %+v, %v, want replayed increment", got, ok)
	}
	if _, status := e2.TTL("counter"); status != store.TTLSet {
		t.Fatal("deadline lost across in-place update replay")
	}
}

func TestEngine_ClearSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	e := newTestEngine(t, dir)
	if err := e.Set("k", value.String("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	e.Clear()
	if err := e.wal.Close(); err != nil {
		t.Fatalf("wal close: %v", err)
	}

	e2 := newTestEngine(t, dir)
	defer e2.Close()

	if n := e2.Size(); n != 0 {
		t.Fatalf("Size after replayed clear = %d, want 0", n)
	}
}

func TestEngine_VerifyIntegrity(t *testing.T) {
	dir := t.TempDir()

	e := newTestEngine(t, dir)
	defer e.Close()

	if err := e.Set("k", value.String("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.TriggerSnapshot(); err != nil {
		t.Fatalf("TriggerSnapshot: %v", err)
	}

	ok, err := e.VerifyIntegrity()
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !ok {
		t.Fatal("VerifyIntegrity = false on a fresh snapshot")
	}
	if e.LastSave() == 0 {
		t.Fatal("LastSave = 0 after a successful snapshot")
	}
}

func TestEngine_SnapshotBeforeRecoveryRefused(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.SnapshotInterval = 0
	cfg.Logger = slog.New(slog.DiscardHandler)
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	if err := e.TriggerSnapshot(); err == nil {
		t.Fatal("TriggerSnapshot succeeded before Recover")
	}
}
