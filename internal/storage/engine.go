package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solask/emberdb/internal/core/value"
	"github.com/solask/emberdb/internal/storage/snapshot"
	"github.com/solask/emberdb/internal/storage/wal"
	"github.com/solask/emberdb/internal/store"
)

// Default configuration values.
const (
	DefaultSnapshotInterval = 5 * time.Minute
	DefaultSnapshotFile     = "dump.json"
	DefaultWALFile          = "mutations.wal"
)

// Config configures the storage engine.
type Config struct {
	// DataDir is the base directory for all storage files.
	DataDir string

	// SnapshotInterval is the interval between automatic snapshots.
	// Zero disables the background snapshot loop.
	SnapshotInterval time.Duration

	// WALSyncMode controls fsync behavior on the mutation log.
	WALSyncMode wal.SyncMode

	// MaxMemory is the keyspace budget in bytes. Zero means unlimited.
	MaxMemory int64

	// EvictionPolicy selects what gets removed when over budget.
	EvictionPolicy store.Policy

	// Logger is the structured logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:          dataDir,
		SnapshotInterval: DefaultSnapshotInterval,
		WALSyncMode:      wal.SyncModeBatch,
		Logger:           slog.Default(),
	}
}

// Engine combines the in-memory keyspace with the write-ahead log and
// snapshot manager. Reads go straight to memory; every mutation is
// applied to memory first and then logged, so a mutation rejected by the
// memory budget never reaches the log.
type Engine struct {
	cfg Config

	store    *store.Store
	wal      *wal.Writer
	snapshot *snapshot.Manager

	logger *slog.Logger

	// saveMu serializes snapshot saves; lastSave is unix seconds of the
	// last successful one.
	saveMu   sync.Mutex
	lastSave atomic.Int64

	// recovered gates snapshot saves so a not-yet-recovered engine
	// cannot overwrite the on-disk state with an empty keyspace.
	recovered atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a storage engine. Call Recover afterwards to load state
// from disk; the background snapshot loop only starts then.
func New(cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("storage: data_dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var storeOpts []store.Option
	if cfg.MaxMemory > 0 {
		storeOpts = append(storeOpts, store.WithMemoryBudget(cfg.MaxMemory, cfg.EvictionPolicy))
	}
	st := store.New(storeOpts...)

	walCfg := wal.DefaultConfig(filepath.Join(cfg.DataDir, DefaultWALFile))
	walCfg.SyncMode = cfg.WALSyncMode
	walWriter, err := wal.NewWriter(walCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create wal writer: %w", err)
	}

	snapMgr, err := snapshot.NewManager(snapshot.Config{
		Path:   filepath.Join(cfg.DataDir, DefaultSnapshotFile),
		Logger: cfg.Logger,
	})
	if err != nil {
		walWriter.Close()
		return nil, fmt.Errorf("storage: create snapshot manager: %w", err)
	}

	engine := &Engine{
		cfg:      cfg,
		store:    st,
		wal:      walWriter,
		snapshot: snapMgr,
		logger:   cfg.Logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go engine.backgroundLoop()
	return engine, nil
}

// Recover loads the snapshot and replays the mutation log over it.
// Recovery never fails the boot: a corrupt snapshot falls back to its
// backup or an empty keyspace, and a torn log tail just ends replay
// early.
func (e *Engine) Recover() error {
	start := time.Now()
	e.logger.Info("storage recovery started")

	data, expires, err := e.snapshot.Load()
	if err != nil {
		return fmt.Errorf("storage: load snapshot: %w", err)
	}
	e.store.Import(data, expires)

	entries, err := wal.Replay(e.wal.Path())
	if err != nil {
		e.logger.Warn("mutation log partially replayed", "error", err, "entries", len(entries))
	}
	applied := 0
	for _, entry := range entries {
		if e.applyEntry(entry) {
			applied++
		}
	}

	e.logger.Info("recovery completed",
		"keys", e.store.Size(),
		"wal_entries_applied", applied,
		"elapsed", time.Since(start))
	e.recovered.Store(true)
	return nil
}

// applyEntry applies one replayed mutation. Entries whose deadline has
// already passed are dropped instead of applied.
func (e *Engine) applyEntry(entry wal.Entry) bool {
	switch entry.Op {
	case wal.OpTypeSet:
		if entry.Value == nil {
			return false
		}
		if entry.KeepTTL {
			_, err := e.store.Upsert(entry.Key, *entry.Value, func(v *value.Value) error {
				*v = *entry.Value
				return nil
			})
			if err != nil {
				e.logger.Warn("replay set skipped", "key", entry.Key, "error", err)
				return false
			}
			return true
		}
		if entry.ExpireAt > 0 {
			ttl := time.Until(time.UnixMilli(entry.ExpireAt))
			if ttl <= 0 {
				return false
			}
			if err := e.store.SetWithTTL(entry.Key, *entry.Value, ttl); err != nil {
				e.logger.Warn("replay set skipped", "key", entry.Key, "error", err)
				return false
			}
			return true
		}
		if err := e.store.Set(entry.Key, *entry.Value); err != nil {
			e.logger.Warn("replay set skipped", "key", entry.Key, "error", err)
			return false
		}
		return true

	case wal.OpTypeDelete:
		e.store.Delete(entry.Key)
		return true

	case wal.OpTypeExpire:
		ttl := time.Until(time.UnixMilli(entry.ExpireAt))
		if ttl <= 0 {
			e.store.Delete(entry.Key)
			return true
		}
		e.store.Expire(entry.Key, ttl)
		return true

	case wal.OpTypePersist:
		e.store.Persist(entry.Key)
		return true

	case wal.OpTypeClear:
		e.store.Clear()
		return true

	default:
		e.logger.Warn("unknown mutation log entry", "op", entry.Op)
		return false
	}
}

// logEntry appends to the mutation log. Log failures do not fail the
// command, the write already landed in memory; durability degrades until
// the next snapshot and the operator is told.
func (e *Engine) logEntry(entry wal.Entry) {
	if err := e.wal.Append(entry); err != nil {
		e.logger.Error("mutation log append failed", "op", entry.Op, "key", entry.Key, "error", err)
	}
}

// Get retrieves the value stored under key.
func (e *Engine) Get(key string) (value.Value, bool) {
	return e.store.Get(key)
}

// Set stores a value, clearing any expiry the key had.
func (e *Engine) Set(key string, v value.Value) error {
	if err := e.store.Set(key, v); err != nil {
		return err
	}
	e.logEntry(wal.NewSet(key, v))
	return nil
}

// SetWithTTL stores a value with an expiry deadline.
func (e *Engine) SetWithTTL(key string, v value.Value, ttl time.Duration) error {
	if err := e.store.SetWithTTL(key, v, ttl); err != nil {
		return err
	}
	e.logEntry(wal.NewSetTTL(key, v, time.Now().Add(ttl)))
	return nil
}

// Delete removes a key, reporting whether it existed.
func (e *Engine) Delete(key string) bool {
	if !e.store.Delete(key) {
		return false
	}
	e.logEntry(wal.NewDelete(key))
	return true
}

// Exists reports whether the key holds a live value.
func (e *Engine) Exists(key string) bool {
	return e.store.Exists(key)
}

// Expire sets an expiry deadline on an existing key.
func (e *Engine) Expire(key string, ttl time.Duration) bool {
	if !e.store.Expire(key, ttl) {
		return false
	}
	e.logEntry(wal.NewExpire(key, time.Now().Add(ttl)))
	return true
}

// Persist removes a key's expiry deadline.
func (e *Engine) Persist(key string) bool {
	if !e.store.Persist(key) {
		return false
	}
	e.logEntry(wal.NewPersist(key))
	return true
}

// TTL reports the remaining time to live for a key.
func (e *Engine) TTL(key string) (time.Duration, store.TTLStatus) {
	return e.store.TTL(key)
}

// Type returns the kind of value a key holds.
func (e *Engine) Type(key string) (value.Kind, bool) {
	return e.store.Type(key)
}

// Keys returns every key currently present.
func (e *Engine) Keys() []string {
	return e.store.Keys()
}

// Size returns the number of keys.
func (e *Engine) Size() int {
	return e.store.Size()
}

// Clear wipes the keyspace.
func (e *Engine) Clear() {
	e.store.Clear()
	e.logEntry(wal.NewClear())
}

// Update mutates an existing key's value in place and logs the result.
// The key's expiry deadline is untouched.
func (e *Engine) Update(key string, fn func(*value.Value) error) (value.Value, bool, error) {
	out, ok, err := e.store.Update(key, fn)
	if err != nil || !ok {
		return out, ok, err
	}
	e.logEntry(wal.NewMutate(key, out))
	return out, true, nil
}

// Upsert mutates a key's value in place, seeding it with init when
// absent, and logs the result.
func (e *Engine) Upsert(key string, init value.Value, fn func(*value.Value) error) (value.Value, error) {
	out, err := e.store.Upsert(key, init, fn)
	if err != nil {
		return out, err
	}
	e.logEntry(wal.NewMutate(key, out))
	return out, nil
}

// MemoryUsage returns the estimated keyspace footprint in bytes.
func (e *Engine) MemoryUsage() int64 {
	return e.store.MemoryUsage()
}

// MemoryBudget returns the configured budget and eviction policy.
func (e *Engine) MemoryBudget() (int64, store.Policy) {
	return e.store.MemoryBudget()
}

// Evictions returns the number of keys evicted by budget enforcement.
func (e *Engine) Evictions() uint64 {
	return e.store.Evictions()
}

// TriggerSnapshot saves the keyspace to disk and truncates the mutation
// log, which the snapshot now covers. Safe to call concurrently; saves
// are serialized.
func (e *Engine) TriggerSnapshot() error {
	if !e.recovered.Load() {
		return fmt.Errorf("storage: snapshot before recovery")
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	data, expires := e.store.Export()
	if err := e.snapshot.Save(data, expires); err != nil {
		return fmt.Errorf("storage: save snapshot: %w", err)
	}
	e.lastSave.Store(time.Now().Unix())

	if err := e.wal.Truncate(); err != nil {
		e.logger.Warn("mutation log truncate failed", "error", err)
	}
	return nil
}

// LastSave returns the unix time of the last successful snapshot, or
// zero if none has completed.
func (e *Engine) LastSave() int64 {
	return e.lastSave.Load()
}

// VerifyIntegrity checks the on-disk snapshot's checksum.
func (e *Engine) VerifyIntegrity() (bool, error) {
	return e.snapshot.VerifyIntegrity()
}

// SnapshotPath returns the primary snapshot file path.
func (e *Engine) SnapshotPath() string {
	return e.snapshot.Path()
}

// backgroundLoop runs periodic snapshot saves until Close.
func (e *Engine) backgroundLoop() {
	defer close(e.doneCh)

	if e.cfg.SnapshotInterval <= 0 {
		<-e.stopCh
		return
	}

	ticker := time.NewTicker(e.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.TriggerSnapshot(); err != nil {
				e.logger.Error("auto snapshot failed", "error", err)
			}
		case <-e.stopCh:
			return
		}
	}
}

// Close stops the background loop, takes a final snapshot, and closes
// the mutation log.
func (e *Engine) Close() error {
	e.logger.Info("shutting down storage engine")

	close(e.stopCh)
	<-e.doneCh

	if e.recovered.Load() {
		if err := e.TriggerSnapshot(); err != nil {
			e.logger.Error("final snapshot failed", "error", err)
		}
	}

	if err := e.wal.Close(); err != nil {
		return fmt.Errorf("storage: close wal: %w", err)
	}
	e.logger.Info("storage engine shutdown complete")
	return nil
}
