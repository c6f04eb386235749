package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/solask/emberdb/internal/core/value"
)

const (
	// FormatVersion is the newest snapshot layout this build can read.
	FormatVersion = 1

	tempSuffix   = ".tmp"
	backupSuffix = ".bak"
)

var (
	ErrChecksumMismatch   = errors.New("snapshot: checksum mismatch")
	ErrUnsupportedVersion = errors.New("snapshot: unsupported format version")
)

// persistedState is the on-disk document. Expiry deadlines are stored as
// absolute unix seconds so a restore on a different host reaps the same
// keys. The checksum is a sha256 hex digest computed over the document
// serialized with an empty checksum field.
type persistedState struct {
	Version  int                    `json:"version"`
	Data     map[string]value.Value `json:"data"`
	Expires  map[string]int64       `json:"expires"`
	Checksum string                 `json:"checksum,omitempty"`
}

// Config configures the snapshot manager.
type Config struct {
	// Path is the primary snapshot file. The backup lives beside it
	// with a .bak suffix, in-flight writes with a .tmp suffix.
	Path string

	Logger *slog.Logger
}

// Manager persists and restores the keyspace as a single checksummed
// JSON document, written atomically via a temp file rename.
type Manager struct {
	path   string
	logger *slog.Logger
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("snapshot: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{path: cfg.Path, logger: log}, nil
}

// Path returns the primary snapshot file path.
func (m *Manager) Path() string {
	return m.path
}

// Save writes the given keyspace to disk. The previous snapshot is first
// copied to the backup, then the new document is written to a temp file,
// fsynced, and renamed over the primary. Expiries that have already
// passed are dropped rather than persisted.
func (m *Manager) Save(data map[string]value.Value, expires map[string]time.Time) error {
	now := time.Now()

	if _, err := os.Stat(m.path); err == nil {
		if err := copyFile(m.path, m.path+backupSuffix); err != nil {
			// A stale or missing backup is survivable; the primary
			// is still replaced atomically below.
			m.logger.Warn("snapshot backup copy failed", "error", err)
		}
	}

	state := persistedState{
		Version: FormatVersion,
		Data:    data,
		Expires: make(map[string]int64, len(expires)),
	}
	for key, deadline := range expires {
		if !deadline.After(now) {
			continue
		}
		if _, ok := data[key]; !ok {
			continue
		}
		state.Expires[key] = deadline.Unix()
	}

	payload, err := encodeState(state)
	if err != nil {
		return err
	}

	tempPath := m.path + tempSuffix
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	if _, err := file.Write(payload); err != nil {
		file.Close()
		return fmt.Errorf("snapshot: write: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tempPath, m.path); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	syncDir(filepath.Dir(m.path))

	m.logger.Info("snapshot saved",
		"path", m.path,
		"keys", len(data),
		"duration", time.Since(now))
	return nil
}

// Load restores the keyspace from disk. A corrupt or unreadable primary
// falls back to the backup; a valid backup is promoted back to the
// primary path. When neither file can be read the engine starts empty;
// a failed restore is logged loudly but never fatal.
func (m *Manager) Load() (map[string]value.Value, map[string]time.Time, error) {
	// A temp file left behind by a crashed save is garbage.
	if err := os.Remove(m.path + tempSuffix); err == nil {
		m.logger.Warn("removed stale snapshot temp file", "path", m.path+tempSuffix)
	}

	state, err := m.loadFile(m.path)
	if err == nil {
		return materialize(state)
	}
	primaryErr := err

	backupPath := m.path + backupSuffix
	state, err = m.loadFile(backupPath)
	if err != nil {
		if os.IsNotExist(primaryErr) && os.IsNotExist(err) {
			// First boot: nothing on disk at all.
			return map[string]value.Value{}, map[string]time.Time{}, nil
		}
		m.logger.Error("snapshot restore failed, starting empty",
			"primary_error", primaryErr,
			"backup_error", err)
		return map[string]value.Value{}, map[string]time.Time{}, nil
	}

	m.logger.Warn("primary snapshot unusable, restored from backup",
		"path", m.path,
		"error", primaryErr)

	// Promote the backup so the next crash has a healthy primary.
	if err := copyFile(backupPath, m.path); err != nil {
		m.logger.Warn("backup promotion failed", "error", err)
	}
	syncDir(filepath.Dir(m.path))

	return materialize(state)
}

// VerifyIntegrity re-derives the primary snapshot's checksum and reports
// whether it matches, without touching the keyspace.
func (m *Manager) VerifyIntegrity() (bool, error) {
	if _, err := m.loadFile(m.path); err != nil {
		if os.IsNotExist(err) {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (m *Manager) loadFile(path string) (persistedState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return persistedState{}, err
	}
	if len(raw) == 0 {
		return persistedState{Data: map[string]value.Value{}}, nil
	}

	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return persistedState{}, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	if state.Version > FormatVersion {
		return persistedState{}, fmt.Errorf("%w: %d (newest supported: %d)",
			ErrUnsupportedVersion, state.Version, FormatVersion)
	}

	// The checksum is optional. A document without one is taken at
	// face value; only a present digest is verified.
	if want := state.Checksum; want != "" {
		state.Checksum = ""
		payload, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return persistedState{}, fmt.Errorf("snapshot: re-encode for checksum: %w", err)
		}
		if got := checksumHex(payload); got != want {
			return persistedState{}, fmt.Errorf("%w: %s", ErrChecksumMismatch, path)
		}
	}
	return state, nil
}

// encodeState serializes with the checksum field filled in. The document
// is marshaled once without the checksum to derive the digest, then once
// more with it set; value serialization is deterministic, so verification
// can reproduce the first payload byte for byte.
func encodeState(state persistedState) ([]byte, error) {
	state.Checksum = ""
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	state.Checksum = checksumHex(payload)

	full, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return full, nil
}

func checksumHex(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// materialize converts the on-disk document into live maps, dropping
// expiries that passed while the snapshot sat on disk.
func materialize(state persistedState) (map[string]value.Value, map[string]time.Time, error) {
	data := state.Data
	if data == nil {
		data = map[string]value.Value{}
	}
	expires := make(map[string]time.Time, len(state.Expires))
	now := time.Now()
	for key, unix := range state.Expires {
		if _, ok := data[key]; !ok {
			continue
		}
		deadline := time.Unix(unix, 0)
		if !deadline.After(now) {
			delete(data, key)
			continue
		}
		expires[key] = deadline
	}
	return data, expires, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// syncDir makes the rename durable on filesystems that need it. Failure
// is non-fatal: the data file itself is already synced.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
