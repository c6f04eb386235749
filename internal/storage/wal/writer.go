package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	DefaultFilePerm = 0640
	DefaultDirPerm  = 0750

	DefaultSyncInterval = time.Second
)

// SyncMode defines how the log syncs to disk.
type SyncMode string

const (
	// SyncModeSync fsyncs after every append.
	SyncModeSync SyncMode = "sync"
	// SyncModeBatch fsyncs on a timer, trading a bounded window of
	// recent writes for append throughput.
	SyncModeBatch SyncMode = "batch"
)

// Config configures the WAL writer.
type Config struct {
	Path string

	SyncMode     SyncMode
	SyncInterval time.Duration
}

// DefaultConfig returns the default WAL configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		SyncMode:     SyncModeBatch,
		SyncInterval: DefaultSyncInterval,
	}
}

// Writer appends mutation entries to a single log file.
type Writer struct {
	cfg Config

	mu     sync.Mutex
	file   *os.File
	closed bool

	syncTicker *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewWriter opens the log file for appending, creating it if needed.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("wal: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}
	if cfg.SyncMode == "" {
		cfg.SyncMode = SyncModeBatch
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}

	file, err := os.OpenFile(cfg.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, DefaultFilePerm)
	if err != nil {
		return nil, fmt.Errorf("wal: open: %w", err)
	}

	w := &Writer{
		cfg:    cfg,
		file:   file,
		stopCh: make(chan struct{}),
	}
	if cfg.SyncMode == SyncModeBatch {
		w.startSyncLoop()
	}
	return w, nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.cfg.Path
}

// Append writes a single entry frame to the log.
func (w *Writer) Append(entry Entry) error {
	frame, err := encodeEntryFrame(entry)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("wal: writer is closed")
	}
	if _, err := w.file.Write(frame); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	if w.cfg.SyncMode == SyncModeSync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("wal: sync: %w", err)
		}
	}
	return nil
}

// Truncate discards the log's contents. Called after a snapshot has made
// the logged mutations durable elsewhere.
func (w *Writer) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("wal: writer is closed")
	}
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	if _, err := w.file.Seek(0, 0); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	return w.file.Sync()
}

// Sync flushes pending writes to disk.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.file.Sync()
}

// Close flushes and closes the log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if w.syncTicker != nil {
		close(w.stopCh)
		w.wg.Wait()
		w.syncTicker.Stop()
	}

	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("wal: sync on close: %w", err)
	}
	return w.file.Close()
}

func (w *Writer) startSyncLoop() {
	w.syncTicker = time.NewTicker(w.cfg.SyncInterval)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.syncTicker.C:
				w.Sync()
			case <-w.stopCh:
				return
			}
		}
	}()
}
