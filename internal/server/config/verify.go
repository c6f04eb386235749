// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/solask/emberdb/internal/storage/wal"
	"github.com/solask/emberdb/internal/store"
	"github.com/solask/emberdb/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyMemory(&cfg.Memory); err != nil {
		return err
	}
	if err := verifyMetrics(&cfg.Metrics); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Addr == "" {
		return errors.New("server.addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("server.addr %q is not host:port: %w", cfg.Addr, err)
	}
	if cfg.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}
	if cfg.SnapshotInterval < 0 {
		return errors.New("storage.snapshot_interval must not be negative")
	}
	switch wal.SyncMode(cfg.WALSyncMode) {
	case wal.SyncModeSync, wal.SyncModeBatch:
		return nil
	default:
		return fmt.Errorf("storage.wal_sync_mode %q is not %q or %q", cfg.WALSyncMode, wal.SyncModeSync, wal.SyncModeBatch)
	}
}

func verifyMemory(cfg *MemorySection) error {
	if cfg.MaxBytes < 0 {
		return errors.New("memory.max_bytes must not be negative")
	}
	if _, err := store.ParsePolicy(cfg.EvictionPolicy); err != nil {
		return fmt.Errorf("memory.eviction_policy: %w", err)
	}
	return nil
}

func verifyMetrics(cfg *MetricsSection) error {
	if !cfg.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("metrics.addr %q is not host:port: %w", cfg.Addr, err)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Format {
	case "json", "text", "console":
		return nil
	default:
		return fmt.Errorf("log.format %q is not json, text, or console", cfg.Format)
	}
}
