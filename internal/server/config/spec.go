// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for emberdb-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Storage StorageSection `koanf:"storage"`
	Memory  MemorySection  `koanf:"memory"`
	Auth    AuthSection    `koanf:"auth"`
	Metrics MetricsSection `koanf:"metrics"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the client-facing listener.
type ServerSection struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	// RateLimit is commands per second per client IP. Zero disables
	// rate limiting.
	RateLimit int `koanf:"rate_limit"`
}

// StorageSection configures persistence behavior.
type StorageSection struct {
	DataDir string `koanf:"data_dir"`

	// SnapshotInterval is the period between automatic snapshots.
	// Zero disables the background snapshot loop; SAVE and shutdown
	// snapshots still run.
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`

	// WALSyncMode is "sync" (fsync per append) or "batch" (periodic
	// fsync).
	WALSyncMode string `koanf:"wal_sync_mode"`
}

// MemorySection configures the keyspace memory budget.
type MemorySection struct {
	// MaxBytes caps estimated keyspace memory. Zero means unlimited.
	MaxBytes int64 `koanf:"max_bytes"`

	// EvictionPolicy names the over-budget strategy: any name accepted
	// by store.ParsePolicy ("noeviction", lru/lfu/random in allkeys-
	// and volatile- scope).
	EvictionPolicy string `koanf:"eviction_policy"`
}

// AuthSection configures client authentication.
type AuthSection struct {
	// Password gates all commands except AUTH, PING, and QUIT when
	// non-empty.
	Password string `koanf:"password"`
}

// MetricsSection configures the Prometheus scrape endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
