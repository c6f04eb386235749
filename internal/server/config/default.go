// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultAddr        = "127.0.0.1:6379"
	DefaultMetricsAddr = "127.0.0.1:9121"

	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 5 * time.Minute

	DefaultDataDir          = "/var/lib/emberdb/data"
	DefaultSnapshotInterval = 5 * time.Minute
	DefaultWALSyncMode      = "batch"

	DefaultEvictionPolicy = "noeviction"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Addr:         DefaultAddr,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
		},
		Storage: StorageSection{
			DataDir:          DefaultDataDir,
			SnapshotInterval: DefaultSnapshotInterval,
			WALSyncMode:      DefaultWALSyncMode,
		},
		Memory: MemorySection{
			EvictionPolicy: DefaultEvictionPolicy,
		},
		Metrics: MetricsSection{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
