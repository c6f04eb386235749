// Package main provides the entry point for emberdb-server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/solask/emberdb/internal/infra/buildinfo"
	"github.com/solask/emberdb/internal/infra/confloader"
	"github.com/solask/emberdb/internal/infra/shutdown"
	"github.com/solask/emberdb/internal/pubsub"
	"github.com/solask/emberdb/internal/server/config"
	"github.com/solask/emberdb/internal/server/httpserver"
	"github.com/solask/emberdb/internal/server/respserver"
	"github.com/solask/emberdb/internal/storage"
	"github.com/solask/emberdb/internal/storage/wal"
	"github.com/solask/emberdb/internal/store"
	"github.com/solask/emberdb/internal/telemetry/logger"
	"github.com/solask/emberdb/internal/telemetry/metric"
)

func main() {
	app := &cli.App{
		Name:    "emberdb-server",
		Usage:   "in-memory key-value data engine",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML configuration file",
				EnvVars: []string{"EMBERDB_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address, overrides server.addr",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "data directory, overrides storage.data_dir",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level, overrides log.level",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	configFile := c.String("config")
	cfg, err := loadConfig(configFile, flagOverrides(c))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	log.Info("starting emberdb-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", configFile)

	engine, err := initStorage(cfg, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if err := engine.Recover(); err != nil {
		return fmt.Errorf("storage recovery: %w", err)
	}

	broker := pubsub.NewBroker()

	var metrics *metric.Registry
	var opsServer *httpserver.Server
	if cfg.Metrics.Enabled {
		metrics = metric.NewRegistry()
		metrics.RegisterKeyspace(engine)
		opsHandler := httpserver.NewOpsHandler(metrics.Handler(), engine, log)
		opsServer = httpserver.New(cfg.Metrics.Addr, opsHandler)
	}

	srv := respserver.New(serverConfig(cfg), engine, broker, metrics, log)

	handler := shutdown.NewHandler(30*time.Second, log)

	// Registered first, executed last: storage closes only after the
	// listeners are gone.
	handler.OnShutdown("storage engine", func(ctx context.Context) error {
		return engine.Close()
	})
	if opsServer != nil {
		handler.OnShutdown("ops endpoint", func(ctx context.Context) error {
			return opsServer.Shutdown(ctx)
		})
	}
	handler.OnShutdown("resp server", func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})

	if configFile != "" {
		watcher, err := watchConfig(configFile, log)
		if err != nil {
			log.Warn("configuration watcher unavailable", "error", err)
		} else {
			handler.OnShutdown("config watcher", func(ctx context.Context) error {
				return watcher.Stop()
			})
		}
	}

	if err := srv.Start(context.Background()); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	log.Info("server listening", "addr", srv.Addr().String())

	if opsServer != nil {
		go func() {
			log.Info("ops endpoint listening", "addr", opsServer.Addr())
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("ops endpoint failed", "error", err)
			}
		}()
	}

	if err := handler.Wait(); err != nil {
		log.Error("shutdown finished with errors", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}

// flagOverrides maps set CLI flags to configuration keys.
func flagOverrides(c *cli.Context) map[string]any {
	overrides := make(map[string]any)
	if c.IsSet("addr") {
		overrides["server.addr"] = c.String("addr")
	}
	if c.IsSet("data-dir") {
		overrides["storage.data_dir"] = c.String("data-dir")
	}
	if c.IsSet("log-level") {
		overrides["log.level"] = c.String("log-level")
	}
	return overrides
}

func loadConfig(configFile string, overrides map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, err
		}
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func initStorage(cfg *config.ServerConfig, log *slog.Logger) (*storage.Engine, error) {
	policy, err := store.ParsePolicy(cfg.Memory.EvictionPolicy)
	if err != nil {
		return nil, err
	}

	storageCfg := storage.DefaultConfig(cfg.Storage.DataDir)
	storageCfg.SnapshotInterval = cfg.Storage.SnapshotInterval
	storageCfg.WALSyncMode = wal.SyncMode(cfg.Storage.WALSyncMode)
	storageCfg.MaxMemory = cfg.Memory.MaxBytes
	storageCfg.EvictionPolicy = policy
	storageCfg.Logger = log

	return storage.New(storageCfg)
}

func serverConfig(cfg *config.ServerConfig) *respserver.Config {
	srvCfg := respserver.DefaultConfig()
	srvCfg.Address = cfg.Server.Addr
	srvCfg.Password = cfg.Auth.Password
	srvCfg.RateLimit = cfg.Server.RateLimit
	if cfg.Server.ReadTimeout > 0 {
		srvCfg.ReadTimeout = cfg.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout > 0 {
		srvCfg.WriteTimeout = cfg.Server.WriteTimeout
	}
	if cfg.Server.IdleTimeout > 0 {
		srvCfg.IdleTimeout = cfg.Server.IdleTimeout
	}
	return srvCfg
}

// watchConfig re-applies the log level when the configuration file
// changes. Other settings require a restart.
func watchConfig(path string, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		return nil, err
	}

	watcher.OnChange(func(string) {
		loader := confloader.NewLoader(confloader.WithConfigFile(path))
		cfg := config.Default()
		if err := loader.Load(cfg); err != nil {
			log.Warn("configuration reload failed", "error", err)
			return
		}
		if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
			log.Warn("configuration reload: bad log level", "level", cfg.Log.Level)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		log.Info("log level updated", "level", cfg.Log.Level)
	})

	watcher.StartAsync()
	return watcher, nil
}
