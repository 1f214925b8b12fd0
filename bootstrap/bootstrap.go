// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file when one exists, falling back to
// SHELLGATE_* environment variables.
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/artpar/shellgate/adapters/clock"
	apihttp "github.com/artpar/shellgate/adapters/http"
	"github.com/artpar/shellgate/adapters/idgen"
	"github.com/artpar/shellgate/adapters/memory"
	"github.com/artpar/shellgate/adapters/metrics"
	"github.com/artpar/shellgate/adapters/remote"
	"github.com/artpar/shellgate/adapters/sqlite"
	"github.com/artpar/shellgate/app"
	"github.com/artpar/shellgate/config"
	"github.com/artpar/shellgate/core/events"
	"github.com/artpar/shellgate/core/platform"
	"github.com/artpar/shellgate/core/store"
	"github.com/artpar/shellgate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Holder     *config.Holder // nil when configured from the environment
	DB         *sqlite.DB     // nil for the memory driver
	KV         ports.KVStore
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry

	Overrides *app.OverrideService
	Runtime   *platform.Runtime
	Bus       *events.Bus
	Store     *store.Store
}

// Config provides optional configuration for application initialization.
type Config struct {
	// ConfigPath is the YAML file to load. When it does not exist the
	// environment is used instead.
	ConfigPath string

	// Watch enables hot reload of ConfigPath on file change and SIGHUP.
	Watch bool

	// Version is reported on /version and in the OpenAPI document.
	Version apihttp.VersionResponse
}

// New creates and initializes the application from the environment.
func New() (*App, error) {
	return NewWithConfig(Config{})
}

// NewWithConfig creates and initializes the application with custom configuration.
func NewWithConfig(bc Config) (*App, error) {
	a := &App{}

	path, err := a.initConfig(bc)
	if err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	a.Logger = setupLogger(a.Config.Logging)

	if path != "" {
		h, err := config.NewHolder(path, a.Logger.With().Str("component", "config").Logger())
		if err != nil {
			return nil, fmt.Errorf("init config: %w", err)
		}
		a.Holder = h
		a.Config = h.Get()
	}
	cfg := a.Config

	a.Logger.Info().Str("config", path).Int("remotes", len(cfg.Remotes)).Msg("initializing shellgate")

	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(a.Registry)
		a.Logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	if err := a.initStorage(cfg.Storage); err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	a.initRuntime(cfg)

	if a.Holder != nil {
		a.watchConfig(bc.Watch)
	}

	a.initHTTPServer(cfg, bc.Version)
	return a, nil
}

// initConfig loads the configuration and reports the file it came from, or ""
// when the environment was used.
func (a *App) initConfig(bc Config) (string, error) {
	if bc.ConfigPath != "" {
		if _, err := os.Stat(bc.ConfigPath); err == nil {
			cfg, err := config.Load(bc.ConfigPath)
			if err != nil {
				return "", err
			}
			a.Config = cfg
			return bc.ConfigPath, nil
		}
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return "", err
	}
	a.Config = cfg
	return "", nil
}

func (a *App) initStorage(cfg config.StorageConfig) error {
	switch cfg.Driver {
	case "memory":
		a.KV = memory.NewKVStore()
		a.Logger.Warn().Msg("using in-memory override storage, overrides are lost on restart")
		return nil
	case "sqlite":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		a.DB = db
		a.KV = sqlite.NewKVStore(db)
		a.Logger.Info().Str("dsn", cfg.DSN).Msg("database initialized")
		return nil
	}
	return fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func (a *App) initRuntime(cfg *config.Config) {
	a.Overrides = app.NewOverrideService(a.KV, OverrideConfig(cfg), a.Logger.With().Str("component", "overrides").Logger())
	a.Overrides.SetRecorder(a.Metrics)

	a.Bus = events.NewBus(
		a.Logger.With().Str("component", "bus").Logger(),
		events.WithObserver(a.Metrics),
	)
	a.Store = store.New(
		a.Logger.With().Str("component", "store").Logger(),
		nil,
		store.WithObserver(a.Metrics),
	)

	client := remote.NewClient(remote.ClientConfig{
		Timeout:      cfg.Loader.Timeout,
		Headers:      cfg.Loader.Headers,
		AllowedHosts: cfg.Loader.AllowedHosts,
	})

	a.Runtime = platform.New(platform.Config{
		Resolver: a.Overrides,
		Loader:   remote.NewManifestLoader(client, a.Logger.With().Str("component", "loader").Logger()),
		Store:    a.Store,
		Bus:      a.Bus,
		IDs:      idgen.UUID{Prefix: "tab"},
		Clock:    clock.Real{},
		Recorder: a.Metrics,
		Logger:   a.Logger.With().Str("component", "platform").Logger(),
	})
}

func (a *App) watchConfig(watch bool) {
	a.Holder.OnChange(func(cfg *config.Config) {
		a.Overrides.Reconfigure(OverrideConfig(cfg))
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
		}
		a.Metrics.ConfigReloaded(nil)
		a.Logger.Info().Int("remotes", len(cfg.Remotes)).Msg("remotes reconfigured")
	})
	a.Holder.OnError(a.Metrics.ConfigReloaded)

	if !watch {
		return
	}
	if err := a.Holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch disabled")
	}
	a.Holder.WatchSignals()
}

func (a *App) initHTTPServer(cfg *config.Config, version apihttp.VersionResponse) {
	var checkers []apihttp.HealthChecker
	if a.DB != nil {
		checkers = append(checkers, apihttp.HealthCheckFunc(a.DB.PingContext))
	}

	routerCfg := apihttp.RouterConfig{
		Metrics:        a.Metrics,
		MetricsPath:    cfg.Metrics.Path,
		EnableOpenAPI:  cfg.OpenAPI.Enabled,
		AdminTokenHash: cfg.Admin.TokenHash,
		Version:        version,
		RequestTimeout: cfg.Server.WriteTimeout,
	}
	if a.Registry != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
	}
	if cfg.Admin.TokenHash == "" {
		a.Logger.Warn().Msg("admin API is unauthenticated, set admin.token_hash outside local development")
	}

	api := apihttp.NewAPI(a.Overrides, a.Runtime, a.Metrics, a.Logger.With().Str("component", "http").Logger())
	router := apihttp.NewRouter(api, apihttp.NewHealthHandler(checkers...), a.Logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.Holder != nil {
		a.Holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.Runtime != nil {
		for _, m := range a.Runtime.Mounted() {
			if err := a.Runtime.Deactivate(ctx, m.Name); err != nil {
				a.Logger.Warn().Err(err).Str("module", m.Name).Msg("deactivate on shutdown failed")
			}
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// OpenKVStore opens the override store configured in cfg without starting the
// rest of the application. The returned close function releases it.
func OpenKVStore(cfg config.StorageConfig) (ports.KVStore, func() error, error) {
	a := &App{Logger: zerolog.Nop()}
	if err := a.initStorage(cfg); err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return nil }
	if a.DB != nil {
		closeFn = a.DB.Close
	}
	return a.KV, closeFn, nil
}

// OverrideConfig maps loaded configuration onto the override service settings.
func OverrideConfig(cfg *config.Config) app.OverrideConfig {
	return app.OverrideConfig{
		Remotes:        cfg.Modules(),
		Naming:         cfg.Naming(),
		StoreKey:       cfg.Overrides.StoreKey,
		StagingPattern: cfg.Overrides.StagingPattern,
		PreviewPattern: cfg.Overrides.PreviewPattern,
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
