// Command quakeview serves decoded game assets over HTTP and streams a
// level's entity state to connected viewers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quakeview/server/internal/cache"
	"github.com/quakeview/server/internal/config"
	"github.com/quakeview/server/internal/dispatcher"
	"github.com/quakeview/server/internal/influx"
	"github.com/quakeview/server/internal/loader"
	"github.com/quakeview/server/internal/logging"
	intOtel "github.com/quakeview/server/internal/otel"
	"github.com/quakeview/server/internal/server"
	"github.com/quakeview/server/internal/storage"
	"github.com/quakeview/server/internal/stream"
	"github.com/quakeview/server/pkg/pak"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const appName = "quakeview"

func main() {
	var (
		configDir = flag.String("config", ".", "directory holding "+config.FileName)
		envFile   = flag.String("env", ".env", "env file with "+config.EnvPrefix+"_* overrides")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configDir, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configDir, envFile string) error {
	start := time.Now()
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfgErr := config.Load(configDir)

	logsDir := config.GetString("logsDir")
	rotation := logging.Rotation{
		MaxSizeMB:  config.GetInt("logMaxSizeMB"),
		MaxBackups: config.GetInt("logMaxBackups"),
	}
	logFile, err := logging.OpenLogFile(logging.LogFilePath(logsDir, appName, start), rotation)
	if err != nil {
		return err
	}
	defer logFile.Close()
	console := io.MultiWriter(os.Stdout, logFile)

	provider, err := newTelemetry(logsDir, start, rotation)
	if err != nil {
		return err
	}
	provider.Install()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		provider.Shutdown(shutdownCtx)
	}()

	logOpts := logging.Options{
		Level:    config.GetString("logLevel"),
		File:     console,
		Provider: provider.LoggerProvider(),
	}
	var graylogErr error
	if config.GetBool("graylog.enabled") {
		w, err := logging.NewGraylogWriter(config.GetString("graylog.address"))
		if err != nil {
			graylogErr = err
		} else {
			defer w.Close()
			logOpts.Graylog = w
		}
	}
	lm := logging.NewSlogManager()
	lm.Setup(logOpts)
	logger := lm.Logger()
	defer lm.Flush(context.Background())

	logger.Info("Starting up", "version", Version, "build", BuildDate, "mapDataVersion", loader.MapDataVersion)
	if cfgErr != nil {
		logger.Warn("Failed to load config, using defaults", "error", cfgErr)
	}
	if graylogErr != nil {
		logger.Warn("Graylog disabled", "error", graylogErr)
	}
	zl := logging.NewZerolog(console, config.GetString("logLevel"))

	archive, err := mountPaks(config.GetPaks())
	if err != nil {
		return err
	}
	logger.Info("Mounted archives", "paks", config.GetPaks(), "entries", archive.Len())
	session := loader.NewSession(archive, loaderOptions(config.GetLoaderConfig()), lm.Component("loader"))

	store := openStore(zl, logger)
	if store != nil {
		defer store.Close()
	}
	assets, err := cache.New(config.GetCacheConfig(), store, loader.MapDataVersion, lm.Component("cache"))
	if err != nil {
		return err
	}
	defer assets.Close()

	var stats *influx.Manager
	if config.GetBool("influx.enabled") {
		m := influx.NewManager(zl.With().Str("component", "influx").Logger(), filepath.Join(logsDir, "influx_backup.log.gz"))
		if err := m.Connect(); err != nil {
			logger.Warn("InfluxDB disabled", "error", err)
		} else {
			stats = m
			defer m.Close()
		}
	}

	sc := config.GetStreamConfig()
	deps := server.Deps{
		Session: session,
		Cache:   assets,
		Level:   sc.Level,
		Logger:  lm.Component("http"),
	}
	if stats != nil {
		deps.Loads = stats
	}

	g, ctx := errgroup.WithContext(ctx)
	if sc.Enabled {
		hub, controls, err := newStream(session, sc, stats, zl, lm.Component("stream"))
		if err != nil {
			return err
		}
		defer controls.Close()
		transportLog := logging.WithLive(lm.Component("stream"), func() []slog.Attr {
			return []slog.Attr{slog.Int("recipients", hub.Recipients())}
		})
		deps.Stream = stream.NewTransport(hub, controls, transportLog)
		deps.Styles = hub.Simulation().Lightstyles
		g.Go(func() error { return hub.Run(ctx) })
	}

	srv := server.New(config.GetHTTPConfig(), deps)
	g.Go(func() error { return srv.Run(ctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("Shut down", "uptime", time.Since(start).Round(time.Second))
	return err
}

func newTelemetry(logsDir string, start time.Time, rotation logging.Rotation) (*intOtel.Provider, error) {
	oc := config.GetOTelConfig()
	cfg := intOtel.Config{
		Enabled:      oc.Enabled,
		ServiceName:  oc.ServiceName,
		BatchTimeout: oc.BatchTimeout,
		Endpoint:     oc.Endpoint,
		Insecure:     oc.Insecure,
	}
	if oc.Enabled {
		w, err := logging.OpenLogFile(logging.LogFilePath(logsDir, appName+".otel", start), rotation)
		if err != nil {
			return nil, err
		}
		cfg.LogWriter = w
	}
	return intOtel.New(cfg)
}

// mountPaks loads the archives in order; later archives override earlier
// entries, as the game's search path does.
func mountPaks(paths []string) (*pak.Archive, error) {
	if len(paths) == 0 {
		return nil, errors.New("no paks configured")
	}
	out := pak.New()
	for _, path := range paths {
		a, err := pak.Load(path)
		if err != nil {
			return nil, fmt.Errorf("mount %s: %w", path, err)
		}
		out.Update(a)
	}
	return out, nil
}

func loaderOptions(lc config.LoaderConfig) loader.Options {
	return loader.Options{
		TextureIndex:          loader.IndexPolicy(lc.TextureIndex),
		ExcludeTargetedLights: lc.ExcludeTargetedLights,
		ModelFlags:            loader.FlagsPolicy(lc.ModelFlags),
		Liquid:                lc.Liquid,
	}
}

// openStore returns nil when the configured backend cannot start; the
// in-process cache still serves.
func openStore(zl zerolog.Logger, logger *slog.Logger) storage.Backend {
	sc := config.GetStorageConfig()
	store, err := storage.NewBackend(sc, zl.With().Str("component", "storage").Logger())
	if err == nil {
		err = store.Init()
	}
	if err != nil {
		logger.Warn("Persistent asset cache disabled", "type", sc.Type, "error", err)
		return nil
	}
	logger.Info("Persistent asset cache ready", "type", sc.Type)
	return store
}

func newStream(session *loader.Session, sc config.StreamConfig, stats *influx.Manager, zl zerolog.Logger, logger *slog.Logger) (*stream.Hub, *dispatcher.Dispatcher, error) {
	ents, err := session.Entities(sc.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("stream level %s: %w", sc.Level, err)
	}
	world, err := stream.NewStaticWorld(ents, loader.DefaultLightStyles())
	if err != nil {
		return nil, nil, fmt.Errorf("stream level %s: %w", sc.Level, err)
	}

	var opts []stream.Option
	if stats != nil {
		opts = append(opts, stream.WithStats(stats))
	}
	hub, err := stream.NewHub(world, stream.Config{TickRate: sc.TickRate, SendBuffer: sc.SendBuffer}, logger, opts...)
	if err != nil {
		return nil, nil, err
	}

	controls, err := dispatcher.New(logging.NewDispatcherLogger(zl.With().Str("component", "controls").Logger()))
	if err != nil {
		return nil, nil, err
	}
	stream.RegisterControls(controls, hub)
	logger.Info("Streaming level", "level", sc.Level, "entities", world.Entities(), "tickRate", sc.TickRate)
	return hub, controls, nil
}
