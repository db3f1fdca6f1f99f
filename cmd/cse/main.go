package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cavestory-tools/cse/internal/cache"
	"github.com/cavestory-tools/cse/internal/config"
	"github.com/cavestory-tools/cse/internal/dispatcher"
	"github.com/cavestory-tools/cse/internal/history"
	"github.com/cavestory-tools/cse/internal/logging"
	"github.com/cavestory-tools/cse/internal/manager"
	intOtel "github.com/cavestory-tools/cse/internal/otel"
	"github.com/cavestory-tools/cse/internal/profile"
	"github.com/cavestory-tools/cse/internal/worker"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ProgramName string = "cse"
)

// file paths
var (
	// ConfigDir holds cse.cfg.json. Defaults to the working directory and
	// can be moved with CSE_CONFIG_DIR.
	ConfigDir string

	LogFilePath string
	LogFile     *os.File
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// AuditLogger receives dispatcher and journal output
	AuditLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// Fs is the filesystem every profile and asset is read through
	Fs afero.Fs = afero.NewOsFs()

	SessionStartTime time.Time = time.Now()

	// Services
	eventDispatcher *dispatcher.Dispatcher
	profileManager  *manager.Manager
	workerManager   *worker.Manager
	historyManager  *history.Manager
	assetCache      *cache.AssetCache

	cancelWatch context.CancelFunc = func() {}
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		usage()
		return
	}

	if err := setup(); err != nil {
		fmt.Fprintf(os.Stderr, "cse: %v\n", err)
		os.Exit(1)
	}
	defer shutdown()

	if err := run(strings.ToLower(args[0]), args[1:]); err != nil {
		Logger.Error("Command failed", "command", args[0], "error", err)
		fmt.Fprintf(os.Stderr, "cse: %v\n", err)
		shutdown()
		os.Exit(1)
	}
}

// setup loads config and wires logging, telemetry and the profile services.
func setup() error {
	var err error

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "error", nil)
	Logger = SlogManager.Logger()

	ConfigDir = os.Getenv("CSE_CONFIG_DIR")
	if ConfigDir == "" {
		ConfigDir = "."
	}
	if err = config.Load(ConfigDir); err != nil {
		Logger.Debug("No config file, using defaults", "dir", ConfigDir, "error", err)
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	LogFilePath = logging.LogFilePath(logsDir, ProgramName, SessionStartTime)
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    LogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.SetContextProvider(func() []slog.Attr {
		if profileManager == nil {
			return nil
		}
		return profileManager.LogAttrs()
	})
	SlogManager.Setup(LogFile, config.GetString("logLevel"), otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Starting up", "version", CurrentVersion, "build", BuildDate, "log", LogFilePath)

	AuditLogger = logging.NewAuditLogger(LogFile, config.GetString("logLevel"))
	dispatcherLogger := logging.NewDispatcherLogger(AuditLogger)

	eventDispatcher, err = dispatcher.New(dispatcherLogger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	opts := profileOptions()
	profileManager, err = manager.New(eventDispatcher, dispatcherLogger, opts)
	if err != nil {
		return fmt.Errorf("failed to create profile manager: %w", err)
	}

	historyCfg := config.GetHistoryConfig()
	if historyCfg.Enabled {
		historyManager = history.NewManager(AuditLogger)
		if err := historyManager.Open(historyCfg); err != nil {
			Logger.Error("History journal unavailable", "error", err)
			historyManager = nil
		}
	}

	workerManager = worker.NewManager(worker.Dependencies{
		Options: opts,
		History: historyManager,
		Logger:  dispatcherLogger,
	})
	workerManager.RegisterHandlers(eventDispatcher, profileManager)

	gameCfg := config.GetGameConfig()
	assetCache = cache.NewAssetCache(Fs, Logger)
	if gameCfg.WatchAssets {
		var ctx context.Context
		ctx, cancelWatch = context.WithCancel(context.Background())
		dirs := []string{
			filepath.Join(gameCfg.DataDir, gameCfg.StageFolder),
			filepath.Join(gameCfg.DataDir, gameCfg.NPCFolder),
		}
		if err := assetCache.Watch(ctx, dirs...); err != nil {
			Logger.Warn("Asset watcher not started", "error", err)
		}
	}
	return nil
}

func profileOptions() profile.Options {
	cfg := config.GetProfileConfig()
	return profile.Options{
		Fs:           Fs,
		Logger:       Logger,
		BackupSuffix: cfg.BackupSuffix,
		Header:       cfg.Header,
		FlagHeader:   cfg.FlagHeader,
		Start: profile.StartPoint{
			Map:       cfg.Start.Map,
			Song:      cfg.Start.Song,
			X:         cfg.Start.X,
			Y:         cfg.Start.Y,
			Direction: cfg.Start.Direction,
			Health:    cfg.Start.Health,
			MaxHealth: cfg.Start.MaxHealth,
		},
	}
}

var shutdownDone bool

func shutdown() {
	if shutdownDone {
		return
	}
	shutdownDone = true

	cancelWatch()
	if eventDispatcher != nil {
		if n := eventDispatcher.Pending(); n > 0 {
			Logger.Debug("Delivering queued changes", "events", n)
			eventDispatcher.Flush()
		}
		if workerManager != nil {
			workerManager.UnregisterHandlers(eventDispatcher)
		}
		eventDispatcher.Close()
	}
	if historyManager != nil {
		if err := historyManager.Close(); err != nil {
			Logger.Error("Failed to close history journal", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cse: flushing logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "cse: stopping telemetry: %v\n", err)
		}
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}
