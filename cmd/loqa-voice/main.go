package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/runtime"
	"github.com/spf13/pflag"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		envFile     string
		logLevel    string
		showVersion bool
	)

	flags := pflag.NewFlagSet("loqa-voice", pflag.ExitOnError)
	flags.StringVarP(&configPath, "config", "c", "loqa-voice.yaml", "Path to configuration file")
	flags.StringVar(&envFile, "env", ".env", "Dotenv file applied before the configuration is read")
	flags.StringVar(&logLevel, "log-level", "", "Override telemetry.log_level (debug, info, warn, error)")
	flags.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = flags.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	boot := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			boot.Error("failed to load env file", slog.String("path", envFile), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// the default config path is optional, an explicit one is not
	if !flags.Changed("config") {
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			configPath = ""
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		boot.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level := cfg.Telemetry.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger, err := runtime.NewLogger(os.Stdout, cfg.Telemetry.LogFormat, level)
	if err != nil {
		boot.Error("failed to configure logging", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	rt := runtime.New(cfg, version, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
